package main

import "github.com/Mohsinsiddi/ctfactory/cmd"

func main() {
	cmd.Execute()
}
