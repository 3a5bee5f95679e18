package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter asks line-based questions on a terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

func (p *Prompter) readLine() string {
	line, _ := p.in.ReadString('\n')
	return strings.TrimSpace(line)
}

// Ask prompts for a value, returning def when the answer is blank.
func (p *Prompter) Ask(label, def string) string {
	if def != "" {
		fmt.Fprintf(p.out, "%s %s: ", StyleValue.Render(label), StyleMeta.Render("["+def+"]"))
	} else {
		fmt.Fprintf(p.out, "%s: ", StyleValue.Render(label))
	}
	if v := p.readLine(); v != "" {
		return v
	}
	return def
}

// Confirm asks a yes/no question. Anything but y/yes is no.
func (p *Prompter) Confirm(prompt string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", StyleWarning.Render(prompt))
	line := strings.ToLower(p.readLine())
	return line == "y" || line == "yes"
}

// ConfirmDanger is like Confirm but styled for destructive actions.
func (p *Prompter) ConfirmDanger(prompt string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", StyleError.Render("⚠ "+prompt))
	line := strings.ToLower(p.readLine())
	return line == "y" || line == "yes"
}
