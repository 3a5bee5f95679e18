package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/ctfactory/internal/chain"
	"github.com/Mohsinsiddi/ctfactory/internal/config"
	"github.com/Mohsinsiddi/ctfactory/internal/ui"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Manage networks",
}

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := chain.NewRegistry()
		t := ui.NewTable([]ui.Column{
			{Title: "#", Width: 3},
			{Title: "Name", Width: 12},
			{Title: "Display", Width: 20},
			{Title: "Chain ID", Width: 10},
			{Title: "Factory", Width: 42},
		})
		for i, n := range reg.All() {
			factoryAddr := cfg.GetFactory(n.Name)
			if factoryAddr == "" {
				factoryAddr = "—"
			}
			name := n.Name
			if n.Name == cfg.DefaultNetwork {
				name += " *"
			}
			t.AddRow(ui.Row{
				fmt.Sprintf("%d", i+1),
				name,
				n.DisplayName,
				fmt.Sprintf("%d", n.ChainID),
				factoryAddr,
			})
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, t.Render())
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("%d networks, * marks the default", len(reg.All()))))
		return nil
	},
}

var networkUseCmd = &cobra.Command{
	Use:   "use [network]",
	Short: "Set the default network (interactive without a name)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := chain.NewRegistry()
		out := cmd.OutOrStdout()

		var name string
		if len(args) == 1 {
			name = args[0]
		} else {
			var items []ui.PickerItem
			for _, n := range reg.All() {
				items = append(items, ui.PickerItem{
					Label:    n.Name,
					SubLabel: fmt.Sprintf("%s · chain %d", n.DisplayName, n.ChainID),
					Value:    n.Name,
					Current:  n.Name == cfg.DefaultNetwork,
				})
			}
			var err error
			if name, err = ui.Pick("Default network", items); err != nil {
				return err
			}
			if name == "" {
				fmt.Fprintln(out, ui.Meta("Cancelled."))
				return nil
			}
		}

		n, err := reg.GetByName(name)
		if err != nil {
			return fmt.Errorf("unknown network %q — run `ctfactory network list` to see all networks", name)
		}
		cfg.DefaultNetwork = n.Name
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Default network set to %s", n.DisplayName)))
		return nil
	},
}

var networkProbeCmd = &cobra.Command{
	Use:   "probe [network]",
	Short: "Ping every RPC of a network and show latency",
	Long: `Ping every RPC endpoint (custom ones first) in parallel and report latency
and block height. The endpoint marked "best" is the one the chain backend
would use.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := currentNetwork()
		if len(args) == 1 {
			n, err = chain.NewRegistry().GetByName(args[0])
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		spin := ui.NewSpinner(out, "Probing "+n.DisplayName+" endpoints...")
		spin.Start()
		results := chain.ProbeEndpoints(cmd.Context(), rpcURLs(n), config.RPCCallTimeout)
		spin.Stop()

		best, bestErr := chain.PickFastest(results)
		t := ui.NewTable([]ui.Column{
			{Title: "RPC", Width: 46},
			{Title: "Latency", Width: 10},
			{Title: "Block", Width: 12},
			{Title: "Status", Width: 24},
		})
		for _, e := range results {
			latency, block, status := "—", "—", "ok"
			if e.Healthy() {
				latency = e.Latency.Round(time.Millisecond).String()
				block = fmt.Sprintf("%d", e.BlockNumber)
				if bestErr == nil && e.URL == best.URL {
					status = "best"
				}
			} else {
				status = firstLine(e.Err.Error())
			}
			t.AddRow(ui.Row{e.URL, latency, block, status})
		}
		fmt.Fprint(out, t.Render())
		if bestErr != nil {
			return fmt.Errorf("%s: %w", n.DisplayName, bestErr)
		}
		return nil
	},
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	networkCmd.AddCommand(networkListCmd, networkUseCmd, networkProbeCmd)
}
