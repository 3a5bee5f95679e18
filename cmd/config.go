package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/ctfactory/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n\n", ui.StyleTitle.Render("Current Configuration"))
		fmt.Fprintln(out, string(data))
		fmt.Fprintln(out, ui.Meta("Config directory: "+cfg.Dir()))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a scalar configuration value. Keys:
  default_network  default_wallet  backend  ledger_path
  postgres_dsn     server_addr     log_level  log_file`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("%s set to %q", args[0], args[1])))
		return nil
	},
}

var configSetFactoryCmd = &cobra.Command{
	Use:   "set-factory <network> <address>",
	Short: "Pin the factory address for a network",
	Long:  `Pin the factory address used on a network. An empty address ("") removes the pin.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		network, addr := args[0], args[1]
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid factory address %q", addr)
		}
		if addr != "" {
			addr = common.HexToAddress(addr).Hex()
		}
		cfg.SetFactory(network, addr)
		if err := cfg.Save(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if addr == "" {
			fmt.Fprintln(out, ui.Success("Factory pin removed for "+network))
		} else {
			fmt.Fprintln(out, ui.Success(fmt.Sprintf("Factory for %s set to %s", network, addr)))
		}
		return nil
	},
}

var configRPCCmd = &cobra.Command{
	Use:   "rpc",
	Short: "Manage custom RPC endpoints",
}

var configRPCAddCmd = &cobra.Command{
	Use:   "add <network> <url>",
	Short: "Add a custom RPC for a network (tried before built-in ones)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if err := cfg.AddRPC(args[0], args[1]); err != nil {
			// Already present, not fatal.
			fmt.Fprintln(out, ui.Warn(err.Error()))
			return nil
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("RPC %s added for %s", args[1], args[0])))
		return nil
	},
}

var configRPCRemoveCmd = &cobra.Command{
	Use:   "remove <network> <url>",
	Short: "Remove a custom RPC",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RemoveRPC(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("RPC %s removed from %s", args[1], args[0])))
		return nil
	},
}

func init() {
	configRPCCmd.AddCommand(configRPCAddCmd, configRPCRemoveCmd)
	configCmd.AddCommand(configListCmd, configSetCmd, configSetFactoryCmd, configRPCCmd)
}
