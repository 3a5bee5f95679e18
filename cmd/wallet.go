package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/ctfactory/internal/ui"
	"github.com/Mohsinsiddi/ctfactory/internal/wallet"
)

var (
	walletKeyFlag string
	walletYes     bool
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage creator identities",
	Long: `Manage the wallets tokens are created from.

A signing wallet keeps its private key in the OS keychain and can create
tokens on the chain backend. A watch-only wallet only names an address: it
is enough for the ledger backends and for listing "my tokens".`,
}

var walletAddCmd = &cobra.Command{
	Use:   "add <name> [address]",
	Short: "Add a wallet",
	Long: `Add a watch-only wallet from an address or ENS name, or a signing
wallet from --key.

  ctfactory wallet add alice 0xAbc...
  ctfactory wallet add vitalik vitalik.eth
  ctfactory wallet add deployer --key 0x<private-key>`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		mgr := newWalletManager()
		out := cmd.OutOrStdout()

		if walletKeyFlag != "" {
			w, err := mgr.AddWithKey(name, walletKeyFlag)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, ui.Success(fmt.Sprintf("Signing wallet %q added: %s", name, ui.Addr(w.Address))))
		} else {
			if len(args) < 2 {
				return fmt.Errorf("address required for watch-only wallet\n  Usage: ctfactory wallet add <name> <address>\n  Or for signing: ctfactory wallet add <name> --key <private-key>")
			}
			addr, err := resolveAddress(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			w, err := mgr.AddWatchOnly(name, addr.Hex())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, ui.Success(fmt.Sprintf("Watch-only wallet %q added: %s", name, ui.Addr(w.Address))))
		}
		fmt.Fprintln(out, ui.Hint(fmt.Sprintf("Set as default with: ctfactory wallet use %s", name)))
		return nil
	},
}

var walletGenerateCmd = &cobra.Command{
	Use:   "generate <name>",
	Short: "Generate a new signing wallet",
	Long: `Generate a fresh keypair and store the private key in the OS keychain.
The key is never printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWalletManager().Generate(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Wallet %q generated: %s", w.Name, ui.Addr(w.Address))))
		fmt.Fprintln(out, ui.Hint("Fund it before creating tokens on a public network."))
		return nil
	},
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all wallets",
	RunE: func(cmd *cobra.Command, args []string) error {
		wallets, err := newWalletManager().List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(wallets) == 0 {
			fmt.Fprintln(out, ui.Info("No wallets configured yet."))
			fmt.Fprintln(out, ui.Hint("Add one with: ctfactory wallet add myWallet 0xYourAddress"))
			return nil
		}

		t := ui.NewTable([]ui.Column{
			{Title: "Name", Width: 16},
			{Title: "Address", Width: 44},
			{Title: "Type", Width: 12},
			{Title: "Default", Width: 8},
		})
		for _, w := range wallets {
			def := ""
			if w.IsDefault || w.Name == cfg.DefaultWallet {
				def = "✓"
			}
			t.AddRow(ui.Row{w.Name, w.Address, walletTypeLabel(w.Type), def})
		}
		fmt.Fprint(out, t.Render())
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("%d wallet(s) configured", len(wallets))))
		return nil
	},
}

var walletRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a wallet and its stored key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		out := cmd.OutOrStdout()
		if !walletYes && !ui.NewPrompter(cmd.InOrStdin(), out).ConfirmDanger(fmt.Sprintf("Remove wallet %q?", name)) {
			fmt.Fprintln(out, ui.Meta("Cancelled."))
			return nil
		}
		if err := newWalletManager().Remove(name); err != nil {
			return err
		}
		if cfg.DefaultWallet == name {
			cfg.DefaultWallet = ""
			if err := cfg.Save(); err != nil {
				return err
			}
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Wallet %q removed.", name)))
		return nil
	},
}

var walletUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Set the default wallet (interactive without a name)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := newWalletManager()
		out := cmd.OutOrStdout()

		var name string
		if len(args) == 1 {
			name = args[0]
		} else {
			wallets, err := mgr.List()
			if err != nil {
				return err
			}
			items := make([]ui.PickerItem, len(wallets))
			for i, w := range wallets {
				items[i] = ui.PickerItem{
					Label:    w.Name,
					SubLabel: ui.TruncateAddr(w.Address) + "  " + walletTypeLabel(w.Type),
					Value:    w.Name,
					Current:  w.IsDefault,
				}
			}
			name, err = ui.Pick("Default wallet", items)
			if err != nil {
				return err
			}
			if name == "" {
				fmt.Fprintln(out, ui.Meta("Cancelled."))
				return nil
			}
		}

		if err := mgr.SetDefault(name); err != nil {
			return err
		}
		cfg.DefaultWallet = name
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Default wallet set to %q.", name)))
		fmt.Fprintln(out, ui.Hint("Used as the creator whenever --wallet is not given."))
		return nil
	},
}

func init() {
	walletAddCmd.Flags().StringVar(&walletKeyFlag, "key", "", "private key for a signing wallet (stored in the OS keychain)")
	walletRemoveCmd.Flags().BoolVarP(&walletYes, "yes", "y", false, "skip confirmation")
	walletCmd.AddCommand(walletAddCmd, walletGenerateCmd, walletListCmd, walletRemoveCmd, walletUseCmd)
}

// walletTypeLabel converts an internal wallet type to a user-facing label.
func walletTypeLabel(t string) string {
	switch t {
	case wallet.TypeSigning:
		return "signing"
	default:
		return t
	}
}
