package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/ctfactory/internal/chain"
	"github.com/Mohsinsiddi/ctfactory/internal/config"
	"github.com/Mohsinsiddi/ctfactory/internal/flow"
	"github.com/Mohsinsiddi/ctfactory/internal/ui"
)

var studioCmd = &cobra.Command{
	Use:   "studio",
	Short: "Full-screen token studio",
	Long: `Open the full-screen studio: a creation form, live status for the
transaction in flight, and a gallery of every token plus your own.

Keys: tab/shift+tab move between fields, enter deploys (or starts over after
a result), esc quits.

Without a wallet the studio opens read-only: the gallery works but
deploying asks you to connect one first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var (
			identity common.Address
			signer   chain.TxSigner
		)
		mgr := newWalletManager()
		if w, err := resolveWallet(mgr); err == nil {
			identity = w.EVMAddress()
			if cfg.Backend == config.BackendChain {
				signer = optionalSigner()
			}
		}

		b, err := openBackend(ctx, signer)
		if err != nil {
			return err
		}
		defer b.Close()

		sub, ok := flow.SubmitterFor(b.registry)
		if !ok {
			return fmt.Errorf("backend %s cannot create tokens", b.name)
		}
		counter := flow.NewRefreshCounter()
		creation := flow.NewCreation(sub, identity, flow.WithRefreshCounter(counter))
		gallery := flow.NewGallery(b.registry)

		sc := ui.StudioConfig{
			Creation: creation,
			Gallery:  gallery,
			Counter:  counter,
			Network:  b.name,
		}
		if identity != (common.Address{}) {
			gallery.SetIdentity(&identity)
			sc.Identity = identity.Hex()
		}
		if n := b.network; n != nil {
			sc.Network = n.DisplayName
			sc.TxURL = n.TxURL
		}
		return ui.RunStudio(ctx, sc)
	},
}
