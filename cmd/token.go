package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/ctfactory/internal/chain"
	"github.com/Mohsinsiddi/ctfactory/internal/config"
	"github.com/Mohsinsiddi/ctfactory/internal/flow"
	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/Mohsinsiddi/ctfactory/internal/ui"
)

// ── flag vars ─────────────────────────────────────────────────────────────────

var (
	tokenName    string
	tokenSymbol  string
	tokenSupply  string
	tokenTable   bool
	tokenCreator string
	tokenPoll    time.Duration
)

// ── root token command ────────────────────────────────────────────────────────

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Create and query confidential tokens",
	Long: `Create confidential tokens and query the registry.

Sub-commands:
  ctfactory token create   — mint a new confidential token
  ctfactory token list     — every token, oldest first
  ctfactory token get      — one token by registry index
  ctfactory token count    — number of tokens
  ctfactory token mine     — tokens created by your wallet
  ctfactory token watch    — live feed of new tokens`,
}

// ── token create ──────────────────────────────────────────────────────────────

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new confidential token",
	Long: fmt.Sprintf(`Create a confidential token. The wallet selected with --wallet (or the
default wallet) becomes the creator and receives the initial supply.

Symbols are upper-cased and may be at most %d characters. A zero or empty
supply lets the registry apply its default of %d.

Examples:
  ctfactory token create --name "Secret Coin" --symbol SEC
  ctfactory token create --name "Secret Coin" --symbol SEC --supply 5000000
  ctfactory token create   (prompts for missing fields)`, registry.MaxSymbolLength, registry.DefaultSupply),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		prompt := ui.NewPrompter(cmd.InOrStdin(), out)
		if tokenName == "" {
			tokenName = prompt.Ask("Token name", "")
		}
		if tokenSymbol == "" {
			tokenSymbol = prompt.Ask("Symbol", "")
		}
		if !cmd.Flags().Changed("supply") && tokenSupply == "" {
			tokenSupply = prompt.Ask("Initial supply", flow.DefaultSupplyDisplay)
		}
		supply, err := registry.ParseSupply(tokenSupply)
		if err != nil {
			return err
		}

		mgr := newWalletManager()
		w, err := resolveWallet(mgr)
		if err != nil {
			return err
		}
		var signer chain.TxSigner
		if cfg.Backend == config.BackendChain {
			s, err := signerFor(mgr, w)
			if err != nil {
				return err
			}
			signer = s
		}

		ctx := cmd.Context()
		b, err := openBackend(ctx, signer)
		if err != nil {
			return err
		}
		defer b.Close()

		rec, ref, err := runCreation(ctx, out, b, w.EVMAddress(), flow.Form{
			Name:   tokenName,
			Symbol: tokenSymbol,
			Supply: supply.String(),
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(out, ui.Success("Token minted!"))
		fmt.Fprintln(out, ui.RecordBlock(rec.Name, *rec))
		if b.network != nil {
			if link := b.network.TxURL(ref); link != "" {
				fmt.Fprintln(out, ui.Hint("View transaction: "+link))
			}
		}
		return nil
	},
}

// runCreation drives one creation through the flow, showing each state on
// a spinner. It returns the record and the submission reference.
func runCreation(ctx context.Context, out io.Writer, b *backend, creator common.Address, form flow.Form) (*registry.TokenRecord, string, error) {
	sub, ok := flow.SubmitterFor(b.registry)
	if !ok {
		return nil, "", fmt.Errorf("backend %s cannot create tokens", b.name)
	}
	creation := flow.NewCreation(sub, creator)
	updates, unsubscribe := creation.Subscribe()
	defer unsubscribe()

	spin := ui.NewSpinner(out, ui.ButtonLabel(flow.Submitting))
	spin.Start()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range updates {
			spin.Update(ui.ButtonLabel(s.State))
		}
	}()

	rec, err := creation.Submit(ctx, form)
	unsubscribe()
	<-done
	spin.Stop()
	return rec, creation.Status().Ref, err
}

// ── token list ────────────────────────────────────────────────────────────────

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every token, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer b.Close()

		recs, err := b.registry.AllTokens(cmd.Context())
		if err != nil {
			return err
		}
		printRecords(cmd.OutOrStdout(), recs)
		return nil
	},
}

func printRecords(out io.Writer, recs []registry.TokenRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No tokens created yet.")
		return
	}
	if tokenTable {
		fmt.Fprint(out, ui.TokenTable(recs).Render())
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("%d token(s)", len(recs))))
		return
	}
	for i, rec := range recs {
		fmt.Fprintf(out, "%d. %s\n", i+1, rec.String())
	}
}

// ── token get ─────────────────────────────────────────────────────────────────

var tokenGetCmd = &cobra.Command{
	Use:   "get <index>",
	Short: "Show one token by registry index",
	Long: `Show the token at a registry index. Indices start at 0, so the token
printed as "1." by ` + "`token list`" + ` is index 0.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid index %q: must be a non-negative integer", args[0])
		}
		b, err := openBackend(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer b.Close()

		rec, err := b.registry.Token(cmd.Context(), index)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RecordBlock(fmt.Sprintf("Token #%d", index), *rec))
		return nil
	},
}

// ── token count ───────────────────────────────────────────────────────────────

var tokenCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer b.Close()

		n, err := b.registry.TokenCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

// ── token mine ────────────────────────────────────────────────────────────────

var tokenMineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List tokens created by your wallet",
	Long: `List tokens created by the selected wallet, or by any address with
--creator. ENS names (alice.eth) resolve on Ethereum mainnet.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var creator common.Address
		if tokenCreator != "" {
			addr, err := resolveAddress(cmd.Context(), tokenCreator)
			if err != nil {
				return err
			}
			creator = addr
		} else {
			w, err := resolveWallet(newWalletManager())
			if err != nil {
				return err
			}
			creator = w.EVMAddress()
		}

		b, err := openBackend(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer b.Close()

		recs, err := b.registry.TokensByCreator(cmd.Context(), creator)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Meta("Creator: ")+ui.Addr(creator.Hex()))
		printRecords(out, recs)
		return nil
	},
}

// ── token watch ───────────────────────────────────────────────────────────────

var tokenWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live feed of new tokens",
	Long: `Poll the registry and show tokens as they are created, newest first.
Useful against the chain or postgres backends where other clients create
tokens too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenPoll <= 0 {
			return fmt.Errorf("--interval must be positive")
		}
		b, err := openBackend(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer b.Close()

		title := b.name
		if b.network != nil {
			title = b.network.DisplayName
		}
		return ui.RunWatch(cmd.Context(), b.registry, title, tokenPoll)
	},
}

func init() {
	tokenCreateCmd.Flags().StringVar(&tokenName, "name", "", "token name")
	tokenCreateCmd.Flags().StringVar(&tokenSymbol, "symbol", "", fmt.Sprintf("token symbol (max %d chars)", registry.MaxSymbolLength))
	tokenCreateCmd.Flags().StringVar(&tokenSupply, "supply", "", "initial supply in whole tokens (0 = default)")

	for _, c := range []*cobra.Command{tokenListCmd, tokenMineCmd} {
		c.Flags().BoolVar(&tokenTable, "table", false, "render as a table")
	}
	tokenMineCmd.Flags().StringVar(&tokenCreator, "creator", "", "creator address or ENS name (default: selected wallet)")

	tokenWatchCmd.Flags().DurationVar(&tokenPoll, "interval", 4*time.Second, "poll interval")

	tokenCmd.AddCommand(tokenCreateCmd, tokenListCmd, tokenGetCmd, tokenCountCmd, tokenMineCmd, tokenWatchCmd)
}
