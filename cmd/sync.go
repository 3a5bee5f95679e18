package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/ctfactory/internal/config"
	"github.com/Mohsinsiddi/ctfactory/internal/mirror"
	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/Mohsinsiddi/ctfactory/internal/registry/boltstore"
	"github.com/Mohsinsiddi/ctfactory/internal/registry/pgstore"
	"github.com/Mohsinsiddi/ctfactory/internal/ui"
)

var (
	syncTo    string
	syncEvery time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the registry into a local or Postgres copy",
	Long: `Copy every token of the selected backend (usually chain) into a ledger
store, so ` + "`serve --backend local`" + ` or ` + "`--backend postgres`" + ` can answer reads
without an RPC round-trip. Runs are incremental.

  ctfactory sync --to local
  ctfactory sync --to postgres --every 30s   # keep following`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncTo == cfg.Backend {
			return fmt.Errorf("source and destination are both %s", syncTo)
		}
		ctx := cmd.Context()

		var (
			dst      registry.Store
			closeDst func() error
		)
		switch syncTo {
		case config.BackendLocal:
			st, err := boltstore.Open(cfg.LedgerFile())
			if err != nil {
				return err
			}
			dst, closeDst = st, st.Close
		case config.BackendPostgres:
			if cfg.PostgresDSN == "" {
				return errors.New("postgres needs postgres_dsn: ctfactory config set postgres_dsn <dsn>")
			}
			st, err := pgstore.Open(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			dst, closeDst = st, st.Close
		default:
			return fmt.Errorf("--to must be %s or %s", config.BackendLocal, config.BackendPostgres)
		}
		defer closeDst()

		src, err := openBackend(ctx, nil)
		if err != nil {
			return err
		}
		defer src.Close()

		out := cmd.OutOrStdout()
		report := func(r mirror.Result) {
			fmt.Fprintln(out, ui.Success(fmt.Sprintf("%s → %s: %d new, %d total", src.name, syncTo, r.Added, r.Total)))
		}
		s := mirror.New(src.registry, dst, mirror.WithLogger(logger))
		if syncEvery > 0 {
			return s.Watch(ctx, syncEvery, report)
		}
		res, err := s.Run(ctx)
		if err != nil {
			return err
		}
		report(res)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncTo, "to", config.BackendLocal, "destination: local|postgres")
	syncCmd.Flags().DurationVar(&syncEvery, "every", 0, "keep syncing at this interval")
}
