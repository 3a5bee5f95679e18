package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Mohsinsiddi/ctfactory/internal/chain"
	"github.com/Mohsinsiddi/ctfactory/internal/config"
	"github.com/Mohsinsiddi/ctfactory/internal/flow"
	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/Mohsinsiddi/ctfactory/internal/server"
	"github.com/Mohsinsiddi/ctfactory/internal/wallet"
)

var (
	serveAddr       string
	serveWriteRate  float64
	serveWriteBurst int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the registry over HTTP",
	Long: `Serve the token registry as a JSON API.

  GET  /api/tokens[?creator=0x...]   all tokens, or one creator's
  GET  /api/tokens/count
  GET  /api/tokens/:index
  POST /api/tokens                   {"name","symbol","supply","creator"}
  GET  /api/refresh                  websocket, pushes the refresh counter
  GET  /healthz
  GET  /metrics                      Prometheus

On the chain backend POST signs with the selected wallet, which then is the
creator of every token; without a signing wallet the API is read-only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		addr := serveAddr
		if addr == "" {
			addr = cfg.ServerAddr
		}

		var signer chain.TxSigner
		if cfg.Backend == config.BackendChain {
			signer = optionalSigner()
		}

		prom := prometheus.NewRegistry()
		prom.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		b, err := openBackend(ctx, signer, registry.WithMetrics(registry.NewMetrics(prom)))
		if err != nil {
			return err
		}
		defer b.Close()

		srv := server.New(b.registry,
			server.WithLogger(logger),
			server.WithPrometheus(prom),
			server.WithBackend(b.name),
			server.WithRefreshCounter(flow.NewRefreshCounter()),
			server.WithWriteLimit(rate.Limit(serveWriteRate), serveWriteBurst),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Serving %s backend on http://%s\n", b.name, addr)
		return srv.Run(ctx, addr)
	},
}

// optionalSigner returns the selected wallet's signer, or nil when there is
// no signing wallet. Used by long-running commands that can work read-only.
func optionalSigner() chain.TxSigner {
	mgr := newWalletManager()
	w, err := resolveWallet(mgr)
	if err != nil {
		logger.Warn("no wallet, token creation disabled", zap.Error(err))
		return nil
	}
	if !w.CanSign() {
		logger.Warn("wallet is watch-only, token creation disabled", zap.String("wallet", w.Name))
		return nil
	}
	s, err := wallet.NewSigner(w, mgr.Keystore())
	if err != nil {
		logger.Warn("opening signer", zap.String("wallet", w.Name), zap.Error(err))
		return nil
	}
	return s
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: config server_addr)")
	serveCmd.Flags().Float64Var(&serveWriteRate, "write-rate", 2, "POST requests per second per client")
	serveCmd.Flags().IntVar(&serveWriteBurst, "write-burst", 5, "POST burst per client")
}
