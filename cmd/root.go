package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/ctfactory/internal/config"
	"github.com/Mohsinsiddi/ctfactory/internal/logging"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/ctfactory/cmd.Version=1.2.3" .
var Version = "0.1.0"

var (
	cfgDir      string
	cfg         *config.Config
	logger      = zap.NewNop()
	verbose     bool
	backendFlag string
	networkFlag string
	walletFlag  string
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "ctfactory",
	Short: "Confidential token factory",
	Long: `ctfactory — create and track confidential tokens.

  Mint tokens through the ConfidentialTokenFactory contract, list every
  token ever created, and watch your own, from the terminal, a full-screen
  studio or an HTTP API.

Global flag --backend picks where tokens live for a single invocation:
  memory    in-process, gone when the command exits
  local     bolt file under the config directory
  postgres  shared Postgres database (postgres_dsn)
  chain     the factory contract on --network (default)
Persist with: ctfactory config set backend <name>`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if backendFlag != "" {
			if !slices.Contains(config.Backends, backendFlag) {
				return fmt.Errorf("unknown backend %q (want one of %s)", backendFlag, strings.Join(config.Backends, ", "))
			}
			cfg.Backend = backendFlag
		}
		if networkFlag != "" {
			cfg.DefaultNetwork = strings.ToLower(networkFlag)
		}

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(logging.Options{Level: level, File: cfg.LogFile, Quiet: !verbose})
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command. Ctrl-C cancels the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		os.Exit(1)
	}
}

func init() {
	// CTFACTORY_CONFIG_DIR env var overrides --config flag.
	if envDir := os.Getenv("CTFACTORY_CONFIG_DIR"); envDir != "" {
		cfgDir = envDir
	}

	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", cfgDir, "config directory (default: ~/.ctfactory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logs on stderr)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "registry backend: "+strings.Join(config.Backends, "|"))
	rootCmd.PersistentFlags().StringVarP(&networkFlag, "network", "n", "", "network for the chain backend (default: config)")
	rootCmd.PersistentFlags().StringVarP(&walletFlag, "wallet", "w", "", "wallet name (default: config)")

	rootCmd.AddCommand(
		tokenCmd,
		factoryCmd,
		walletCmd,
		networkCmd,
		configCmd,
		serveCmd,
		studioCmd,
		syncCmd,
	)
}
