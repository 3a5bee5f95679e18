package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/ctfactory/internal/config"
	"github.com/Mohsinsiddi/ctfactory/internal/deploy"
	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/Mohsinsiddi/ctfactory/internal/ui"
)

var (
	factoryArtifact string
	factoryYes      bool
)

var factoryCmd = &cobra.Command{
	Use:   "factory",
	Short: "Deploy and locate the token factory contract",
}

var factoryAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the factory address for the current network",
	Long: `Print the factory address. On the chain backend this is the address pinned
with ` + "`config set-factory`" + ` or, failing that, the recorded deployment.
Ledger backends derive token addresses from a fixed local factory address.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg.Backend != config.BackendChain {
			fmt.Fprintln(out, registry.LocalFactoryAddress.Hex())
			return nil
		}
		n, err := currentNetwork()
		if err != nil {
			return err
		}
		addr, err := factoryAddress(n)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, addr.Hex())
		return nil
	},
}

var factoryDeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the factory contract (idempotent)",
	Long: `Deploy ConfidentialTokenFactory from a Hardhat or Foundry artifact.

The deployment runs once per network: when it already ran and its record is
present, the recorded address is printed and nothing is sent.

Example:
  ctfactory factory deploy --artifact artifacts/ConfidentialTokenFactory.json --network sepolia`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if factoryArtifact == "" {
			return fmt.Errorf("--artifact is required")
		}
		artifact, err := deploy.LoadArtifact(factoryArtifact)
		if err != nil {
			return err
		}
		if err := artifact.RequireMethods(deploy.FactoryMethods...); err != nil {
			return err
		}

		n, err := currentNetwork()
		if err != nil {
			return err
		}
		mgr := newWalletManager()
		w, err := resolveWallet(mgr)
		if err != nil {
			return err
		}
		signer, err := signerFor(mgr, w)
		if err != nil {
			return err
		}

		store, err := deploy.OpenStore(cfg.DeploymentsPath())
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		done, err := store.Executed(n.Name, deploy.DeployScriptID)
		if err != nil {
			return err
		}
		if !done && !factoryYes {
			fmt.Fprintln(out, ui.KeyValueBlock("Deploy factory", [][2]string{
				{"Network", n.DisplayName},
				{"Deployer", w.Address},
				{"Bytecode", fmt.Sprintf("%d bytes", len(artifact.Bytecode))},
				{"Bytecode hash", artifact.BytecodeHash()},
			}))
			if !ui.NewPrompter(cmd.InOrStdin(), out).Confirm("Send deployment transaction?") {
				fmt.Fprintln(out, ui.Meta("Cancelled."))
				return nil
			}
		}

		rpc, err := dialNetwork(cmd.Context(), n)
		if err != nil {
			return err
		}
		deployer := deploy.NewDeployer(rpc, signer, store, n.Name, deploy.WithLogger(logger))

		spin := ui.NewSpinner(out, "Deploying "+deploy.FactoryContractName+"...")
		spin.Start()
		res, err := deployer.Run(cmd.Context(), deploy.FactoryScript(artifact))
		spin.Stop()
		if err != nil {
			return err
		}

		cfg.SetFactory(n.Name, res.Record.Address)
		if err := cfg.Save(); err != nil {
			logger.Warn("could not pin factory address", zap.Error(err))
		}

		if res.Reused {
			fmt.Fprintln(out, ui.Info(fmt.Sprintf("%s already deployed on %s", deploy.FactoryContractName, n.DisplayName)))
		} else {
			fmt.Fprintln(out, ui.Success(fmt.Sprintf("%s deployed on %s", deploy.FactoryContractName, n.DisplayName)))
		}
		fmt.Fprintln(out, ui.KeyValueBlock("", [][2]string{
			{"Address", res.Record.Address},
			{"Transaction", res.Record.TxHash},
			{"Deployer", res.Record.Deployer},
			{"Bytecode hash", res.Record.BytecodeHash},
		}))
		if link := n.AddressURL(res.Record.Address); link != "" {
			fmt.Fprintln(out, ui.Hint(link))
		}
		return nil
	},
}

var factoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded factory deployments",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := deploy.OpenStore(cfg.DeploymentsPath())
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := store.List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(recs) == 0 {
			fmt.Fprintln(out, ui.Info("No deployments recorded."))
			return nil
		}
		t := ui.NewTable([]ui.Column{
			{Title: "Network", Width: 10},
			{Title: "Contract", Width: 26},
			{Title: "Address", Width: 42},
			{Title: "Deployed", Width: 20},
		})
		for _, r := range recs {
			t.AddRow(ui.Row{r.Network, r.Name, r.Address, r.DeployedAt.Format("2006-01-02 15:04:05")})
		}
		fmt.Fprint(out, t.Render())
		return nil
	},
}

var factoryForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Drop the deployment record for the current network",
	Long: `Drop the recorded factory deployment (and the pinned address) for the
current network so the next ` + "`factory deploy`" + ` sends a new contract.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := currentNetwork()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !factoryYes && !ui.NewPrompter(cmd.InOrStdin(), out).ConfirmDanger(fmt.Sprintf("Forget the factory deployment on %s?", n.DisplayName)) {
			fmt.Fprintln(out, ui.Meta("Cancelled."))
			return nil
		}
		store, err := deploy.OpenStore(cfg.DeploymentsPath())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Forget(n.Name, deploy.FactoryContractName, deploy.DeployScriptID); err != nil {
			return err
		}
		cfg.SetFactory(n.Name, "")
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success("Deployment record removed for "+n.DisplayName))
		return nil
	},
}

func init() {
	factoryDeployCmd.Flags().StringVar(&factoryArtifact, "artifact", "", "Hardhat or Foundry artifact JSON")
	factoryDeployCmd.Flags().BoolVarP(&factoryYes, "yes", "y", false, "skip confirmation")
	factoryForgetCmd.Flags().BoolVarP(&factoryYes, "yes", "y", false, "skip confirmation")
	factoryCmd.AddCommand(factoryAddressCmd, factoryDeployCmd, factoryListCmd, factoryForgetCmd)
}
