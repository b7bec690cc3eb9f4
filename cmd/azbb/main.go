// Package main implements the azbb CLI tool.
//
// azbb compiles building-block parameter files into template parameter
// files and optionally deploys them:
//
//	azbb -g my-rg -s <subscription> -l westus2 -p vnet.json           # Write parameter files
//	azbb -g my-rg -s <subscription> -l westus2 -p vnet.json --deploy  # Write and deploy
//	azbb validate -g my-rg -s <subscription> -l westus2 -p vnet.json  # Validate only
//	azbb types                                                        # List building block types
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flavioaiello/azure-building-blocks/pkg/auth"
	"github.com/flavioaiello/azure-building-blocks/pkg/blocks"
	"github.com/flavioaiello/azure-building-blocks/pkg/config"
	"github.com/flavioaiello/azure-building-blocks/pkg/deploy"
	"github.com/flavioaiello/azure-building-blocks/pkg/orchestrator"
)

var (
	// Version is set at build time.
	version = "dev"

	// Logger for CLI.
	logger = zap.NewNop()
)

// CLI flag names.
const (
	flagResourceGroup  = "resource-group"
	flagSubscription   = "subscription"
	flagLocation       = "location"
	flagParametersFile = "parameters-file"
	flagDefaultsDir    = "defaults-dir"
	flagOutputDir      = "output-dir"
	flagDeploy         = "deploy"
	flagCloud          = "cloud"
	flagSASToken       = "sas-token"
	flagKeyVaultID     = "key-vault-id"
	flagDeployMode     = "deploy-mode"
	flagCredential     = "credential"
	flagTimeout        = "deployment-timeout"
	flagJSONLogs       = "json-logs"
)

// envClientID selects a user-assigned managed identity.
const envClientID = "AZURE_CLIENT_ID"

// options holds the flags that are not part of config.Config.
type options struct {
	parametersFile string
	deploy         bool
	credential     string
	jsonLogs       bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer cancel()

	err := newRootCmd().ExecuteContext(ctx)
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.LoadFromEnv()
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "azbb",
		Short: "Azure building blocks",
		Long: `azbb turns building-block settings into Azure Resource Manager
template parameter files.

Every building block of the parameters file is merged with its defaults,
validated and transformed. One output parameter file is written per
building block; with --deploy each one is deployed in order.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(opts.jsonLogs)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&cfg.ResourceGroupName, flagResourceGroup, "g", cfg.ResourceGroupName, "Resource group of the building blocks")
	flags.StringVarP(&cfg.SubscriptionID, flagSubscription, "s", cfg.SubscriptionID, "Azure subscription ID")
	flags.StringVarP(&cfg.Location, flagLocation, "l", cfg.Location, "Azure location")
	flags.StringVarP(&opts.parametersFile, flagParametersFile, "p", "", "Building blocks parameters file (JSON or YAML)")
	flags.StringVar(&cfg.DefaultsDir, flagDefaultsDir, cfg.DefaultsDir, "Directory of user defaults files")
	flags.StringVarP(&cfg.OutputDir, flagOutputDir, "o", cfg.OutputDir, "Directory of the output parameter files")
	flags.StringVar(&cfg.Cloud, flagCloud, cfg.Cloud, "Azure cloud (AzureCloud, AzureChinaCloud, AzureUSGovernment)")
	flags.StringVar(&cfg.SASToken, flagSASToken, cfg.SASToken, "SAS token appended to template URIs")
	flags.StringVar(&cfg.KeyVaultID, flagKeyVaultID, cfg.KeyVaultID, "Key Vault resource ID for secret parameters")
	flags.StringVar(&cfg.TemplateBaseURI, "template-base-uri", cfg.TemplateBaseURI, "Base URI of the building block templates")
	flags.BoolVar(&opts.jsonLogs, flagJSONLogs, false, "Log JSON instead of console output")

	cmd.Flags().BoolVar(&opts.deploy, flagDeploy, false, "Deploy the building blocks")
	cmd.Flags().Var((*deployModeValue)(&cfg.DeployMode), flagDeployMode, "Deployer (cli or arm)")
	cmd.Flags().StringVar(&opts.credential, flagCredential, "", "ARM credential (default, cli, managed-identity)")
	cmd.Flags().DurationVar(&cfg.DeploymentTimeout, flagTimeout, cfg.DeploymentTimeout, "Timeout of each deployment")

	cmd.AddCommand(
		newValidateCmd(cfg, opts),
		newTypesCmd(),
	)

	return cmd
}

func newValidateCmd(cfg *config.Config, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a parameters file without writing or deploying",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			o, err := orchestrator.New(cfg, nil, nil, logger)
			if err != nil {
				return err
			}
			results, err := o.Validate(opts.parametersFile)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%02d %s: valid (%d parameters)\n", r.Index, r.Type, len(r.Parameters.Parameters))
			}
			return nil
		},
	}
}

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List building block types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range blocks.Types() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func run(ctx context.Context, cfg *config.Config, opts *options) error {
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		return err
	}

	logger.Info("Configuration loaded",
		zap.String("subscription_id", maskSubscriptionID(cfg.SubscriptionID)),
		zap.String("resource_group", cfg.ResourceGroupName),
		zap.String("location", cfg.Location),
		zap.String("cloud", cfg.Cloud),
		zap.Bool("deploy", opts.deploy),
		zap.String("deploy_mode", string(cfg.DeployMode)),
	)

	var (
		deployer deploy.Deployer
		runner   deploy.Runner
	)
	if opts.deploy {
		var err error
		deployer, runner, err = newDeployer(ctx, cfg, opts, logger)
		if err != nil {
			return err
		}
	}

	o, err := orchestrator.New(cfg, deployer, runner, logger)
	if err != nil {
		return err
	}
	result, err := o.Run(ctx, opts.parametersFile, opts.deploy)
	if err != nil {
		logger.Error("Building blocks failed", zap.Error(err))
		return err
	}

	logger.Info("Building blocks completed",
		zap.Int("count", len(result.Blocks)),
		zap.Duration("duration", result.Duration()),
	)
	return nil
}

// newDeployer builds the deployer of the configured mode. Hooks always run
// through the az CLI.
func newDeployer(ctx context.Context, cfg *config.Config, opts *options, logger *zap.Logger) (deploy.Deployer, deploy.Runner, error) {
	runner := deploy.NewCLIRunner("", logger)
	bbCtx, err := cfg.Context()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.DeployMode {
	case config.DeployModeCLI:
		if _, err := runner.Run(ctx, "cloud", "set", "--name", bbCtx.Cloud.Name); err != nil {
			return nil, nil, err
		}
		return deploy.NewCLIDeployer(runner, logger), runner, nil
	case config.DeployModeARM:
		kind, err := auth.ParseKind(opts.credential)
		if err != nil {
			return nil, nil, err
		}
		cred, err := auth.NewCredential(auth.Options{
			Kind:     kind,
			Cloud:    bbCtx.Cloud.Configuration,
			ClientID: os.Getenv(envClientID),
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return deploy.NewARMDeployer(cred, bbCtx.Cloud.Configuration, logger), runner, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", deploy.ErrUnknownDeployMode, cfg.DeployMode)
	}
}

func newLogger(jsonLogs bool) (*zap.Logger, error) {
	if jsonLogs {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func maskSubscriptionID(id string) string {
	if len(id) < 8 {
		return "****"
	}
	return id[:8] + "-****-****-****-************"
}
