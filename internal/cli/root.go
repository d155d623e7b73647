package cli

import (
	"github.com/spf13/cobra"

	"github.com/picklr-io/deployr/internal/logging"
)

var (
	projectDir  string
	configFile  string
	networkName string
	logLevel    string
	logFormat   string
	noColor     bool
)

var rootCmd = &cobra.Command{
	Use:   "deployr",
	Short: "Idempotent contract deployments",
	Long: `Deployr deploys a fixed plan of interdependent contracts to an EVM network.

Each run:
  • Walks the plan in declaration order
  • Reuses contracts already deployed on the network
  • Waits for the configured number of confirmations
  • Optionally verifies sources and exports addresses for a front end`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.InitWriter(cmd.ErrOrStderr(), logLevel, logFormat)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default deployr.pkl or deployr.yaml)")
	rootCmd.PersistentFlags().StringVarP(&networkName, "network", "n", "hardhat", "Network to deploy to")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(versionCmd)
}
