package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/picklr-io/deployr/internal/devnode"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage a local development chain in Docker",
}

var nodeStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the development chain",
	RunE:  runNodeStart,
}

var nodeStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop and remove the development chain",
	RunE:  runNodeStop,
}

func init() {
	nodeCmd.AddCommand(nodeStartCmd)
	nodeCmd.AddCommand(nodeStopCmd)
}

func loadNode(cmd *cobra.Command) (*devnode.Node, error) {
	cfg, network, err := loadProject(cmd.Context())
	if err != nil {
		return nil, err
	}
	return devnode.New(devnode.FromIR(cfg.DevNode, network.ChainID))
}

func runNodeStart(cmd *cobra.Command, args []string) error {
	n, err := loadNode(cmd)
	if err != nil {
		return err
	}
	url, err := n.Start(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Development chain listening on %s (chain id %d)\n", url, n.Config().ChainID)
	return nil
}

func runNodeStop(cmd *cobra.Command, args []string) error {
	n, err := loadNode(cmd)
	if err != nil {
		return err
	}
	if err := n.Stop(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Development chain stopped")
	return nil
}
