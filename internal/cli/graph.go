package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/picklr-io/deployr/internal/engine"
	"github.com/picklr-io/deployr/internal/eval"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates a visual representation of the resource dependency graph
in Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  deployr graph | dot -Tpng > graph.png`,
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	cfg, err := eval.NewEvaluator(projectDir).LoadConfig(cmd.Context(), configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dag, err := engine.BuildDAG(cfg.Resources)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}
	return dag.WriteDOT(cmd.OutOrStdout())
}
