package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/state"
	"github.com/picklr-io/deployr/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <name>",
	Short: "Verify the source of a recorded deployment on the block explorer",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, network, err := loadProject(ctx)
	if err != nil {
		return err
	}

	backend, err := state.NewBackend(ctx, stateConfig(cfg), network.Context())
	if err != nil {
		return err
	}
	rec, err := state.NewStore(backend, network.ChainID).Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if !rec.Confirmed() {
		return fmt.Errorf("%s has no confirmed deployment on %s", args[0], network.Name)
	}

	reporter := verify.New(verifyConfig(cfg), network.Context(), artifactSource(cfg))
	status := reporter.Verify(ctx, rec)
	fmt.Fprintf(cmd.OutOrStdout(), "%s at %s: %s\n", rec.Name, rec.Address, status)

	if status == ir.VerificationFailed {
		return verify.ErrVerificationFailed
	}
	return nil
}
