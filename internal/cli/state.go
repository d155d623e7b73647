package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/picklr-io/deployr/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect deployment state",
	Long:  `Commands for inspecting and modifying the recorded deployments of a network.`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployments recorded for the network",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a single deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Forget a deployment so the next run constructs it again",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func loadStore(cmd *cobra.Command) (*state.Store, error) {
	cfg, network, err := loadProject(cmd.Context())
	if err != nil {
		return nil, err
	}
	backend, err := state.NewBackend(cmd.Context(), stateConfig(cfg), network.Context())
	if err != nil {
		return nil, err
	}
	return state.NewStore(backend, network.ChainID), nil
}

func runStateList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	store, err := loadStore(cmd)
	if err != nil {
		return err
	}

	st, err := store.Backend().Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(st.Deployments) == 0 {
		fmt.Fprintln(out, "No deployments in state.")
		return nil
	}

	fmt.Fprintf(out, "State version: %d, serial: %d, lineage: %s\n\n", st.Version, st.Serial, st.Lineage)
	for _, rec := range st.Deployments {
		fmt.Fprintf(out, "  %-16s %s (%s)\n", rec.Name, rec.Address, rec.Status)
	}
	fmt.Fprintf(out, "\nTotal: %d deployment(s)\n", len(st.Deployments))
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	store, err := loadStore(cmd)
	if err != nil {
		return err
	}

	rec, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("deployment %s not found in state", args[0])
	}

	fmt.Fprintf(out, "# %s\n", rec.Name)
	fmt.Fprintf(out, "  contract    = %s\n", rec.Contract)
	fmt.Fprintf(out, "  address     = %s\n", rec.Address)
	fmt.Fprintf(out, "  network_id  = %d\n", rec.NetworkID)
	fmt.Fprintf(out, "  status      = %s\n", rec.Status)
	fmt.Fprintf(out, "  args        = %s\n", formatValue(rec.Args))
	if rec.TxHash != "" {
		fmt.Fprintf(out, "  tx_hash     = %s\n", rec.TxHash)
	}
	if rec.BlockNumber != 0 {
		fmt.Fprintf(out, "  block       = %d\n", rec.BlockNumber)
	}
	fmt.Fprintf(out, "  deployed_at = %s\n", rec.DeployedAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := loadStore(cmd)
	if err != nil {
		return err
	}

	if err := store.Backend().Lock(ctx); err != nil {
		return err
	}
	defer store.Backend().Unlock(ctx)

	rec, err := store.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("deployment %s not found in state", args[0])
	}
	if err := store.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from state (the contract was NOT destroyed)\n", args[0])
	return nil
}
