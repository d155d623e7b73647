package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/picklr-io/deployr/internal/engine"
	"github.com/picklr-io/deployr/internal/export"
	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/provider"
	"github.com/picklr-io/deployr/internal/state"
	"github.com/picklr-io/deployr/internal/verify"
)

var (
	deployTags     []string
	deployWithDeps bool
	deployExport   bool
	deployDryRun   bool
	deployReport   string
	deployRegion   string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the contract plan",
	Long: `Deploys every resource of the plan (or those selected by --tags) in declaration
order. Resources already deployed on the network are reused, so re-running after a
failure only constructs what is missing.

With --dry-run the plan runs against an in-process backend seeded with a copy of
the network's state. Nothing is submitted or persisted.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringSliceVarP(&deployTags, "tags", "t", nil, "Only deploy resources carrying any of these tags")
	deployCmd.Flags().BoolVar(&deployWithDeps, "with-deps", false, "Also deploy the dependencies of tagged resources")
	deployCmd.Flags().BoolVar(&deployExport, "export", false, "Export addresses and ABIs for the front end (same as UPDATE_FRONT_END)")
	deployCmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "Run against an in-process backend without touching the network")
	deployCmd.Flags().StringVar(&deployReport, "report", "", "Write the run report as JSON to this file")
	deployCmd.Flags().StringVar(&deployRegion, "aws-region", "", "AWS region for the SSM export sink")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, network, err := loadProject(ctx)
	if err != nil {
		return err
	}
	resources, err := selectResources(cfg, deployTags, deployWithDeps)
	if err != nil {
		return err
	}
	if len(resources) == 0 {
		fmt.Fprintln(out, "No resources match the given tags.")
		return nil
	}

	arts := artifactSource(cfg)
	opts := provider.Options{
		Artifacts: arts,
		State:     stateConfig(cfg),
		Deployer:  cfg.Deployer,
		Lock:      true,
	}

	if deployDryRun {
		snapshot, err := snapshotState(cmd, opts.State, network)
		if err != nil {
			return err
		}
		dry := *network
		dry.Kind = "null"
		network = &dry
		opts.Backend = snapshot
	}

	sess, err := provider.NewRegistry().Open(ctx, network, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	eng := engine.NewEngine(sess.Client, sess.Network, cfg.Constants)
	if !deployDryRun {
		reporter := verify.New(verifyConfig(cfg), sess.Network, arts)
		if reporter.Enabled() {
			eng.Verifier = reporter
		}
		if cfg.ExportEnabled || deployExport {
			exp, err := newExporter(cmd, cfg)
			if err != nil {
				return err
			}
			eng.Exporter = exp
		}
	}

	mode := ""
	if deployDryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(out, "Deploying %d resource(s) to %s%s...\n", len(resources), network.Name, mode)

	result, runErr := eng.DeployWithCallback(ctx, resources, printEvent(out))
	if result != nil {
		renderSummary(out, result.Report)
		if deployReport != "" {
			if err := writeReport(projectPath(deployReport), result.Report); err != nil {
				return err
			}
		}
	}
	if runErr != nil {
		return fmt.Errorf("deploy failed: %w", runErr)
	}
	return nil
}

// snapshotState copies the network's current state into memory so a dry run sees
// real deployments without being able to change them.
func snapshotState(cmd *cobra.Command, sc *ir.StateConfig, network *ir.Network) (state.Backend, error) {
	ctx := cmd.Context()
	src, err := state.NewBackend(ctx, sc, network.Context())
	if err != nil {
		return nil, err
	}
	st, err := src.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	mem := state.NewMemory()
	if err := mem.Write(ctx, st); err != nil {
		return nil, err
	}
	return mem, nil
}

func verifyConfig(cfg *ir.Config) verify.Config {
	vc := verify.Config{APIURL: cfg.Verify.APIURL, APIKey: cfg.Verify.APIKey}
	if cfg.Verify.PollInterval != "" {
		if d, err := time.ParseDuration(cfg.Verify.PollInterval); err == nil {
			vc.PollInterval = d
		}
	}
	return vc
}

func newExporter(cmd *cobra.Command, cfg *ir.Config) (*export.Exporter, error) {
	targets := exportTargets(cfg)
	exp := export.New(targets, artifactSource(cfg))
	for _, t := range targets {
		if t.SSMPrefix == "" {
			continue
		}
		store, err := export.NewSSM(cmd.Context(), deployRegion)
		if err != nil {
			return nil, err
		}
		exp.WithParameterStore(store)
		break
	}
	return exp, nil
}

func writeReport(path string, report *ir.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := state.WriteFileAtomic(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
