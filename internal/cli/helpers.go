package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/picklr-io/deployr/internal/artifact"
	"github.com/picklr-io/deployr/internal/engine"
	"github.com/picklr-io/deployr/internal/eval"
	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/registry"
	"github.com/picklr-io/deployr/internal/state"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

func colorize(code string) string {
	if noColor {
		return ""
	}
	return code
}

// loadProject evaluates the config and selects the --network entry.
func loadProject(ctx context.Context) (*ir.Config, *ir.Network, error) {
	cfg, err := eval.NewEvaluator(projectDir).LoadConfig(ctx, configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	network, err := eval.Network(cfg, networkName)
	if err != nil {
		return nil, nil, err
	}
	return cfg, network, nil
}

// projectPath resolves p against the project directory.
func projectPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(projectDir, p)
}

func artifactSource(cfg *ir.Config) artifact.Source {
	return artifact.NewDir(projectPath(cfg.Artifacts))
}

// stateConfig returns the configured state backend with local paths made project-relative.
func stateConfig(cfg *ir.Config) *ir.StateConfig {
	sc := *cfg.State
	if sc.Type == "" || sc.Type == "local" {
		dir := sc.Dir
		if dir == "" {
			dir = state.DefaultDir
		}
		sc.Dir = projectPath(dir)
	}
	return &sc
}

func exportTargets(cfg *ir.Config) []*ir.ExportConfig {
	out := make([]*ir.ExportConfig, 0, len(cfg.Exports))
	for _, t := range cfg.Exports {
		c := *t
		c.AddressesFile = projectPath(c.AddressesFile)
		c.ABIFile = projectPath(c.ABIFile)
		out = append(out, &c)
	}
	return out
}

// selectResources applies tag filtering and, with withDeps, adds every transitive
// dependency of the selection. Declaration order is preserved.
func selectResources(cfg *ir.Config, tags []string, withDeps bool) ([]*ir.Resource, error) {
	reg, err := registry.New(cfg.Resources, cfg.Constants)
	if err != nil {
		return nil, err
	}
	selected := reg.Select(tags)
	if !withDeps {
		return selected, nil
	}

	dag, err := engine.BuildDAG(cfg.Resources)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(selected))
	for i, res := range selected {
		names[i] = res.Name
	}
	want := make(map[string]bool)
	for _, n := range dag.Expand(names) {
		want[n] = true
	}

	var out []*ir.Resource
	for _, res := range reg.ListResources() {
		if want[res.Name] {
			out = append(out, res)
		}
	}
	return out, nil
}

// printEvent renders one orchestrator transition.
func printEvent(w io.Writer) engine.ApplyCallback {
	return func(ev engine.ApplyEvent) {
		switch ev.State {
		case engine.StateSubmitted:
			fmt.Fprintf(w, "%s  ~ %s submitted%s\n", colorize(colorYellow), ev.Resource, colorize(colorReset))
		case engine.StateReused:
			fmt.Fprintf(w, "    %s reusing %s\n", ev.Resource, ev.Address)
		case engine.StateConfirmed:
			fmt.Fprintf(w, "%s  + %s at %s%s (%s)\n", colorize(colorGreen), ev.Resource, ev.Address, colorize(colorReset), ev.Duration.Round(time.Millisecond))
		case engine.StateFailed:
			fmt.Fprintf(w, "%s  ! %s failed: %v%s\n", colorize(colorRed), ev.Resource, ev.Error, colorize(colorReset))
		}
	}
}

// renderSummary prints the result counts and per-resource side channel outcomes.
func renderSummary(w io.Writer, report *ir.Report) {
	s := report.Summary
	fmt.Fprintf(w, "\nDeployment on %s (chain %d): %d constructed, %d reused, %d failed, %d not run.\n",
		report.Metadata.Network, report.Metadata.NetworkID, s.Constructed, s.Reused, s.Failed, s.NotRun)

	for _, o := range report.Resources {
		if o.Verification != ir.VerificationNone {
			fmt.Fprintf(w, "  %s verification: %s\n", o.Name, o.Verification)
		}
		if o.ExportError != "" {
			fmt.Fprintf(w, "%s  %s export failed: %s%s\n", colorize(colorRed), o.Name, o.ExportError, colorize(colorReset))
		} else if o.Exported {
			fmt.Fprintf(w, "  %s exported\n", o.Name)
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case []any:
		out := "["
		for i, item := range val {
			if i > 0 {
				out += ", "
			}
			out += formatValue(item)
		}
		return out + "]"
	default:
		return fmt.Sprintf("%v", val)
	}
}
