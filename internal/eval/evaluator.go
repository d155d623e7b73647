// Package eval loads the project configuration from deployr.yaml or deployr.pkl
// and fills in the defaults of the built-in Crypto Dev plan.
package eval

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/apple/pkl-go/pkl"
	"gopkg.in/yaml.v3"

	"github.com/picklr-io/deployr/internal/export"
	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/registry"
	"github.com/picklr-io/deployr/internal/verify"
)

// Config file names looked up in the project directory, in order.
var ConfigFiles = []string{"deployr.pkl", "deployr.yaml", "deployr.yml"}

const (
	DefaultArtifacts   = "artifacts"
	DefaultVerifyURL   = "https://api.etherscan.io/v2/api"
	GoerliRPCURLEnvVar = "GOERLI_RPC_URL"
)

// Network kinds.
const (
	KindSimulated = "simulated"
	KindRPC       = "rpc"
	KindNull      = "null"
)

// Evaluator loads configuration relative to a project directory.
type Evaluator struct {
	projectDir string
	properties map[string]string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
	}
}

// WithProperties passes external properties to pkl evaluation (read("prop:...")).
func (e *Evaluator) WithProperties(properties map[string]string) *Evaluator {
	e.properties = properties
	return e
}

// LoadConfig reads path, or the first of ConfigFiles present when path is empty.
// With no file at all the built-in defaults are returned.
func (e *Evaluator) LoadConfig(ctx context.Context, path string) (*ir.Config, error) {
	if path == "" {
		path = e.discover()
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(e.projectDir, path)
	}

	cfg := &ir.Config{}
	if path != "" {
		var err error
		if strings.HasSuffix(path, ".pkl") {
			cfg, err = e.loadPkl(ctx, path)
		} else {
			cfg, err = loadYAML(path)
		}
		if err != nil {
			return nil, err
		}
	}

	ApplyDefaults(cfg)
	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (e *Evaluator) discover() string {
	for _, name := range ConfigFiles {
		p := filepath.Join(e.projectDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func loadYAML(path string) (*ir.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg ir.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

func (e *Evaluator) loadPkl(ctx context.Context, path string) (*ir.Config, error) {
	dir, err := filepath.Abs(e.projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}
	u, err := url.Parse("file://" + dir + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse project directory URL: %w", err)
	}

	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(e.properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range e.properties {
				o.Properties[k] = v
			}
		})
	}

	var evaluator pkl.Evaluator
	if _, err := os.Stat(filepath.Join(dir, "PklProject")); err == nil {
		evaluator, err = pkl.NewProjectEvaluator(ctx, u, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
		}
	} else {
		evaluator, err = pkl.NewEvaluator(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
		}
	}
	defer evaluator.Close()

	var cfg ir.Config
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(path), &cfg); err != nil {
		return nil, fmt.Errorf("failed to evaluate config: %w", err)
	}
	return &cfg, nil
}

// DefaultNetworks mirrors the networks of the Crypto Dev project.
func DefaultNetworks() map[string]*ir.Network {
	return map[string]*ir.Network{
		"hardhat": {
			ChainID:   31337,
			Kind:      KindSimulated,
			Ephemeral: true,
		},
		"localhost": {
			ChainID:   31337,
			Kind:      KindRPC,
			URL:       "http://127.0.0.1:8545",
			Ephemeral: true,
		},
		"goerli": {
			ChainID:       5,
			Kind:          KindRPC,
			URL:           os.Getenv(GoerliRPCURLEnvVar),
			Confirmations: 6,
		},
	}
}

// ApplyDefaults fills every unset section.
func ApplyDefaults(cfg *ir.Config) {
	if cfg.Artifacts == "" {
		cfg.Artifacts = DefaultArtifacts
	}
	if len(cfg.Networks) == 0 {
		cfg.Networks = DefaultNetworks()
	}
	for name, n := range cfg.Networks {
		if n == nil {
			n = &ir.Network{}
			cfg.Networks[name] = n
		}
		if n.Name == "" {
			n.Name = name
		}
		if n.Kind == "" {
			n.Kind = KindRPC
		}
	}
	if cfg.Constants == nil {
		cfg.Constants = registry.DefaultConstants()
	}
	if len(cfg.Resources) == 0 {
		cfg.Resources = registry.Default()
	}
	if cfg.State == nil {
		cfg.State = &ir.StateConfig{Type: "local"}
	}
	if cfg.Exports == nil {
		cfg.Exports = export.DefaultTargets()
	}
	if cfg.Verify == nil {
		cfg.Verify = &ir.VerifyConfig{}
	}
	if cfg.Verify.APIURL == "" {
		cfg.Verify.APIURL = DefaultVerifyURL
	}
	if cfg.Deployer == nil {
		cfg.Deployer = &ir.DeployerConfig{}
	}
}

func applyEnv(cfg *ir.Config) {
	if key := os.Getenv(verify.APIKeyEnvVar); key != "" {
		cfg.Verify.APIKey = key
	}
	if os.Getenv(export.EnvVar) != "" {
		cfg.ExportEnabled = true
	}
}

var ErrInvalidConfig = errors.New("invalid config")

// Validate checks networks and the resource plan.
func Validate(cfg *ir.Config) error {
	for name, n := range cfg.Networks {
		switch n.Kind {
		case KindSimulated, KindNull, KindRPC:
		default:
			return fmt.Errorf("%w: network %q has unknown kind %q", ErrInvalidConfig, name, n.Kind)
		}
	}
	if _, err := registry.New(cfg.Resources, cfg.Constants); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Network returns the named network.
func Network(cfg *ir.Config, name string) (*ir.Network, error) {
	n, ok := cfg.Networks[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown network %q", ErrInvalidConfig, name)
	}
	return n, nil
}
