// Package engine orchestrates deployments: it walks resources in dependency order,
// reuses what the backend already has and constructs the rest.
package engine

import (
	"context"
	"time"

	"github.com/picklr-io/deployr/internal/backend"
	"github.com/picklr-io/deployr/internal/ir"
)

// Verifier submits a confirmed deployment for source verification.
type Verifier interface {
	Verify(ctx context.Context, rec *ir.DeploymentRecord) ir.VerificationStatus
}

// Exporter publishes a confirmed deployment to consumers. It reports whether any
// output was configured for the record.
type Exporter interface {
	Export(ctx context.Context, rec *ir.DeploymentRecord) (bool, error)
}

// Engine runs a deployment plan against one network.
type Engine struct {
	client    backend.Client
	network   ir.NetworkContext
	constants map[string]any

	// Verifier and Exporter are optional post-confirmation hooks.
	Verifier Verifier
	Exporter Exporter

	// RetryPolicy governs read-only lookups. Nil uses DefaultRetryPolicy.
	RetryPolicy *RetryPolicy

	// Timeout bounds each resource. Zero uses DefaultTimeout.
	Timeout time.Duration
}

func NewEngine(client backend.Client, network ir.NetworkContext, constants map[string]any) *Engine {
	return &Engine{
		client:    client,
		network:   network,
		constants: constants,
	}
}

// Network returns the network the engine deploys to.
func (e *Engine) Network() ir.NetworkContext {
	return e.network
}
