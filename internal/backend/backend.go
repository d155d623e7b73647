// Package backend defines the narrow client the orchestrator uses to talk to a
// remote execution environment.
package backend

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/picklr-io/deployr/internal/ir"
)

var (
	// ErrUnresolvedReference means a constructor argument names a resource that never
	// reached Confirmed, or a constant that is not configured.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrConstructionFailed means the backend rejected or reverted the construction.
	ErrConstructionFailed = errors.New("construction failed")

	// ErrConfirmationTimeout means confirmations did not arrive within the bound.
	// A later run may still find the resource through LookupPending.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// ConstructRequest describes one construction submission.
type ConstructRequest struct {
	Name      string
	Contract  string
	Args      []any
	Value     *big.Int
	NetworkID uint64
}

// Pending is the handle of a submitted, not yet confirmed construction.
type Pending struct {
	Name        string
	Contract    string
	NetworkID   uint64
	Address     string
	TxHash      string
	Args        []any
	SubmittedAt time.Time
}

// Client is the backend surface the orchestrator depends on.
type Client interface {
	// Construct submits a construction request without waiting for it to be mined.
	Construct(ctx context.Context, req *ConstructRequest) (*Pending, error)

	// AwaitConfirmation blocks until the construction has depth confirmations.
	AwaitConfirmation(ctx context.Context, p *Pending, depth uint64) (*ir.DeploymentRecord, error)

	// LookupExisting returns a confirmed deployment of name on the network, or nil.
	LookupExisting(ctx context.Context, name string, networkID uint64) (*ir.DeploymentRecord, error)

	// LookupPending returns a submission left in flight by an interrupted run, or nil.
	LookupPending(ctx context.Context, name string, networkID uint64) (*Pending, error)
}

// Handle is a typed capability over one deployed resource.
type Handle interface {
	Address() string
	// Call invokes a read-only operation and returns its decoded outputs.
	Call(ctx context.Context, op string, args ...any) ([]any, error)
	// Transact invokes a state-changing operation and returns the transaction hash.
	Transact(ctx context.Context, op string, args ...any) (string, error)
}

// Failed wraps reason as a construction failure.
func Failed(reason string) error {
	return fmt.Errorf("%w: %s", ErrConstructionFailed, reason)
}

// Classify maps err onto ErrConstructionFailed unless it already carries one of the
// package sentinels or a context error.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConstructionFailed) || errors.Is(err, ErrConfirmationTimeout) ||
		errors.Is(err, ErrUnresolvedReference) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrConfirmationTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConstructionFailed, err)
}
