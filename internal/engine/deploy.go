package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/picklr-io/deployr/internal/backend"
	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/logging"
	"github.com/picklr-io/deployr/internal/registry"
)

// Resource lifecycle states.
const (
	StatePending   = "pending"
	StateSubmitted = "submitted"
	StateReused    = "reused"
	StateConfirmed = "confirmed"
	StateFailed    = "failed"
)

// Phases in which a resource can fail.
const (
	PhaseResolve   = "resolve"
	PhaseLookup    = "lookup"
	PhaseConstruct = "construct"
	PhaseConfirm   = "confirm"
)

// ApplyEvent represents a state transition of one resource.
type ApplyEvent struct {
	Resource string
	State    string
	Address  string
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each transition if set.
type ApplyCallback func(event ApplyEvent)

// ResourceError attributes a failure to a resource and phase.
type ResourceError struct {
	Resource string
	Phase    string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Resource, e.Phase, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a run. Records holds every resource that reached
// Confirmed, whether constructed or reused.
type Result struct {
	Records map[string]*ir.DeploymentRecord
	Report  *ir.Report
}

// Outcome returns the report entry for name, or nil.
func (r *Result) Outcome(name string) *ir.ResourceOutcome {
	for _, o := range r.Report.Resources {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// Deploy runs resources in order without progress callbacks.
func (e *Engine) Deploy(ctx context.Context, resources []*ir.Resource) (*Result, error) {
	return e.DeployWithCallback(ctx, resources, nil)
}

// DeployWithCallback runs resources sequentially in the given order and stops at
// the first failure. Resources after the failure are left Pending. The partial
// result is returned alongside the error.
func (e *Engine) DeployWithCallback(ctx context.Context, resources []*ir.Resource, callback ApplyCallback) (*Result, error) {
	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	result := &Result{
		Records: make(map[string]*ir.DeploymentRecord),
		Report: &ir.Report{
			Metadata: &ir.ReportMetadata{
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Network:   e.network.Name,
				NetworkID: e.network.ID,
			},
			Summary: &ir.ReportSummary{NotRun: len(resources)},
		},
	}
	for _, res := range resources {
		result.Report.Resources = append(result.Report.Resources, &ir.ResourceOutcome{Name: res.Name, State: StatePending})
	}

	log := logging.With("network", e.network.Name, "networkId", e.network.ID)
	log.Info("deployment started", "resources", len(resources), "confirmations", e.network.Depth())

	for i, res := range resources {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("deploy cancelled: %w", err)
		}

		outcome := result.Report.Resources[i]
		start := time.Now()
		emit(ApplyEvent{Resource: res.Name, State: StatePending})

		rec, reused, err := e.deployOne(ctx, res, result.Records, func(state, address string) {
			outcome.State = state
			emit(ApplyEvent{Resource: res.Name, State: state, Address: address, Duration: time.Since(start)})
		})
		result.Report.Summary.NotRun--
		if err != nil {
			outcome.State = StateFailed
			outcome.Error = err.Error()
			result.Report.Summary.Failed++
			log.Error("resource failed", "resource", res.Name, "error", err)
			emit(ApplyEvent{Resource: res.Name, State: StateFailed, Duration: time.Since(start), Error: err})
			return result, err
		}

		result.Records[res.Name] = rec
		outcome.State = StateConfirmed
		outcome.Reused = reused
		outcome.Address = rec.Address
		if reused {
			result.Report.Summary.Reused++
		} else {
			result.Report.Summary.Constructed++
		}

		log.Info("resource confirmed", "resource", res.Name, "address", rec.Address, "reused", reused, "duration", time.Since(start).Round(time.Millisecond))
		emit(ApplyEvent{Resource: res.Name, State: StateConfirmed, Address: rec.Address, Duration: time.Since(start)})

		e.runHooks(ctx, rec, reused, outcome)
	}

	log.Info("deployment finished",
		"constructed", result.Report.Summary.Constructed,
		"reused", result.Report.Summary.Reused)
	return result, nil
}

func (e *Engine) deployOne(ctx context.Context, res *ir.Resource, records map[string]*ir.DeploymentRecord, transition func(state, address string)) (*ir.DeploymentRecord, bool, error) {
	ctx, cancel := WithTimeout(ctx, e.Timeout)
	defer cancel()

	fail := func(phase string, err error) error {
		if phase != PhaseResolve {
			err = backend.Classify(err)
		}
		return &ResourceError{Resource: res.Name, Phase: phase, Err: err}
	}

	args, err := e.resolveArgs(ctx, res.Args, records)
	if err != nil {
		return nil, false, fail(PhaseResolve, err)
	}

	var existing *ir.DeploymentRecord
	err = e.retry(ctx, func() (err error) {
		existing, err = e.client.LookupExisting(ctx, res.Name, e.network.ID)
		return err
	})
	if err != nil {
		return nil, false, fail(PhaseLookup, err)
	}
	if existing != nil {
		if !sameArgs(existing.Args, args) {
			logging.Warn("reusing deployment whose constructor arguments differ",
				"resource", res.Name, "address", existing.Address, "recorded", existing.Args, "requested", args)
		}
		transition(StateReused, existing.Address)
		return existing, true, nil
	}

	var pending *backend.Pending
	err = e.retry(ctx, func() (err error) {
		pending, err = e.client.LookupPending(ctx, res.Name, e.network.ID)
		return err
	})
	if err != nil {
		return nil, false, fail(PhaseLookup, err)
	}

	if pending != nil {
		logging.Info("resuming in-flight construction", "resource", res.Name, "tx", pending.TxHash)
	} else {
		value, err := registry.ParseValue(res.Value)
		if err != nil {
			return nil, false, fail(PhaseConstruct, err)
		}
		pending, err = e.client.Construct(ctx, &backend.ConstructRequest{
			Name:      res.Name,
			Contract:  res.ContractName(),
			Args:      args,
			Value:     value,
			NetworkID: e.network.ID,
		})
		if err != nil {
			return nil, false, fail(PhaseConstruct, err)
		}
	}
	transition(StateSubmitted, pending.Address)

	rec, err := e.client.AwaitConfirmation(ctx, pending, e.network.Depth())
	if err != nil {
		return nil, false, fail(PhaseConfirm, err)
	}
	return rec, false, nil
}

// resolveArgs replaces reference placeholders with concrete values. Nested lists
// and maps are resolved recursively.
func (e *Engine) resolveArgs(ctx context.Context, args []any, records map[string]*ir.DeploymentRecord) ([]any, error) {
	out := make([]any, len(args))
	for i, arg := range args {
		v, err := e.resolveReference(ctx, arg, records)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *Engine) resolveReference(ctx context.Context, v any, records map[string]*ir.DeploymentRecord) (any, error) {
	switch val := v.(type) {
	case []any:
		return e.resolveArgs(ctx, val, records)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := e.resolveReference(ctx, item, records)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	}

	kind, key := ir.ParseRef(v)
	switch kind {
	case ir.RefResource:
		if rec, ok := records[key]; ok && rec.Confirmed() {
			return rec.Address, nil
		}
		// Not part of this run, e.g. filtered out by tag: fall back to the backend.
		var rec *ir.DeploymentRecord
		err := e.retry(ctx, func() (err error) {
			rec, err = e.client.LookupExisting(ctx, key, e.network.ID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", backend.ErrUnresolvedReference, key, err)
		}
		if !rec.Confirmed() {
			return nil, fmt.Errorf("%w: %s has no confirmed deployment on %s", backend.ErrUnresolvedReference, key, e.network.Name)
		}
		return rec.Address, nil
	case ir.RefConst:
		c, ok := e.constants[key]
		if !ok {
			return nil, fmt.Errorf("%w: constant %q is not configured", backend.ErrUnresolvedReference, key)
		}
		return c, nil
	}
	return v, nil
}

func (e *Engine) retry(ctx context.Context, fn func() error) error {
	return RetryWithBackoff(ctx, e.RetryPolicy, fn, IsTransientError)
}

// runHooks never changes the deployment outcome. Verification only runs for fresh
// constructions; export runs for every confirmed record.
func (e *Engine) runHooks(ctx context.Context, rec *ir.DeploymentRecord, reused bool, outcome *ir.ResourceOutcome) {
	outcome.Verification = ir.VerificationSkipped
	if e.Verifier != nil && !reused {
		outcome.Verification = e.Verifier.Verify(ctx, rec)
	}

	if e.Exporter != nil {
		exported, err := e.Exporter.Export(ctx, rec)
		outcome.Exported = exported
		if err != nil {
			outcome.ExportError = err.Error()
			logging.Warn("export failed", "resource", rec.Name, "error", err)
		}
	}
}

// sameArgs compares argument lists by their JSON form, so values that went
// through a state file (float64) compare equal to fresh ints.
func sameArgs(a, b []any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return string(ja) == string(jb)
}

// IsFailure reports whether err came out of a resource failure rather than
// cancellation.
func IsFailure(err error) bool {
	var rerr *ResourceError
	return errors.As(err, &rerr)
}
