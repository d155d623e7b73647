// Package export publishes confirmed deployments to consumers: an address book and
// ABI file per resource, and optionally AWS SSM parameters.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/picklr-io/deployr/internal/artifact"
	"github.com/picklr-io/deployr/internal/engine"
	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/logging"
	"github.com/picklr-io/deployr/internal/state"
)

// EnvVar enables export when set to any non-empty value.
const EnvVar = "UPDATE_FRONT_END"

// ErrExport wraps every export failure. It never fails a deployment.
var ErrExport = errors.New("export failed")

// DefaultTargets mirrors the front-end layout of the Crypto Dev project.
func DefaultTargets() []*ir.ExportConfig {
	return []*ir.ExportConfig{
		{
			Resource:      "Whitelist",
			AddressesFile: "../Crypto Dev/frontend/whitelist/constants/contractAddress.json",
			ABIFile:       "../Crypto Dev/frontend/whitelist/constants/abi.json",
		},
		{
			Resource:      "NFTCollection",
			AddressesFile: "../Crypto Dev/frontend/nft_collection/constants/contractAddress.json",
			ABIFile:       "../Crypto Dev/frontend/nft_collection/constants/abi.json",
		},
	}
}

// Exporter implements engine.Exporter. Writes are serialized; it assumes it is the
// only writer of its files.
type Exporter struct {
	mu        sync.Mutex
	targets   map[string][]*ir.ExportConfig
	artifacts artifact.Source
	params    ParameterStore
}

var _ engine.Exporter = (*Exporter)(nil)

func New(targets []*ir.ExportConfig, artifacts artifact.Source) *Exporter {
	e := &Exporter{targets: make(map[string][]*ir.ExportConfig), artifacts: artifacts}
	for _, t := range targets {
		e.targets[t.Resource] = append(e.targets[t.Resource], t)
	}
	return e
}

// WithParameterStore enables the SSM sink for targets that set an SSM prefix.
func (e *Exporter) WithParameterStore(p ParameterStore) *Exporter {
	e.params = p
	return e
}

func (e *Exporter) Export(ctx context.Context, rec *ir.DeploymentRecord) (bool, error) {
	targets := e.targets[rec.Name]
	if len(targets) == 0 {
		return false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for _, t := range targets {
		if err := e.exportOne(ctx, t, rec); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return false, fmt.Errorf("%w: %s: %w", ErrExport, rec.Name, errors.Join(errs...))
	}

	logging.Info("deployment exported", "resource", rec.Name, "address", rec.Address)
	return true, nil
}

func (e *Exporter) exportOne(ctx context.Context, t *ir.ExportConfig, rec *ir.DeploymentRecord) error {
	if t.AddressesFile != "" {
		if _, err := UpdateAddressBook(t.AddressesFile, rec.NetworkID, rec.Address); err != nil {
			return err
		}
	}

	if t.ABIFile != "" {
		contract := rec.Contract
		if contract == "" {
			contract = rec.Name
		}
		art, err := e.artifacts.Load(contract)
		if err != nil {
			return err
		}
		if err := WriteABI(t.ABIFile, art.RawABI); err != nil {
			return err
		}
	}

	if t.SSMPrefix != "" {
		if e.params == nil {
			return fmt.Errorf("ssm prefix %q configured but no parameter store", t.SSMPrefix)
		}
		if err := e.params.PutAddress(ctx, t.SSMPrefix, rec); err != nil {
			return err
		}
	}
	return nil
}

// UpdateAddressBook appends address under networkID unless already present. A
// missing file is treated as an empty book. The file is replaced atomically.
func UpdateAddressBook(path string, networkID uint64, address string) (bool, error) {
	book := ir.AddressBook{}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return false, fmt.Errorf("failed to read address book %s: %w", path, err)
	case len(bytes.TrimSpace(raw)) > 0:
		if err := json.Unmarshal(raw, &book); err != nil {
			return false, fmt.Errorf("failed to parse address book %s: %w", path, err)
		}
	}

	if !book.Add(strconv.FormatUint(networkID, 10), address) {
		return false, nil
	}

	data, err := json.Marshal(book)
	if err != nil {
		return false, err
	}
	if err := state.WriteFileAtomic(path, data, 0o644); err != nil {
		return false, fmt.Errorf("failed to write address book %s: %w", path, err)
	}
	return true, nil
}

// WriteABI writes the contract interface as JSON.
func WriteABI(path string, abi json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, abi); err != nil {
		return fmt.Errorf("invalid abi json: %w", err)
	}
	if err := state.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write abi %s: %w", path, err)
	}
	return nil
}
