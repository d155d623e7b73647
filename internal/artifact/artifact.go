// Package artifact loads compiled contract artifacts produced by Hardhat.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrNotFound is returned when no artifact exists for a contract name.
var ErrNotFound = errors.New("artifact not found")

// Artifact is one compiled contract.
type Artifact struct {
	ContractName string
	SourceName   string
	ABI          abi.ABI
	RawABI       json.RawMessage
	Bytecode     []byte

	// BuildInfo is nil when the compiler input is not available.
	BuildInfo *BuildInfo
}

// BuildInfo carries what a source verifier needs from the compiler run.
type BuildInfo struct {
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
}

// QualifiedName returns "sourceName:ContractName", the form explorers expect.
func (a *Artifact) QualifiedName() string {
	if a.SourceName == "" {
		return a.ContractName
	}
	return a.SourceName + ":" + a.ContractName
}

// Source resolves contract names to artifacts.
type Source interface {
	Load(name string) (*Artifact, error)
}

type hardhatArtifact struct {
	Format       string          `json:"_format"`
	ContractName string          `json:"contractName"`
	SourceName   string          `json:"sourceName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

type hardhatDebug struct {
	BuildInfo string `json:"buildInfo"`
}

// Dir reads artifacts from a Hardhat artifacts directory, e.g. "artifacts".
type Dir struct {
	root string

	mu    sync.Mutex
	cache map[string]*Artifact
}

func NewDir(root string) *Dir {
	return &Dir{root: root, cache: make(map[string]*Artifact)}
}

// Load finds <name>.json anywhere under the root, skipping build-info and debug files.
func (d *Dir) Load(name string) (*Artifact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if a, ok := d.cache[name]; ok {
		return a, nil
	}

	path, err := d.find(name)
	if err != nil {
		return nil, err
	}
	a, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	d.cache[name] = a
	return a, nil
}

func (d *Dir) find(name string) (string, error) {
	var found string
	want := name + ".json"
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.Name() == want {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan artifacts in %s: %w", d.root, err)
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s (searched %s)", ErrNotFound, name, d.root)
	}
	return found, nil
}

// ReadFile parses a single Hardhat artifact file. The sibling .dbg.json, when
// present, is followed to the build-info file.
func ReadFile(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}

	var hh hardhatArtifact
	if err := json.Unmarshal(raw, &hh); err != nil {
		return nil, fmt.Errorf("failed to parse artifact %s: %w", path, err)
	}

	a, err := New(hh.ContractName, hh.SourceName, hh.ABI, hh.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}

	dbgPath := strings.TrimSuffix(path, ".json") + ".dbg.json"
	if dbgRaw, err := os.ReadFile(dbgPath); err == nil {
		var dbg hardhatDebug
		if err := json.Unmarshal(dbgRaw, &dbg); err == nil && dbg.BuildInfo != "" {
			a.BuildInfo, err = readBuildInfo(filepath.Join(filepath.Dir(path), dbg.BuildInfo))
			if err != nil {
				return nil, err
			}
		}
	}
	return a, nil
}

func readBuildInfo(path string) (*BuildInfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read build info %s: %w", path, err)
	}
	var info BuildInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to parse build info %s: %w", path, err)
	}
	return &info, nil
}

// New builds an artifact from its JSON ABI and hex bytecode.
func New(name, sourceName string, rawABI []byte, bytecode string) (*Artifact, error) {
	parsed, err := abi.JSON(strings.NewReader(string(rawABI)))
	if err != nil {
		return nil, fmt.Errorf("invalid abi: %w", err)
	}

	var code []byte
	if bytecode != "" && bytecode != "0x" {
		code, err = hexutil.Decode(bytecode)
		if err != nil {
			return nil, fmt.Errorf("invalid bytecode: %w", err)
		}
	}

	return &Artifact{
		ContractName: name,
		SourceName:   sourceName,
		ABI:          parsed,
		RawABI:       json.RawMessage(rawABI),
		Bytecode:     code,
	}, nil
}

// Static is an in-memory Source, used for built-in and test contracts.
type Static map[string]*Artifact

func (s Static) Load(name string) (*Artifact, error) {
	if a, ok := s[name]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}
