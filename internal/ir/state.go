package ir

import (
	"strings"
	"time"
)

// Deployment status values.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

// DeploymentRecord is the result of constructing one resource on one network.
type DeploymentRecord struct {
	Name        string    `json:"name"`
	Contract    string    `json:"contract,omitempty"`
	Address     string    `json:"address"`
	NetworkID   uint64    `json:"networkId"`
	Args        []any     `json:"args"`
	TxHash      string    `json:"txHash,omitempty"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	Status      string    `json:"status"`
	DeployedAt  time.Time `json:"deployedAt"`
}

// Confirmed reports whether the record reached its confirmation depth.
func (r *DeploymentRecord) Confirmed() bool {
	return r != nil && r.Status == StatusConfirmed
}

// State represents the persisted deployments of a single network.
type State struct {
	Version     int                 `json:"version"`
	Serial      int                 `json:"serial"`
	Lineage     string              `json:"lineage"`
	NetworkID   uint64              `json:"networkId"`
	Deployments []*DeploymentRecord `json:"deployments"`
}

// Find returns the record for name, or nil.
func (s *State) Find(name string) *DeploymentRecord {
	for _, d := range s.Deployments {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// Upsert replaces the record with the same name or appends it.
func (s *State) Upsert(rec *DeploymentRecord) {
	for i, d := range s.Deployments {
		if d.Name == rec.Name {
			s.Deployments[i] = rec
			return
		}
	}
	s.Deployments = append(s.Deployments, rec)
}

// AddressBook maps a network id to the addresses a resource has had on it.
type AddressBook map[string][]string

// Add appends address to the network's history unless already present.
// It reports whether the book changed.
func (b AddressBook) Add(networkID, address string) bool {
	for _, a := range b[networkID] {
		if strings.EqualFold(a, address) {
			return false
		}
	}
	b[networkID] = append(b[networkID], address)
	return true
}
