package ir

import "time"

// NetworkContext is the read-only network identity for one orchestrator run.
type NetworkContext struct {
	ID                uint64
	Name              string
	ConfirmationDepth uint64
	Ephemeral         bool
}

// Depth returns the number of confirmations to wait for. Zero means unset and defaults to one.
func (n NetworkContext) Depth() uint64 {
	if n.ConfirmationDepth == 0 {
		return 1
	}
	return n.ConfirmationDepth
}

// Network is a network entry of the configuration file.
type Network struct {
	Name           string `pkl:"name" yaml:"name,omitempty"`
	ChainID        uint64 `pkl:"chainId" yaml:"chainId"`
	Kind           string `pkl:"kind" yaml:"kind"` // "simulated", "rpc", "null"
	URL            string `pkl:"url" yaml:"url,omitempty"`
	Confirmations  uint64 `pkl:"confirmations" yaml:"confirmations,omitempty"`
	Ephemeral      bool   `pkl:"ephemeral" yaml:"ephemeral,omitempty"`
	ConfirmTimeout string `pkl:"confirmTimeout" yaml:"confirmTimeout,omitempty"`
	PollInterval   string `pkl:"pollInterval" yaml:"pollInterval,omitempty"`
}

// Context returns the run context for this network.
func (n *Network) Context() NetworkContext {
	return NetworkContext{
		ID:                n.ChainID,
		Name:              n.Name,
		ConfirmationDepth: n.Confirmations,
		Ephemeral:         n.Ephemeral,
	}
}

// Timeouts returns the parsed confirmation timeout and poll interval, zero when unset or invalid.
func (n *Network) Timeouts() (confirm, poll time.Duration) {
	if n.ConfirmTimeout != "" {
		confirm, _ = time.ParseDuration(n.ConfirmTimeout)
	}
	if n.PollInterval != "" {
		poll, _ = time.ParseDuration(n.PollInterval)
	}
	return confirm, poll
}
