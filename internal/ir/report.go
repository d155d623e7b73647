package ir

// Report summarizes one orchestrator run.
type Report struct {
	Metadata  *ReportMetadata    `json:"metadata"`
	Resources []*ResourceOutcome `json:"resources"`
	Summary   *ReportSummary     `json:"summary"`
}

type ReportMetadata struct {
	Timestamp string `json:"timestamp"`
	Network   string `json:"network"`
	NetworkID uint64 `json:"networkId"`
}

// VerificationStatus is the outcome of the verification side channel.
type VerificationStatus string

const (
	VerificationNone     VerificationStatus = ""
	VerificationVerified VerificationStatus = "verified"
	VerificationSkipped  VerificationStatus = "skipped"
	VerificationFailed   VerificationStatus = "failed"
)

type ResourceOutcome struct {
	Name         string             `json:"name"`
	State        string             `json:"state"` // "pending", "submitted", "reused", "confirmed", "failed"
	Reused       bool               `json:"reused"`
	Address      string             `json:"address,omitempty"`
	Verification VerificationStatus `json:"verification,omitempty"`
	Exported     bool               `json:"exported"`
	ExportError  string             `json:"exportError,omitempty"`
	Error        string             `json:"error,omitempty"`
}

type ReportSummary struct {
	Constructed int `json:"constructed"`
	Reused      int `json:"reused"`
	Failed      int `json:"failed"`
	NotRun      int `json:"notRun"`
}
