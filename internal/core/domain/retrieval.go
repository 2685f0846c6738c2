package domain

import "time"

const (
	DefaultTopK          = 3
	DefaultUseHypothesis = true

	// SynthesisPassages is the number of top ranked answers handed to the synthesizer.
	SynthesisPassages = 3
	// MaxResponseResults caps ranked results returned across the request boundary.
	MaxResponseResults = 5
)

// Query is a validated retrieval request.
type Query struct {
	RawText       string `json:"query"`
	TopK          int    `json:"top_k"`
	UseHypothesis bool   `json:"use_hypothesis"`
}

// CandidateAnswer is an answer pulled from a domain index before reranking.
type CandidateAnswer struct {
	Text         string `json:"text"`
	SourceDomain string `json:"source_domain"`
}

// RankedResult is a candidate answer with its relevance score in [0, 1].
type RankedResult struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
}

// RetrievalResult is the outcome of one pipeline run.
type RetrievalResult struct {
	Domain        string         `json:"domain"`
	FinalAnswer   string         `json:"final_answer"`
	RankedResults []RankedResult `json:"ranked_results"`

	HypothesisUsed     bool          `json:"-"`
	HypothesisFallback bool          `json:"-"`
	DegradedScores     int           `json:"-"`
	Duration           time.Duration `json:"-"`
}

type ServiceState string

const (
	StateUninitialized ServiceState = "uninitialized"
	StateInitializing  ServiceState = "initializing"
	StateReady         ServiceState = "ready"
	StateFailed        ServiceState = "failed"
)

// ServiceStatus is the readiness view of the service. Reading it never triggers initialization.
type ServiceStatus struct {
	Initialized bool           `json:"initialized"`
	State       ServiceState   `json:"state"`
	Error       string         `json:"error,omitempty"`
	Domains     map[string]int `json:"domains,omitempty"`
}
