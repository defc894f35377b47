package domain

type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageRunning StageStatus = "running"
	StageDone    StageStatus = "done"
	StageError   StageStatus = "error"
)

// Valid reports whether s is one of the four known statuses.
func (s StageStatus) Valid() bool {
	switch s {
	case StagePending, StageRunning, StageDone, StageError:
		return true
	}
	return false
}

// Canonical stage keys, in pipeline order.
const (
	StageDocumentParsing  = "document_parsing"
	StageRightsAnalysis   = "rights_analysis"
	StageMarketData       = "market_data"
	StageNewsAnalysis     = "news_analysis"
	StageValuation        = "valuation"
	StageReportGeneration = "report_generation"
)

var StageKeys = [...]string{
	StageDocumentParsing,
	StageRightsAnalysis,
	StageMarketData,
	StageNewsAnalysis,
	StageValuation,
	StageReportGeneration,
}

type StageProgress struct {
	Status   StageStatus `json:"status"`
	Progress int         `json:"progress"`
}

type AggregatedProgress struct {
	Overall int                      `json:"overall"`
	Stages  map[string]StageProgress `json:"stages"`
}

// Clone returns a deep copy so snapshots handed to listeners stay immutable.
func (p AggregatedProgress) Clone() AggregatedProgress {
	stages := make(map[string]StageProgress, len(p.Stages))
	for k, v := range p.Stages {
		stages[k] = v
	}
	return AggregatedProgress{Overall: p.Overall, Stages: stages}
}

type EventType string

const (
	EventStageUpdate EventType = "status_update"
	EventComplete    EventType = "analysis_complete"
	EventError       EventType = "analysis_error"
)

// ProgressEvent is one message from the backend push channel.
// Status and Progress are pointers so a missing field can be told apart
// from a zero value.
type ProgressEvent struct {
	Type     EventType    `json:"type"`
	Stage    string       `json:"stage,omitempty"`
	Status   *StageStatus `json:"status,omitempty"`
	Progress *int         `json:"progress,omitempty"`
	Message  string       `json:"message,omitempty"`
	Error    string       `json:"error,omitempty"`

	// Subject is stamped by the transport at bind time, never by the backend.
	Subject string `json:"-"`
}

// StatusResponse is the body of the pull-based status endpoint.
type StatusResponse struct {
	ID       string             `json:"id"`
	Status   string             `json:"status"`
	Progress AggregatedProgress `json:"progress"`
}

type ProgressView struct {
	Subject  string             `json:"subject"`
	Progress AggregatedProgress `json:"progress"`
	Complete bool               `json:"complete"`
}
