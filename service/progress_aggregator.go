package service

import (
	"math"
	"sync"

	"auction-agent/domain"
)

// Phase is the overall lifecycle of an aggregation session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubscribed
	PhaseInProgress
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseSubscribed:
		return "subscribed"
	case PhaseInProgress:
		return "in_progress"
	case PhaseComplete:
		return "complete"
	}
	return "idle"
}

// Disposition says what happened to an event.
type Disposition string

const (
	Applied   Disposition = "applied"
	Malformed Disposition = "malformed"
	Stale     Disposition = "stale"   // tagged with a subject no longer bound
	Ignored   Disposition = "ignored" // well-formed but would regress state
)

// Pipeline node names on the push channel.
var pushStageKeys = map[string]string{
	"document_parser":  domain.StageDocumentParsing,
	"rights_analysis":  domain.StageRightsAnalysis,
	"market_data":      domain.StageMarketData,
	"news_analysis":    domain.StageNewsAnalysis,
	"valuation":        domain.StageValuation,
	"report_generator": domain.StageReportGeneration,
}

// Result field names used by the status endpoint.
var pollStageKeys = map[string]string{
	"parsed_documents": domain.StageDocumentParsing,
	"report":           domain.StageReportGeneration,
}

// TranslateStage maps a backend stage name to its canonical key. Unknown
// names pass through unchanged.
func TranslateStage(name string) string {
	if k, ok := pushStageKeys[name]; ok {
		return k
	}
	if k, ok := pollStageKeys[name]; ok {
		return k
	}
	return name
}

// InitialProgress is every canonical stage pending at 0%.
func InitialProgress() domain.AggregatedProgress {
	stages := make(map[string]domain.StageProgress, len(domain.StageKeys))
	for _, k := range domain.StageKeys {
		stages[k] = domain.StageProgress{Status: domain.StagePending, Progress: 0}
	}
	return domain.AggregatedProgress{Overall: 0, Stages: stages}
}

// ProgressState is the value folded by Reduce. Progress maps are never
// mutated in place once published; Reduce always works on a copy.
type ProgressState struct {
	Subject  string
	Phase    Phase
	Progress domain.AggregatedProgress
	Complete bool
}

// NewProgressState opens a session for subject. An empty subject yields
// the idle state.
func NewProgressState(subject string) ProgressState {
	st := ProgressState{Subject: subject, Phase: PhaseSubscribed, Progress: InitialProgress()}
	if subject == "" {
		st.Phase = PhaseIdle
	}
	return st
}

func overallOf(stages map[string]domain.StageProgress) int {
	done := 0
	for _, k := range domain.StageKeys {
		if stages[k].Status == domain.StageDone {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(domain.StageKeys))))
}

func allDone(stages map[string]domain.StageProgress) bool {
	for _, k := range domain.StageKeys {
		if stages[k].Status != domain.StageDone {
			return false
		}
	}
	return true
}

// regresses reports whether moving a stage from cur to next would go
// backwards: done and error are terminal, running never returns to pending.
func regresses(cur, next domain.StageStatus) bool {
	switch cur {
	case domain.StageDone, domain.StageError:
		return next != cur
	case domain.StageRunning:
		return next == domain.StagePending
	}
	return false
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Reduce folds one event into st. emit is true when the caller should
// publish next.Progress as a new snapshot.
func Reduce(st ProgressState, ev domain.ProgressEvent) (next ProgressState, emit bool, d Disposition) {
	if st.Phase == PhaseIdle {
		return st, false, Stale
	}
	if ev.Subject != "" && ev.Subject != st.Subject {
		return st, false, Stale
	}

	switch ev.Type {
	case domain.EventStageUpdate:
		if ev.Stage == "" || ev.Status == nil || !ev.Status.Valid() || ev.Progress == nil {
			return st, false, Malformed
		}
		if st.Phase == PhaseComplete {
			return st, false, Ignored
		}
		key := TranslateStage(ev.Stage)
		cur, ok := st.Progress.Stages[key]
		if !ok {
			cur = domain.StageProgress{Status: domain.StagePending}
		}
		if regresses(cur.Status, *ev.Status) {
			return st, false, Ignored
		}

		next = st
		next.Progress = st.Progress.Clone()
		next.Progress.Stages[key] = domain.StageProgress{Status: *ev.Status, Progress: clampPercent(*ev.Progress)}
		next.Progress.Overall = overallOf(next.Progress.Stages)
		next.Phase = PhaseInProgress
		if allDone(next.Progress.Stages) {
			next.Phase = PhaseComplete
			next.Complete = true
		}
		return next, true, Applied

	case domain.EventComplete:
		next = st
		next.Progress = st.Progress.Clone()
		for k := range next.Progress.Stages {
			next.Progress.Stages[k] = domain.StageProgress{Status: domain.StageDone, Progress: 100}
		}
		next.Progress.Overall = 100
		next.Phase = PhaseComplete
		next.Complete = true
		return next, true, Applied

	case domain.EventError:
		if st.Complete {
			return st, false, Ignored
		}
		next = st
		next.Phase = PhaseComplete
		next.Complete = true
		return next, false, Applied
	}

	return st, false, Malformed
}

// ReduceSnapshot reconciles a polled status response. Each stage goes
// through the same regression guard as pushed updates, so a late poll can
// never undo progress the push channel already delivered.
func ReduceSnapshot(st ProgressState, subject string, resp domain.StatusResponse) (next ProgressState, emit bool, d Disposition) {
	if st.Phase == PhaseIdle || subject != st.Subject {
		return st, false, Stale
	}
	if st.Phase == PhaseComplete {
		return st, false, Ignored
	}

	next = st
	next.Progress = st.Progress.Clone()
	changed := false
	for name, sp := range resp.Progress.Stages {
		if !sp.Status.Valid() {
			continue
		}
		key := TranslateStage(name)
		cur, ok := next.Progress.Stages[key]
		if !ok {
			cur = domain.StageProgress{Status: domain.StagePending}
		}
		if regresses(cur.Status, sp.Status) {
			continue
		}
		upd := domain.StageProgress{Status: sp.Status, Progress: clampPercent(sp.Progress)}
		if ok && cur == upd {
			continue
		}
		next.Progress.Stages[key] = upd
		changed = true
	}
	next.Progress.Overall = overallOf(next.Progress.Stages)
	if changed {
		next.Phase = PhaseInProgress
	}

	switch resp.Status {
	case string(domain.StageDone), string(domain.StageError):
		next.Phase = PhaseComplete
		next.Complete = true
	default:
		if allDone(next.Progress.Stages) {
			next.Phase = PhaseComplete
			next.Complete = true
		}
	}

	if !changed && !next.Complete {
		return st, false, Ignored
	}
	return next, changed, Applied
}

// Aggregator holds the progress of the one bound subject. It is safe for
// concurrent use, though a single writer is expected.
type Aggregator struct {
	mu    sync.RWMutex
	state ProgressState
}

func NewAggregator() *Aggregator {
	return &Aggregator{state: NewProgressState("")}
}

// Bind starts a fresh session, discarding whatever the previous subject
// had accumulated. An empty subject leaves the aggregator idle.
func (a *Aggregator) Bind(subject string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = NewProgressState(subject)
}

func (a *Aggregator) Unbind() {
	a.Bind("")
}

// Apply folds ev and returns the snapshot to publish, if any.
func (a *Aggregator) Apply(ev domain.ProgressEvent) (domain.AggregatedProgress, bool, Disposition) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next, emit, d := Reduce(a.state, ev)
	a.state = next
	if !emit {
		return domain.AggregatedProgress{}, false, d
	}
	return next.Progress.Clone(), true, d
}

// ApplySnapshot folds a polled status response for subject.
func (a *Aggregator) ApplySnapshot(subject string, resp domain.StatusResponse) (domain.AggregatedProgress, bool, Disposition) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next, emit, d := ReduceSnapshot(a.state, subject, resp)
	a.state = next
	if !emit {
		return domain.AggregatedProgress{}, false, d
	}
	return next.Progress.Clone(), true, d
}

// Snapshot returns the current progress and completion flag. ok is false
// while idle.
func (a *Aggregator) Snapshot() (progress domain.AggregatedProgress, complete bool, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.state.Phase == PhaseIdle {
		return domain.AggregatedProgress{}, false, false
	}
	return a.state.Progress.Clone(), a.state.Complete, true
}

func (a *Aggregator) Subject() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Subject
}

func (a *Aggregator) Phase() Phase {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Phase
}

func (a *Aggregator) Complete() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Complete
}
