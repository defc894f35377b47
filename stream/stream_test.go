package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-agent/domain"
	"auction-agent/metrics"
	"auction-agent/repository"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// fakeBackend serves scripted frames on the websocket route and a fixed
// body on the status route.
type fakeBackend struct {
	server *httptest.Server

	mu          sync.Mutex
	frames      map[string][]string
	status      map[string]domain.StatusResponse
	statusCode  int
	statusCalls int
	hold        chan struct{}
}

func newFakeBackend() *fakeBackend {
	fb := &fakeBackend{
		frames:     make(map[string][]string),
		status:     make(map[string]domain.StatusResponse),
		statusCode: http.StatusOK,
		hold:       make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws/analyses/{id}", fb.handleWS)
	r.HandleFunc("/api/v1/analyses/{id}/status", fb.handleStatus)
	fb.server = httptest.NewServer(r)
	return fb
}

func (fb *fakeBackend) Close() {
	close(fb.hold)
	fb.server.Close()
}

func (fb *fakeBackend) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	fb.mu.Lock()
	frames := fb.frames[id]
	fb.mu.Unlock()

	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			return
		}
	}
	<-fb.hold
}

func (fb *fakeBackend) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.statusCalls++

	if fb.statusCode != http.StatusOK {
		w.WriteHeader(fb.statusCode)
		return
	}
	body, ok := fb.status[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(body)
}

func stageFrame(stage, status string, progress int) string {
	b, _ := json.Marshal(map[string]interface{}{
		"type":     "status_update",
		"stage":    stage,
		"status":   status,
		"progress": progress,
	})
	return string(b)
}

func pendingStatus(id string) domain.StatusResponse {
	stages := map[string]domain.StageProgress{}
	for _, k := range []string{"parsed_documents", "rights_analysis", "market_data", "news_analysis", "valuation", "report"} {
		stages[k] = domain.StageProgress{Status: domain.StagePending}
	}
	return domain.StatusResponse{ID: id, Status: "running", Progress: domain.AggregatedProgress{Stages: stages}}
}

func newTestPoller(baseURL string) *StatusPoller {
	return NewStatusPoller(PollerConfig{
		BaseURL:  baseURL,
		Interval: 20 * time.Millisecond,
		Timeout:  time.Second,
	}, nil)
}

func waitComplete(t *testing.T, ch <-chan domain.ProgressView) domain.ProgressView {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case v := <-ch:
			if v.Complete {
				return v
			}
		case <-timeout:
			t.Fatal("timed out waiting for completion")
		}
	}
}

func TestTracker_WebSocketStagesComplete(t *testing.T) {
	fb := newFakeBackend()
	defer fb.Close()
	fb.frames["A"] = []string{
		stageFrame("document_parser", "running", 0),
		`{not json`,
		stageFrame("document_parser", "done", 100),
		stageFrame("rights_analysis", "done", 100),
		stageFrame("market_data", "done", 100),
		stageFrame("news_analysis", "done", 100),
		stageFrame("valuation", "done", 100),
		stageFrame("report_generator", "done", 100),
	}

	tracker := NewTracker(NewSubscriber(fb.server.URL, time.Second, 5*time.Second), nil, nil)
	views, stop := tracker.Listen()
	defer stop()

	tracker.Bind(context.Background(), "A")
	defer tracker.Unbind()

	v := waitComplete(t, views)
	assert.Equal(t, "A", v.Subject)
	assert.Equal(t, 100, v.Progress.Overall)
	for _, k := range domain.StageKeys {
		assert.Equal(t, domain.StageDone, v.Progress.Stages[k].Status, k)
	}
}

func TestTracker_JobCompleteEvent(t *testing.T) {
	fb := newFakeBackend()
	defer fb.Close()
	fb.frames["A"] = []string{
		stageFrame("document_parser", "done", 100),
		`{"type":"analysis_complete","status":"done","report_url":"/api/v1/analyses/A/report"}`,
	}

	tracker := NewTracker(NewSubscriber(fb.server.URL, time.Second, 5*time.Second), nil, nil)
	views, stop := tracker.Listen()
	defer stop()
	tracker.Bind(context.Background(), "A")
	defer tracker.Unbind()

	v := waitComplete(t, views)
	assert.Equal(t, 100, v.Progress.Overall)
}

func TestTracker_JobErrorEvent(t *testing.T) {
	fb := newFakeBackend()
	defer fb.Close()
	fb.frames["A"] = []string{
		stageFrame("document_parser", "done", 100),
		`{"type":"analysis_error","error":"분석할 PDF 파일이 없습니다."}`,
	}

	tracker := NewTracker(NewSubscriber(fb.server.URL, time.Second, 5*time.Second), nil, nil)
	views, stop := tracker.Listen()
	defer stop()
	tracker.Bind(context.Background(), "A")
	defer tracker.Unbind()

	v := waitComplete(t, views)
	assert.Equal(t, 17, v.Progress.Overall)
	assert.Equal(t, domain.StagePending, v.Progress.Stages[domain.StageValuation].Status)
}

func TestTracker_PollingFallback(t *testing.T) {
	fb := newFakeBackend()
	defer fb.Close()
	done := pendingStatus("A")
	done.Status = "done"
	for k := range done.Progress.Stages {
		done.Progress.Stages[k] = domain.StageProgress{Status: domain.StageDone, Progress: 100}
	}
	fb.status["A"] = done

	// no subscriber: the push channel is unavailable
	tracker := NewTracker(nil, newTestPoller(fb.server.URL), nil)
	views, stop := tracker.Listen()
	defer stop()
	tracker.Bind(context.Background(), "A")
	defer tracker.Unbind()

	v := waitComplete(t, views)
	assert.Equal(t, 100, v.Progress.Overall)
	assert.Equal(t, domain.StageDone, v.Progress.Stages[domain.StageDocumentParsing].Status)
	assert.Equal(t, domain.StageDone, v.Progress.Stages[domain.StageReportGeneration].Status)
}

func TestTracker_RebindResetsAndDiscardsOldSubject(t *testing.T) {
	fb := newFakeBackend()
	defer fb.Close()
	fb.frames["A"] = []string{stageFrame("document_parser", "done", 100)}

	tracker := NewTracker(NewSubscriber(fb.server.URL, time.Second, 5*time.Second), nil, nil)
	tracker.Bind(context.Background(), "A")

	require.Eventually(t, func() bool {
		v, ok := tracker.View()
		return ok && v.Progress.Overall == 17
	}, 3*time.Second, 10*time.Millisecond)

	tracker.Bind(context.Background(), "B")
	defer tracker.Unbind()

	v, ok := tracker.View()
	require.True(t, ok)
	assert.Equal(t, "B", v.Subject)
	assert.Equal(t, 0, v.Progress.Overall)
	assert.False(t, v.Complete)
	for _, k := range domain.StageKeys {
		assert.Equal(t, domain.StagePending, v.Progress.Stages[k].Status)
	}
}

func TestTracker_UnbindGoesIdle(t *testing.T) {
	tracker := NewTracker(nil, nil, nil)
	tracker.Bind(context.Background(), "A")

	tracker.Unbind()

	_, ok := tracker.View()
	assert.False(t, ok)
}

func TestStatusPoller_Fetch(t *testing.T) {
	fb := newFakeBackend()
	defer fb.Close()
	fb.status["A"] = pendingStatus("A")

	p := newTestPoller(fb.server.URL)
	resp, err := p.Fetch(context.Background(), "A")

	require.NoError(t, err)
	assert.Equal(t, "A", resp.ID)
	assert.Equal(t, "running", resp.Status)
	assert.Len(t, resp.Progress.Stages, 6)
}

func TestStatusPoller_BreakerOpensAfterFailures(t *testing.T) {
	fb := newFakeBackend()
	defer fb.Close()
	fb.statusCode = http.StatusInternalServerError

	p := newTestPoller(fb.server.URL)
	for i := 0; i < 5; i++ {
		_, err := p.Fetch(context.Background(), "A")
		require.Error(t, err)
	}

	fb.mu.Lock()
	calls := fb.statusCalls
	fb.mu.Unlock()
	assert.Equal(t, 3, calls, "breaker should stop calling the backend once open")
}

func TestSubscriber_EndpointScheme(t *testing.T) {
	s := NewSubscriber("http://localhost:8000/", time.Second, time.Second)
	u, err := s.endpoint("abc")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/ws/analyses/abc", u)

	s = NewSubscriber("https://auction.example.com", time.Second, time.Second)
	u, err = s.endpoint("a b")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "wss://auction.example.com/ws/analyses/a"))
}

func TestHub_WatchAndCachedView(t *testing.T) {
	fb := newFakeBackend()
	defer fb.Close()
	fb.frames["A"] = []string{`{"type":"analysis_complete","status":"done"}`}

	cache := repository.NewMemoryCache()
	hub := NewHub(context.Background(),
		DefaultFactory(NewSubscriber(fb.server.URL, time.Second, 5*time.Second), nil, nil),
		cache)
	defer hub.Close()

	idle := hub.Watch("idle")
	assert.Same(t, idle, hub.Watch("idle"))
	require.True(t, hub.Forget("idle"))

	hub.Watch("A")

	require.Eventually(t, func() bool {
		v, ok := hub.View("A")
		return ok && v.Complete
	}, 3*time.Second, 10*time.Millisecond)

	// completed trackers are dropped; the view is served from the cache
	require.Eventually(t, func() bool { return hub.Tracked() == 0 }, 3*time.Second, 10*time.Millisecond)
	assert.False(t, hub.Forget("A"))

	v, ok := hub.View("A")
	require.True(t, ok)
	assert.True(t, v.Complete)
	assert.Equal(t, 100, v.Progress.Overall)

	_, ok = hub.View("missing")
	assert.False(t, ok)
}

func doneStatus(id string) domain.StatusResponse {
	resp := pendingStatus(id)
	resp.Status = "done"
	for k := range resp.Progress.Stages {
		resp.Progress.Stages[k] = domain.StageProgress{Status: domain.StageDone, Progress: 100}
	}
	return resp
}

func TestStatusPoller_NotFoundLeavesBreakerClosed(t *testing.T) {
	fb := newFakeBackend()
	defer fb.Close()

	p := newTestPoller(fb.server.URL)
	for i := 0; i < 5; i++ {
		_, err := p.Fetch(context.Background(), "unknown")
		require.ErrorIs(t, err, ErrAnalysisNotFound)
	}

	fb.mu.Lock()
	calls := fb.statusCalls
	fb.mu.Unlock()
	assert.Equal(t, 5, calls)
	assert.Equal(t, gobreaker.StateClosed, p.breaker.State())
}

func TestTracker_UnknownAnalysisEndsSession(t *testing.T) {
	fb := newFakeBackend()
	defer fb.Close()

	tracker := NewTracker(nil, newTestPoller(fb.server.URL), nil)
	views, stop := tracker.Listen()
	defer stop()
	tracker.Bind(context.Background(), "unknown")
	defer tracker.Unbind()

	v := waitComplete(t, views)
	assert.Equal(t, 0, v.Progress.Overall)
}

func TestHub_UnknownAnalysesDoNotStarvePolling(t *testing.T) {
	fb := newFakeBackend()
	defer fb.Close()
	fb.status["real"] = doneStatus("real")

	poller := newTestPoller(fb.server.URL)
	hub := NewHub(context.Background(), DefaultFactory(nil, poller, nil), repository.NewMemoryCache())
	defer hub.Close()

	for i := 0; i < 10; i++ {
		hub.Watch("bogus-" + string(rune('a'+i)))
	}
	hub.Watch("real")

	require.Eventually(t, func() bool {
		v, ok := hub.View("real")
		return ok && v.Complete && v.Progress.Overall == 100
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return hub.Tracked() == 0 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, gobreaker.StateClosed, poller.breaker.State())

	v, ok := hub.View("bogus-a")
	require.True(t, ok)
	assert.True(t, v.Complete)
}

func TestTracker_ViewsNeverGoBackwards(t *testing.T) {
	fb := newFakeBackend()
	defer fb.Close()
	fb.frames["A"] = []string{
		stageFrame("document_parser", "done", 100),
		stageFrame("rights_analysis", "done", 100),
		stageFrame("market_data", "done", 100),
		stageFrame("news_analysis", "done", 100),
		stageFrame("valuation", "done", 100),
		stageFrame("report_generator", "done", 100),
	}

	tracker := NewTracker(NewSubscriber(fb.server.URL, time.Second, 5*time.Second), nil, nil)
	var mu sync.Mutex
	var seen []int
	tracker.OnUpdate = func(v domain.ProgressView) {
		mu.Lock()
		seen = append(seen, v.Progress.Overall)
		mu.Unlock()
	}
	views, stop := tracker.Listen()
	defer stop()
	tracker.Bind(context.Background(), "A")
	defer tracker.Unbind()

	waitComplete(t, views)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, 0, seen[0], "the initial view is published first")
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
}

func TestTracker_ActiveGaugeDropsOnCompletion(t *testing.T) {
	fb := newFakeBackend()
	defer fb.Close()
	fb.frames["A"] = []string{`{"type":"analysis_complete","status":"done"}`}

	m := metrics.NewRegistry()
	tracker := NewTracker(NewSubscriber(fb.server.URL, time.Second, 5*time.Second), nil, m)
	tracker.Bind(context.Background(), "A")
	defer tracker.Unbind()

	require.Eventually(t, func() bool {
		v, ok := tracker.View()
		return ok && v.Complete
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ActiveTrackers) == 0
	}, 3*time.Second, 10*time.Millisecond)

	// unbinding afterwards must not drive the gauge negative
	tracker.Unbind()
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveTrackers))
}
