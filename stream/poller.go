package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"auction-agent/domain"
	"auction-agent/metrics"
)

// ErrAnalysisNotFound means the backend does not know the analysis. It is
// terminal for that subject.
var ErrAnalysisNotFound = errors.New("analysis not found")

// statusError is a non-200 reply from the status endpoint.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status request: unexpected status %d", e.code)
}

func (e *statusError) Unwrap() error {
	if e.code == http.StatusNotFound {
		return ErrAnalysisNotFound
	}
	return nil
}

// countsAsSuccess keeps client errors out of the breaker's failure count.
// A 4xx describes one subject, not the health of the backend, and must not
// stop polling for every other analysis.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *statusError
	return errors.As(err, &se) && se.code >= 400 && se.code < 500
}

// StatusPoller fetches {base}/api/v1/analyses/{id}/status on an interval.
// It is the fallback for when the push channel is down or lagging.
type StatusPoller struct {
	baseURL  string
	client   *http.Client
	interval time.Duration
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	metrics  *metrics.Registry
}

type PollerConfig struct {
	BaseURL   string
	Interval  time.Duration
	Timeout   time.Duration
	RateLimit float64 // requests per second across all subjects
	Burst     int
}

// NewStatusPoller creates a poller. m may be nil.
func NewStatusPoller(cfg PollerConfig, m *metrics.Registry) *StatusPoller {
	st := gobreaker.Settings{Name: "status-poller"}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.IsSuccessful = countsAsSuccess
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &StatusPoller{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   &http.Client{Timeout: cfg.Timeout},
		interval: cfg.Interval,
		breaker:  gobreaker.NewCircuitBreaker(st),
		limiter:  rate.NewLimiter(limit, burst),
		metrics:  m,
	}
}

// Fetch performs one status request.
func (p *StatusPoller) Fetch(ctx context.Context, subject string) (domain.StatusResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.StatusResponse{}, err
	}

	res, err := p.breaker.Execute(func() (interface{}, error) {
		return p.fetch(ctx, subject)
	})
	if err != nil {
		if errors.Is(err, ErrAnalysisNotFound) {
			p.count("not_found")
		} else {
			p.count("error")
		}
		return domain.StatusResponse{}, err
	}
	p.count("ok")
	return res.(domain.StatusResponse), nil
}

func (p *StatusPoller) fetch(ctx context.Context, subject string) (domain.StatusResponse, error) {
	endpoint := p.baseURL + "/api/v1/analyses/" + url.PathEscape(subject) + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.StatusResponse{}, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.StatusResponse{}, fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.StatusResponse{}, &statusError{code: resp.StatusCode}
	}

	var body domain.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.StatusResponse{}, fmt.Errorf("decode status response: %w", err)
	}
	return body, nil
}

// Run polls immediately and then every interval until ctx is cancelled or
// done reports true. Failed polls are logged and retried on the next tick,
// except a 404, which ends the session with an analysis_error event.
func (p *StatusPoller) Run(ctx context.Context, subject string, out chan<- update, done func() bool) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if done() {
			return
		}
		status, err := p.Fetch(ctx, subject)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrAnalysisNotFound) {
				log.Info().Str("subject", subject).Msg("analysis unknown to backend; ending session")
				ev := domain.ProgressEvent{Type: domain.EventError, Error: err.Error(), Subject: subject}
				select {
				case out <- update{subject: subject, event: &ev}:
				case <-ctx.Done():
				}
				return
			}
			log.Debug().Err(err).Str("subject", subject).Msg("status poll failed")
		} else {
			select {
			case out <- update{subject: subject, status: &status}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (p *StatusPoller) count(result string) {
	if p.metrics != nil {
		p.metrics.PollRequests.WithLabelValues(result).Inc()
	}
}
