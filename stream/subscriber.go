// Package stream connects progress aggregation to the backend's push
// (WebSocket) and pull (status endpoint) channels.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"auction-agent/domain"
)

// update is one item on a session's inbound channel, tagged with the
// subject that was bound when its producer started.
type update struct {
	subject string
	event   *domain.ProgressEvent
	status  *domain.StatusResponse
}

// Subscriber reads progress events from {base}/ws/analyses/{id}.
type Subscriber struct {
	baseURL     string
	dialer      *websocket.Dialer
	readTimeout time.Duration
}

func NewSubscriber(baseURL string, handshakeTimeout, readTimeout time.Duration) *Subscriber {
	return &Subscriber{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		readTimeout: readTimeout,
	}
}

func (s *Subscriber) endpoint(subject string) (string, error) {
	u, err := url.Parse(s.baseURL + "/ws/analyses/" + url.PathEscape(subject))
	if err != nil {
		return "", fmt.Errorf("invalid websocket url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

// Run streams events for subject into out until ctx is cancelled or the
// connection drops. Frames that are not valid JSON are skipped.
func (s *Subscriber) Run(ctx context.Context, subject string, out chan<- update) error {
	endpoint, err := s.endpoint(subject)
	if err != nil {
		return err
	}

	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	log.Debug().Str("subject", subject).Str("url", endpoint).Msg("progress websocket connected")

	for {
		if s.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var ev domain.ProgressEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Debug().Err(err).Str("subject", subject).Msg("skipping undecodable progress frame")
			continue
		}
		ev.Subject = subject

		select {
		case out <- update{subject: subject, event: &ev}:
		case <-ctx.Done():
			return nil
		}
	}
}
