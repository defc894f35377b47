package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"auction-agent/domain"
	"auction-agent/metrics"
	"auction-agent/stream"
)

var doneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <analysis-id>",
		Short: "Follow the progress of a running analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch(ctx, os.Stdout, loaded.Backend.WSBaseURL, loaded.Backend.APIBaseURL, args[0])
		},
	}
}

func watch(ctx context.Context, w io.Writer, wsBase, apiBase, id string) error {
	m := metrics.NewRegistry()
	sub := stream.NewSubscriber(wsBase, loaded.Backend.HandshakeTimeout, loaded.Backend.ReadTimeout)
	poller := stream.NewStatusPoller(stream.PollerConfig{
		BaseURL:   apiBase,
		Interval:  loaded.Backend.PollInterval,
		Timeout:   loaded.Backend.RequestTimeout,
		RateLimit: loaded.Backend.PollRateLimit,
		Burst:     1,
	}, m)

	tracker := stream.NewTracker(sub, poller, m)
	views, unlisten := tracker.Listen()
	defer unlisten()

	tracker.Bind(ctx, id)
	defer tracker.Unbind()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("subject", id).Msg("stopped watching")
			return nil
		case v := <-views:
			fmt.Fprintln(w, progressLine(v))
			if v.Complete {
				return nil
			}
		}
	}
}

// progressLine renders one view as "overall% [stage:status ...]".
func progressLine(v domain.ProgressView) string {
	parts := make([]string, 0, len(domain.StageKeys))
	for _, k := range domain.StageKeys {
		sp := v.Progress.Stages[k]
		s := fmt.Sprintf("%s:%s", k, sp.Status)
		if sp.Status == domain.StageDone {
			s = doneStyle.Render(s)
		}
		parts = append(parts, s)
	}
	line := fmt.Sprintf("%3d%% %s", v.Progress.Overall, strings.Join(parts, " "))
	if v.Complete {
		line += " (complete)"
	}
	return line
}
