// Package metrics exposes seifmios counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesTold = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seifmios_messages_told_total",
			Help: "Total number of messages added to the lexicon",
		},
		[]string{"origin"},
	)

	Replies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seifmios_replies_total",
			Help: "Total number of replies delivered to chat transports",
		},
	)

	RepliesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seifmios_replies_dropped_total",
			Help: "Replies whose receiver had already gone away",
		},
	)

	Merges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seifmios_category_merges_total",
			Help: "Total number of category merges",
		},
	)

	LinkChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seifmios_cocategory_link_changes_total",
			Help: "Cocategory links created or removed by think steps",
		},
		[]string{"change"},
	)

	ThinkSteps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seifmios_think_steps_total",
			Help: "Total number of think steps run",
		},
	)

	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seifmios_commands_total",
			Help: "Commands executed, by verb",
		},
		[]string{"verb"},
	)

	LiveCategories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seifmios_live_categories",
			Help: "Number of categories currently in the lexicon",
		},
	)

	Messages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seifmios_messages",
			Help: "Number of messages in the lexicon",
		},
	)
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", addr, err)
	}
	return serve(ctx, ln)
}

func serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
