package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	suggestionsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestbot_suggestions_submitted_total",
			Help: "Submission attempts by outcome",
		},
		[]string{"result"},
	)

	moderationActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestbot_moderation_actions_total",
			Help: "Admin actions by action and outcome",
		},
		[]string{"action", "result"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestbot_notifications_total",
			Help: "Outbound messages by instruction kind and outcome",
		},
		[]string{"kind", "result"},
	)

	updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestbot_updates_total",
			Help: "Inbound Telegram updates by type",
		},
		[]string{"type"},
	)
)

func RecordSubmission(result string) {
	suggestionsSubmittedTotal.WithLabelValues(result).Inc()
}

func RecordAction(action, result string) {
	moderationActionsTotal.WithLabelValues(action, result).Inc()
}

func RecordNotification(kind, result string) {
	notificationsTotal.WithLabelValues(kind, result).Inc()
}

func RecordNotifications(kind, result string, n int) {
	if n > 0 {
		notificationsTotal.WithLabelValues(kind, result).Add(float64(n))
	}
}

func RecordUpdate(updateType string) {
	updatesTotal.WithLabelValues(updateType).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
