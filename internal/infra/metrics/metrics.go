// Package metrics holds the Prometheus collectors of the API process.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "amour"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})

	realtimeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_sessions",
		Help:      "Open websocket sessions on this instance",
	})

	messagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Messages persisted",
	})

	readReceipts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "read_receipts_total",
		Help:      "Messages flipped to read",
	})

	candidateAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candidate_assignments_total",
		Help:      "Candidate requests by outcome",
	}, []string{"result"})

	matchesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "matches_created_total",
		Help:      "Match rows created by kind",
	}, []string{"kind"})

	notificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_dropped_total",
		Help:      "Best-effort notifications that were not delivered",
	}, []string{"channel"})
)

// Recorder is the domain-facing side of the collectors. The zero value is ready to use.
type Recorder struct{}

func (Recorder) SessionOpened() { realtimeSessions.Inc() }

func (Recorder) SessionClosed() { realtimeSessions.Dec() }

func (Recorder) MessageSent() { messagesSent.Inc() }

func (Recorder) MessagesRead(n int) {
	if n > 0 {
		readReceipts.Add(float64(n))
	}
}

// CandidateAssigned takes one of "hit", "assigned", "empty".
func (Recorder) CandidateAssigned(result string) {
	candidateAssignments.WithLabelValues(result).Inc()
}

// MatchCreated takes "mutual" or "request".
func (Recorder) MatchCreated(kind string) {
	matchesCreated.WithLabelValues(kind).Inc()
}

func (Recorder) NotificationDropped(channel string) {
	notificationsDropped.WithLabelValues(channel).Inc()
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps websocket upgrades working behind the middleware.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware labels by chi route pattern so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
