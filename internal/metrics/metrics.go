// Package metrics exposes Prometheus metrics and a health endpoint for
// the desk client.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the desk.
type Metrics struct {
	EventsTotal        prometheus.Counter
	EventsUnheld       prometheus.Counter
	FeedReconnects     prometheus.Counter
	FeedConnected      prometheus.Gauge
	TradesFilled       prometheus.Counter
	TradesRejected     prometheus.Counter
	QuoteLatency       prometheus.Histogram
	CacheWriteFailures prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "desk_price_events_total",
			Help: "Total price events delivered by the feed",
		}),
		EventsUnheld: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "desk_price_events_unheld_total",
			Help: "Price events ignored because no position holds the symbol",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "desk_feed_reconnects_total",
			Help: "Feed reconnect attempts after a transport drop",
		}),
		FeedConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "desk_feed_connected",
			Help: "Feed connection state (1=connected, 0=disconnected)",
		}),
		TradesFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "desk_trades_filled_total",
			Help: "Confirmed trades filled by the trading service",
		}),
		TradesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "desk_trades_rejected_total",
			Help: "Trade confirmations rejected by the trading service",
		}),
		QuoteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "desk_quote_latency_seconds",
			Help:    "Latency of quote requests",
			Buckets: prometheus.DefBuckets,
		}),
		CacheWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "desk_price_cache_write_failures_total",
			Help: "Failed best-effort writes to the price cache",
		}),
	}

	prometheus.MustRegister(
		m.EventsTotal,
		m.EventsUnheld,
		m.FeedReconnects,
		m.FeedConnected,
		m.TradesFilled,
		m.TradesRejected,
		m.QuoteLatency,
		m.CacheWriteFailures,
	)
	return m
}

// HealthStatus tracks dependency health for the /healthz endpoint.
type HealthStatus struct {
	mu            sync.RWMutex
	FeedConnected bool
	RedisOK       bool
	JournalOK     bool
	SessionActive bool
	LastEventAt   time.Time
}

// NewHealthStatus creates an empty health tracker.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisOK(v bool) {
	h.mu.Lock()
	h.RedisOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetJournalOK(v bool) {
	h.mu.Lock()
	h.JournalOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSessionActive(v bool) {
	h.mu.Lock()
	h.SessionActive = v
	h.mu.Unlock()
}

func (h *HealthStatus) MarkEvent() {
	h.mu.Lock()
	h.LastEventAt = time.Now()
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !h.SessionActive || !h.FeedConnected {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	eventAge := ""
	if !h.LastEventAt.IsZero() {
		eventAge = time.Since(h.LastEventAt).Round(time.Millisecond).String()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":         status,
		"feed_connected": h.FeedConnected,
		"redis_ok":       h.RedisOK,
		"journal_ok":     h.JournalOK,
		"session_active": h.SessionActive,
		"last_event_age": eventAge,
	})
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
