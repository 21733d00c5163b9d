// Package metrics collects backup counters in a private Prometheus registry
// and can dump them to a node-exporter textfile after a run.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe for concurrent use. A nil *Metrics discards everything.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests    *prometheus.CounterVec
	apiDuration    *prometheus.HistogramVec
	postsSeen      *prometheus.CounterVec
	postsStored    *prometheus.CounterVec
	mediaDownloads *prometheus.CounterVec
	mediaBytes     prometheus.Counter
	mediaPending   prometheus.Gauge
	runDuration    prometheus.Gauge
	lastSuccess    prometheus.Gauge
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		apiRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tumblr_backup_api_requests_total",
			Help: "Remote API requests by endpoint and HTTP status",
		}, []string{"endpoint", "status"}),
		apiDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tumblr_backup_api_request_duration_seconds",
			Help:    "Remote API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		postsSeen: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tumblr_backup_posts_seen_total",
			Help: "Posts returned by the listing endpoint",
		}, []string{"blog"}),
		postsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tumblr_backup_posts_stored_total",
			Help: "Posts newly inserted into the archive",
		}, []string{"blog"}),
		mediaDownloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tumblr_backup_media_downloads_total",
			Help: "Media download attempts by result",
		}, []string{"result"}),
		mediaBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "tumblr_backup_media_bytes_total",
			Help: "Bytes written to the media directory",
		}),
		mediaPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tumblr_backup_media_pending",
			Help: "Media rows pending at the start of the download phase",
		}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tumblr_backup_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tumblr_backup_last_success_timestamp_seconds",
			Help: "Unix time of the last run that authenticated and completed",
		}),
	}
}

// Registry exposes the underlying registry for gathering in tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAPIRequest(endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) PostSeen(blog string, inserted bool) {
	if m == nil {
		return
	}
	m.postsSeen.WithLabelValues(blog).Inc()
	if inserted {
		m.postsStored.WithLabelValues(blog).Inc()
	}
}

func (m *Metrics) SetMediaPending(n int) {
	if m == nil {
		return
	}
	m.mediaPending.Set(float64(n))
}

func (m *Metrics) MediaDownloaded(bytes int64) {
	if m == nil {
		return
	}
	m.mediaDownloads.WithLabelValues("success").Inc()
	m.mediaBytes.Add(float64(bytes))
}

func (m *Metrics) MediaFailed() {
	if m == nil {
		return
	}
	m.mediaDownloads.WithLabelValues("failure").Inc()
}

// RunFinished records the run duration and, on success, the completion time
func (m *Metrics) RunFinished(d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.runDuration.Set(d.Seconds())
	if success {
		m.lastSuccess.SetToCurrentTime()
	}
}

// WriteTextfile writes the registry in text exposition format, atomically
// replacing path. Empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
