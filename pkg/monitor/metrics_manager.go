package monitor

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	monkit "github.com/spacemonkeygo/monkit/v3"
)

// MetricsManager handles both Prometheus and Monkit metrics
type MetricsManager struct {
	monRegistry  *monkit.Registry
	promRegistry *prometheus.Registry

	// Sync pipeline metrics
	SyncRuns        prometheus.Counter
	SyncRetries     prometheus.Counter
	AssetsAdded     prometheus.Counter
	AssetsDeleted   prometheus.Counter
	BytesDownloaded prometheus.Counter
	SyncDuration    prometheus.Histogram

	// System resource metrics
	GoroutineCount prometheus.Gauge
}

var (
	globalManager *MetricsManager
	Mon           = monkit.Package()
	managerMutex  sync.RWMutex
)

// NewMetricsManager creates a new metrics manager instance
func NewMetricsManager() *MetricsManager {
	registry := prometheus.NewRegistry()

	// Register standard collectors
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	manager := &MetricsManager{
		monRegistry:  monkit.Default,
		promRegistry: registry,
	}

	factory := promauto.With(registry)
	manager.SyncRuns = factory.NewCounter(prometheus.CounterOpts{
		Name: "sync_runs_total",
		Help: "Number of sync runs started",
	})
	manager.SyncRetries = factory.NewCounter(prometheus.CounterOpts{
		Name: "sync_retries_total",
		Help: "Number of sync retry rounds after recoverable failures",
	})
	manager.AssetsAdded = factory.NewCounter(prometheus.CounterOpts{
		Name: "assets_added_total",
		Help: "Number of assets downloaded into the library",
	})
	manager.AssetsDeleted = factory.NewCounter(prometheus.CounterOpts{
		Name: "assets_deleted_total",
		Help: "Number of assets removed from the library",
	})
	manager.BytesDownloaded = factory.NewCounter(prometheus.CounterOpts{
		Name: "bytes_downloaded_total",
		Help: "Total asset bytes downloaded",
	})
	manager.SyncDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_duration_seconds",
		Help:    "Wall clock duration of completed sync runs",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
	manager.GoroutineCount = factory.NewGauge(prometheus.GaugeOpts{
		Name: "system_goroutines_total",
		Help: "Current number of goroutines",
	})

	// Register Monkit adapter
	registry.MustRegister(NewMonkitAdapter(manager.monRegistry))

	return manager
}

// InitializeGlobalManager initializes the global metrics manager (thread-safe)
func InitializeGlobalManager() error {
	managerMutex.Lock()
	defer managerMutex.Unlock()

	if globalManager == nil {
		globalManager = NewMetricsManager()
	}
	return nil
}

// GetGlobalManager returns the global metrics manager instance
func GetGlobalManager() *MetricsManager {
	managerMutex.RLock()
	defer managerMutex.RUnlock()
	return globalManager
}

// M is shorthand for the global manager; returns a throwaway manager when
// metrics were never initialized so callers need no nil checks.
func M() *MetricsManager {
	if m := GetGlobalManager(); m != nil {
		return m
	}
	return NewMetricsManager()
}

// CreateMetricsHandler creates an HTTP handler for the /metrics endpoint
func CreateMetricsHandler() http.Handler {
	manager := GetGlobalManager()
	if manager == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(manager.promRegistry, promhttp.HandlerOpts{})
}

// StartSystemMetricsUpdater starts a goroutine to periodically update system metrics
func StartSystemMetricsUpdater(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			manager := GetGlobalManager()
			if manager == nil {
				continue
			}
			manager.GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}()
}
