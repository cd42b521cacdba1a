// Package metrics handles Prometheus metrics initialization and system
// monitoring.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Prometheus metrics, exported for use by other packages.
var (
	UploadsTotal        prometheus.Counter
	UploadErrorsTotal   prometheus.Counter
	DownloadsTotal      prometheus.Counter
	DownloadErrorsTotal prometheus.Counter
	UploadSizeBytes     prometheus.Histogram
	DownloadSizeBytes   prometheus.Histogram
	AuthFailuresTotal   prometheus.Counter
	CommandsTotal       *prometheus.CounterVec
	ActiveConnections   prometheus.Gauge
	Goroutines          prometheus.Gauge
	MemoryUsage         prometheus.Gauge
	CPUUsage            prometheus.Gauge
)

// Init registers all Prometheus metrics.
func Init() {
	UploadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uploads_total",
		Help: "Total number of completed uploads.",
	})
	UploadErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "upload_errors_total",
		Help: "Total number of failed uploads.",
	})
	DownloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "downloads_total",
		Help: "Total number of completed downloads.",
	})
	DownloadErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "download_errors_total",
		Help: "Total number of failed downloads.",
	})
	UploadSizeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "upload_size_bytes",
		Help:    "Size of uploaded files in bytes.",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})
	DownloadSizeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "download_size_bytes",
		Help:    "Size of downloaded files in bytes.",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})
	AuthFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "Total number of failed authentication attempts.",
	})
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "commands_total",
		Help: "Total number of commands dispatched, by type.",
	}, []string{"type"})
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "active_connections",
		Help: "Number of currently connected clients.",
	})
	Goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "goroutines_count",
		Help: "Current number of goroutines.",
	})
	MemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_percent",
		Help: "Current memory usage in percent.",
	})
	CPUUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "Current CPU usage in percent.",
	})

	prometheus.MustRegister(
		UploadsTotal, UploadErrorsTotal,
		DownloadsTotal, DownloadErrorsTotal,
		UploadSizeBytes, DownloadSizeBytes,
		AuthFailuresTotal, CommandsTotal,
		ActiveConnections, Goroutines, MemoryUsage, CPUUsage,
	)
}

// StartSystemMonitor samples CPU, memory, and goroutine gauges every
// interval until ctx is cancelled.
func StartSystemMonitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				Goroutines.Set(float64(runtime.NumGoroutine()))
				if vm, err := mem.VirtualMemory(); err == nil {
					MemoryUsage.Set(vm.UsedPercent)
				}
				if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
					CPUUsage.Set(percents[0])
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ServeHTTP exposes the Prometheus endpoint on the given port.
func ServeHTTP(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		addr := ":" + port
		log.Infof("Metrics endpoint listening on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("Metrics endpoint failed: %v", err)
		}
	}()
}
