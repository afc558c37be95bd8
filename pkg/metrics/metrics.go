// Package metrics exposes speed test outcomes as Prometheus gauges.
package metrics

import (
	"sync"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"speedtest-cli/pkg/models"
)

const namespace = "speedtest"

// Recorder keeps the latest run in a set of gauges. Download and upload are
// also published as exponentially weighted moving averages over runs, which
// damps a single noisy measurement.
type Recorder struct {
	download *prometheus.GaugeVec
	upload   *prometheus.GaugeVec
	latency  *prometheus.GaugeVec
	distance *prometheus.GaugeVec

	downloadSmoothed prometheus.Gauge
	uploadSmoothed   prometheus.Gauge

	up        prometheus.Gauge
	lastRun   prometheus.Gauge
	duration  prometheus.Gauge
	runsTotal *prometheus.CounterVec

	mu          sync.Mutex
	downloadAvg ewma.MovingAverage
	uploadAvg   ewma.MovingAverage
}

// NewRecorder registers every collector on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		download: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "download_bits_per_second",
			Help:      "aggregate download rate of the last successful run",
		}, []string{"server"}),
		upload: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upload_bits_per_second",
			Help:      "aggregate upload rate of the last successful run",
		}, []string{"server"}),
		latency: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latency_milliseconds",
			Help:      "latency to the selected server in the last successful run",
		}, []string{"server"}),
		distance: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_distance_kilometers",
			Help:      "great-circle distance to the selected server",
		}, []string{"server"}),
		downloadSmoothed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "download_smoothed_bits_per_second",
			Help:      "moving average of the download rate over successful runs",
		}),
		uploadSmoothed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upload_smoothed_bits_per_second",
			Help:      "moving average of the upload rate over successful runs",
		}),
		up: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 if the last run succeeded, 0 otherwise",
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "unix time the last run finished",
		}),
		duration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "wall time of the last run",
		}),
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "runs by outcome",
		}, []string{"outcome"}),
		downloadAvg: ewma.NewMovingAverage(),
		uploadAvg:   ewma.NewMovingAverage(),
	}
}

// ObserveResult records a successful run that took took.
func (r *Recorder) ObserveResult(res models.Result, took time.Duration) {
	// only the current server is exported
	r.download.Reset()
	r.upload.Reset()
	r.latency.Reset()
	r.distance.Reset()

	r.download.WithLabelValues(res.ServerURL).Set(res.DownloadBps)
	r.upload.WithLabelValues(res.ServerURL).Set(res.UploadBps)
	r.latency.WithLabelValues(res.ServerURL).Set(res.LatencyMs)
	r.distance.WithLabelValues(res.ServerURL).Set(res.DistanceKm)

	r.mu.Lock()
	r.downloadAvg.Add(res.DownloadBps)
	r.uploadAvg.Add(res.UploadBps)
	r.downloadSmoothed.Set(r.downloadAvg.Value())
	r.uploadSmoothed.Set(r.uploadAvg.Value())
	r.mu.Unlock()

	r.up.Set(1)
	r.lastRun.Set(float64(res.Timestamp.Unix()))
	r.duration.Set(took.Seconds())
	r.runsTotal.WithLabelValues("success").Inc()
}

// ObserveFailure records a run that failed at at. The last successful rates
// stay in place.
func (r *Recorder) ObserveFailure(at time.Time, took time.Duration) {
	r.up.Set(0)
	r.lastRun.Set(float64(at.Unix()))
	r.duration.Set(took.Seconds())
	r.runsTotal.WithLabelValues("failure").Inc()
}
