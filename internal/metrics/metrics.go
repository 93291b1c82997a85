// Package metrics records run outcomes as Prometheus collectors and writes
// them to a node-exporter textfile.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bensun/jobdigest/internal/model"
	"github.com/bensun/jobdigest/internal/pipeline"
	"github.com/bensun/jobdigest/internal/source"
)

// Recorder implements pipeline.Observer on a dedicated registry.
type Recorder struct {
	reg *prometheus.Registry

	sourceItems    *prometheus.CounterVec
	sourceErrors   *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	channelResults *prometheus.CounterVec
	postings       *prometheus.GaugeVec
	runDuration    prometheus.Histogram
	lastSuccess    prometheus.Gauge
	lastRun        prometheus.Gauge
}

// New creates a Recorder and registers its collectors.
func New() (*Recorder, error) {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		sourceItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobdigest_source_items_total",
			Help: "Valid items returned per source.",
		}, []string{"source"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobdigest_source_errors_total",
			Help: "Failed fetches per source.",
		}, []string{"source"}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobdigest_source_duration_seconds",
			Help:    "Fetch duration per source.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 60},
		}, []string{"source"}),
		channelResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobdigest_channel_results_total",
			Help: "Dispatch outcomes partitioned by channel and status.",
		}, []string{"channel", "status"}),
		postings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobdigest_postings",
			Help: "Postings seen by the last run at each stage.",
		}, []string{"stage"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobdigest_run_duration_seconds",
			Help:    "Wall time per run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobdigest_last_run_success",
			Help: "1 if the last run reached PERSISTING without error, else 0.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobdigest_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
	}
	for _, c := range []prometheus.Collector{
		r.sourceItems,
		r.sourceErrors,
		r.sourceDuration,
		r.channelResults,
		r.postings,
		r.runDuration,
		r.lastSuccess,
		r.lastRun,
	} {
		if err := r.reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// Registry exposes the underlying registry, e.g. for promhttp.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) StateChanged(string, pipeline.State, pipeline.State) {}

func (r *Recorder) SourceFetched(_ string, res source.Result) {
	r.sourceDuration.WithLabelValues(res.Source).Observe(res.Duration.Seconds())
	if res.Err != nil {
		r.sourceErrors.WithLabelValues(res.Source).Inc()
		return
	}
	r.sourceItems.WithLabelValues(res.Source).Add(float64(len(res.Items)))
}

func (r *Recorder) ChannelDelivered(_ string, res model.ChannelResult) {
	r.channelResults.WithLabelValues(res.Channel, string(res.Status)).Inc()
}

func (r *Recorder) RunFinished(res *pipeline.Result, err error) {
	r.postings.WithLabelValues("fetched").Set(float64(res.Fetched))
	r.postings.WithLabelValues("new").Set(float64(res.New))
	r.postings.WithLabelValues("matched").Set(float64(len(res.Items)))
	r.postings.WithLabelValues("persisted").Set(float64(res.Persisted))
	r.runDuration.Observe(res.Duration.Seconds())
	r.lastRun.Set(float64(res.StartedAt.Add(res.Duration).Unix()))
	if err != nil {
		r.lastSuccess.Set(0)
		return
	}
	r.lastSuccess.Set(1)
}

// WriteTextfile atomically writes the current values in the text exposition
// format. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
