package pipeline

import (
	"log/slog"

	"github.com/bensun/jobdigest/internal/model"
	"github.com/bensun/jobdigest/internal/source"
)

// Observer receives structured events from a run.
type Observer interface {
	StateChanged(runID string, from, to State)
	SourceFetched(runID string, res source.Result)
	ChannelDelivered(runID string, res model.ChannelResult)
	RunFinished(res *Result, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StateChanged(string, State, State)            {}
func (NopObserver) SourceFetched(string, source.Result)          {}
func (NopObserver) ChannelDelivered(string, model.ChannelResult) {}
func (NopObserver) RunFinished(*Result, error)                   {}

// LogObserver writes events as debug/info records.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) StateChanged(runID string, from, to State) {
	o.logger.Debug("state change", "run_id", runID, "from", from, "to", to)
}

func (o *LogObserver) SourceFetched(runID string, res source.Result) {
	if res.Err != nil {
		return // already logged by source.Collect
	}
	o.logger.Info("source done",
		"run_id", runID,
		"source", res.Source,
		"items", len(res.Items),
		"skipped", res.Skipped,
	)
}

func (o *LogObserver) ChannelDelivered(runID string, res model.ChannelResult) {
	attrs := []any{"run_id", runID, "channel", res.Channel, "status", res.Status}
	if res.Artifact != "" {
		attrs = append(attrs, "artifact", res.Artifact)
	}
	if res.Err != nil {
		o.logger.Warn("channel result", append(attrs, "error", res.Err)...)
		return
	}
	o.logger.Info("channel result", attrs...)
}

func (o *LogObserver) RunFinished(*Result, error) {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (obs Observers) StateChanged(runID string, from, to State) {
	for _, o := range obs {
		o.StateChanged(runID, from, to)
	}
}

func (obs Observers) SourceFetched(runID string, res source.Result) {
	for _, o := range obs {
		o.SourceFetched(runID, res)
	}
}

func (obs Observers) ChannelDelivered(runID string, res model.ChannelResult) {
	for _, o := range obs {
		o.ChannelDelivered(runID, res)
	}
}

func (obs Observers) RunFinished(res *Result, err error) {
	for _, o := range obs {
		o.RunFinished(res, err)
	}
}
