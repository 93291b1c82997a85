package notifier

import (
	"context"
	"log/slog"

	"github.com/bensun/jobdigest/internal/model"
)

// Ensure LogChannel implements model.Channel.
var _ model.Channel = (*LogChannel)(nil)

// LogChannel writes each digest entry to the given logger as a structured record.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel returns a channel that logs each posting via slog.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (n *LogChannel) Name() string     { return "log" }
func (n *LogChannel) Configured() bool { return true }

// Send logs one record per posting, or the subject alone for an empty digest.
// It never fails.
func (n *LogChannel) Send(_ context.Context, msg model.Message) error {
	if len(msg.Items) == 0 {
		n.logger.Info("digest", "subject", msg.Subject, "postings", 0)
		return nil
	}
	for _, it := range msg.Items {
		p := it.Posting
		args := []any{"source", p.Source, "tag", string(it.Tag), "title", p.Title, "link", p.Link}
		if p.Company != "" {
			args = append(args, "company", p.Company)
		}
		if p.PostedAt != nil {
			args = append(args, "posted_at", *p.PostedAt)
		}
		n.logger.Info("new posting", args...)
	}
	return nil
}
