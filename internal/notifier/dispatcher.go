package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bensun/jobdigest/internal/model"
)

// DefaultTimeout bounds one channel when none is configured.
const DefaultTimeout = 20 * time.Second

// Fallback writes digests to local files for channels that cannot send.
type Fallback struct {
	dir string
}

// NewFallback returns a fallback writing into dir.
func NewFallback(dir string) *Fallback {
	if dir == "" {
		dir = "."
	}
	return &Fallback{dir: dir}
}

// Path returns the artifact path used for channel.
func (f *Fallback) Path(channel string) string {
	return filepath.Join(f.dir, "job_digest_"+channel+".txt")
}

// fallbackSeparator goes between digests appended to the same artifact.
var fallbackSeparator = "\n" + strings.Repeat("=", 50) + "\n\n"

// Write appends msg.Body to the artifact for channel. Earlier digests stay in
// the file because their keys were already recorded as notified.
func (f *Fallback) Write(channel string, msg model.Message) (string, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating fallback dir: %w", err)
	}
	path := f.Path(channel)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("opening fallback artifact: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat fallback artifact: %w", err)
	}
	data := msg.Body
	if info.Size() > 0 {
		data = fallbackSeparator + data
	}
	if _, err := file.WriteString(data); err != nil {
		return "", fmt.Errorf("writing fallback artifact: %w", err)
	}
	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("syncing fallback artifact: %w", err)
	}
	return path, nil
}

// Dispatcher fans one message out to every channel. Channels are attempted
// in order and independently of each other.
type Dispatcher struct {
	channels []model.Channel
	fallback *Fallback
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher returns a dispatcher. A nil fallback records unconfigured
// channels as failed.
func NewDispatcher(channels []model.Channel, fallback *Fallback, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{channels: channels, fallback: fallback, timeout: timeout, logger: logger}
}

// Channels returns the configured channel set.
func (d *Dispatcher) Channels() []model.Channel { return d.channels }

// Dispatch sends msg through every channel and returns one result per channel.
func (d *Dispatcher) Dispatch(ctx context.Context, msg model.Message) []model.ChannelResult {
	results := make([]model.ChannelResult, 0, len(d.channels))
	for _, ch := range d.channels {
		res := d.dispatchOne(ctx, ch, msg)
		switch res.Status {
		case model.StatusDelivered:
			d.logger.Info("channel delivered", "channel", res.Channel)
		case model.StatusFallback:
			d.logger.Warn("channel not configured, wrote fallback", "channel", res.Channel, "artifact", res.Artifact)
		default:
			d.logger.Error("channel failed", "channel", res.Channel, "error", res.Err)
		}
		results = append(results, res)
	}
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, ch model.Channel, msg model.Message) model.ChannelResult {
	name := ch.Name()
	if !ch.Configured() {
		if d.fallback == nil {
			return model.ChannelResult{
				Channel: name,
				Status:  model.StatusFailed,
				Err:     &model.ChannelDeliveryError{Channel: name, Err: errors.New("missing credentials")},
			}
		}
		path, err := d.fallback.Write(name, msg)
		if err != nil {
			return model.ChannelResult{
				Channel: name,
				Status:  model.StatusFailed,
				Err:     &model.ChannelDeliveryError{Channel: name, Err: err},
			}
		}
		return model.ChannelResult{Channel: name, Status: model.StatusFallback, Artifact: path}
	}

	if err := d.send(ctx, ch, msg); err != nil {
		return model.ChannelResult{
			Channel: name,
			Status:  model.StatusFailed,
			Err:     &model.ChannelDeliveryError{Channel: name, Err: err},
		}
	}
	return model.ChannelResult{Channel: name, Status: model.StatusDelivered}
}

func (d *Dispatcher) send(ctx context.Context, ch model.Channel, msg model.Message) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return ch.Send(ctx, msg)
}

// Delivered reports whether at least one channel succeeded. Fallback
// artifacts count only when countFallback is set.
func Delivered(results []model.ChannelResult, countFallback bool) bool {
	for _, r := range results {
		if r.Status == model.StatusDelivered {
			return true
		}
		if countFallback && r.Status == model.StatusFallback {
			return true
		}
	}
	return false
}

// TestMessage returns a one-posting message used to verify channel wiring.
func TestMessage(now time.Time) model.Message {
	posted := now
	item := model.Classified{
		Posting: model.Posting{
			Source:   "jobdigest",
			Title:    "Test Notification: Integration Verified",
			Link:     "https://example.com/jobdigest/test",
			Summary:  "If you can read this, the channel works.",
			Company:  "jobdigest",
			PostedAt: &posted,
		},
		Tag: model.TagCompany,
	}
	return model.Message{
		Subject: "jobdigest test notification",
		Body:    "jobdigest test notification\n\n1. " + item.Posting.Title + "\nLink: " + item.Posting.Link + "\n",
		Items:   []model.Classified{item},
	}
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

func secondsDuration(secs int) time.Duration {
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// redactURLError drops the request URL from transport errors; some URLs carry
// credentials in their path.
func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
