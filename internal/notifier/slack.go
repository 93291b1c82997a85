package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bensun/jobdigest/internal/model"
	"github.com/bensun/jobdigest/internal/retry"
)

// Ensure SlackChannel implements model.Channel.
var _ model.Channel = (*SlackChannel)(nil)

// Slack rejects messages with more than 50 blocks; keep room for the header.
const slackItemsPerMessage = 45

// SlackChannel posts digests to a Slack channel via an Incoming Webhook.
type SlackChannel struct {
	webhookURL string
	httpClient *http.Client
	retry      retry.Policy
}

// NewSlackChannel returns a channel that posts to webhookURL.
func NewSlackChannel(webhookURL string, httpClient *http.Client) *SlackChannel {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SlackChannel{webhookURL: webhookURL, httpClient: httpClient}
}

// WithRetry retries each webhook call on transient errors, so a failure on
// a later payload does not repeat the earlier ones.
func (s *SlackChannel) WithRetry(p retry.Policy) *SlackChannel {
	s.retry = p
	return s
}

func (s *SlackChannel) Name() string     { return "slack" }
func (s *SlackChannel) Configured() bool { return s.webhookURL != "" }

// Send posts the digest as Block Kit sections, one per posting, split over
// several webhook calls when the digest is long.
func (s *SlackChannel) Send(ctx context.Context, msg model.Message) error {
	for _, payload := range buildPayloads(msg) {
		_, err := retry.Do(ctx, s.retry, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.post(ctx, payload)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SlackChannel) post(ctx context.Context, payload slackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: secondsDuration(secs),
			Err:        fmt.Errorf("slack returned %d", resp.StatusCode),
		}
	}
	return nil
}

// Block Kit payload types.

type slackPayload struct {
	Text   string       `json:"text"` // notification fallback
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type      string        `json:"type"`
	Text      *slackText    `json:"text,omitempty"`
	Fields    []slackText   `json:"fields,omitempty"`
	Accessory *slackElement `json:"accessory,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type string    `json:"type"`
	Text slackText `json:"text"`
	URL  string    `json:"url"`
}

// Slack caps section text at 3000 characters.
const slackTextLimit = 3000

func buildPayloads(msg model.Message) []slackPayload {
	header := slackBlock{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: truncateRunes(msg.Subject, 150)},
	}

	if len(msg.Items) == 0 {
		return []slackPayload{{
			Text: msg.Subject,
			Blocks: []slackBlock{
				header,
				{Type: "section", Text: &slackText{Type: "mrkdwn", Text: truncateRunes(msg.Body, slackTextLimit)}},
			},
		}}
	}

	var payloads []slackPayload
	for start := 0; start < len(msg.Items); start += slackItemsPerMessage {
		end := min(start+slackItemsPerMessage, len(msg.Items))
		blocks := []slackBlock{header}
		for i, it := range msg.Items[start:end] {
			blocks = append(blocks, itemBlock(start+i+1, it))
		}
		payloads = append(payloads, slackPayload{Text: msg.Subject, Blocks: blocks})
	}
	return payloads
}

func itemBlock(n int, it model.Classified) slackBlock {
	p := it.Posting

	var b strings.Builder
	fmt.Fprintf(&b, "*%d. <%s|%s>*\n", n, p.Link, escapeMrkdwn(p.Title))
	fmt.Fprintf(&b, "%s · `%s`", escapeMrkdwn(p.Source), it.Tag)
	if p.Company != "" {
		fmt.Fprintf(&b, " · %s", escapeMrkdwn(p.Company))
	}
	if p.Summary != "" {
		b.WriteString("\n")
		b.WriteString(escapeMrkdwn(p.Summary))
	}

	return slackBlock{
		Type: "section",
		Text: &slackText{Type: "mrkdwn", Text: truncateRunes(b.String(), slackTextLimit)},
		Accessory: &slackElement{
			Type: "button",
			Text: slackText{Type: "plain_text", Text: "Open"},
			URL:  p.Link,
		},
	}
}

// escapeMrkdwn escapes the three characters Slack treats as control sequences.
func escapeMrkdwn(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
