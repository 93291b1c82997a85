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

var _ model.Channel = (*TelegramChannel)(nil)

// TelegramMaxMessage is the Bot API limit on message text, in characters.
const TelegramMaxMessage = 4096

// TelegramChannel sends the digest through a Telegram bot.
type TelegramChannel struct {
	baseURL    string
	botToken   string
	chatID     string
	httpClient *http.Client
	retry      retry.Policy
}

// NewTelegramChannel returns a channel posting to chatID via the bot API at baseURL.
func NewTelegramChannel(baseURL, botToken, chatID string, httpClient *http.Client) *TelegramChannel {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TelegramChannel{
		baseURL:    strings.TrimRight(baseURL, "/"),
		botToken:   botToken,
		chatID:     chatID,
		httpClient: httpClient,
	}
}

// WithRetry retries each message part on transient errors. Parts that were
// already accepted are never sent again.
func (t *TelegramChannel) WithRetry(p retry.Policy) *TelegramChannel {
	t.retry = p
	return t
}

func (t *TelegramChannel) Name() string     { return "telegram" }
func (t *TelegramChannel) Configured() bool { return t.botToken != "" && t.chatID != "" }

type telegramRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send posts msg.Body, split into as many messages as the length limit requires.
func (t *TelegramChannel) Send(ctx context.Context, msg model.Message) error {
	chunks := SplitMessage(msg.Body, TelegramMaxMessage)
	for i, chunk := range chunks {
		_, err := retry.Do(ctx, t.retry, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, t.sendChunk(ctx, chunk)
		})
		if err != nil {
			return fmt.Errorf("telegram part %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func (t *TelegramChannel) sendChunk(ctx context.Context, text string) error {
	body, err := json.Marshal(telegramRequest{ChatID: t.chatID, Text: text, DisableWebPagePreview: true})
	if err != nil {
		return err
	}

	// The token is part of the path, so it never goes into an error message.
	url := t.baseURL + "/bot" + t.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", redactURLError(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post sendMessage: %w", redactURLError(err))
	}
	defer resp.Body.Close()

	var out telegramResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	_ = json.Unmarshal(data, &out)

	if resp.StatusCode != http.StatusOK {
		retryAfter := out.Parameters.RetryAfter
		if retryAfter == 0 {
			retryAfter, _ = strconv.Atoi(resp.Header.Get("Retry-After"))
		}
		return &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: secondsDuration(retryAfter),
			Err:        fmt.Errorf("telegram: %s", describe(out.Description, resp.Status)),
		}
	}
	if !out.OK {
		return fmt.Errorf("telegram: %s", describe(out.Description, "response not ok"))
	}
	return nil
}

func describe(desc, fallback string) string {
	if desc != "" {
		return desc
	}
	return fallback
}

// SplitMessage cuts text into chunks of at most limit runes, preferring to
// break after a newline so digest entries stay intact.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
