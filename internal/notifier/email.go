package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/bensun/jobdigest/internal/model"
)

var _ model.Channel = (*EmailChannel)(nil)

// EmailConfig holds the SMTP settings. From, Password and To are required.
type EmailConfig struct {
	Addr     string // host:port of a STARTTLS submission server
	From     string
	Password string
	To       string // one address or a comma-separated list
	Timeout  time.Duration
	Logger   *slog.Logger
}

// EmailChannel sends the digest as a plain-text mail over SMTP with STARTTLS
// and PLAIN authentication.
type EmailChannel struct {
	cfg    EmailConfig
	logger *slog.Logger
	now    func() time.Time
	dial   func(ctx context.Context) (*smtp.Client, error)
}

// NewEmailChannel returns a channel for cfg.
func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &EmailChannel{cfg: cfg, logger: logger, now: time.Now}
	e.dial = e.dialStartTLS
	return e
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Configured() bool {
	return e.cfg.From != "" && e.cfg.Password != "" && e.cfg.To != ""
}

// Send builds the message and submits it.
func (e *EmailChannel) Send(ctx context.Context, msg model.Message) error {
	to, err := mail.ParseAddressList(e.cfg.To)
	if err != nil {
		return fmt.Errorf("parse recipients: %w", err)
	}
	from, err := mail.ParseAddress(e.cfg.From)
	if err != nil {
		return fmt.Errorf("parse sender: %w", err)
	}

	raw, err := e.buildMessage(from, to, msg)
	if err != nil {
		return err
	}

	c, err := e.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", e.cfg.Addr, err)
	}
	defer c.Close()

	c.CommandTimeout = e.cfg.Timeout
	c.SubmissionTimeout = e.cfg.Timeout

	if err := c.Auth(sasl.NewPlainClient("", from.Address, e.cfg.Password)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	rcpts := make([]string, len(to))
	for i, a := range to {
		rcpts[i] = a.Address
	}
	if err := c.SendMail(from.Address, rcpts, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	// The server accepted DATA, so the mail is delivered whatever QUIT says.
	if err := c.Quit(); err != nil {
		e.logger.Warn("smtp quit failed after delivery", "addr", e.cfg.Addr, "error", err)
	}
	return nil
}

func (e *EmailChannel) buildMessage(from *mail.Address, to []*mail.Address, msg model.Message) ([]byte, error) {
	var h mail.Header
	h.SetDate(e.now())
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close body: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *EmailChannel) dialStartTLS(ctx context.Context) (*smtp.Client, error) {
	host, _, err := net.SplitHostPort(e.cfg.Addr)
	if err != nil {
		return nil, err
	}

	d := net.Dialer{Timeout: e.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", e.cfg.Addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClientStartTLS(conn, &tls.Config{ServerName: host})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}
