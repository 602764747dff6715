// Package email delivers run notifications to the addresses configured on a refresh job over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/target/refresh-orchestrator/internal/domain/model"
	"github.com/target/refresh-orchestrator/internal/observability/notify"
)

// SendFunc matches smtp.SendMail so tests can capture messages.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Config describes the SMTP relay.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	AppBaseURL string
	Send       SendFunc
}

// Client sends one message per notification to all valid email targets.
type Client struct {
	addr       string
	host       string
	auth       smtp.Auth
	from       mail.Address
	appBaseURL string
	send       SendFunc
}

var _ notify.Sink = (*Client)(nil)

// NewClient validates the relay settings.
func NewClient(cfg Config) (*Client, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("smtp host is required")
	}
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	from, err := mail.ParseAddress(strings.TrimSpace(cfg.From))
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	send := cfg.Send
	if send == nil {
		send = smtp.SendMail
	}

	return &Client{
		addr:       net.JoinHostPort(host, strconv.Itoa(port)),
		host:       host,
		auth:       auth,
		from:       *from,
		appBaseURL: strings.TrimSpace(cfg.AppBaseURL),
		send:       send,
	}, nil
}

// SendRunNotification emails every parseable target address. Unparseable addresses are reported but do not
// block delivery to the others.
func (c *Client) SendRunNotification(ctx context.Context, n model.RunNotification) error {
	if len(n.Targets.Emails) == 0 {
		return nil
	}
	var (
		to   []string
		errs []error
	)
	for _, raw := range n.Targets.Emails {
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid email target %q: %w", raw, err))
			continue
		}
		to = append(to, addr.Address)
	}
	if len(to) == 0 {
		return errors.Join(errs...)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := c.render(n, to)
	if err := c.send(c.addr, c.auth, c.from.Address, to, msg); err != nil {
		errs = append(errs, fmt.Errorf("smtp send via %s: %w", c.host, err))
	}
	return errors.Join(errs...)
}

func (c *Client) render(n model.RunNotification, to []string) []byte {
	content := notify.Compose(n, c.appBaseURL)
	at := n.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	var b strings.Builder
	writeHeader(&b, "From", c.from.String())
	writeHeader(&b, "To", strings.Join(to, ", "))
	writeHeader(&b, "Subject", mimeHeader(content.Subject))
	writeHeader(&b, "Date", at.UTC().Format(time.RFC1123Z))
	writeHeader(&b, "MIME-Version", "1.0")
	writeHeader(&b, "Content-Type", `text/plain; charset="utf-8"`)
	b.WriteString("\r\n")
	b.WriteString(content.Body)
	b.WriteString("\r\n")
	if content.Link != "" {
		b.WriteString("\r\n")
		b.WriteString(content.Link)
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

func writeHeader(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(strings.NewReplacer("\r", "", "\n", "").Replace(value))
	b.WriteString("\r\n")
}

// mimeHeader Q-encodes subjects that are not plain ASCII.
func mimeHeader(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.QEncoding.Encode("utf-8", s)
		}
	}
	return s
}
