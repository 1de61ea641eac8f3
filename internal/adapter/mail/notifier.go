// Package mail delivers the escalation alert sent when a cycle gives up on
// the feed.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/couchcryptid/hydro-ingest/internal/domain"
)

const (
	// Subject is the alert subject line.
	Subject = "Hydro-Quebec open database -- Error"
	// Body is the alert text.
	Body = "There is an issue with the daily data collection. Please check the connection."
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends the alert through an SMTP relay with PLAIN auth. Each
// recipient gets a separate message so one rejected address does not block
// the others.
type SMTPNotifier struct {
	Addr       string
	Username   string
	Password   string
	From       string
	Recipients []string

	logger *slog.Logger
	send   SendFunc
}

// NewSMTPNotifier creates a notifier for the relay at addr (host:port).
func NewSMTPNotifier(addr, username, password, from string, recipients []string, logger *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		Addr:       addr,
		Username:   username,
		Password:   password,
		From:       from,
		Recipients: recipients,
		logger:     logger,
		send:       smtp.SendMail,
	}
}

// Notify sends the alert to every recipient. Delivery failures are logged and
// joined into the returned error; the caller only logs it.
func (n *SMTPNotifier) Notify(ctx context.Context, reason error) error {
	host, _, err := net.SplitHostPort(n.Addr)
	if err != nil {
		return fmt.Errorf("smtp address %q: %w", n.Addr, err)
	}
	var auth smtp.Auth
	if n.Username != "" {
		auth = smtp.PlainAuth("", n.Username, n.Password, host)
	}

	var errs []error
	for _, to := range n.Recipients {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		msg := compose(n.From, to, Subject, Body)
		if err := n.send(n.Addr, auth, n.From, []string{to}, msg); err != nil {
			n.logger.Error("alert delivery failed", "recipient", to, "error", err)
			errs = append(errs, fmt.Errorf("send alert to %s: %w", to, err))
			continue
		}
		n.logger.Info("alert sent", "recipient", to, "reason", errString(reason))
	}
	return errors.Join(errs...)
}

func compose(from, to, subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", domain.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// LogNotifier only records the escalation in the log. It is used when SMTP
// alerting is disabled.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, reason error) error {
	n.logger.Error("alert: "+Subject, "body", Body, "reason", errString(reason))
	return nil
}
