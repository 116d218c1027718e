// Package notify delivers run reports by email, over SMTP and/or as .eml
// files dropped into a pickup directory.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	netmail "net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/okian/histsync/pkg/logger"
	"github.com/okian/histsync/pkg/metrics"
)

const (
	dirPermission = 0o750

	// DefaultSendTimeout bounds dialing and every SMTP exchange.
	DefaultSendTimeout = 30 * time.Second
)

// Notifier sends a report to its configured audience.
type Notifier interface {
	Notify(ctx context.Context, subject, htmlBody string, attachments []string) error
}

// Mailer is a Notifier for email.
type Mailer struct {
	from      *netmail.Address
	to        []string
	cc        []string
	smtpAddr  string
	smtpHost  string
	smtpPort  int
	username  string
	password  string
	timeout   time.Duration
	pickupDir string
	log       logger.Logger
	now       func() time.Time
	send      func(ctx context.Context, msg *mail.Msg) error
}

var _ Notifier = (*Mailer)(nil)

// NewMailer creates a Mailer sending as from to the to list. At least one of
// WithSMTP or WithPickupDir is required.
func NewMailer(from string, to []string, opts ...Option) (*Mailer, error) {
	if strings.TrimSpace(from) == "" {
		return nil, ErrNoSender
	}
	addr, err := netmail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse sender %q: %w", from, err)
	}
	m := &Mailer{
		from:    addr,
		to:      to,
		timeout: DefaultSendTimeout,
		log:     logger.Nop(),
		now:     time.Now,
	}
	m.send = m.dialAndSend
	for _, opt := range opts {
		opt(m)
	}
	if m.smtpAddr == "" && m.pickupDir == "" {
		return nil, ErrNoTransport
	}
	if len(m.to)+len(m.cc) == 0 {
		return nil, ErrNoRecipients
	}
	if m.smtpAddr != "" {
		host, port, err := net.SplitHostPort(m.smtpAddr)
		if err != nil {
			return nil, fmt.Errorf("smtp address %q: %w", m.smtpAddr, err)
		}
		m.smtpHost = host
		if m.smtpPort, err = strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("smtp port %q: %w", port, err)
		}
	}
	return m, nil
}

// Notify builds one message and hands it to every configured transport. The
// pickup copy is written first so a failed SMTP delivery still leaves a
// local record.
func (m *Mailer) Notify(ctx context.Context, subject, htmlBody string, attachments []string) error {
	msg, err := m.Compose(subject, htmlBody, attachments)
	if err != nil {
		return err
	}

	var errs []error
	if m.pickupDir != "" {
		path, err := m.writePickup(msg)
		m.record(ctx, "pickup", err)
		if err != nil {
			errs = append(errs, err)
		} else {
			m.log.Info(ctx, "message written to pickup directory", logger.String("path", path))
		}
	}
	if m.smtpAddr != "" {
		err := m.deliver(ctx, msg)
		m.record(ctx, "smtp", err)
		if err != nil {
			errs = append(errs, err)
		} else {
			m.log.Info(ctx, "message sent",
				logger.String("smtp", m.smtpAddr),
				logger.Int("recipients", len(m.to)+len(m.cc)))
		}
	}
	return errors.Join(errs...)
}

func (m *Mailer) record(ctx context.Context, transport string, err error) {
	if err != nil {
		metrics.RecordNotification(transport, "error")
		m.log.Error(ctx, "notification failed", logger.String("transport", transport), logger.Error(err))
		return
	}
	metrics.RecordNotification(transport, "ok")
}

func (m *Mailer) deliver(ctx context.Context, msg *mail.Msg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// dialAndSend opens one SMTP session per message. STARTTLS is used when the
// server offers it; PLAIN auth is enabled by a username.
func (m *Mailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(m.smtpPort),
		mail.WithTimeout(m.timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.username),
			mail.WithPassword(m.password))
	}
	c, err := mail.NewClient(m.smtpHost, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return c.DialAndSendWithContext(ctx, msg)
}

func (m *Mailer) writePickup(msg *mail.Msg) (string, error) {
	if err := os.MkdirAll(m.pickupDir, dirPermission); err != nil {
		return "", fmt.Errorf("create pickup dir: %w", err)
	}
	path := filepath.Join(m.pickupDir, uuid.NewString()+".eml")
	if err := msg.WriteToFile(path); err != nil {
		return "", fmt.Errorf("write pickup file: %w", err)
	}
	return path, nil
}

// Compose renders a multipart/mixed message: an HTML part followed by one
// part per attachment. Every attachment must exist.
func (m *Mailer) Compose(subject, htmlBody string, attachments []string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from.String()); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if len(m.to) > 0 {
		if err := msg.To(m.to...); err != nil {
			return nil, fmt.Errorf("set recipients: %w", err)
		}
	}
	if len(m.cc) > 0 {
		if err := msg.Cc(m.cc...); err != nil {
			return nil, fmt.Errorf("set cc: %w", err)
		}
	}
	msg.Subject(subject)
	msg.SetDateWithValue(m.now())
	msg.SetMessageIDWithValue(uuid.NewString() + "@histsync")
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	for _, path := range attachments {
		// AttachFile skips files it cannot stat.
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		msg.AttachFile(path)
	}
	return msg, nil
}
