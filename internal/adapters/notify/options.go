package notify

import (
	"context"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/okian/histsync/pkg/logger"
)

// Option configures a Mailer.
type Option func(*Mailer)

// WithSMTP delivers over SMTP to addr (host:port). Username enables PLAIN
// auth.
func WithSMTP(addr, username, password string) Option {
	return func(m *Mailer) {
		m.smtpAddr = addr
		m.username = username
		m.password = password
	}
}

// WithSendTimeout bounds one SMTP delivery. Non-positive values keep
// DefaultSendTimeout.
func WithSendTimeout(d time.Duration) Option {
	return func(m *Mailer) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithPickupDir also writes every message as an .eml file into dir.
func WithPickupDir(dir string) Option {
	return func(m *Mailer) {
		m.pickupDir = dir
	}
}

// WithCC adds carbon copy recipients.
func WithCC(cc ...string) Option {
	return func(m *Mailer) {
		m.cc = append(m.cc, cc...)
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Mailer) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock replaces the Date header clock.
func WithClock(now func() time.Time) Option {
	return func(m *Mailer) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSendFunc replaces the SMTP client, typically in tests.
func WithSendFunc(fn func(ctx context.Context, msg *mail.Msg) error) Option {
	return func(m *Mailer) {
		if fn != nil {
			m.send = fn
		}
	}
}
