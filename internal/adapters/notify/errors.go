package notify

import "errors"

// Sentinel kinds for notification errors.
var (
	ErrNoTransport  = errors.New("notify: neither smtp_addr nor mail_pickup_dir is set")
	ErrNoRecipients = errors.New("notify: no recipients")
	ErrNoSender     = errors.New("notify: no sender address")
)
