// Package notify integrates the mailing-list and transactional email providers.
// Calls are made once; failures are returned to the caller and never retried.
package notify

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrInvalidEmail is returned before any outbound call for a malformed address.
var ErrInvalidEmail = errors.New("invalid email address")

// NormalizeEmail validates a bare email address and returns it trimmed and lower-cased.
func NormalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || len(trimmed) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Name != "" || addr.Address != trimmed {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || !strings.Contains(addr.Address[at+1:], ".") {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
