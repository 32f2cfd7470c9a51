// Package storage persists conversation state: the partial window
// specification, the single pending clarification slot and the last
// activity time, keyed by user.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// ErrNotFound is returned when a user has no stored conversation.
var ErrNotFound = errors.New("conversation not found")

// Store is implemented by every backend. Reads of an unknown user return
// ErrNotFound, except GetPendingClarification which returns nil, nil.
type Store interface {
	GetPartialSpecification(ctx context.Context, userID string) (specification.Specification, error)
	SavePartialSpecification(ctx context.Context, userID string, spec specification.Specification) error
	GetLastActivityTime(ctx context.Context, userID string) (time.Time, error)
	UpdateLastActivity(ctx context.Context, userID string) error
	// ClearPartialSpecification drops the whole conversation, pending
	// clarification included.
	ClearPartialSpecification(ctx context.Context, userID string) error

	SetPendingClarification(ctx context.Context, userID string, payload []byte) error
	GetPendingClarification(ctx context.Context, userID string) ([]byte, error)
	ClearPendingClarification(ctx context.Context, userID string) error

	Ping(ctx context.Context) error
	Close() error
}

// Option configures a backend.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now for activity timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func normalizeUserID(userID string) (string, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return "", errors.New("user id is required")
	}
	return id, nil
}
