package headless

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no browser is configured.
var ErrUnavailable = errors.New("headless browser not configured")

// Noop stands in for a Launcher when browser sessions are disabled.
type Noop struct{}

// NewNoop creates a new Noop launcher.
func NewNoop() *Noop {
	return &Noop{}
}

// NewSession always fails.
func (Noop) NewSession(_ context.Context) (*Session, error) {
	return nil, ErrUnavailable
}

// Close is a no-op.
func (Noop) Close() {}
