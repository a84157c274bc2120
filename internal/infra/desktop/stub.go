//go:build !linux

package desktop

import (
	"context"

	"github.com/osa030/vibestream/internal/app/notification"
)

// Notifier is a no-op on non-Linux platforms.
type Notifier struct{}

// New returns nil on non-Linux platforms.
func New() *Notifier {
	return nil
}

// Update is a no-op on non-Linux platforms.
func (n *Notifier) Update(_ context.Context, _ notification.NowPlaying) error {
	return nil
}

// Close is a no-op on non-Linux platforms.
func (n *Notifier) Close() error {
	return nil
}
