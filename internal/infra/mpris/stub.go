//go:build !linux

package mpris

import (
	"context"

	"github.com/osa030/vibestream/internal/app/notification"
)

// Adapter is a no-op on non-Linux platforms.
type Adapter struct{}

// New returns a no-op adapter on non-Linux platforms.
func New(_ Controller) (*Adapter, error) {
	return &Adapter{}, nil
}

// Update is a no-op on non-Linux platforms.
func (a *Adapter) Update(_ context.Context, _ notification.NowPlaying) error {
	return nil
}

// Close is a no-op on non-Linux platforms.
func (a *Adapter) Close() error {
	return nil
}
