//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/bakeout/internal/config"
)

// Board is not available on non-Linux platforms.
type Board struct{}

// OpenBoard returns an error on non-Linux platforms.
func OpenBoard(chipName string, zones []config.ZoneConfig) (*Board, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Sensors is empty on non-Linux platforms.
func (b *Board) Sensors() []Sensor { return nil }

// Switches is empty on non-Linux platforms.
func (b *Board) Switches() []Switch { return nil }

// Close is a no-op on non-Linux platforms.
func (b *Board) Close() error {
	return nil
}
