package config

import (
	"context"

	"github.com/fleetpulse/fleetpulse/pkg/confwatch"
)

// Watch reloads the server config at path whenever it changes, including
// atomic saves, and calls onChange with each valid result. Invalid files are
// logged and skipped. It runs until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return confwatch.Watch(ctx, path, Load, onChange)
}
