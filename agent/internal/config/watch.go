package config

import (
	"context"

	"github.com/fleetpulse/fleetpulse/pkg/confwatch"
)

// Watch calls onChange with the agent config each time the file at path is
// saved. It runs until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return confwatch.Watch(ctx, path, Load, onChange)
}
