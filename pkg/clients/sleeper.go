package clients

import (
	"context"
	"fmt"
	"time"
)

// Sleeper suspends the caller for d, returning early with an error when ctx
// is done. Every suspension point of the fetch layer goes through one, so
// tests can observe requested waits without sleeping.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return fmt.Errorf("sleep cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
