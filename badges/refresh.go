package badges

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
)

// CredentialsFunc returns the credentials to use for the next refresh. It is
// called on every cycle so rotated tokens are picked up.
type CredentialsFunc func() (Credentials, error)

// StartRefresher launches a goroutine that re-fetches both catalogs every
// interval (±20% jitter) until ctx is done. A non-positive interval disables it.
func StartRefresher(ctx context.Context, r *Resolver, creds CredentialsFunc, interval time.Duration, clock clockwork.Clock) {
	if interval <= 0 {
		return
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	go func() {
		slog.Info("badge refresher started", slog.Duration("interval", interval), slog.String("component", "badges"))
		for {
			jitterRange := int64(interval / 5)
			nextSleep := interval
			if jitterRange > 0 {
				//nolint:gosec // G404: math/rand is sufficient for scheduling jitter
				nextSleep += time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			}
			select {
			case <-ctx.Done():
				return
			case <-clock.After(nextSleep):
			}
			c, err := creds()
			if err != nil {
				slog.Warn("badge refresh skipped", slog.Any("err", err), slog.String("component", "badges"))
				continue
			}
			ctx2, cancel := context.WithTimeout(ctx, 30*time.Second)
			err = r.Refresh(ctx2, c)
			cancel()
			if err != nil {
				slog.Warn("badge refresh incomplete", slog.Any("err", err), slog.String("component", "badges"))
				continue
			}
			slog.Info("badges refreshed", slog.String("component", "badges"))
		}
	}()
}
