package badges

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/BanditHelps/StreamChatBox/telemetry"
)

// FallbackImageURL is the CDN template used when a badge is not in the cache.
// The single %s is the badge version id.
const FallbackImageURL = "https://static-cdn.jtvnw.net/badges/v1/%s/1/1"

// Credentials authenticate catalog requests against the badge provider.
type Credentials struct {
	ClientID      string
	AccessToken   string
	BroadcasterID string
}

// Validate reports missing fields.
func (c Credentials) Validate() error {
	if c.ClientID == "" || c.AccessToken == "" || c.BroadcasterID == "" {
		return errors.New("badge credentials require client id, access token and broadcaster id")
	}
	return nil
}

// Catalog fetches badge sets from the provider.
type Catalog interface {
	ChannelBadges(ctx context.Context, creds Credentials) ([]Set, error)
	GlobalBadges(ctx context.Context, creds Credentials) ([]Set, error)
}

// InitState is the observable lifecycle of badge initialization.
type InitState int

const (
	NotStarted InitState = iota
	Running
	Ready
	Failed
)

func (s InitState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// InitError reports which catalog halves failed. The cache still holds the
// half that succeeded.
type InitError struct {
	Channel error
	Global  error
}

func (e *InitError) Error() string {
	switch {
	case e.Channel != nil && e.Global != nil:
		return fmt.Sprintf("failed to fetch all badges: channel: %v; global: %v", e.Channel, e.Global)
	case e.Channel != nil:
		return fmt.Sprintf("failed to fetch all badges: channel: %v", e.Channel)
	default:
		return fmt.Sprintf("failed to fetch all badges: global: %v", e.Global)
	}
}

func (e *InitError) Unwrap() []error {
	var errs []error
	if e.Channel != nil {
		errs = append(errs, e.Channel)
	}
	if e.Global != nil {
		errs = append(errs, e.Global)
	}
	return errs
}

// Resolver owns the cache and the one-shot initialization latch.
type Resolver struct {
	cache   *Cache
	catalog Catalog

	// OnInitialized, when set before the first Initialize call, runs once
	// after the initial fetch finishes with its outcome.
	OnInitialized func(err error)

	mu    sync.Mutex
	state InitState
	done  chan struct{}
	err   error
}

// NewResolver returns a resolver that fills cache from catalog.
func NewResolver(cache *Cache, catalog Catalog) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	return &Resolver{cache: cache, catalog: catalog}
}

// Cache returns the underlying cache.
func (r *Resolver) Cache() *Cache { return r.cache }

// State returns the current initialization state.
func (r *Resolver) State() InitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the outcome of the finished initialization, if any.
func (r *Resolver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Initialize runs the fetch pipeline at most once per resolver. Callers that
// arrive while it runs wait for it; callers that arrive afterwards get the
// stored outcome.
func (r *Resolver) Initialize(ctx context.Context, creds Credentials) error {
	r.mu.Lock()
	switch r.state {
	case NotStarted:
		r.state = Running
		r.done = make(chan struct{})
		r.mu.Unlock()

		err := r.Refresh(ctx, creds)

		r.mu.Lock()
		r.err = err
		if err != nil {
			r.state = Failed
		} else {
			r.state = Ready
		}
		close(r.done)
		notify := r.OnInitialized
		r.mu.Unlock()

		if notify != nil {
			notify(err)
		}
		return err
	case Running:
		done := r.done
		r.mu.Unlock()
		select {
		case <-done:
			return r.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		err := r.err
		r.mu.Unlock()
		return err
	}
}

// Refresh fetches both catalogs and populates the cache with whatever arrived.
// It is not latched and can be used to pick up catalog changes.
func (r *Resolver) Refresh(ctx context.Context, creds Credentials) error {
	ctx, span := telemetry.StartSpan(ctx, "badges", "badges.fetch", attribute.String("broadcaster_id", creds.BroadcasterID))
	defer span.End()

	var (
		wg                  sync.WaitGroup
		channelSets, global []Set
		channelErr, globErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		channelSets, channelErr = r.catalog.ChannelBadges(ctx, creds)
	}()
	go func() {
		defer wg.Done()
		global, globErr = r.catalog.GlobalBadges(ctx, creds)
	}()
	wg.Wait()

	telemetry.IncBadgeFetch("channel", channelErr)
	telemetry.IncBadgeFetch("global", globErr)
	if channelErr != nil {
		slog.Warn("error fetching channel badges", slog.Any("err", channelErr), slog.String("component", "badges"))
		channelSets = nil
	}
	if globErr != nil {
		slog.Warn("error fetching global badges", slog.Any("err", globErr), slog.String("component", "badges"))
		global = nil
	}

	r.cache.Populate(channelSets, global)
	slog.Info("badge cache populated",
		slog.Int("channel_sets", len(channelSets)),
		slog.Int("global_sets", len(global)),
		slog.String("component", "badges"))

	if channelErr != nil || globErr != nil {
		err := &InitError{Channel: channelErr, Global: globErr}
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetSpanSuccess(span)
	return nil
}

// ResolveBadges maps every raw reference to a display badge. Misses become
// fallback entries, so the output always has the input's length.
func (r *Resolver) ResolveBadges(refs []Ref) []Resolved {
	out := make([]Resolved, 0, len(refs))
	misses := 0
	for _, ref := range refs {
		if b, ok := r.cache.Resolve(ref.SetID, ref.VersionID); ok {
			out = append(out, b)
			continue
		}
		misses++
		out = append(out, Fallback(ref))
	}
	telemetry.AddBadgeFallbacks(misses)
	return out
}

// Fallback synthesizes a best-effort badge for an unresolved reference.
func Fallback(ref Ref) Resolved {
	return Resolved{
		ID:       ref.VersionID,
		Version:  "1",
		ImageURL: fmt.Sprintf(FallbackImageURL, ref.VersionID),
		Title:    ref.SetID,
		Fallback: true,
	}
}
