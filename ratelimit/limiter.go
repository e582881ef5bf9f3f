package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/garagereg/go-integrations/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State tracks one integration's current fixed window.
type State struct {
	IntegrationID string
	WindowStart   time.Time
	Count         int
	UpdatedAt     time.Time
}

type StateStore interface {
	Get(ctx context.Context, integrationID string) (State, error)
	Upsert(ctx context.Context, state State) error
}

type ThrottledError struct {
	IntegrationID string
	Limit         int
	RetryAfter    time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: integration %q exceeded %d requests/minute, retry after %s",
		strings.TrimSpace(e.IntegrationID),
		e.Limit,
		e.RetryAfter,
	)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"integration_id": strings.TrimSpace(e.IntegrationID),
		"limit":          e.Limit,
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.IntegrationsErrorRateLimited).
		WithMetadata(metadata)
}

// FixedWindowLimiter counts outbound requests per integration inside
// one-minute windows. The limit itself is carried on the integration
// record, so a single limiter serves every integration.
type FixedWindowLimiter struct {
	Store  StateStore
	Now    func() time.Time
	Window time.Duration
}

func NewFixedWindowLimiter(store StateStore) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		Store:  store,
		Now:    func() time.Time { return time.Now().UTC() },
		Window: time.Minute,
	}
}

func (l *FixedWindowLimiter) Allow(ctx context.Context, integrationID string, limitPerMinute int) error {
	if l == nil || l.Store == nil {
		return nil
	}
	if limitPerMinute <= 0 {
		return nil
	}
	integrationID = strings.TrimSpace(integrationID)
	if integrationID == "" {
		return fmt.Errorf("ratelimit: integration id is required")
	}

	now := l.now()
	window := l.window()

	state, err := l.Store.Get(ctx, integrationID)
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			return err
		}
		state = State{IntegrationID: integrationID, WindowStart: now}
	}
	if now.Sub(state.WindowStart) >= window {
		state.WindowStart = now
		state.Count = 0
	}

	if state.Count >= limitPerMinute {
		retryAfter := state.WindowStart.Add(window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return ThrottledError{
			IntegrationID: integrationID,
			Limit:         limitPerMinute,
			RetryAfter:    retryAfter,
		}
	}

	state.Count++
	state.UpdatedAt = now
	return l.Store.Upsert(ctx, state)
}

func (l *FixedWindowLimiter) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *FixedWindowLimiter) window() time.Duration {
	if l != nil && l.Window > 0 {
		return l.Window
	}
	return time.Minute
}

type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, integrationID string) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[strings.TrimSpace(integrationID)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.IntegrationID = strings.TrimSpace(state.IntegrationID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.IntegrationID] = state
	return nil
}

var _ core.RateLimitGate = (*FixedWindowLimiter)(nil)
