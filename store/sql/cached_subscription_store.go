package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/garagereg/go-integrations/core"
)

const subscriptionCacheKeyPrefix = "go-integrations::webhook_subscription::v1"

// CachedSubscriptionStore serves subscription reads from cache and
// invalidates on every write. The worker hits Get once per delivery
// attempt, so a hot subscription is otherwise re-read on every retry.
type CachedSubscriptionStore struct {
	base  core.SubscriptionStore
	cache repositorycache.CacheService
}

func NewCachedSubscriptionStore(
	base core.SubscriptionStore,
	cacheService repositorycache.CacheService,
) (*CachedSubscriptionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base subscription store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: subscription cache service is required")
	}
	return &CachedSubscriptionStore{base: base, cache: cacheService}, nil
}

// SubscriptionCacheKey returns the deterministic cache key for a
// subscription read: go-integrations::webhook_subscription::v1::<id>
// with the id URL-path escaped.
func SubscriptionCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty id", core.ErrSubscriptionNotFound)
	}
	return strings.Join([]string{subscriptionCacheKeyPrefix, url.PathEscape(id)}, "::"), nil
}

func (s *CachedSubscriptionStore) Create(ctx context.Context, in core.CreateSubscriptionInput) (core.WebhookSubscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	created, err := s.base.Create(ctx, in)
	if err != nil {
		return core.WebhookSubscription{}, err
	}
	if err := s.invalidate(ctx, created.ID); err != nil {
		return core.WebhookSubscription{}, err
	}
	return created, nil
}

func (s *CachedSubscriptionStore) Update(ctx context.Context, in core.UpdateSubscriptionInput) (core.WebhookSubscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	updated, err := s.base.Update(ctx, in)
	if err != nil {
		return core.WebhookSubscription{}, err
	}
	if err := s.invalidate(ctx, updated.ID); err != nil {
		return core.WebhookSubscription{}, err
	}
	return updated, nil
}

func (s *CachedSubscriptionStore) Get(ctx context.Context, id string) (core.WebhookSubscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	cacheKey, err := SubscriptionCacheKey(id)
	if err != nil {
		return core.WebhookSubscription{}, err
	}

	subscription, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.WebhookSubscription, error) {
		fetched, fetchErr := s.base.Get(ctx, id)
		if fetchErr != nil {
			return core.WebhookSubscription{}, fetchErr
		}
		return cloneSubscription(fetched), nil
	})
	if err != nil {
		return core.WebhookSubscription{}, err
	}
	return cloneSubscription(subscription), nil
}

// List and ListActiveForEvent bypass the cache: both reflect membership
// and activation state that single-row invalidation cannot track.
func (s *CachedSubscriptionStore) List(ctx context.Context, integrationID string, includeInactive bool) ([]core.WebhookSubscription, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	return s.base.List(ctx, integrationID, includeInactive)
}

func (s *CachedSubscriptionStore) ListActiveForEvent(ctx context.Context, eventType string) ([]core.WebhookSubscription, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	return s.base.ListActiveForEvent(ctx, eventType)
}

func (s *CachedSubscriptionStore) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	if err := s.base.MarkTriggered(ctx, id, at); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedSubscriptionStore) RecordOutcome(ctx context.Context, id string, success bool, at time.Time) (core.DeliveryOutcome, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.DeliveryOutcome{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	outcome, err := s.base.RecordOutcome(ctx, id, success, at)
	if err != nil {
		return core.DeliveryOutcome{}, err
	}
	if err := s.invalidate(ctx, id); err != nil {
		return core.DeliveryOutcome{}, err
	}
	return outcome, nil
}

func (s *CachedSubscriptionStore) SetActive(ctx context.Context, id string, active bool, reason string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	if err := s.base.SetActive(ctx, id, active, reason); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedSubscriptionStore) invalidate(ctx context.Context, id string) error {
	cacheKey, err := SubscriptionCacheKey(id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneSubscription(subscription core.WebhookSubscription) core.WebhookSubscription {
	cloned := subscription
	if subscription.SubscribedEvents != nil {
		cloned.SubscribedEvents = append([]string(nil), subscription.SubscribedEvents...)
	}
	cloned.EventFilters = copyAnyMap(subscription.EventFilters)
	if subscription.RetryDelays != nil {
		cloned.RetryDelays = append([]int(nil), subscription.RetryDelays...)
	}
	cloned.LastTriggeredAt = cloneTimePointer(subscription.LastTriggeredAt)
	cloned.LastSuccessAt = cloneTimePointer(subscription.LastSuccessAt)
	cloned.LastFailureAt = cloneTimePointer(subscription.LastFailureAt)
	return cloned
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := *input
	return &value
}

var _ core.SubscriptionStore = (*CachedSubscriptionStore)(nil)
