package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryIntegrationStore struct {
	mu    sync.Mutex
	items map[string]Integration
	seq   int
}

func newMemoryIntegrationStore() *memoryIntegrationStore {
	return &memoryIntegrationStore{items: map[string]Integration{}}
}

func (s *memoryIntegrationStore) Create(_ context.Context, in CreateIntegrationInput) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	now := time.Now().UTC()
	integration := Integration{
		ID:                 fmt.Sprintf("int-%d", s.seq),
		Name:               in.Name,
		Type:               in.Type,
		Provider:           in.Provider,
		Endpoint:           in.Endpoint,
		AuthType:           in.AuthType,
		Credentials:        in.Credentials,
		RateLimitPerMinute: in.RateLimitPerMinute,
		HealthStatus:       HealthStatusHealthy,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.items[integration.ID] = integration
	return integration, nil
}

func (s *memoryIntegrationStore) Get(_ context.Context, id string) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	integration, ok := s.items[id]
	if !ok {
		return Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	return integration, nil
}

func (s *memoryIntegrationStore) List(_ context.Context, includeInactive bool) ([]Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Integration, 0, len(ids))
	for _, id := range ids {
		integration := s.items[id]
		if !includeInactive && !integration.IsActive {
			continue
		}
		out = append(out, integration)
	}
	return out, nil
}

func (s *memoryIntegrationStore) SetActive(_ context.Context, id string, active bool, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	integration, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	integration.IsActive = active
	integration.UpdatedAt = time.Now().UTC()
	s.items[id] = integration
	return nil
}

func (s *memoryIntegrationStore) RecordOutcome(_ context.Context, id string, outcome IntegrationOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	integration, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	integration.TotalRequests++
	if outcome.Success {
		integration.SuccessfulRequests++
		at := outcome.At
		integration.LastSuccessAt = &at
	} else {
		integration.FailedRequests++
		at := outcome.At
		integration.LastErrorAt = &at
		integration.LastErrorMessage = outcome.ErrorMessage
	}
	if outcome.Health != "" {
		integration.HealthStatus = outcome.Health
	}
	integration.UpdatedAt = time.Now().UTC()
	s.items[id] = integration
	return nil
}

type memorySubscriptionStore struct {
	mu           sync.Mutex
	items        map[string]WebhookSubscription
	integrations *memoryIntegrationStore
	seq          int
}

func newMemorySubscriptionStore(integrations *memoryIntegrationStore) *memorySubscriptionStore {
	return &memorySubscriptionStore{
		items:        map[string]WebhookSubscription{},
		integrations: integrations,
	}
}

func (s *memorySubscriptionStore) Create(_ context.Context, in CreateSubscriptionInput) (WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	now := time.Now().UTC()
	verifySSL := true
	if in.VerifySSL != nil {
		verifySSL = *in.VerifySSL
	}
	subscription := WebhookSubscription{
		ID:               fmt.Sprintf("sub-%d", s.seq),
		IntegrationID:    in.IntegrationID,
		EndpointURL:      in.EndpointURL,
		SubscribedEvents: append([]string(nil), in.SubscribedEvents...),
		EventFilters:     in.EventFilters,
		SecretKey:        in.SecretKey,
		SignatureHeader:  in.SignatureHeader,
		VerifySSL:        verifySSL,
		MaxRetries:       in.MaxRetries,
		RetryDelays:      append([]int(nil), in.RetryDelays...),
		TimeoutSeconds:   in.TimeoutSeconds,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.items[subscription.ID] = subscription
	return subscription, nil
}

func (s *memorySubscriptionStore) Update(_ context.Context, in UpdateSubscriptionInput) (WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscription, ok := s.items[in.ID]
	if !ok {
		return WebhookSubscription{}, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, in.ID)
	}
	if strings.TrimSpace(in.EndpointURL) != "" {
		subscription.EndpointURL = in.EndpointURL
	}
	if in.SubscribedEvents != nil {
		subscription.SubscribedEvents = append([]string(nil), in.SubscribedEvents...)
	}
	if in.EventFilters != nil {
		subscription.EventFilters = in.EventFilters
	}
	if in.SecretKey != nil {
		subscription.SecretKey = *in.SecretKey
	}
	if strings.TrimSpace(in.SignatureHeader) != "" {
		subscription.SignatureHeader = in.SignatureHeader
	}
	if in.VerifySSL != nil {
		subscription.VerifySSL = *in.VerifySSL
	}
	if in.MaxRetries != nil {
		subscription.MaxRetries = *in.MaxRetries
	}
	if in.RetryDelays != nil {
		subscription.RetryDelays = append([]int(nil), in.RetryDelays...)
	}
	if in.TimeoutSeconds != nil {
		subscription.TimeoutSeconds = *in.TimeoutSeconds
	}
	subscription.UpdatedAt = time.Now().UTC()
	s.items[in.ID] = subscription
	return subscription, nil
}

func (s *memorySubscriptionStore) Get(_ context.Context, id string) (WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscription, ok := s.items[id]
	if !ok {
		return WebhookSubscription{}, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	return subscription, nil
}

func (s *memorySubscriptionStore) List(_ context.Context, integrationID string, includeInactive bool) ([]WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := []WebhookSubscription{}
	for _, id := range ids {
		subscription := s.items[id]
		if integrationID != "" && subscription.IntegrationID != integrationID {
			continue
		}
		if !includeInactive && !subscription.IsActive {
			continue
		}
		out = append(out, subscription)
	}
	return out, nil
}

func (s *memorySubscriptionStore) ListActiveForEvent(ctx context.Context, eventType string) ([]WebhookSubscription, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	candidates := []WebhookSubscription{}
	for _, id := range ids {
		subscription := s.items[id]
		if !subscription.IsActive || !subscription.SubscribesTo(eventType) {
			continue
		}
		candidates = append(candidates, subscription)
	}
	s.mu.Unlock()

	if s.integrations == nil {
		return candidates, nil
	}
	out := []WebhookSubscription{}
	for _, subscription := range candidates {
		integration, err := s.integrations.Get(ctx, subscription.IntegrationID)
		if err != nil || !integration.IsActive {
			continue
		}
		out = append(out, subscription)
	}
	return out, nil
}

func (s *memorySubscriptionStore) MarkTriggered(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscription, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	triggered := at
	subscription.LastTriggeredAt = &triggered
	subscription.TotalDeliveries++
	s.items[id] = subscription
	return nil
}

func (s *memorySubscriptionStore) RecordOutcome(_ context.Context, id string, success bool, at time.Time) (DeliveryOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscription, ok := s.items[id]
	if !ok {
		return DeliveryOutcome{}, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	stamp := at
	if success {
		subscription.SuccessfulDeliveries++
		subscription.ConsecutiveFailures = 0
		subscription.LastSuccessAt = &stamp
	} else {
		subscription.FailedDeliveries++
		subscription.ConsecutiveFailures++
		subscription.LastFailureAt = &stamp
	}
	s.items[id] = subscription
	return DeliveryOutcome{
		ConsecutiveFailures:  subscription.ConsecutiveFailures,
		SuccessfulDeliveries: subscription.SuccessfulDeliveries,
		FailedDeliveries:     subscription.FailedDeliveries,
	}, nil
}

func (s *memorySubscriptionStore) SetActive(_ context.Context, id string, active bool, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscription, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	subscription.IsActive = active
	if active {
		subscription.ConsecutiveFailures = 0
	}
	subscription.UpdatedAt = time.Now().UTC()
	s.items[id] = subscription
	return nil
}

type memoryDeliveryLogStore struct {
	mu    sync.Mutex
	items map[string]DeliveryLog
	seq   int
}

func newMemoryDeliveryLogStore() *memoryDeliveryLogStore {
	return &memoryDeliveryLogStore{items: map[string]DeliveryLog{}}
}

func (s *memoryDeliveryLogStore) Create(_ context.Context, in CreateDeliveryLogInput) (DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	record := DeliveryLog{
		ID:               fmt.Sprintf("log-%d", s.seq),
		IntegrationID:    in.IntegrationID,
		SubscriptionID:   in.SubscriptionID,
		EventType:        in.EventType,
		EndpointURL:      in.EndpointURL,
		RequestID:        in.RequestID,
		RequestHeaders:   in.RequestHeaders,
		RequestPayload:   append([]byte(nil), in.RequestPayload...),
		RequestSignature: in.RequestSignature,
		Status:           DeliveryStatusPending,
		CreatedAt:        time.Now().UTC(),
	}
	s.items[record.ID] = record
	return record, nil
}

func (s *memoryDeliveryLogStore) Get(_ context.Context, id string) (DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.items[id]
	if !ok {
		return DeliveryLog{}, fmt.Errorf("%w: %s", ErrDeliveryLogNotFound, id)
	}
	return record, nil
}

func (s *memoryDeliveryLogStore) GetByRequestID(_ context.Context, requestID string) (DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.items {
		if record.RequestID == requestID {
			return record, nil
		}
	}
	return DeliveryLog{}, fmt.Errorf("%w: request %s", ErrDeliveryLogNotFound, requestID)
}

func (s *memoryDeliveryLogStore) List(_ context.Context, filter DeliveryLogFilter) (DeliveryLogPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	matched := []DeliveryLog{}
	for _, id := range ids {
		record := s.items[id]
		if filter.IntegrationID != "" && record.IntegrationID != filter.IntegrationID {
			continue
		}
		if filter.SubscriptionID != "" && record.SubscriptionID != filter.SubscriptionID {
			continue
		}
		if filter.EventType != "" && record.EventType != filter.EventType {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.Since != nil && record.CreatedAt.Before(*filter.Since) {
			continue
		}
		matched = append(matched, record)
	}
	total := len(matched)
	offset := filter.Offset
	if offset > total {
		offset = total
	}
	matched = matched[offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return DeliveryLogPage{Logs: matched, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (s *memoryDeliveryLogStore) Claim(_ context.Context, id string) (DeliveryLog, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.items[id]
	if !ok {
		return DeliveryLog{}, false, fmt.Errorf("%w: %s", ErrDeliveryLogNotFound, id)
	}
	if record.Status != DeliveryStatusPending && record.Status != DeliveryStatusRetrying {
		return record, false, nil
	}
	record.Status = DeliveryStatusAttempting
	s.items[id] = record
	return record, true, nil
}

func (s *memoryDeliveryLogStore) ClaimDue(_ context.Context, before time.Time, limit int) ([]DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	claimed := []DeliveryLog{}
	for _, id := range ids {
		if limit > 0 && len(claimed) >= limit {
			break
		}
		record := s.items[id]
		if record.Status != DeliveryStatusRetrying {
			continue
		}
		if record.NextRetryAt == nil || record.NextRetryAt.After(before) {
			continue
		}
		record.Status = DeliveryStatusAttempting
		s.items[id] = record
		claimed = append(claimed, record)
	}
	return claimed, nil
}

func (s *memoryDeliveryLogStore) applyAttempt(record *DeliveryLog, attempt AttemptResult) {
	record.AttemptCount++
	record.HTTPStatusCode = attempt.HTTPStatusCode
	record.ResponseHeaders = attempt.ResponseHeaders
	record.ResponseBody = attempt.ResponseBody
	record.ErrorMessage = attempt.ErrorMessage
	at := attempt.At
	if record.FirstAttemptAt == nil {
		record.FirstAttemptAt = &at
	}
	record.LastAttemptAt = &at
}

func (s *memoryDeliveryLogStore) MarkDelivered(_ context.Context, id string, attempt AttemptResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeliveryLogNotFound, id)
	}
	s.applyAttempt(&record, attempt)
	if err := record.TransitionTo(DeliveryStatusDelivered, attempt.At); err != nil {
		return err
	}
	s.items[id] = record
	return nil
}

func (s *memoryDeliveryLogStore) MarkRetrying(_ context.Context, id string, attempt AttemptResult, nextRetryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeliveryLogNotFound, id)
	}
	s.applyAttempt(&record, attempt)
	if err := record.TransitionTo(DeliveryStatusRetrying, attempt.At); err != nil {
		return err
	}
	next := nextRetryAt
	record.NextRetryAt = &next
	s.items[id] = record
	return nil
}

func (s *memoryDeliveryLogStore) MarkFailed(_ context.Context, id string, attempt AttemptResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeliveryLogNotFound, id)
	}
	s.applyAttempt(&record, attempt)
	if err := record.TransitionTo(DeliveryStatusFailed, attempt.At); err != nil {
		return err
	}
	s.items[id] = record
	return nil
}

func (s *memoryDeliveryLogStore) Reschedule(_ context.Context, id string, nextRetryAt time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeliveryLogNotFound, id)
	}
	record.Status = DeliveryStatusRetrying
	next := nextRetryAt
	record.NextRetryAt = &next
	record.ErrorMessage = reason
	s.items[id] = record
	return nil
}

var (
	_ IntegrationStore  = (*memoryIntegrationStore)(nil)
	_ SubscriptionStore = (*memorySubscriptionStore)(nil)
	_ DeliveryLogStore  = (*memoryDeliveryLogStore)(nil)
)
