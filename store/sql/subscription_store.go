package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/garagereg/go-integrations/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SubscriptionStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookSubscriptionRecord]
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookSubscriptionRecord](db, webhookSubscriptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	return &SubscriptionStore{db: db, repo: repo}, nil
}

func (s *SubscriptionStore) Create(ctx context.Context, in core.CreateSubscriptionInput) (core.WebhookSubscription, error) {
	if s == nil || s.repo == nil {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	integrationID := strings.TrimSpace(in.IntegrationID)
	if integrationID == "" {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: integration id is required")
	}
	if strings.TrimSpace(in.EndpointURL) == "" {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: endpoint url is required")
	}
	if len(in.SubscribedEvents) == 0 {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: subscribed events are required")
	}

	verifySSL := true
	if in.VerifySSL != nil {
		verifySSL = *in.VerifySSL
	}
	now := time.Now().UTC()
	record := &webhookSubscriptionRecord{
		ID:               uuid.NewString(),
		IntegrationID:    integrationID,
		EndpointURL:      strings.TrimSpace(in.EndpointURL),
		SubscribedEvents: normalizeEvents(in.SubscribedEvents),
		EventFilters:     copyAnyMap(in.EventFilters),
		SecretKey:        in.SecretKey,
		SignatureHeader:  strings.TrimSpace(in.SignatureHeader),
		VerifySSL:        verifySSL,
		MaxRetries:       in.MaxRetries,
		RetryDelays:      append([]int(nil), in.RetryDelays...),
		TimeoutSeconds:   in.TimeoutSeconds,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.WebhookSubscription{}, err
	}
	return subscriptionToDomain(created), nil
}

func (s *SubscriptionStore) Update(ctx context.Context, in core.UpdateSubscriptionInput) (core.WebhookSubscription, error) {
	if s == nil || s.db == nil {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return core.WebhookSubscription{}, fmt.Errorf("%w: empty id", core.ErrSubscriptionNotFound)
	}

	record, err := s.getRecord(ctx, id)
	if err != nil {
		return core.WebhookSubscription{}, err
	}
	if trimmed := strings.TrimSpace(in.EndpointURL); trimmed != "" {
		record.EndpointURL = trimmed
	}
	if in.SubscribedEvents != nil {
		record.SubscribedEvents = normalizeEvents(in.SubscribedEvents)
	}
	if in.EventFilters != nil {
		record.EventFilters = copyAnyMap(in.EventFilters)
	}
	if in.SecretKey != nil {
		record.SecretKey = *in.SecretKey
	}
	if trimmed := strings.TrimSpace(in.SignatureHeader); trimmed != "" {
		record.SignatureHeader = trimmed
	}
	if in.VerifySSL != nil {
		record.VerifySSL = *in.VerifySSL
	}
	if in.MaxRetries != nil {
		record.MaxRetries = *in.MaxRetries
	}
	if in.RetryDelays != nil {
		record.RetryDelays = append([]int(nil), in.RetryDelays...)
	}
	if in.TimeoutSeconds != nil {
		record.TimeoutSeconds = *in.TimeoutSeconds
	}
	record.UpdatedAt = time.Now().UTC()

	if _, err := s.db.NewUpdate().
		Model(record).
		WherePK().
		Exec(ctx); err != nil {
		return core.WebhookSubscription{}, err
	}
	return subscriptionToDomain(record), nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id string) (core.WebhookSubscription, error) {
	record, err := s.getRecord(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.WebhookSubscription{}, err
	}
	return subscriptionToDomain(record), nil
}

func (s *SubscriptionStore) getRecord(ctx context.Context, id string) (*webhookSubscriptionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", core.ErrSubscriptionNotFound)
	}
	record := &webhookSubscriptionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrSubscriptionNotFound, id)
		}
		return nil, err
	}
	return record, nil
}

func (s *SubscriptionStore) List(ctx context.Context, integrationID string, includeInactive bool) ([]core.WebhookSubscription, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	var records []webhookSubscriptionRecord
	query := s.db.NewSelect().
		Model(&records).
		Order("created_at ASC")
	if trimmed := strings.TrimSpace(integrationID); trimmed != "" {
		query = query.Where("?TableAlias.integration_id = ?", trimmed)
	}
	if !includeInactive {
		query = query.Where("?TableAlias.is_active = ?", true)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	subscriptions := make([]core.WebhookSubscription, 0, len(records))
	for i := range records {
		subscriptions = append(subscriptions, subscriptionToDomain(&records[i]))
	}
	return subscriptions, nil
}

// ListActiveForEvent narrows to active subscriptions on active
// integrations, then matches the event list in memory. Event lists are
// short, so json containment queries buy nothing here and the in-memory
// check stays portable between sqlite and postgres.
func (s *SubscriptionStore) ListActiveForEvent(ctx context.Context, eventType string) ([]core.WebhookSubscription, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, fmt.Errorf("sqlstore: event type is required")
	}

	var records []webhookSubscriptionRecord
	err := s.db.NewSelect().
		Model(&records).
		Join("JOIN integrations AS itg ON itg.id = ?TableAlias.integration_id").
		Where("?TableAlias.is_active = ?", true).
		Where("itg.is_active = ?", true).
		Order("ws.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	subscriptions := []core.WebhookSubscription{}
	for i := range records {
		subscription := subscriptionToDomain(&records[i])
		if subscription.SubscribesTo(eventType) {
			subscriptions = append(subscriptions, subscription)
		}
	}
	return subscriptions, nil
}

func (s *SubscriptionStore) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty id", core.ErrSubscriptionNotFound)
	}
	result, err := s.db.NewUpdate().
		Model((*webhookSubscriptionRecord)(nil)).
		Set("last_triggered_at = ?", at.UTC()).
		Set("total_deliveries = total_deliveries + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrSubscriptionNotFound, id)
	}
	return nil
}

// RecordOutcome increments the terminal-outcome counters atomically and
// returns the post-update values so callers can evaluate the circuit
// breaker without a second read.
func (s *SubscriptionStore) RecordOutcome(ctx context.Context, id string, success bool, at time.Time) (core.DeliveryOutcome, error) {
	if s == nil || s.db == nil {
		return core.DeliveryOutcome{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeliveryOutcome{}, fmt.Errorf("%w: empty id", core.ErrSubscriptionNotFound)
	}
	stamp := at.UTC()
	now := time.Now().UTC()

	var query string
	if success {
		query = `
UPDATE webhook_subscriptions
SET successful_deliveries = successful_deliveries + 1,
    consecutive_failures = 0,
    last_success_at = ?,
    updated_at = ?
WHERE id = ?
RETURNING consecutive_failures, successful_deliveries, failed_deliveries
`
	} else {
		query = `
UPDATE webhook_subscriptions
SET failed_deliveries = failed_deliveries + 1,
    consecutive_failures = consecutive_failures + 1,
    last_failure_at = ?,
    updated_at = ?
WHERE id = ?
RETURNING consecutive_failures, successful_deliveries, failed_deliveries
`
	}

	var outcome core.DeliveryOutcome
	err := s.db.NewRaw(query, stamp, now, id).
		Scan(ctx, &outcome.ConsecutiveFailures, &outcome.SuccessfulDeliveries, &outcome.FailedDeliveries)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.DeliveryOutcome{}, fmt.Errorf("%w: %s", core.ErrSubscriptionNotFound, id)
		}
		return core.DeliveryOutcome{}, err
	}
	return outcome, nil
}

func (s *SubscriptionStore) SetActive(ctx context.Context, id string, active bool, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty id", core.ErrSubscriptionNotFound)
	}
	query := s.db.NewUpdate().
		Model((*webhookSubscriptionRecord)(nil)).
		Set("is_active = ?", active).
		Set("status_reason = ?", strings.TrimSpace(reason)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	if active {
		query = query.Set("consecutive_failures = 0")
	}
	result, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrSubscriptionNotFound, id)
	}
	return nil
}

func subscriptionToDomain(record *webhookSubscriptionRecord) core.WebhookSubscription {
	if record == nil {
		return core.WebhookSubscription{}
	}
	subscription := core.WebhookSubscription{
		ID:                   record.ID,
		IntegrationID:        record.IntegrationID,
		EndpointURL:          record.EndpointURL,
		SubscribedEvents:     append([]string(nil), record.SubscribedEvents...),
		EventFilters:         copyAnyMap(record.EventFilters),
		SecretKey:            record.SecretKey,
		SignatureHeader:      record.SignatureHeader,
		VerifySSL:            record.VerifySSL,
		MaxRetries:           record.MaxRetries,
		RetryDelays:          append([]int(nil), record.RetryDelays...),
		TimeoutSeconds:       record.TimeoutSeconds,
		IsActive:             record.IsActive,
		TotalDeliveries:      record.TotalDeliveries,
		SuccessfulDeliveries: record.SuccessfulDeliveries,
		FailedDeliveries:     record.FailedDeliveries,
		ConsecutiveFailures:  record.ConsecutiveFailures,
		CreatedAt:            record.CreatedAt,
		UpdatedAt:            record.UpdatedAt,
	}
	if record.LastTriggeredAt != nil {
		value := *record.LastTriggeredAt
		subscription.LastTriggeredAt = &value
	}
	if record.LastSuccessAt != nil {
		value := *record.LastSuccessAt
		subscription.LastSuccessAt = &value
	}
	if record.LastFailureAt != nil {
		value := *record.LastFailureAt
		subscription.LastFailureAt = &value
	}
	return subscription
}

func normalizeEvents(events []string) []string {
	normalized := make([]string, 0, len(events))
	for _, event := range events {
		event = strings.TrimSpace(event)
		if event == "" {
			continue
		}
		normalized = append(normalized, event)
	}
	return normalized
}

func copyAnyMap(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

var _ core.SubscriptionStore = (*SubscriptionStore)(nil)
