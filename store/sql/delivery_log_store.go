package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/garagereg/go-integrations/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type DeliveryLogStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryLogRecord]
}

func NewDeliveryLogStore(db *bun.DB) (*DeliveryLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryLogRecord](db, deliveryLogHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery log repository wiring: %w", err)
		}
	}
	return &DeliveryLogStore{db: db, repo: repo}, nil
}

func (s *DeliveryLogStore) Create(ctx context.Context, in core.CreateDeliveryLogInput) (core.DeliveryLog, error) {
	if s == nil || s.repo == nil {
		return core.DeliveryLog{}, fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	if strings.TrimSpace(in.SubscriptionID) == "" {
		return core.DeliveryLog{}, fmt.Errorf("sqlstore: subscription id is required")
	}
	if strings.TrimSpace(in.RequestID) == "" {
		return core.DeliveryLog{}, fmt.Errorf("sqlstore: request id is required")
	}

	record := &deliveryLogRecord{
		ID:               uuid.NewString(),
		IntegrationID:    strings.TrimSpace(in.IntegrationID),
		SubscriptionID:   strings.TrimSpace(in.SubscriptionID),
		EventType:        strings.TrimSpace(in.EventType),
		EndpointURL:      strings.TrimSpace(in.EndpointURL),
		RequestID:        strings.TrimSpace(in.RequestID),
		RequestHeaders:   copyStringMap(in.RequestHeaders),
		RequestPayload:   append([]byte(nil), in.RequestPayload...),
		RequestSignature: in.RequestSignature,
		Status:           string(core.DeliveryStatusPending),
		CreatedAt:        time.Now().UTC(),
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.DeliveryLog{}, err
	}
	return deliveryLogToDomain(created), nil
}

func (s *DeliveryLogStore) Get(ctx context.Context, id string) (core.DeliveryLog, error) {
	if s == nil || s.db == nil {
		return core.DeliveryLog{}, fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeliveryLog{}, fmt.Errorf("%w: empty id", core.ErrDeliveryLogNotFound)
	}
	record := &deliveryLogRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.DeliveryLog{}, fmt.Errorf("%w: %s", core.ErrDeliveryLogNotFound, id)
		}
		return core.DeliveryLog{}, err
	}
	return deliveryLogToDomain(record), nil
}

func (s *DeliveryLogStore) GetByRequestID(ctx context.Context, requestID string) (core.DeliveryLog, error) {
	if s == nil || s.db == nil {
		return core.DeliveryLog{}, fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return core.DeliveryLog{}, fmt.Errorf("%w: empty request id", core.ErrDeliveryLogNotFound)
	}
	record := &deliveryLogRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.request_id = ?", requestID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.DeliveryLog{}, fmt.Errorf("%w: request %s", core.ErrDeliveryLogNotFound, requestID)
		}
		return core.DeliveryLog{}, err
	}
	return deliveryLogToDomain(record), nil
}

func (s *DeliveryLogStore) List(ctx context.Context, filter core.DeliveryLogFilter) (core.DeliveryLogPage, error) {
	if s == nil || s.db == nil {
		return core.DeliveryLogPage{}, fmt.Errorf("sqlstore: delivery log store is not configured")
	}

	applyFilter := func(query *bun.SelectQuery) *bun.SelectQuery {
		if trimmed := strings.TrimSpace(filter.IntegrationID); trimmed != "" {
			query = query.Where("?TableAlias.integration_id = ?", trimmed)
		}
		if trimmed := strings.TrimSpace(filter.SubscriptionID); trimmed != "" {
			query = query.Where("?TableAlias.subscription_id = ?", trimmed)
		}
		if trimmed := strings.TrimSpace(filter.EventType); trimmed != "" {
			query = query.Where("?TableAlias.event_type = ?", trimmed)
		}
		if filter.Status != "" {
			query = query.Where("?TableAlias.status = ?", string(filter.Status))
		}
		if filter.Since != nil {
			query = query.Where("?TableAlias.created_at >= ?", filter.Since.UTC())
		}
		return query
	}

	total, err := applyFilter(s.db.NewSelect().Model((*deliveryLogRecord)(nil))).Count(ctx)
	if err != nil {
		return core.DeliveryLogPage{}, err
	}

	var records []deliveryLogRecord
	query := applyFilter(s.db.NewSelect().Model(&records)).
		Order("created_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Scan(ctx); err != nil {
		return core.DeliveryLogPage{}, err
	}

	logs := make([]core.DeliveryLog, 0, len(records))
	for i := range records {
		logs = append(logs, deliveryLogToDomain(&records[i]))
	}
	return core.DeliveryLogPage{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// Claim moves a pending or retrying row to attempting. The conditional
// update is the concurrency guard: whichever worker flips the status
// first wins, everyone else sees zero rows affected.
func (s *DeliveryLogStore) Claim(ctx context.Context, id string) (core.DeliveryLog, bool, error) {
	if s == nil || s.db == nil {
		return core.DeliveryLog{}, false, fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeliveryLog{}, false, fmt.Errorf("%w: empty id", core.ErrDeliveryLogNotFound)
	}

	result, err := s.db.NewUpdate().
		Model((*deliveryLogRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusAttempting)).
		Where("id = ?", id).
		Where("status IN (?, ?)", string(core.DeliveryStatusPending), string(core.DeliveryStatusRetrying)).
		Exec(ctx)
	if err != nil {
		return core.DeliveryLog{}, false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.DeliveryLog{}, false, err
	}

	record, err := s.Get(ctx, id)
	if err != nil {
		return core.DeliveryLog{}, false, err
	}
	return record, affected > 0, nil
}

// ClaimDue atomically claims up to limit due retrying rows and returns
// them already in attempting state.
func (s *DeliveryLogStore) ClaimDue(ctx context.Context, before time.Time, limit int) ([]core.DeliveryLog, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}

	var records []deliveryLogRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM webhook_delivery_logs
	WHERE status = ?
	  AND next_retry_at IS NOT NULL
	  AND next_retry_at <= ?
	ORDER BY next_retry_at ASC
	LIMIT ?
)
UPDATE webhook_delivery_logs
SET status = ?
WHERE id IN (SELECT id FROM claimed)
  AND status = ?
RETURNING
	id,
	integration_id,
	subscription_id,
	event_type,
	endpoint_url,
	request_id,
	request_headers,
	request_payload,
	request_signature,
	status,
	http_status_code,
	response_headers,
	response_body,
	attempt_count,
	error_message,
	created_at,
	first_attempt_at,
	last_attempt_at,
	completed_at,
	next_retry_at
`
		return tx.NewRaw(
			query,
			string(core.DeliveryStatusRetrying),
			before.UTC(),
			limit,
			string(core.DeliveryStatusAttempting),
			string(core.DeliveryStatusRetrying),
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	logs := make([]core.DeliveryLog, 0, len(records))
	for i := range records {
		logs = append(logs, deliveryLogToDomain(&records[i]))
	}
	return logs, nil
}

func (s *DeliveryLogStore) MarkDelivered(ctx context.Context, id string, attempt core.AttemptResult) error {
	return s.finishAttempt(ctx, id, attempt, core.DeliveryStatusDelivered, nil)
}

func (s *DeliveryLogStore) MarkRetrying(ctx context.Context, id string, attempt core.AttemptResult, nextRetryAt time.Time) error {
	next := nextRetryAt.UTC()
	return s.finishAttempt(ctx, id, attempt, core.DeliveryStatusRetrying, &next)
}

func (s *DeliveryLogStore) MarkFailed(ctx context.Context, id string, attempt core.AttemptResult) error {
	return s.finishAttempt(ctx, id, attempt, core.DeliveryStatusFailed, nil)
}

func (s *DeliveryLogStore) finishAttempt(
	ctx context.Context,
	id string,
	attempt core.AttemptResult,
	status core.DeliveryStatus,
	nextRetryAt *time.Time,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty id", core.ErrDeliveryLogNotFound)
	}
	at := attempt.At.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var responseHeaders []byte
	if len(attempt.ResponseHeaders) > 0 {
		encoded, err := json.Marshal(attempt.ResponseHeaders)
		if err != nil {
			return fmt.Errorf("sqlstore: encode response headers: %w", err)
		}
		responseHeaders = encoded
	}

	query := s.db.NewUpdate().
		Model((*deliveryLogRecord)(nil)).
		Set("status = ?", string(status)).
		Set("attempt_count = attempt_count + 1").
		Set("http_status_code = ?", attempt.HTTPStatusCode).
		Set("response_headers = ?", responseHeaders).
		Set("response_body = ?", attempt.ResponseBody).
		Set("error_message = ?", attempt.ErrorMessage).
		Set("first_attempt_at = COALESCE(first_attempt_at, ?)", at).
		Set("last_attempt_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", string(core.DeliveryStatusAttempting))
	if status.Terminal() {
		query = query.
			Set("completed_at = ?", at).
			Set("next_retry_at = NULL")
	} else {
		query = query.Set("next_retry_at = ?", nextRetryAt)
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
		return fmt.Errorf("%w: %s -> %s for %s",
			core.ErrInvalidDeliveryStatusTransition, core.DeliveryStatusAttempting, status, id)
	}
	return nil
}

// Reschedule returns an attempting row to retrying without touching the
// attempt counter. Used when a rate limit blocked the outbound call.
func (s *DeliveryLogStore) Reschedule(ctx context.Context, id string, nextRetryAt time.Time, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty id", core.ErrDeliveryLogNotFound)
	}
	result, err := s.db.NewUpdate().
		Model((*deliveryLogRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusRetrying)).
		Set("next_retry_at = ?", nextRetryAt.UTC()).
		Set("error_message = ?", strings.TrimSpace(reason)).
		Where("id = ?", id).
		Where("status = ?", string(core.DeliveryStatusAttempting)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrDeliveryLogNotFound, id)
	}
	return nil
}

func deliveryLogToDomain(record *deliveryLogRecord) core.DeliveryLog {
	if record == nil {
		return core.DeliveryLog{}
	}
	log := core.DeliveryLog{
		ID:               record.ID,
		IntegrationID:    record.IntegrationID,
		SubscriptionID:   record.SubscriptionID,
		EventType:        record.EventType,
		EndpointURL:      record.EndpointURL,
		RequestID:        record.RequestID,
		RequestHeaders:   copyStringMap(record.RequestHeaders),
		RequestPayload:   append([]byte(nil), record.RequestPayload...),
		RequestSignature: record.RequestSignature,
		Status:           core.DeliveryStatus(record.Status),
		HTTPStatusCode:   record.HTTPStatusCode,
		ResponseHeaders:  copyStringMap(record.ResponseHeaders),
		ResponseBody:     record.ResponseBody,
		AttemptCount:     record.AttemptCount,
		ErrorMessage:     record.ErrorMessage,
		CreatedAt:        record.CreatedAt,
	}
	if record.FirstAttemptAt != nil {
		value := *record.FirstAttemptAt
		log.FirstAttemptAt = &value
	}
	if record.LastAttemptAt != nil {
		value := *record.LastAttemptAt
		log.LastAttemptAt = &value
	}
	if record.CompletedAt != nil {
		value := *record.CompletedAt
		log.CompletedAt = &value
	}
	if record.NextRetryAt != nil {
		value := *record.NextRetryAt
		log.NextRetryAt = &value
	}
	return log
}

func copyStringMap(input map[string]string) map[string]string {
	if input == nil {
		return nil
	}
	output := make(map[string]string, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

var _ core.DeliveryLogStore = (*DeliveryLogStore)(nil)
