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

type IntegrationStore struct {
	db   *bun.DB
	repo repository.Repository[*integrationRecord]
}

func NewIntegrationStore(db *bun.DB) (*IntegrationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*integrationRecord](db, integrationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid integration repository wiring: %w", err)
		}
	}
	return &IntegrationStore{db: db, repo: repo}, nil
}

func (s *IntegrationStore) Create(ctx context.Context, in core.CreateIntegrationInput) (core.Integration, error) {
	if s == nil || s.repo == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: integration name is required")
	}
	if err := in.Type.Validate(); err != nil {
		return core.Integration{}, err
	}

	now := time.Now().UTC()
	record := &integrationRecord{
		ID:                 uuid.NewString(),
		Name:               name,
		Type:               string(in.Type),
		Provider:           strings.TrimSpace(in.Provider),
		Endpoint:           strings.TrimSpace(in.Endpoint),
		AuthType:           strings.TrimSpace(in.AuthType),
		Credentials:        append([]byte(nil), in.Credentials...),
		RateLimitPerMinute: in.RateLimitPerMinute,
		HealthStatus:       string(core.HealthStatusHealthy),
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Integration{}, err
	}
	return integrationToDomain(created), nil
}

func (s *IntegrationStore) Get(ctx context.Context, id string) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Integration{}, fmt.Errorf("%w: empty id", core.ErrIntegrationNotFound)
	}
	record := &integrationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Integration{}, fmt.Errorf("%w: %s", core.ErrIntegrationNotFound, id)
		}
		return core.Integration{}, err
	}
	return integrationToDomain(record), nil
}

func (s *IntegrationStore) List(ctx context.Context, includeInactive bool) ([]core.Integration, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	var records []integrationRecord
	query := s.db.NewSelect().
		Model(&records).
		Order("created_at ASC")
	if !includeInactive {
		query = query.Where("?TableAlias.is_active = ?", true)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	integrations := make([]core.Integration, 0, len(records))
	for i := range records {
		integrations = append(integrations, integrationToDomain(&records[i]))
	}
	return integrations, nil
}

func (s *IntegrationStore) SetActive(ctx context.Context, id string, active bool, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty id", core.ErrIntegrationNotFound)
	}
	result, err := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("is_active = ?", active).
		Set("status_reason = ?", strings.TrimSpace(reason)).
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
		return fmt.Errorf("%w: %s", core.ErrIntegrationNotFound, id)
	}
	return nil
}

// RecordOutcome applies counter updates in a single statement so
// concurrent workers never lose increments.
func (s *IntegrationStore) RecordOutcome(ctx context.Context, id string, outcome core.IntegrationOutcome) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty id", core.ErrIntegrationNotFound)
	}
	at := outcome.At.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}

	query := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("total_requests = total_requests + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	if outcome.Success {
		query = query.
			Set("successful_requests = successful_requests + 1").
			Set("last_success_at = ?", at)
	} else {
		query = query.
			Set("failed_requests = failed_requests + 1").
			Set("last_error_at = ?", at).
			Set("last_error_message = ?", strings.TrimSpace(outcome.ErrorMessage))
	}
	if outcome.Health != "" {
		query = query.Set("health_status = ?", string(outcome.Health))
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
		return fmt.Errorf("%w: %s", core.ErrIntegrationNotFound, id)
	}
	return nil
}

func integrationToDomain(record *integrationRecord) core.Integration {
	if record == nil {
		return core.Integration{}
	}
	integration := core.Integration{
		ID:                 record.ID,
		Name:               record.Name,
		Type:               core.IntegrationType(record.Type),
		Provider:           record.Provider,
		Endpoint:           record.Endpoint,
		AuthType:           record.AuthType,
		Credentials:        append([]byte(nil), record.Credentials...),
		RateLimitPerMinute: record.RateLimitPerMinute,
		HealthStatus:       core.HealthStatus(record.HealthStatus),
		TotalRequests:      record.TotalRequests,
		SuccessfulRequests: record.SuccessfulRequests,
		FailedRequests:     record.FailedRequests,
		LastErrorMessage:   record.LastErrorMessage,
		IsActive:           record.IsActive,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
	}
	if record.LastSuccessAt != nil {
		value := *record.LastSuccessAt
		integration.LastSuccessAt = &value
	}
	if record.LastErrorAt != nil {
		value := *record.LastErrorAt
		integration.LastErrorAt = &value
	}
	return integration
}

var _ core.IntegrationStore = (*IntegrationStore)(nil)
