package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/garagereg/go-integrations/core"
)

const defaultRESTClientTimeout = 30 * time.Second
const defaultRESTResponseBodyLimit int64 = 1 << 20 // 1 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Entity is one record to push during a sync run. The engine never owns
// the business domain, so payloads arrive opaque from the host.
type Entity struct {
	ID      string
	Payload map[string]any
}

// EntitySource supplies the records for a sync run. EntityIDs narrows the
// fetch; an empty slice means the full set for that entity type.
type EntitySource interface {
	Fetch(ctx context.Context, entityType string, entityIDs []string) ([]Entity, error)
}

// SourceFunc adapts a function to the EntitySource contract.
type SourceFunc func(ctx context.Context, entityType string, entityIDs []string) ([]Entity, error)

func (f SourceFunc) Fetch(ctx context.Context, entityType string, entityIDs []string) ([]Entity, error) {
	return f(ctx, entityType, entityIDs)
}

type RESTConfig struct {
	Provider             string
	BaseURL              string
	APIKeyHeader         string
	APIKey               string
	DefaultHeaders       map[string]string
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

// RESTSyncAdapter pushes entity snapshots to an ERP system over HTTP.
// Each entity is POSTed as JSON to {base_url}/{entity_type}; any non-2xx
// response counts that entity as failed without aborting the run.
type RESTSyncAdapter struct {
	provider             string
	baseURL              *url.URL
	apiKeyHeader         string
	apiKey               string
	defaultHeaders       map[string]string
	maxResponseBodyBytes int64

	client HTTPDoer
	source EntitySource
	now    func() time.Time
}

func NewRESTSyncAdapter(cfg RESTConfig, client HTTPDoer, source EntitySource) (*RESTSyncAdapter, error) {
	provider := strings.TrimSpace(cfg.Provider)
	if provider == "" {
		return nil, fmt.Errorf("erp: provider name is required")
	}
	if source == nil {
		return nil, fmt.Errorf("erp: entity source is required")
	}
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("erp: base url is invalid: %q", cfg.BaseURL)
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRESTClientTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	headers := make(map[string]string, len(cfg.DefaultHeaders))
	for key, value := range cfg.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	limit := cfg.MaxResponseBodyBytes
	if limit <= 0 {
		limit = defaultRESTResponseBodyLimit
	}
	return &RESTSyncAdapter{
		provider:             provider,
		baseURL:              base,
		apiKeyHeader:         strings.TrimSpace(cfg.APIKeyHeader),
		apiKey:               cfg.APIKey,
		defaultHeaders:       headers,
		maxResponseBodyBytes: limit,
		client:               client,
		source:               source,
		now:                  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (a *RESTSyncAdapter) Provider() string {
	if a == nil {
		return ""
	}
	return a.provider
}

func (a *RESTSyncAdapter) Sync(ctx context.Context, req core.SyncRequest) (core.SyncResult, error) {
	if a == nil || a.client == nil || a.source == nil {
		return core.SyncResult{}, syncError(
			"erp: rest adapter is not configured",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"provider": a.Provider()},
		)
	}
	entityType := strings.TrimSpace(req.EntityType)
	if entityType == "" {
		return core.SyncResult{}, syncError(
			"erp: entity type is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"provider": a.provider},
		)
	}

	startedAt := a.now()
	entities, err := a.source.Fetch(ctx, entityType, req.EntityIDs)
	if err != nil {
		return core.SyncResult{}, syncWrapError(
			err,
			goerrors.CategoryExternal,
			"erp: fetch entities for sync",
			http.StatusBadGateway,
			map[string]any{"provider": a.provider, "entity_type": entityType},
		)
	}

	endpoint := a.baseURL.JoinPath(entityType)
	pushed := 0
	failed := 0
	var firstFailure string
	for _, entity := range entities {
		if err := a.pushEntity(ctx, endpoint.String(), entityType, entity); err != nil {
			failed++
			if firstFailure == "" {
				firstFailure = err.Error()
			}
			continue
		}
		pushed++
	}

	finishedAt := a.now()
	metadata := map[string]any{
		"endpoint":    endpoint.String(),
		"entity_type": entityType,
		"duration_ms": finishedAt.Sub(startedAt).Milliseconds(),
	}
	if firstFailure != "" {
		metadata["first_failure"] = firstFailure
	}
	return core.SyncResult{
		Provider:    a.provider,
		ItemsPushed: pushed,
		ItemsFailed: failed,
		Metadata:    metadata,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}, nil
}

func (a *RESTSyncAdapter) pushEntity(ctx context.Context, endpoint string, entityType string, entity Entity) error {
	body, err := json.Marshal(map[string]any{
		"entity_type": entityType,
		"entity_id":   entity.ID,
		"data":        entity.Payload,
	})
	if err != nil {
		return fmt.Errorf("erp: encode entity %s: %w", entity.ID, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("erp: build request for entity %s: %w", entity.ID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range a.defaultHeaders {
		httpReq.Header.Set(key, value)
	}
	if a.apiKeyHeader != "" && a.apiKey != "" {
		httpReq.Header.Set(a.apiKeyHeader, a.apiKey)
	}

	httpRes, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("erp: push entity %s: %w", entity.ID, err)
	}
	defer httpRes.Body.Close()
	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(httpRes.Body, a.maxResponseBodyBytes))

	if httpRes.StatusCode < 200 || httpRes.StatusCode >= 300 {
		return fmt.Errorf("erp: entity %s rejected with status %d", entity.ID, httpRes.StatusCode)
	}
	return nil
}

var _ core.SyncAdapter = (*RESTSyncAdapter)(nil)
