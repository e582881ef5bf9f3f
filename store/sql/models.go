package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type integrationRecord struct {
	bun.BaseModel `bun:"table:integrations,alias:itg"`

	ID                 string     `bun:"id,pk"`
	Name               string     `bun:"name,notnull"`
	Type               string     `bun:"type,notnull"`
	Provider           string     `bun:"provider"`
	Endpoint           string     `bun:"endpoint"`
	AuthType           string     `bun:"auth_type"`
	Credentials        []byte     `bun:"credentials"`
	RateLimitPerMinute int        `bun:"rate_limit_per_minute,notnull"`
	HealthStatus       string     `bun:"health_status,notnull"`
	TotalRequests      int64      `bun:"total_requests,notnull"`
	SuccessfulRequests int64      `bun:"successful_requests,notnull"`
	FailedRequests     int64      `bun:"failed_requests,notnull"`
	LastSuccessAt      *time.Time `bun:"last_success_at,nullzero"`
	LastErrorAt        *time.Time `bun:"last_error_at,nullzero"`
	LastErrorMessage   string     `bun:"last_error_message"`
	IsActive           bool       `bun:"is_active,notnull"`
	StatusReason       string     `bun:"status_reason"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookSubscriptionRecord struct {
	bun.BaseModel `bun:"table:webhook_subscriptions,alias:ws"`

	ID                   string         `bun:"id,pk"`
	IntegrationID        string         `bun:"integration_id,notnull"`
	EndpointURL          string         `bun:"endpoint_url,notnull"`
	SubscribedEvents     []string       `bun:"subscribed_events,type:jsonb,notnull"`
	EventFilters         map[string]any `bun:"event_filters,type:jsonb"`
	SecretKey            string         `bun:"secret_key"`
	SignatureHeader      string         `bun:"signature_header,notnull"`
	VerifySSL            bool           `bun:"verify_ssl,notnull"`
	MaxRetries           int            `bun:"max_retries,notnull"`
	RetryDelays          []int          `bun:"retry_delays,type:jsonb,notnull"`
	TimeoutSeconds       int            `bun:"timeout_seconds,notnull"`
	IsActive             bool           `bun:"is_active,notnull"`
	TotalDeliveries      int64          `bun:"total_deliveries,notnull"`
	SuccessfulDeliveries int64          `bun:"successful_deliveries,notnull"`
	FailedDeliveries     int64          `bun:"failed_deliveries,notnull"`
	ConsecutiveFailures  int            `bun:"consecutive_failures,notnull"`
	LastTriggeredAt      *time.Time     `bun:"last_triggered_at,nullzero"`
	LastSuccessAt        *time.Time     `bun:"last_success_at,nullzero"`
	LastFailureAt        *time.Time     `bun:"last_failure_at,nullzero"`
	StatusReason         string         `bun:"status_reason"`
	CreatedAt            time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryLogRecord struct {
	bun.BaseModel `bun:"table:webhook_delivery_logs,alias:wdl"`

	ID               string            `bun:"id,pk"`
	IntegrationID    string            `bun:"integration_id,notnull"`
	SubscriptionID   string            `bun:"subscription_id,notnull"`
	EventType        string            `bun:"event_type,notnull"`
	EndpointURL      string            `bun:"endpoint_url,notnull"`
	RequestID        string            `bun:"request_id,notnull,unique"`
	RequestHeaders   map[string]string `bun:"request_headers,type:jsonb"`
	RequestPayload   []byte            `bun:"request_payload"`
	RequestSignature string            `bun:"request_signature"`
	Status           string            `bun:"status,notnull"`
	HTTPStatusCode   int               `bun:"http_status_code"`
	ResponseHeaders  map[string]string `bun:"response_headers,type:jsonb"`
	ResponseBody     string            `bun:"response_body"`
	AttemptCount     int               `bun:"attempt_count,notnull"`
	ErrorMessage     string            `bun:"error_message"`
	CreatedAt        time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	FirstAttemptAt   *time.Time        `bun:"first_attempt_at,nullzero"`
	LastAttemptAt    *time.Time        `bun:"last_attempt_at,nullzero"`
	CompletedAt      *time.Time        `bun:"completed_at,nullzero"`
	NextRetryAt      *time.Time        `bun:"next_retry_at,nullzero"`
}
