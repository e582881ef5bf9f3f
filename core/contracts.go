package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type CreateIntegrationInput struct {
	Name               string
	Type               IntegrationType
	Provider           string
	Endpoint           string
	AuthType           string
	Credentials        []byte
	RateLimitPerMinute int
}

// IntegrationOutcome is the per-operation bookkeeping applied after a
// delivery or sync against an integration. Counter updates are atomic at
// the store level.
type IntegrationOutcome struct {
	Success      bool
	ErrorMessage string
	Health       HealthStatus
	At           time.Time
}

type IntegrationStore interface {
	Create(ctx context.Context, in CreateIntegrationInput) (Integration, error)
	Get(ctx context.Context, id string) (Integration, error)
	List(ctx context.Context, includeInactive bool) ([]Integration, error)
	SetActive(ctx context.Context, id string, active bool, reason string) error
	RecordOutcome(ctx context.Context, id string, outcome IntegrationOutcome) error
}

type CreateSubscriptionInput struct {
	IntegrationID    string
	EndpointURL      string
	SubscribedEvents []string
	EventFilters     map[string]any
	SecretKey        string
	SignatureHeader  string
	VerifySSL        *bool
	MaxRetries       int
	RetryDelays      []int
	TimeoutSeconds   int
}

type UpdateSubscriptionInput struct {
	ID               string
	EndpointURL      string
	SubscribedEvents []string
	EventFilters     map[string]any
	SecretKey        *string
	SignatureHeader  string
	VerifySSL        *bool
	MaxRetries       *int
	RetryDelays      []int
	TimeoutSeconds   *int
}

// DeliveryOutcome reports the subscription counters after an atomic
// outcome update, so the worker can evaluate the circuit breaker without
// a read-modify-write cycle.
type DeliveryOutcome struct {
	ConsecutiveFailures  int
	SuccessfulDeliveries int64
	FailedDeliveries     int64
}

type SubscriptionStore interface {
	Create(ctx context.Context, in CreateSubscriptionInput) (WebhookSubscription, error)
	Update(ctx context.Context, in UpdateSubscriptionInput) (WebhookSubscription, error)
	Get(ctx context.Context, id string) (WebhookSubscription, error)
	List(ctx context.Context, integrationID string, includeInactive bool) ([]WebhookSubscription, error)
	// ListActiveForEvent returns active subscriptions, belonging to active
	// integrations, whose subscribed_events contains eventType.
	ListActiveForEvent(ctx context.Context, eventType string) ([]WebhookSubscription, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) error
	// RecordOutcome applies atomic counter increments for one terminal
	// delivery outcome and returns the updated counters.
	RecordOutcome(ctx context.Context, id string, success bool, at time.Time) (DeliveryOutcome, error)
	SetActive(ctx context.Context, id string, active bool, reason string) error
}

type CreateDeliveryLogInput struct {
	IntegrationID    string
	SubscriptionID   string
	EventType        string
	EndpointURL      string
	RequestID        string
	RequestHeaders   map[string]string
	RequestPayload   []byte
	RequestSignature string
}

// AttemptResult carries the observable outcome of a single HTTP attempt.
type AttemptResult struct {
	HTTPStatusCode  int
	ResponseHeaders map[string]string
	ResponseBody    string
	ErrorMessage    string
	At              time.Time
}

type DeliveryLogFilter struct {
	IntegrationID  string
	SubscriptionID string
	EventType      string
	Status         DeliveryStatus
	Since          *time.Time
	Limit          int
	Offset         int
}

type DeliveryLogPage struct {
	Logs   []DeliveryLog
	Total  int
	Limit  int
	Offset int
}

type DeliveryLogStore interface {
	Create(ctx context.Context, in CreateDeliveryLogInput) (DeliveryLog, error)
	Get(ctx context.Context, id string) (DeliveryLog, error)
	GetByRequestID(ctx context.Context, requestID string) (DeliveryLog, error)
	List(ctx context.Context, filter DeliveryLogFilter) (DeliveryLogPage, error)
	// Claim conditionally moves a pending or retrying row to attempting.
	// It returns claimed=false when another worker holds the row or the
	// row already reached a terminal state.
	Claim(ctx context.Context, id string) (DeliveryLog, bool, error)
	// ClaimDue claims up to limit retrying rows whose next_retry_at has
	// elapsed. Claimed rows are returned in attempting state.
	ClaimDue(ctx context.Context, before time.Time, limit int) ([]DeliveryLog, error)
	MarkDelivered(ctx context.Context, id string, attempt AttemptResult) error
	MarkRetrying(ctx context.Context, id string, attempt AttemptResult, nextRetryAt time.Time) error
	MarkFailed(ctx context.Context, id string, attempt AttemptResult) error
	// Reschedule returns an attempting row to retrying without consuming
	// an attempt. Used when a rate limit blocks the outbound call.
	Reschedule(ctx context.Context, id string, nextRetryAt time.Time, reason string) error
}

// SyncAdapter is implemented by ERP synchronization strategies outside
// this module. The engine only invokes adapters and records outcomes.
type SyncAdapter interface {
	Provider() string
	Sync(ctx context.Context, req SyncRequest) (SyncResult, error)
}

type AdapterRegistry interface {
	Register(adapter SyncAdapter) error
	Get(provider string) (SyncAdapter, bool)
	List() []SyncAdapter
}

type StoreProvider interface {
	IntegrationStore() IntegrationStore
	SubscriptionStore() SubscriptionStore
	DeliveryLogStore() DeliveryLogStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
	Skipped   int
}

type RetryDispatcher interface {
	ProcessDue(ctx context.Context, limit int) (DispatchStats, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

// RateLimitGate is consulted before each outbound attempt when the
// integration configures a requests/minute budget.
type RateLimitGate interface {
	Allow(ctx context.Context, integrationID string, limitPerMinute int) error
}

// TestEndpointInput describes a one-off synchronous probe against a
// candidate endpoint. Nothing is persisted.
type TestEndpointInput struct {
	EndpointURL    string
	SecretKey      string
	VerifySSL      *bool
	TimeoutSeconds int
	EventType      string
	Payload        map[string]any
}

type TestEndpointResult struct {
	Success        bool
	HTTPStatusCode int
	DurationMs     int64
	ResponseBody   string
	ErrorMessage   string
}

// RoundTripperFactory builds the HTTP transport used for outbound
// deliveries. verifySSL=false disables certificate verification for the
// subscription's endpoint.
type RoundTripperFactory func(verifySSL bool) http.RoundTripper
