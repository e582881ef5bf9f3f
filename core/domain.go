package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidIntegrationType          = errors.New("core: invalid integration type")
	ErrInvalidDeliveryStatusTransition = errors.New("core: invalid delivery status transition")
	ErrIntegrationNotFound             = errors.New("core: integration not found")
	ErrSubscriptionNotFound            = errors.New("core: subscription not found")
	ErrDeliveryLogNotFound             = errors.New("core: delivery log not found")
	ErrInvalidEventFilter              = errors.New("core: invalid event filter")
	ErrUnknownEventType                = errors.New("core: unknown event type")
)

type IntegrationType string

const (
	IntegrationTypeWebhook IntegrationType = "webhook"
	IntegrationTypeERP     IntegrationType = "erp"
)

func (t IntegrationType) Validate() error {
	switch t {
	case IntegrationTypeWebhook, IntegrationTypeERP:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidIntegrationType, string(t))
}

type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// Integration is a configured external system. HealthStatus and the
// request counters are derived from operation outcomes, never set by
// callers directly.
type Integration struct {
	ID                 string
	Name               string
	Type               IntegrationType
	Provider           string
	Endpoint           string
	AuthType           string
	Credentials        []byte
	RateLimitPerMinute int
	HealthStatus       HealthStatus
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	LastSuccessAt      *time.Time
	LastErrorAt        *time.Time
	LastErrorMessage   string
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// WebhookSubscription is one consumer's interest registration, owned by
// exactly one Integration.
type WebhookSubscription struct {
	ID                   string
	IntegrationID        string
	EndpointURL          string
	SubscribedEvents     []string
	EventFilters         map[string]any
	SecretKey            string
	SignatureHeader      string
	VerifySSL            bool
	MaxRetries           int
	RetryDelays          []int
	TimeoutSeconds       int
	IsActive             bool
	TotalDeliveries      int64
	SuccessfulDeliveries int64
	FailedDeliveries     int64
	ConsecutiveFailures  int
	LastTriggeredAt      *time.Time
	LastSuccessAt        *time.Time
	LastFailureAt        *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SubscribesTo reports whether the subscription registered interest in
// the given event type.
func (s WebhookSubscription) SubscribesTo(eventType string) bool {
	eventType = strings.TrimSpace(eventType)
	for _, candidate := range s.SubscribedEvents {
		if strings.TrimSpace(candidate) == eventType {
			return true
		}
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusAttempting DeliveryStatus = "attempting"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
	DeliveryStatusRetrying   DeliveryStatus = "retrying"
	DeliveryStatusFailed     DeliveryStatus = "failed"
)

// Terminal reports whether no further attempts may mutate a log row in
// this status.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailed
}

// DeliveryLog is the durable record of one attempt chain for a single
// (event, subscription) pair. RequestID is the idempotency key: it is
// generated once at creation and reused by every retry.
type DeliveryLog struct {
	ID               string
	IntegrationID    string
	SubscriptionID   string
	EventType        string
	EndpointURL      string
	RequestID        string
	RequestHeaders   map[string]string
	RequestPayload   []byte
	RequestSignature string
	Status           DeliveryStatus
	HTTPStatusCode   int
	ResponseHeaders  map[string]string
	ResponseBody     string
	AttemptCount     int
	ErrorMessage     string
	CreatedAt        time.Time
	FirstAttemptAt   *time.Time
	LastAttemptAt    *time.Time
	CompletedAt      *time.Time
	NextRetryAt      *time.Time
}

func (l *DeliveryLog) TransitionTo(status DeliveryStatus, now time.Time) error {
	if l == nil {
		return nil
	}
	if !deliveryTransitionAllowed(l.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidDeliveryStatusTransition, l.Status, status)
	}
	l.Status = status
	if status.Terminal() {
		completed := now.UTC()
		l.CompletedAt = &completed
		l.NextRetryAt = nil
	}
	return nil
}

func deliveryTransitionAllowed(current, next DeliveryStatus) bool {
	allowed := map[DeliveryStatus]map[DeliveryStatus]struct{}{
		DeliveryStatusPending: {
			DeliveryStatusAttempting: {},
		},
		DeliveryStatusAttempting: {
			DeliveryStatusDelivered: {},
			DeliveryStatusRetrying:  {},
			DeliveryStatusFailed:    {},
		},
		DeliveryStatusRetrying: {
			DeliveryStatusAttempting: {},
		},
	}
	targets, ok := allowed[current]
	if !ok {
		return false
	}
	_, ok = targets[next]
	return ok
}

// RetryDelayForAttempt returns the backoff delay after the given attempt
// number (1-based). Delay lists shorter than the retry budget reuse the
// last configured entry; an empty list falls back to fallback.
func RetryDelayForAttempt(delays []int, attempt int, fallback time.Duration) time.Duration {
	if len(delays) == 0 {
		if fallback > 0 {
			return fallback
		}
		return time.Minute
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		index = len(delays) - 1
	}
	seconds := delays[index]
	if seconds <= 0 {
		return time.Minute
	}
	return time.Duration(seconds) * time.Second
}

// Event is the unit of work handed to Dispatch by the business domain.
type Event struct {
	Type     string
	EntityID string
	Payload  map[string]any
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("%w: empty event type", ErrUnknownEventType)
	}
	return nil
}

// Envelope is the canonical outbound wire format. Field order matters:
// the marshaled bytes are signed and sent verbatim.
type Envelope struct {
	EventType string         `json:"event_type"`
	EntityID  string         `json:"entity_id,omitempty"`
	Timestamp string         `json:"timestamp"`
	Source    string         `json:"source"`
	Version   string         `json:"version"`
	Data      map[string]any `json:"data"`
}

// SyncResult captures one ERP synchronization pass executed through a
// SyncAdapter.
type SyncResult struct {
	Provider    string
	ItemsPushed int
	ItemsFailed int
	Metadata    map[string]any
	StartedAt   time.Time
	FinishedAt  time.Time
}

type SyncRequest struct {
	IntegrationID string
	EntityType    string
	EntityIDs     []string
	Metadata      map[string]any
}
