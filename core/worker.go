package core

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxStoredResponseBytes = 4096

// AttemptReport summarizes one worker pass over a delivery log row.
type AttemptReport struct {
	Claimed        bool
	Status         DeliveryStatus
	HTTPStatusCode int
	Rescheduled    bool
}

// DeliveryWorker executes single HTTP delivery attempts against claimed
// log rows. It never constructs payloads or signatures: the bytes and
// headers recorded at dispatch time are replayed verbatim on every
// attempt.
type DeliveryWorker struct {
	logs         DeliveryLogStore
	subscription SubscriptionStore
	integrations IntegrationStore
	gate         RateLimitGate
	transport    RoundTripperFactory
	config       Config
	logger       Logger
	metrics      MetricsRecorder
	now          NowFunc
}

func NewDeliveryWorker(
	logs DeliveryLogStore,
	subscriptions SubscriptionStore,
	integrations IntegrationStore,
	cfg Config,
	logger Logger,
) *DeliveryWorker {
	return &DeliveryWorker{
		logs:         logs,
		subscription: subscriptions,
		integrations: integrations,
		config:       cfg,
		logger:       logger,
		metrics:      NopMetricsRecorder{},
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (w *DeliveryWorker) WithRateLimitGate(gate RateLimitGate) *DeliveryWorker {
	if w != nil {
		w.gate = gate
	}
	return w
}

func (w *DeliveryWorker) WithTransport(factory RoundTripperFactory) *DeliveryWorker {
	if w != nil {
		w.transport = factory
	}
	return w
}

func (w *DeliveryWorker) WithMetricsRecorder(recorder MetricsRecorder) *DeliveryWorker {
	if w != nil && recorder != nil {
		w.metrics = recorder
	}
	return w
}

func (w *DeliveryWorker) WithNow(now NowFunc) *DeliveryWorker {
	if w != nil && now != nil {
		w.now = now
	}
	return w
}

// Attempt claims the given log row and runs one delivery attempt. A row
// already claimed by another worker, or already terminal, is skipped
// without error.
func (w *DeliveryWorker) Attempt(ctx context.Context, logID string) (AttemptReport, error) {
	if w == nil {
		return AttemptReport{}, fmt.Errorf("core: delivery worker is nil")
	}
	logID = strings.TrimSpace(logID)
	if logID == "" {
		return AttemptReport{}, fmt.Errorf("core: delivery log id is required")
	}

	record, claimed, err := w.logs.Claim(ctx, logID)
	if err != nil {
		return AttemptReport{}, err
	}
	if !claimed {
		return AttemptReport{Claimed: false, Status: record.Status}, nil
	}
	return w.attemptClaimed(ctx, record)
}

// AttemptClaimed runs one delivery attempt against a row the caller has
// already moved to attempting, e.g. via ClaimDue.
func (w *DeliveryWorker) AttemptClaimed(ctx context.Context, record DeliveryLog) (AttemptReport, error) {
	if w == nil {
		return AttemptReport{}, fmt.Errorf("core: delivery worker is nil")
	}
	return w.attemptClaimed(ctx, record)
}

func (w *DeliveryWorker) attemptClaimed(ctx context.Context, record DeliveryLog) (AttemptReport, error) {
	now := w.now()

	sub, err := w.subscription.Get(ctx, record.SubscriptionID)
	if err != nil {
		// A store hiccup must not consume the delivery; only a row that
		// is actually gone fails terminally.
		if !errors.Is(err, ErrSubscriptionNotFound) {
			nextRetryAt := now.Add(w.defaultRetryDelay())
			if rescheduleErr := w.logs.Reschedule(ctx, record.ID, nextRetryAt, "subscription lookup failed: "+err.Error()); rescheduleErr != nil {
				return AttemptReport{Claimed: true}, rescheduleErr
			}
			return AttemptReport{Claimed: true, Status: DeliveryStatusRetrying, Rescheduled: true}, nil
		}
		attempt := AttemptResult{ErrorMessage: "subscription missing: " + record.SubscriptionID, At: now}
		if markErr := w.logs.MarkFailed(ctx, record.ID, attempt); markErr != nil {
			return AttemptReport{Claimed: true}, markErr
		}
		return AttemptReport{Claimed: true, Status: DeliveryStatusFailed}, nil
	}
	if !sub.IsActive {
		attempt := AttemptResult{ErrorMessage: "subscription disabled", At: now}
		if markErr := w.logs.MarkFailed(ctx, record.ID, attempt); markErr != nil {
			return AttemptReport{Claimed: true}, markErr
		}
		return AttemptReport{Claimed: true, Status: DeliveryStatusFailed}, nil
	}

	integration, err := w.integrations.Get(ctx, record.IntegrationID)
	if err == nil && w.gate != nil && integration.RateLimitPerMinute > 0 {
		if gateErr := w.gate.Allow(ctx, integration.ID, integration.RateLimitPerMinute); gateErr != nil {
			nextRetryAt := now.Add(time.Minute)
			if err := w.logs.Reschedule(ctx, record.ID, nextRetryAt, gateErr.Error()); err != nil {
				return AttemptReport{Claimed: true}, err
			}
			w.recordWorkerMetric(ctx, "integrations.delivery.throttled", record, 0)
			return AttemptReport{Claimed: true, Status: DeliveryStatusRetrying, Rescheduled: true}, nil
		}
	}

	result := w.performRequest(ctx, record, sub)
	result.At = w.now()

	attemptNumber := record.AttemptCount + 1
	switch classifyAttempt(result) {
	case attemptDelivered:
		return w.finishDelivered(ctx, record, sub, result)
	case attemptFailed:
		return w.finishFailed(ctx, record, sub, result)
	default:
		if attemptNumber > sub.MaxRetries {
			return w.finishFailed(ctx, record, sub, result)
		}
		delay := RetryDelayForAttempt(sub.RetryDelays, attemptNumber, w.defaultRetryDelay())
		nextRetryAt := result.At.Add(delay)
		if err := w.logs.MarkRetrying(ctx, record.ID, result, nextRetryAt); err != nil {
			return AttemptReport{Claimed: true}, err
		}
		w.recordWorkerMetric(ctx, "integrations.delivery.retried", record, result.HTTPStatusCode)
		return AttemptReport{Claimed: true, Status: DeliveryStatusRetrying, HTTPStatusCode: result.HTTPStatusCode}, nil
	}
}

func (w *DeliveryWorker) performRequest(ctx context.Context, record DeliveryLog, sub WebhookSubscription) AttemptResult {
	timeout := time.Duration(sub.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(w.config.DefaultTimeoutSeconds) * time.Second
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: w.buildTransport(sub.VerifySSL),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, record.EndpointURL, bytes.NewReader(record.RequestPayload))
	if err != nil {
		return AttemptResult{ErrorMessage: err.Error()}
	}
	for key, value := range record.RequestHeaders {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return AttemptResult{ErrorMessage: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxStoredResponseBytes))
	headers := map[string]string{}
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}
	result := AttemptResult{
		HTTPStatusCode:  resp.StatusCode,
		ResponseHeaders: headers,
		ResponseBody:    string(body),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.ErrorMessage = fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
	}
	return result
}

func (w *DeliveryWorker) buildTransport(verifySSL bool) http.RoundTripper {
	if w.transport != nil {
		return w.transport(verifySSL)
	}
	if verifySSL {
		return nil
	}
	return &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
}

type attemptClass int

const (
	attemptDelivered attemptClass = iota
	attemptRetryable
	attemptFailed
)

// classifyAttempt maps the observed HTTP outcome to the delivery state
// machine: 2xx delivers, 429 and 5xx and network errors are retryable,
// every other 4xx is a permanent rejection.
func classifyAttempt(result AttemptResult) attemptClass {
	code := result.HTTPStatusCode
	switch {
	case code >= 200 && code < 300:
		return attemptDelivered
	case code == 0:
		return attemptRetryable
	case code == http.StatusTooManyRequests:
		return attemptRetryable
	case code >= 500:
		return attemptRetryable
	case code >= 400:
		return attemptFailed
	default:
		return attemptRetryable
	}
}

func (w *DeliveryWorker) finishDelivered(ctx context.Context, record DeliveryLog, sub WebhookSubscription, result AttemptResult) (AttemptReport, error) {
	if err := w.logs.MarkDelivered(ctx, record.ID, result); err != nil {
		return AttemptReport{Claimed: true}, err
	}
	if _, err := w.subscription.RecordOutcome(ctx, sub.ID, true, result.At); err != nil {
		w.logWorkerError(ctx, "subscription outcome update failed", record, err)
	}
	outcome := IntegrationOutcome{Success: true, Health: HealthStatusHealthy, At: result.At}
	if err := w.integrations.RecordOutcome(ctx, record.IntegrationID, outcome); err != nil {
		w.logWorkerError(ctx, "integration outcome update failed", record, err)
	}
	w.recordWorkerMetric(ctx, "integrations.delivery.delivered", record, result.HTTPStatusCode)
	return AttemptReport{Claimed: true, Status: DeliveryStatusDelivered, HTTPStatusCode: result.HTTPStatusCode}, nil
}

func (w *DeliveryWorker) finishFailed(ctx context.Context, record DeliveryLog, sub WebhookSubscription, result AttemptResult) (AttemptReport, error) {
	if err := w.logs.MarkFailed(ctx, record.ID, result); err != nil {
		return AttemptReport{Claimed: true}, err
	}

	delivery, err := w.subscription.RecordOutcome(ctx, sub.ID, false, result.At)
	if err != nil {
		w.logWorkerError(ctx, "subscription outcome update failed", record, err)
	}

	health := HealthStatusDegraded
	if err == nil && delivery.ConsecutiveFailures >= w.config.CircuitBreakerThreshold {
		health = HealthStatusError
		reason := fmt.Sprintf("circuit breaker tripped after %d consecutive failures", delivery.ConsecutiveFailures)
		if disableErr := w.subscription.SetActive(ctx, sub.ID, false, reason); disableErr != nil {
			w.logWorkerError(ctx, "circuit breaker disable failed", record, disableErr)
		} else {
			w.recordWorkerMetric(ctx, "integrations.delivery.breaker_tripped", record, result.HTTPStatusCode)
		}
	}

	outcome := IntegrationOutcome{
		Success:      false,
		ErrorMessage: result.ErrorMessage,
		Health:       health,
		At:           result.At,
	}
	if err := w.integrations.RecordOutcome(ctx, record.IntegrationID, outcome); err != nil {
		w.logWorkerError(ctx, "integration outcome update failed", record, err)
	}
	w.recordWorkerMetric(ctx, "integrations.delivery.failed", record, result.HTTPStatusCode)
	return AttemptReport{Claimed: true, Status: DeliveryStatusFailed, HTTPStatusCode: result.HTTPStatusCode}, nil
}

func (w *DeliveryWorker) defaultRetryDelay() time.Duration {
	delays := w.config.Retry.DefaultDelaysSeconds
	if len(delays) == 0 {
		return time.Minute
	}
	return time.Duration(delays[0]) * time.Second
}

func (w *DeliveryWorker) recordWorkerMetric(ctx context.Context, name string, record DeliveryLog, statusCode int) {
	if w.metrics == nil {
		return
	}
	tags := map[string]string{
		"integration_id":  record.IntegrationID,
		"subscription_id": record.SubscriptionID,
		"event_type":      record.EventType,
	}
	if statusCode > 0 {
		tags["http_status"] = fmt.Sprintf("%d", statusCode)
	}
	w.metrics.IncCounter(ctx, name, 1, tags)
}

func (w *DeliveryWorker) logWorkerError(ctx context.Context, message string, record DeliveryLog, err error) {
	if w.logger == nil || err == nil {
		return
	}
	logger := w.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error(message,
		"delivery_log_id", record.ID,
		"subscription_id", record.SubscriptionID,
		"error", err.Error(),
	)
}
