package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DispatchReceipt is returned to the event producer as soon as delivery
// log rows exist. Actual HTTP attempts run in the background.
type DispatchReceipt struct {
	EventType      string
	Matched        int
	DeliveryLogIDs []string
}

// EventDispatcher fans one business event out to every matching
// subscription. Each subscription gets its own delivery log row with a
// fresh request id, a frozen payload, and a signature over exactly the
// bytes that will be sent.
type EventDispatcher struct {
	subscriptions SubscriptionStore
	logs          DeliveryLogStore
	worker        *DeliveryWorker
	config        Config
	logger        Logger
	signer        Signer
	now           NowFunc
	newID         func() string

	sem      chan struct{}
	inflight sync.WaitGroup
}

func NewEventDispatcher(
	subscriptions SubscriptionStore,
	logs DeliveryLogStore,
	worker *DeliveryWorker,
	cfg Config,
	logger Logger,
) *EventDispatcher {
	maxConcurrent := cfg.Dispatch.MaxConcurrentDeliveries
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &EventDispatcher{
		subscriptions: subscriptions,
		logs:          logs,
		worker:        worker,
		config:        cfg,
		logger:        logger,
		signer:        HMACSigner{},
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
		sem:           make(chan struct{}, maxConcurrent),
	}
}

func (d *EventDispatcher) WithSigner(signer Signer) *EventDispatcher {
	if d != nil && signer != nil {
		d.signer = signer
	}
	return d
}

func (d *EventDispatcher) WithNow(now NowFunc) *EventDispatcher {
	if d != nil && now != nil {
		d.now = now
	}
	return d
}

// Dispatch matches the event against active subscriptions, persists one
// pending delivery log per match, and schedules the first attempt of
// each in the background. It returns without waiting for any attempt.
func (d *EventDispatcher) Dispatch(ctx context.Context, event Event) (DispatchReceipt, error) {
	if d == nil {
		return DispatchReceipt{}, fmt.Errorf("core: event dispatcher is nil")
	}
	if err := event.Validate(); err != nil {
		return DispatchReceipt{}, err
	}
	eventType := strings.TrimSpace(event.Type)
	receipt := DispatchReceipt{EventType: eventType}

	subs, err := d.subscriptions.ListActiveForEvent(ctx, eventType)
	if err != nil {
		return DispatchReceipt{}, err
	}
	if len(subs) == 0 {
		return receipt, nil
	}

	now := d.now()
	payload, err := d.marshalEnvelope(eventType, strings.TrimSpace(event.EntityID), event.Payload, now)
	if err != nil {
		return DispatchReceipt{}, err
	}

	for _, sub := range subs {
		matched, matchErr := MatchesFilters(sub.EventFilters, event.Payload)
		if matchErr != nil {
			d.logDispatchError(ctx, "event filter evaluation failed", sub.ID, eventType, matchErr)
			continue
		}
		if !matched {
			continue
		}

		record, createErr := d.createDeliveryLog(ctx, sub, eventType, payload)
		if createErr != nil {
			d.logDispatchError(ctx, "delivery log create failed", sub.ID, eventType, createErr)
			continue
		}
		if err := d.subscriptions.MarkTriggered(ctx, sub.ID, now); err != nil {
			d.logDispatchError(ctx, "subscription trigger update failed", sub.ID, eventType, err)
		}

		receipt.Matched++
		receipt.DeliveryLogIDs = append(receipt.DeliveryLogIDs, record.ID)
		d.scheduleAttempt(ctx, record.ID)
	}
	return receipt, nil
}

// marshalEnvelope produces the canonical outbound bytes. These bytes are
// stored, signed, and sent; they are never re-marshaled on retry.
func (d *EventDispatcher) marshalEnvelope(eventType, entityID string, data map[string]any, now time.Time) ([]byte, error) {
	envelope := Envelope{
		EventType: eventType,
		EntityID:  entityID,
		Timestamp: now.UTC().Format(time.RFC3339),
		Source:    d.config.Source,
		Version:   d.config.EnvelopeVersion,
		Data:      data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("core: envelope marshal failed: %w", err)
	}
	return payload, nil
}

func (d *EventDispatcher) createDeliveryLog(ctx context.Context, sub WebhookSubscription, eventType string, payload []byte) (DeliveryLog, error) {
	requestID := d.newID()
	signature := d.signer.Sign(sub.SecretKey, payload)

	headers := map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   d.config.UserAgent,
		"X-Event-Type": eventType,
		"X-Request-ID": requestID,
	}
	if signature != "" {
		headers[d.signatureHeader(sub)] = signature
	}

	return d.logs.Create(ctx, CreateDeliveryLogInput{
		IntegrationID:    sub.IntegrationID,
		SubscriptionID:   sub.ID,
		EventType:        eventType,
		EndpointURL:      sub.EndpointURL,
		RequestID:        requestID,
		RequestHeaders:   headers,
		RequestPayload:   payload,
		RequestSignature: signature,
	})
}

func (d *EventDispatcher) signatureHeader(sub WebhookSubscription) string {
	if header := strings.TrimSpace(sub.SignatureHeader); header != "" {
		return header
	}
	if header := strings.TrimSpace(d.config.SignatureHeader); header != "" {
		return header
	}
	return "X-GarageReg-Signature"
}

// scheduleAttempt runs the first attempt on a background goroutine,
// bounded by the dispatch semaphore so one slow endpoint cannot absorb
// every worker slot.
func (d *EventDispatcher) scheduleAttempt(ctx context.Context, logID string) {
	if d.worker == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.sem <- struct{}{}
		defer func() { <-d.sem }()
		if _, err := d.worker.Attempt(detached, logID); err != nil {
			d.logDispatchError(detached, "background delivery attempt failed", "", "", err)
		}
	}()
}

// Wait blocks until every scheduled background attempt finishes.
func (d *EventDispatcher) Wait() {
	if d == nil {
		return
	}
	d.inflight.Wait()
}

func (d *EventDispatcher) logDispatchError(ctx context.Context, message, subscriptionID, eventType string, err error) {
	if d.logger == nil || err == nil {
		return
	}
	logger := d.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error(message,
		"subscription_id", subscriptionID,
		"event_type", eventType,
		"error", err.Error(),
	)
}
