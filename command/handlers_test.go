package command

import (
	"context"
	"fmt"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/garagereg/go-integrations/core"
)

type stubMutatingService struct {
	createIntegrationFn    func(context.Context, core.CreateIntegrationInput) (core.Integration, error)
	setIntegrationActiveFn func(context.Context, string, bool, string) error
	createSubscriptionFn   func(context.Context, core.CreateSubscriptionInput) (core.WebhookSubscription, error)
	updateSubscriptionFn   func(context.Context, core.UpdateSubscriptionInput) (core.WebhookSubscription, error)
	enableSubscriptionFn   func(context.Context, string) error
	triggerEventFn         func(context.Context, core.Event) (core.DispatchReceipt, error)
	testEndpointFn         func(context.Context, core.TestEndpointInput) (core.TestEndpointResult, error)
	processRetryQueueFn    func(context.Context, int) (core.DispatchStats, error)
	runSyncFn              func(context.Context, core.SyncRequest) (core.SyncResult, error)
}

func (s stubMutatingService) CreateIntegration(ctx context.Context, in core.CreateIntegrationInput) (core.Integration, error) {
	if s.createIntegrationFn == nil {
		return core.Integration{}, fmt.Errorf("unexpected CreateIntegration call")
	}
	return s.createIntegrationFn(ctx, in)
}

func (s stubMutatingService) SetIntegrationActive(ctx context.Context, id string, active bool, reason string) error {
	if s.setIntegrationActiveFn == nil {
		return fmt.Errorf("unexpected SetIntegrationActive call")
	}
	return s.setIntegrationActiveFn(ctx, id, active, reason)
}

func (s stubMutatingService) CreateSubscription(ctx context.Context, in core.CreateSubscriptionInput) (core.WebhookSubscription, error) {
	if s.createSubscriptionFn == nil {
		return core.WebhookSubscription{}, fmt.Errorf("unexpected CreateSubscription call")
	}
	return s.createSubscriptionFn(ctx, in)
}

func (s stubMutatingService) UpdateSubscription(ctx context.Context, in core.UpdateSubscriptionInput) (core.WebhookSubscription, error) {
	if s.updateSubscriptionFn == nil {
		return core.WebhookSubscription{}, fmt.Errorf("unexpected UpdateSubscription call")
	}
	return s.updateSubscriptionFn(ctx, in)
}

func (s stubMutatingService) EnableSubscription(ctx context.Context, id string) error {
	if s.enableSubscriptionFn == nil {
		return fmt.Errorf("unexpected EnableSubscription call")
	}
	return s.enableSubscriptionFn(ctx, id)
}

func (s stubMutatingService) TriggerEvent(ctx context.Context, event core.Event) (core.DispatchReceipt, error) {
	if s.triggerEventFn == nil {
		return core.DispatchReceipt{}, fmt.Errorf("unexpected TriggerEvent call")
	}
	return s.triggerEventFn(ctx, event)
}

func (s stubMutatingService) TestEndpoint(ctx context.Context, in core.TestEndpointInput) (core.TestEndpointResult, error) {
	if s.testEndpointFn == nil {
		return core.TestEndpointResult{}, fmt.Errorf("unexpected TestEndpoint call")
	}
	return s.testEndpointFn(ctx, in)
}

func (s stubMutatingService) ProcessRetryQueue(ctx context.Context, limit int) (core.DispatchStats, error) {
	if s.processRetryQueueFn == nil {
		return core.DispatchStats{}, fmt.Errorf("unexpected ProcessRetryQueue call")
	}
	return s.processRetryQueueFn(ctx, limit)
}

func (s stubMutatingService) RunSync(ctx context.Context, req core.SyncRequest) (core.SyncResult, error) {
	if s.runSyncFn == nil {
		return core.SyncResult{}, fmt.Errorf("unexpected RunSync call")
	}
	return s.runSyncFn(ctx, req)
}

func TestCreateIntegrationCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.Integration{ID: "int_1", Name: "erp-bridge", Type: core.IntegrationTypeERP}
	called := false

	svc := stubMutatingService{
		createIntegrationFn: func(_ context.Context, in core.CreateIntegrationInput) (core.Integration, error) {
			called = true
			if in.Name != "erp-bridge" {
				t.Fatalf("expected erp-bridge name, got %q", in.Name)
			}
			return expected, nil
		},
	}

	cmd := NewCreateIntegrationCommand(svc)
	collector := gocmd.NewResult[core.Integration]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, CreateIntegrationMessage{Input: core.CreateIntegrationInput{
		Name: "erp-bridge",
		Type: core.IntegrationTypeERP,
	}})
	if err != nil {
		t.Fatalf("execute create integration: %v", err)
	}
	if !called {
		t.Fatalf("expected service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.ID != expected.ID || result.Name != expected.Name {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("set integration active", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			setIntegrationActiveFn: func(_ context.Context, id string, active bool, reason string) error {
				called = true
				if id != "int_1" || active || reason != "maintenance" {
					t.Fatalf("unexpected payload: %q %v %q", id, active, reason)
				}
				return nil
			},
		}
		cmd := NewSetIntegrationActiveCommand(svc)
		if err := cmd.Execute(context.Background(), SetIntegrationActiveMessage{
			IntegrationID: "int_1",
			Active:        false,
			Reason:        "maintenance",
		}); err != nil {
			t.Fatalf("execute set active: %v", err)
		}
		if !called {
			t.Fatalf("expected invocation")
		}
	})

	t.Run("enable subscription", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			enableSubscriptionFn: func(_ context.Context, id string) error {
				called = true
				if id != "sub_1" {
					t.Fatalf("unexpected subscription id %q", id)
				}
				return nil
			},
		}
		cmd := NewEnableSubscriptionCommand(svc)
		if err := cmd.Execute(context.Background(), EnableSubscriptionMessage{SubscriptionID: "sub_1"}); err != nil {
			t.Fatalf("execute enable subscription: %v", err)
		}
		if !called {
			t.Fatalf("expected invocation")
		}
	})

	t.Run("trigger event stores receipt", func(t *testing.T) {
		expected := core.DispatchReceipt{EventType: "vehicle.created", Matched: 2, DeliveryLogIDs: []string{"log_1", "log_2"}}
		svc := stubMutatingService{
			triggerEventFn: func(_ context.Context, event core.Event) (core.DispatchReceipt, error) {
				if event.Type != "vehicle.created" {
					t.Fatalf("unexpected event type %q", event.Type)
				}
				return expected, nil
			},
		}
		cmd := NewTriggerEventCommand(svc)
		collector := gocmd.NewResult[core.DispatchReceipt]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, TriggerEventMessage{Event: core.Event{Type: "vehicle.created"}}); err != nil {
			t.Fatalf("execute trigger event: %v", err)
		}
		receipt, ok := collector.Load()
		if !ok {
			t.Fatalf("expected receipt stored")
		}
		if receipt.Matched != 2 || len(receipt.DeliveryLogIDs) != 2 {
			t.Fatalf("unexpected receipt: %#v", receipt)
		}
	})

	t.Run("process retry queue stores stats", func(t *testing.T) {
		svc := stubMutatingService{
			processRetryQueueFn: func(_ context.Context, limit int) (core.DispatchStats, error) {
				if limit != 25 {
					t.Fatalf("unexpected limit %d", limit)
				}
				return core.DispatchStats{Claimed: 3, Delivered: 2, Retried: 1}, nil
			},
		}
		cmd := NewProcessRetryQueueCommand(svc)
		collector := gocmd.NewResult[core.DispatchStats]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, ProcessRetryQueueMessage{Limit: 25}); err != nil {
			t.Fatalf("execute process retry queue: %v", err)
		}
		stats, ok := collector.Load()
		if !ok {
			t.Fatalf("expected stats stored")
		}
		if stats.Claimed != 3 || stats.Delivered != 2 {
			t.Fatalf("unexpected stats: %#v", stats)
		}
	})

	t.Run("run sync stores result", func(t *testing.T) {
		svc := stubMutatingService{
			runSyncFn: func(_ context.Context, req core.SyncRequest) (core.SyncResult, error) {
				if req.IntegrationID != "int_erp" {
					t.Fatalf("unexpected integration id %q", req.IntegrationID)
				}
				return core.SyncResult{Provider: "dynamics", ItemsPushed: 7}, nil
			},
		}
		cmd := NewRunSyncCommand(svc)
		collector := gocmd.NewResult[core.SyncResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, RunSyncMessage{Request: core.SyncRequest{IntegrationID: "int_erp"}}); err != nil {
			t.Fatalf("execute run sync: %v", err)
		}
		result, ok := collector.Load()
		if !ok {
			t.Fatalf("expected sync result stored")
		}
		if result.ItemsPushed != 7 {
			t.Fatalf("unexpected sync result: %#v", result)
		}
	})
}

func TestCommandMessages_Validate(t *testing.T) {
	cases := []struct {
		name    string
		message interface{ Validate() error }
		wantErr bool
	}{
		{"create integration ok", CreateIntegrationMessage{Input: core.CreateIntegrationInput{Name: "x", Type: core.IntegrationTypeWebhook}}, false},
		{"create integration missing name", CreateIntegrationMessage{Input: core.CreateIntegrationInput{Type: core.IntegrationTypeWebhook}}, true},
		{"create integration bad type", CreateIntegrationMessage{Input: core.CreateIntegrationInput{Name: "x", Type: "ftp"}}, true},
		{"create subscription ok", CreateSubscriptionMessage{Input: core.CreateSubscriptionInput{
			IntegrationID:    "int_1",
			EndpointURL:      "https://hooks.example.com",
			SubscribedEvents: []string{"vehicle.created"},
		}}, false},
		{"create subscription no events", CreateSubscriptionMessage{Input: core.CreateSubscriptionInput{
			IntegrationID: "int_1",
			EndpointURL:   "https://hooks.example.com",
		}}, true},
		{"update subscription missing id", UpdateSubscriptionMessage{}, true},
		{"trigger event missing type", TriggerEventMessage{}, true},
		{"test endpoint missing url", TestEndpointMessage{}, true},
		{"process retry queue negative limit", ProcessRetryQueueMessage{Limit: -1}, true},
		{"run sync missing integration", RunSyncMessage{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.message.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
