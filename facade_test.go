package integrations

import (
	"context"
	"testing"

	integrationscommand "github.com/garagereg/go-integrations/command"
	"github.com/garagereg/go-integrations/core"
	integrationsquery "github.com/garagereg/go-integrations/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.CreateIntegration == nil || commands.TriggerEvent == nil || commands.ProcessRetryQueue == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetIntegration == nil || queries.ListDeliveryLogs == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().SetIntegrationActive.Execute(context.Background(), integrationscommand.SetIntegrationActiveMessage{
		IntegrationID: "int_1",
		Active:        false,
		Reason:        "maintenance",
	}); err != nil {
		t.Fatalf("execute set-active command: %v", err)
	}
	if svc.lastSetActiveID != "int_1" || svc.lastSetActiveReason != "maintenance" {
		t.Fatalf("unexpected set-active delegation payload")
	}

	record, err := facade.Queries().GetDeliveryLog.Query(context.Background(), integrationsquery.GetDeliveryLogMessage{
		DeliveryLogID: "log_1",
	})
	if err != nil {
		t.Fatalf("query delivery log: %v", err)
	}
	if record.ID != "log_1" || record.Status != core.DeliveryStatusDelivered {
		t.Fatalf("unexpected delivery log query result: %#v", record)
	}

	page, err := facade.Queries().ListDeliveryLogs.Query(context.Background(), integrationsquery.ListDeliveryLogsMessage{
		Filter: core.DeliveryLogFilter{Status: core.DeliveryStatusFailed, Limit: 20},
	})
	if err != nil {
		t.Fatalf("query list delivery logs: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("unexpected delivery log page result: %#v", page)
	}
}

func TestNewFacade_DeliveryLogReaderOverride(t *testing.T) {
	svc := &stubFacadeService{}
	replica := &stubDeliveryLogReplica{}

	facade, err := NewFacade(svc, WithDeliveryLogReader(replica))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if _, err := facade.Queries().GetDeliveryLog.Query(context.Background(), integrationsquery.GetDeliveryLogMessage{
		DeliveryLogID: "log_1",
	}); err != nil {
		t.Fatalf("query delivery log via replica: %v", err)
	}
	if replica.getCalls != 1 {
		t.Fatalf("expected replica reader to serve delivery log queries")
	}
	if svc.getDeliveryLogCalls != 0 {
		t.Fatalf("expected service reader to be bypassed")
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

type stubFacadeService struct {
	lastSetActiveID     string
	lastSetActiveReason string
	getDeliveryLogCalls int
}

func (s *stubFacadeService) CreateIntegration(context.Context, core.CreateIntegrationInput) (core.Integration, error) {
	return core.Integration{ID: "int_1"}, nil
}

func (s *stubFacadeService) SetIntegrationActive(_ context.Context, id string, _ bool, reason string) error {
	s.lastSetActiveID = id
	s.lastSetActiveReason = reason
	return nil
}

func (s *stubFacadeService) CreateSubscription(context.Context, core.CreateSubscriptionInput) (core.WebhookSubscription, error) {
	return core.WebhookSubscription{ID: "sub_1"}, nil
}

func (s *stubFacadeService) UpdateSubscription(context.Context, core.UpdateSubscriptionInput) (core.WebhookSubscription, error) {
	return core.WebhookSubscription{ID: "sub_1"}, nil
}

func (s *stubFacadeService) EnableSubscription(context.Context, string) error {
	return nil
}

func (s *stubFacadeService) TriggerEvent(_ context.Context, event core.Event) (core.DispatchReceipt, error) {
	return core.DispatchReceipt{EventType: event.Type, Matched: 1}, nil
}

func (s *stubFacadeService) TestEndpoint(context.Context, core.TestEndpointInput) (core.TestEndpointResult, error) {
	return core.TestEndpointResult{Success: true, HTTPStatusCode: 200}, nil
}

func (s *stubFacadeService) ProcessRetryQueue(context.Context, int) (core.DispatchStats, error) {
	return core.DispatchStats{Claimed: 1, Delivered: 1}, nil
}

func (s *stubFacadeService) RunSync(context.Context, core.SyncRequest) (core.SyncResult, error) {
	return core.SyncResult{Provider: "erp"}, nil
}

func (s *stubFacadeService) GetIntegration(_ context.Context, id string) (core.Integration, error) {
	return core.Integration{ID: id}, nil
}

func (s *stubFacadeService) ListIntegrations(context.Context, bool) ([]core.Integration, error) {
	return []core.Integration{{ID: "int_1"}}, nil
}

func (s *stubFacadeService) GetSubscription(_ context.Context, id string) (core.WebhookSubscription, error) {
	return core.WebhookSubscription{ID: id}, nil
}

func (s *stubFacadeService) ListSubscriptions(context.Context, string, bool) ([]core.WebhookSubscription, error) {
	return []core.WebhookSubscription{{ID: "sub_1"}}, nil
}

func (s *stubFacadeService) GetDeliveryLog(_ context.Context, id string) (core.DeliveryLog, error) {
	s.getDeliveryLogCalls++
	return core.DeliveryLog{ID: id, Status: core.DeliveryStatusDelivered}, nil
}

func (s *stubFacadeService) ListDeliveryLogs(context.Context, core.DeliveryLogFilter) (core.DeliveryLogPage, error) {
	return core.DeliveryLogPage{Total: 1, Logs: []core.DeliveryLog{{ID: "log_1"}}}, nil
}

type stubDeliveryLogReplica struct {
	getCalls int
}

func (s *stubDeliveryLogReplica) GetDeliveryLog(_ context.Context, id string) (core.DeliveryLog, error) {
	s.getCalls++
	return core.DeliveryLog{ID: id, Status: core.DeliveryStatusDelivered}, nil
}

func (s *stubDeliveryLogReplica) ListDeliveryLogs(context.Context, core.DeliveryLogFilter) (core.DeliveryLogPage, error) {
	return core.DeliveryLogPage{}, nil
}

var _ CommandQueryService = (*stubFacadeService)(nil)
