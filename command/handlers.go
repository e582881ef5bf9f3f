package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/garagereg/go-integrations/core"
)

type MutatingService interface {
	CreateIntegration(ctx context.Context, in core.CreateIntegrationInput) (core.Integration, error)
	SetIntegrationActive(ctx context.Context, id string, active bool, reason string) error
	CreateSubscription(ctx context.Context, in core.CreateSubscriptionInput) (core.WebhookSubscription, error)
	UpdateSubscription(ctx context.Context, in core.UpdateSubscriptionInput) (core.WebhookSubscription, error)
	EnableSubscription(ctx context.Context, id string) error
	TriggerEvent(ctx context.Context, event core.Event) (core.DispatchReceipt, error)
	TestEndpoint(ctx context.Context, in core.TestEndpointInput) (core.TestEndpointResult, error)
	ProcessRetryQueue(ctx context.Context, limit int) (core.DispatchStats, error)
	RunSync(ctx context.Context, req core.SyncRequest) (core.SyncResult, error)
}

type CreateIntegrationCommand struct {
	service MutatingService
}

func NewCreateIntegrationCommand(service MutatingService) *CreateIntegrationCommand {
	return &CreateIntegrationCommand{service: service}
}

func (c *CreateIntegrationCommand) Execute(ctx context.Context, msg CreateIntegrationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: integration service is required")
	}
	out, err := c.service.CreateIntegration(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SetIntegrationActiveCommand struct {
	service MutatingService
}

func NewSetIntegrationActiveCommand(service MutatingService) *SetIntegrationActiveCommand {
	return &SetIntegrationActiveCommand{service: service}
}

func (c *SetIntegrationActiveCommand) Execute(ctx context.Context, msg SetIntegrationActiveMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: integration service is required")
	}
	return c.service.SetIntegrationActive(ctx, msg.IntegrationID, msg.Active, msg.Reason)
}

type CreateSubscriptionCommand struct {
	service MutatingService
}

func NewCreateSubscriptionCommand(service MutatingService) *CreateSubscriptionCommand {
	return &CreateSubscriptionCommand{service: service}
}

func (c *CreateSubscriptionCommand) Execute(ctx context.Context, msg CreateSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.CreateSubscription(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateSubscriptionCommand struct {
	service MutatingService
}

func NewUpdateSubscriptionCommand(service MutatingService) *UpdateSubscriptionCommand {
	return &UpdateSubscriptionCommand{service: service}
}

func (c *UpdateSubscriptionCommand) Execute(ctx context.Context, msg UpdateSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.UpdateSubscription(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type EnableSubscriptionCommand struct {
	service MutatingService
}

func NewEnableSubscriptionCommand(service MutatingService) *EnableSubscriptionCommand {
	return &EnableSubscriptionCommand{service: service}
}

func (c *EnableSubscriptionCommand) Execute(ctx context.Context, msg EnableSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	return c.service.EnableSubscription(ctx, msg.SubscriptionID)
}

type TriggerEventCommand struct {
	service MutatingService
}

func NewTriggerEventCommand(service MutatingService) *TriggerEventCommand {
	return &TriggerEventCommand{service: service}
}

func (c *TriggerEventCommand) Execute(ctx context.Context, msg TriggerEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: event service is required")
	}
	out, err := c.service.TriggerEvent(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type TestEndpointCommand struct {
	service MutatingService
}

func NewTestEndpointCommand(service MutatingService) *TestEndpointCommand {
	return &TestEndpointCommand{service: service}
}

func (c *TestEndpointCommand) Execute(ctx context.Context, msg TestEndpointMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: endpoint test service is required")
	}
	out, err := c.service.TestEndpoint(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ProcessRetryQueueCommand struct {
	service MutatingService
}

func NewProcessRetryQueueCommand(service MutatingService) *ProcessRetryQueueCommand {
	return &ProcessRetryQueueCommand{service: service}
}

func (c *ProcessRetryQueueCommand) Execute(ctx context.Context, msg ProcessRetryQueueMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: retry queue service is required")
	}
	out, err := c.service.ProcessRetryQueue(ctx, msg.Limit)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RunSyncCommand struct {
	service MutatingService
}

func NewRunSyncCommand(service MutatingService) *RunSyncCommand {
	return &RunSyncCommand{service: service}
}

func (c *RunSyncCommand) Execute(ctx context.Context, msg RunSyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.RunSync(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
