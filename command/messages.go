package command

import (
	"strings"

	"github.com/garagereg/go-integrations/core"
)

const (
	TypeCreateIntegration    = "integrations.command.integration.create"
	TypeSetIntegrationActive = "integrations.command.integration.set_active"
	TypeCreateSubscription   = "integrations.command.subscription.create"
	TypeUpdateSubscription   = "integrations.command.subscription.update"
	TypeEnableSubscription   = "integrations.command.subscription.enable"
	TypeTriggerEvent         = "integrations.command.event.trigger"
	TypeTestEndpoint         = "integrations.command.endpoint.test"
	TypeProcessRetryQueue    = "integrations.command.retry_queue.process"
	TypeRunSync              = "integrations.command.sync.run"
)

type CreateIntegrationMessage struct {
	Input core.CreateIntegrationInput
}

func (CreateIntegrationMessage) Type() string { return TypeCreateIntegration }

func (m CreateIntegrationMessage) Validate() error {
	if strings.TrimSpace(m.Input.Name) == "" {
		return commandValidationError("name", "integration name is required")
	}
	if err := m.Input.Type.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid integration type")
	}
	return nil
}

type SetIntegrationActiveMessage struct {
	IntegrationID string
	Active        bool
	Reason        string
}

func (SetIntegrationActiveMessage) Type() string { return TypeSetIntegrationActive }

func (m SetIntegrationActiveMessage) Validate() error {
	if strings.TrimSpace(m.IntegrationID) == "" {
		return commandValidationError("integration_id", "integration id is required")
	}
	return nil
}

type CreateSubscriptionMessage struct {
	Input core.CreateSubscriptionInput
}

func (CreateSubscriptionMessage) Type() string { return TypeCreateSubscription }

func (m CreateSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.Input.IntegrationID) == "" {
		return commandValidationError("integration_id", "integration id is required")
	}
	if strings.TrimSpace(m.Input.EndpointURL) == "" {
		return commandValidationError("endpoint_url", "endpoint url is required")
	}
	if len(m.Input.SubscribedEvents) == 0 {
		return commandValidationError("subscribed_events", "at least one subscribed event is required")
	}
	return nil
}

type UpdateSubscriptionMessage struct {
	Input core.UpdateSubscriptionInput
}

func (UpdateSubscriptionMessage) Type() string { return TypeUpdateSubscription }

func (m UpdateSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.Input.ID) == "" {
		return commandValidationError("id", "subscription id is required")
	}
	return nil
}

type EnableSubscriptionMessage struct {
	SubscriptionID string
}

func (EnableSubscriptionMessage) Type() string { return TypeEnableSubscription }

func (m EnableSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return commandValidationError("subscription_id", "subscription id is required")
	}
	return nil
}

type TriggerEventMessage struct {
	Event core.Event
}

func (TriggerEventMessage) Type() string { return TypeTriggerEvent }

func (m TriggerEventMessage) Validate() error {
	if err := m.Event.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid event")
	}
	return nil
}

type TestEndpointMessage struct {
	Input core.TestEndpointInput
}

func (TestEndpointMessage) Type() string { return TypeTestEndpoint }

func (m TestEndpointMessage) Validate() error {
	if strings.TrimSpace(m.Input.EndpointURL) == "" {
		return commandValidationError("endpoint_url", "endpoint url is required")
	}
	return nil
}

type ProcessRetryQueueMessage struct {
	Limit int
}

func (ProcessRetryQueueMessage) Type() string { return TypeProcessRetryQueue }

func (m ProcessRetryQueueMessage) Validate() error {
	if m.Limit < 0 {
		return commandValidationError("limit", "retry queue limit cannot be negative")
	}
	return nil
}

type RunSyncMessage struct {
	Request core.SyncRequest
}

func (RunSyncMessage) Type() string { return TypeRunSync }

func (m RunSyncMessage) Validate() error {
	if strings.TrimSpace(m.Request.IntegrationID) == "" {
		return commandValidationError("integration_id", "integration id is required")
	}
	return nil
}
