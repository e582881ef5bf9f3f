package query

import (
	"strings"

	"github.com/garagereg/go-integrations/core"
)

const (
	TypeGetIntegration    = "integrations.query.integration.get"
	TypeListIntegrations  = "integrations.query.integration.list"
	TypeGetSubscription   = "integrations.query.subscription.get"
	TypeListSubscriptions = "integrations.query.subscription.list"
	TypeGetDeliveryLog    = "integrations.query.delivery_log.get"
	TypeListDeliveryLogs  = "integrations.query.delivery_log.list"
)

type GetIntegrationMessage struct {
	IntegrationID string
}

func (GetIntegrationMessage) Type() string { return TypeGetIntegration }

func (m GetIntegrationMessage) Validate() error {
	if strings.TrimSpace(m.IntegrationID) == "" {
		return queryValidationError("integration_id", "integration id is required")
	}
	return nil
}

type ListIntegrationsMessage struct {
	IncludeInactive bool
}

func (ListIntegrationsMessage) Type() string { return TypeListIntegrations }

func (ListIntegrationsMessage) Validate() error { return nil }

type GetSubscriptionMessage struct {
	SubscriptionID string
}

func (GetSubscriptionMessage) Type() string { return TypeGetSubscription }

func (m GetSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return queryValidationError("subscription_id", "subscription id is required")
	}
	return nil
}

type ListSubscriptionsMessage struct {
	IntegrationID   string
	IncludeInactive bool
}

func (ListSubscriptionsMessage) Type() string { return TypeListSubscriptions }

func (ListSubscriptionsMessage) Validate() error { return nil }

type GetDeliveryLogMessage struct {
	DeliveryLogID string
}

func (GetDeliveryLogMessage) Type() string { return TypeGetDeliveryLog }

func (m GetDeliveryLogMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryLogID) == "" {
		return queryValidationError("delivery_log_id", "delivery log id is required")
	}
	return nil
}

type ListDeliveryLogsMessage struct {
	Filter core.DeliveryLogFilter
}

func (ListDeliveryLogsMessage) Type() string { return TypeListDeliveryLogs }

func (m ListDeliveryLogsMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Filter.Offset < 0 {
		return queryValidationError("offset", "offset must be >= 0")
	}
	return nil
}
