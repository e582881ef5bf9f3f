package query

import (
	"context"

	"github.com/garagereg/go-integrations/core"
)

type IntegrationReader interface {
	GetIntegration(ctx context.Context, id string) (core.Integration, error)
	ListIntegrations(ctx context.Context, includeInactive bool) ([]core.Integration, error)
}

type SubscriptionReader interface {
	GetSubscription(ctx context.Context, id string) (core.WebhookSubscription, error)
	ListSubscriptions(ctx context.Context, integrationID string, includeInactive bool) ([]core.WebhookSubscription, error)
}

type DeliveryLogReader interface {
	GetDeliveryLog(ctx context.Context, id string) (core.DeliveryLog, error)
	ListDeliveryLogs(ctx context.Context, filter core.DeliveryLogFilter) (core.DeliveryLogPage, error)
}

type GetIntegrationQuery struct {
	reader IntegrationReader
}

func NewGetIntegrationQuery(reader IntegrationReader) *GetIntegrationQuery {
	return &GetIntegrationQuery{reader: reader}
}

func (q *GetIntegrationQuery) Query(ctx context.Context, msg GetIntegrationMessage) (core.Integration, error) {
	if q == nil || q.reader == nil {
		return core.Integration{}, queryDependencyError("query: integration reader is required")
	}
	return q.reader.GetIntegration(ctx, msg.IntegrationID)
}

type ListIntegrationsQuery struct {
	reader IntegrationReader
}

func NewListIntegrationsQuery(reader IntegrationReader) *ListIntegrationsQuery {
	return &ListIntegrationsQuery{reader: reader}
}

func (q *ListIntegrationsQuery) Query(ctx context.Context, msg ListIntegrationsMessage) ([]core.Integration, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: integration reader is required")
	}
	return q.reader.ListIntegrations(ctx, msg.IncludeInactive)
}

type GetSubscriptionQuery struct {
	reader SubscriptionReader
}

func NewGetSubscriptionQuery(reader SubscriptionReader) *GetSubscriptionQuery {
	return &GetSubscriptionQuery{reader: reader}
}

func (q *GetSubscriptionQuery) Query(ctx context.Context, msg GetSubscriptionMessage) (core.WebhookSubscription, error) {
	if q == nil || q.reader == nil {
		return core.WebhookSubscription{}, queryDependencyError("query: subscription reader is required")
	}
	return q.reader.GetSubscription(ctx, msg.SubscriptionID)
}

type ListSubscriptionsQuery struct {
	reader SubscriptionReader
}

func NewListSubscriptionsQuery(reader SubscriptionReader) *ListSubscriptionsQuery {
	return &ListSubscriptionsQuery{reader: reader}
}

func (q *ListSubscriptionsQuery) Query(
	ctx context.Context,
	msg ListSubscriptionsMessage,
) ([]core.WebhookSubscription, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: subscription reader is required")
	}
	return q.reader.ListSubscriptions(ctx, msg.IntegrationID, msg.IncludeInactive)
}

type GetDeliveryLogQuery struct {
	reader DeliveryLogReader
}

func NewGetDeliveryLogQuery(reader DeliveryLogReader) *GetDeliveryLogQuery {
	return &GetDeliveryLogQuery{reader: reader}
}

func (q *GetDeliveryLogQuery) Query(ctx context.Context, msg GetDeliveryLogMessage) (core.DeliveryLog, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryLog{}, queryDependencyError("query: delivery log reader is required")
	}
	return q.reader.GetDeliveryLog(ctx, msg.DeliveryLogID)
}

type ListDeliveryLogsQuery struct {
	reader DeliveryLogReader
}

func NewListDeliveryLogsQuery(reader DeliveryLogReader) *ListDeliveryLogsQuery {
	return &ListDeliveryLogsQuery{reader: reader}
}

func (q *ListDeliveryLogsQuery) Query(
	ctx context.Context,
	msg ListDeliveryLogsMessage,
) (core.DeliveryLogPage, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryLogPage{}, queryDependencyError("query: delivery log reader is required")
	}
	return q.reader.ListDeliveryLogs(ctx, msg.Filter)
}
