package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/garagereg/go-integrations/core"
)

var (
	_ gocmd.Querier[GetIntegrationMessage, core.Integration]              = (*GetIntegrationQuery)(nil)
	_ gocmd.Querier[ListIntegrationsMessage, []core.Integration]          = (*ListIntegrationsQuery)(nil)
	_ gocmd.Querier[GetSubscriptionMessage, core.WebhookSubscription]     = (*GetSubscriptionQuery)(nil)
	_ gocmd.Querier[ListSubscriptionsMessage, []core.WebhookSubscription] = (*ListSubscriptionsQuery)(nil)
	_ gocmd.Querier[GetDeliveryLogMessage, core.DeliveryLog]              = (*GetDeliveryLogQuery)(nil)
	_ gocmd.Querier[ListDeliveryLogsMessage, core.DeliveryLogPage]        = (*ListDeliveryLogsQuery)(nil)
)
