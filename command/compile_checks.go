package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateIntegrationMessage]    = (*CreateIntegrationCommand)(nil)
	_ gocmd.Commander[SetIntegrationActiveMessage] = (*SetIntegrationActiveCommand)(nil)
	_ gocmd.Commander[CreateSubscriptionMessage]   = (*CreateSubscriptionCommand)(nil)
	_ gocmd.Commander[UpdateSubscriptionMessage]   = (*UpdateSubscriptionCommand)(nil)
	_ gocmd.Commander[EnableSubscriptionMessage]   = (*EnableSubscriptionCommand)(nil)
	_ gocmd.Commander[TriggerEventMessage]         = (*TriggerEventCommand)(nil)
	_ gocmd.Commander[TestEndpointMessage]         = (*TestEndpointCommand)(nil)
	_ gocmd.Commander[ProcessRetryQueueMessage]    = (*ProcessRetryQueueCommand)(nil)
	_ gocmd.Commander[RunSyncMessage]              = (*RunSyncCommand)(nil)
)
