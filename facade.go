package integrations

import (
	"fmt"

	integrationscommand "github.com/garagereg/go-integrations/command"
	integrationsquery "github.com/garagereg/go-integrations/query"
)

// CommandQueryService is what the facade needs from the engine: the full
// mutating surface plus the three read surfaces. *core.Service satisfies it.
type CommandQueryService interface {
	integrationscommand.MutatingService
	integrationsquery.IntegrationReader
	integrationsquery.SubscriptionReader
	integrationsquery.DeliveryLogReader
}

type Commands struct {
	CreateIntegration    *integrationscommand.CreateIntegrationCommand
	SetIntegrationActive *integrationscommand.SetIntegrationActiveCommand
	CreateSubscription   *integrationscommand.CreateSubscriptionCommand
	UpdateSubscription   *integrationscommand.UpdateSubscriptionCommand
	EnableSubscription   *integrationscommand.EnableSubscriptionCommand
	TriggerEvent         *integrationscommand.TriggerEventCommand
	TestEndpoint         *integrationscommand.TestEndpointCommand
	ProcessRetryQueue    *integrationscommand.ProcessRetryQueueCommand
	RunSync              *integrationscommand.RunSyncCommand
}

type Queries struct {
	GetIntegration    *integrationsquery.GetIntegrationQuery
	ListIntegrations  *integrationsquery.ListIntegrationsQuery
	GetSubscription   *integrationsquery.GetSubscriptionQuery
	ListSubscriptions *integrationsquery.ListSubscriptionsQuery
	GetDeliveryLog    *integrationsquery.GetDeliveryLogQuery
	ListDeliveryLogs  *integrationsquery.ListDeliveryLogsQuery
}

// Facade bundles command and query wrappers around one engine instance so
// hosts can bind them to whatever transport they run.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	deliveryLogReader integrationsquery.DeliveryLogReader
}

// WithDeliveryLogReader routes delivery log queries to a dedicated reader,
// for hosts that serve log history from a replica.
func WithDeliveryLogReader(reader integrationsquery.DeliveryLogReader) FacadeOption {
	return func(options *facadeOptions) {
		options.deliveryLogReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	logReader := cfg.deliveryLogReader
	if logReader == nil {
		logReader = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateIntegration:    integrationscommand.NewCreateIntegrationCommand(service),
		SetIntegrationActive: integrationscommand.NewSetIntegrationActiveCommand(service),
		CreateSubscription:   integrationscommand.NewCreateSubscriptionCommand(service),
		UpdateSubscription:   integrationscommand.NewUpdateSubscriptionCommand(service),
		EnableSubscription:   integrationscommand.NewEnableSubscriptionCommand(service),
		TriggerEvent:         integrationscommand.NewTriggerEventCommand(service),
		TestEndpoint:         integrationscommand.NewTestEndpointCommand(service),
		ProcessRetryQueue:    integrationscommand.NewProcessRetryQueueCommand(service),
		RunSync:              integrationscommand.NewRunSyncCommand(service),
	}
	facade.queries = Queries{
		GetIntegration:    integrationsquery.NewGetIntegrationQuery(service),
		ListIntegrations:  integrationsquery.NewListIntegrationsQuery(service),
		GetSubscription:   integrationsquery.NewGetSubscriptionQuery(service),
		ListSubscriptions: integrationsquery.NewListSubscriptionsQuery(service),
		GetDeliveryLog:    integrationsquery.NewGetDeliveryLogQuery(logReader),
		ListDeliveryLogs:  integrationsquery.NewListDeliveryLogsQuery(logReader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
