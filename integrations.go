package integrations

import "github.com/garagereg/go-integrations/core"

type Config = core.Config

type RetryConfig = core.RetryConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type Integration = core.Integration
type WebhookSubscription = core.WebhookSubscription
type DeliveryLog = core.DeliveryLog
type DeliveryLogFilter = core.DeliveryLogFilter
type DeliveryLogPage = core.DeliveryLogPage
type Event = core.Event
type DispatchReceipt = core.DispatchReceipt
type DispatchStats = core.DispatchStats
type SyncRequest = core.SyncRequest
type SyncResult = core.SyncResult
type SyncAdapter = core.SyncAdapter
type IntegrationStore = core.IntegrationStore
type SubscriptionStore = core.SubscriptionStore
type DeliveryLogStore = core.DeliveryLogStore
type AdapterRegistry = core.AdapterRegistry
type RateLimitGate = core.RateLimitGate
type Signer = core.Signer

type CreateIntegrationInput = core.CreateIntegrationInput
type CreateSubscriptionInput = core.CreateSubscriptionInput
type UpdateSubscriptionInput = core.UpdateSubscriptionInput
type TestEndpointInput = core.TestEndpointInput
type TestEndpointResult = core.TestEndpointResult

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithIntegrationStore  = core.WithIntegrationStore
	WithSubscriptionStore = core.WithSubscriptionStore
	WithDeliveryLogStore  = core.WithDeliveryLogStore
	WithAdapterRegistry   = core.WithAdapterRegistry
	WithRateLimitGate     = core.WithRateLimitGate
	WithTransport         = core.WithTransport
	WithNow               = core.WithNow
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
