package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the webhook delivery engine facade. It owns the
// management surface (integrations, subscriptions, delivery logs), the
// event dispatch path, and the retry queue.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	integrationStore  IntegrationStore
	subscriptionStore SubscriptionStore
	deliveryLogStore  DeliveryLogStore
	adapterRegistry   AdapterRegistry
	rateLimitGate     RateLimitGate
	transport         RoundTripperFactory
	now               NowFunc

	worker     *DeliveryWorker
	dispatcher *EventDispatcher
	scheduler  *RetryScheduler
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	IntegrationStore  IntegrationStore
	SubscriptionStore SubscriptionStore
	DeliveryLogStore  DeliveryLogStore
	AdapterRegistry   AdapterRegistry
	RateLimitGate     RateLimitGate
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("integrations", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("integrations"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.adapterRegistry == nil {
		builder.adapterRegistry = NewSyncAdapterRegistry()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	missingStores := builder.integrationStore == nil ||
		builder.subscriptionStore == nil ||
		builder.deliveryLogStore == nil
	if missingStores && builder.repositoryFactory != nil {
		var storeProvider StoreProvider
		if factory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := factory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			storeProvider = built
		} else if direct, ok := builder.repositoryFactory.(StoreProvider); ok {
			storeProvider = direct
		}
		if storeProvider != nil {
			if builder.integrationStore == nil {
				builder.integrationStore = storeProvider.IntegrationStore()
			}
			if builder.subscriptionStore == nil {
				builder.subscriptionStore = storeProvider.SubscriptionStore()
			}
			if builder.deliveryLogStore == nil {
				builder.deliveryLogStore = storeProvider.DeliveryLogStore()
			}
		}
	}

	service := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		integrationStore:  builder.integrationStore,
		subscriptionStore: builder.subscriptionStore,
		deliveryLogStore:  builder.deliveryLogStore,
		adapterRegistry:   builder.adapterRegistry,
		rateLimitGate:     builder.rateLimitGate,
		transport:         builder.transport,
		now:               builder.now,
	}

	if service.integrationStore != nil && service.subscriptionStore != nil && service.deliveryLogStore != nil {
		worker := NewDeliveryWorker(
			service.deliveryLogStore,
			service.subscriptionStore,
			service.integrationStore,
			finalConfig,
			logger,
		).
			WithRateLimitGate(service.rateLimitGate).
			WithTransport(service.transport).
			WithMetricsRecorder(service.metricsRecorder).
			WithNow(service.now)
		service.worker = worker
		service.dispatcher = NewEventDispatcher(
			service.subscriptionStore,
			service.deliveryLogStore,
			worker,
			finalConfig,
			logger,
		).WithNow(service.now)
		service.scheduler = NewRetryScheduler(
			service.deliveryLogStore,
			worker,
			finalConfig,
			logger,
		).
			WithMetricsRecorder(service.metricsRecorder).
			WithNow(service.now)
	}

	return service, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		IntegrationStore:  s.integrationStore,
		SubscriptionStore: s.subscriptionStore,
		DeliveryLogStore:  s.deliveryLogStore,
		AdapterRegistry:   s.adapterRegistry,
		RateLimitGate:     s.rateLimitGate,
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) CreateIntegration(ctx context.Context, in CreateIntegrationInput) (integration Integration, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"integration_name": in.Name,
		"integration_type": string(in.Type),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_integration", err, fields)
	}()

	if s == nil || s.integrationStore == nil {
		err = s.mapError(fmt.Errorf("core: integration store is required"))
		return Integration{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		err = s.mapError(fmt.Errorf("core: integration name is required"))
		return Integration{}, err
	}
	if err = in.Type.Validate(); err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	if in.RateLimitPerMinute < 0 {
		err = s.mapError(fmt.Errorf("core: invalid rate limit: %d", in.RateLimitPerMinute))
		return Integration{}, err
	}

	integration, err = s.integrationStore.Create(ctx, in)
	if err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	fields["integration_id"] = integration.ID
	return integration, nil
}

func (s *Service) GetIntegration(ctx context.Context, id string) (Integration, error) {
	if s == nil || s.integrationStore == nil {
		return Integration{}, s.mapError(fmt.Errorf("core: integration store is required"))
	}
	integration, err := s.integrationStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Integration{}, s.mapError(err)
	}
	return integration, nil
}

func (s *Service) ListIntegrations(ctx context.Context, includeInactive bool) ([]Integration, error) {
	if s == nil || s.integrationStore == nil {
		return nil, s.mapError(fmt.Errorf("core: integration store is required"))
	}
	integrations, err := s.integrationStore.List(ctx, includeInactive)
	if err != nil {
		return nil, s.mapError(err)
	}
	return integrations, nil
}

func (s *Service) SetIntegrationActive(ctx context.Context, id string, active bool, reason string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"integration_id": id,
		"active":         active,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "set_integration_active", err, fields)
	}()

	if s == nil || s.integrationStore == nil {
		err = s.mapError(fmt.Errorf("core: integration store is required"))
		return err
	}
	if err = s.integrationStore.SetActive(ctx, strings.TrimSpace(id), active, reason); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) CreateSubscription(ctx context.Context, in CreateSubscriptionInput) (subscription WebhookSubscription, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"integration_id": in.IntegrationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_subscription", err, fields)
	}()

	if s == nil || s.subscriptionStore == nil || s.integrationStore == nil {
		err = s.mapError(fmt.Errorf("core: subscription and integration stores are required"))
		return WebhookSubscription{}, err
	}
	if err = s.validateEndpointURL(in.EndpointURL); err != nil {
		err = s.mapError(err)
		return WebhookSubscription{}, err
	}
	if len(in.SubscribedEvents) == 0 {
		err = s.mapError(fmt.Errorf("core: at least one subscribed event is required"))
		return WebhookSubscription{}, err
	}
	if err = ValidateFilters(in.EventFilters); err != nil {
		err = s.mapError(err)
		return WebhookSubscription{}, err
	}
	if _, err = s.integrationStore.Get(ctx, strings.TrimSpace(in.IntegrationID)); err != nil {
		err = s.mapError(err)
		return WebhookSubscription{}, err
	}

	s.applySubscriptionDefaults(&in)
	subscription, err = s.subscriptionStore.Create(ctx, in)
	if err != nil {
		err = s.mapError(err)
		return WebhookSubscription{}, err
	}
	fields["subscription_id"] = subscription.ID
	return subscription, nil
}

func (s *Service) applySubscriptionDefaults(in *CreateSubscriptionInput) {
	if in.MaxRetries <= 0 {
		in.MaxRetries = s.config.Retry.MaxRetries
	}
	if len(in.RetryDelays) == 0 {
		in.RetryDelays = append([]int(nil), s.config.Retry.DefaultDelaysSeconds...)
	}
	if in.TimeoutSeconds <= 0 {
		in.TimeoutSeconds = s.config.DefaultTimeoutSeconds
	}
	if strings.TrimSpace(in.SignatureHeader) == "" {
		in.SignatureHeader = s.config.SignatureHeader
	}
	if in.VerifySSL == nil {
		verify := true
		in.VerifySSL = &verify
	}
}

func (s *Service) UpdateSubscription(ctx context.Context, in UpdateSubscriptionInput) (subscription WebhookSubscription, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"subscription_id": in.ID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "update_subscription", err, fields)
	}()

	if s == nil || s.subscriptionStore == nil {
		err = s.mapError(fmt.Errorf("core: subscription store is required"))
		return WebhookSubscription{}, err
	}
	if strings.TrimSpace(in.ID) == "" {
		err = s.mapError(fmt.Errorf("core: subscription id is required"))
		return WebhookSubscription{}, err
	}
	if strings.TrimSpace(in.EndpointURL) != "" {
		if err = s.validateEndpointURL(in.EndpointURL); err != nil {
			err = s.mapError(err)
			return WebhookSubscription{}, err
		}
	}
	if in.EventFilters != nil {
		if err = ValidateFilters(in.EventFilters); err != nil {
			err = s.mapError(err)
			return WebhookSubscription{}, err
		}
	}

	subscription, err = s.subscriptionStore.Update(ctx, in)
	if err != nil {
		err = s.mapError(err)
		return WebhookSubscription{}, err
	}
	return subscription, nil
}

func (s *Service) GetSubscription(ctx context.Context, id string) (WebhookSubscription, error) {
	if s == nil || s.subscriptionStore == nil {
		return WebhookSubscription{}, s.mapError(fmt.Errorf("core: subscription store is required"))
	}
	subscription, err := s.subscriptionStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return WebhookSubscription{}, s.mapError(err)
	}
	return subscription, nil
}

func (s *Service) ListSubscriptions(ctx context.Context, integrationID string, includeInactive bool) ([]WebhookSubscription, error) {
	if s == nil || s.subscriptionStore == nil {
		return nil, s.mapError(fmt.Errorf("core: subscription store is required"))
	}
	subscriptions, err := s.subscriptionStore.List(ctx, strings.TrimSpace(integrationID), includeInactive)
	if err != nil {
		return nil, s.mapError(err)
	}
	return subscriptions, nil
}

// EnableSubscription re-enables a subscription, typically after a
// circuit breaker trip. The store resets consecutive failures when a
// subscription transitions back to active.
func (s *Service) EnableSubscription(ctx context.Context, id string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"subscription_id": id,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "enable_subscription", err, fields)
	}()

	if s == nil || s.subscriptionStore == nil {
		err = s.mapError(fmt.Errorf("core: subscription store is required"))
		return err
	}
	if err = s.subscriptionStore.SetActive(ctx, strings.TrimSpace(id), true, "manually re-enabled"); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// TriggerEvent fans an event out to matching subscriptions. It returns
// as soon as delivery log rows exist; attempts run in the background.
func (s *Service) TriggerEvent(ctx context.Context, event Event) (receipt DispatchReceipt, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"event_type": event.Type,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "trigger_event", err, fields)
	}()

	if s == nil || s.dispatcher == nil {
		err = s.mapError(fmt.Errorf("core: event dispatcher is not configured"))
		return DispatchReceipt{}, err
	}
	receipt, err = s.dispatcher.Dispatch(ctx, event)
	if err != nil {
		err = s.mapError(err)
		return DispatchReceipt{}, err
	}
	fields["matched"] = receipt.Matched
	return receipt, nil
}

// TestEndpoint sends one synchronous signed probe to the given URL.
// No delivery log is written and no counters move.
func (s *Service) TestEndpoint(ctx context.Context, in TestEndpointInput) (result TestEndpointResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"endpoint_url": in.EndpointURL,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "test_endpoint", err, fields)
	}()

	if s == nil {
		return TestEndpointResult{}, fmt.Errorf("core: service is nil")
	}
	if err = s.validateEndpointURL(in.EndpointURL); err != nil {
		err = s.mapError(err)
		return TestEndpointResult{}, err
	}

	eventType := strings.TrimSpace(in.EventType)
	if eventType == "" {
		eventType = "connection.test"
	}
	data := in.Payload
	if data == nil {
		data = map[string]any{"message": "connection test"}
	}
	envelope := Envelope{
		EventType: eventType,
		Timestamp: s.now().Format(time.RFC3339),
		Source:    s.config.Source,
		Version:   s.config.EnvelopeVersion,
		Data:      data,
	}
	payload, marshalErr := json.Marshal(envelope)
	if marshalErr != nil {
		err = s.mapError(marshalErr)
		return TestEndpointResult{}, err
	}

	timeout := time.Duration(in.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(s.config.DefaultTimeoutSeconds) * time.Second
	}
	verifySSL := true
	if in.VerifySSL != nil {
		verifySSL = *in.VerifySSL
	}
	var roundTripper http.RoundTripper
	if s.transport != nil {
		roundTripper = s.transport(verifySSL)
	}
	client := &http.Client{Timeout: timeout, Transport: roundTripper}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSpace(in.EndpointURL), bytes.NewReader(payload))
	if reqErr != nil {
		err = s.mapError(reqErr)
		return TestEndpointResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("X-Event-Type", eventType)
	if signature := SignPayload(in.SecretKey, payload); signature != "" {
		req.Header.Set(s.config.SignatureHeader, signature)
	}

	sentAt := time.Now()
	resp, doErr := client.Do(req)
	if doErr != nil {
		return TestEndpointResult{
			Success:      false,
			DurationMs:   time.Since(sentAt).Milliseconds(),
			ErrorMessage: doErr.Error(),
		}, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxStoredResponseBytes))

	result = TestEndpointResult{
		Success:        resp.StatusCode >= 200 && resp.StatusCode < 300,
		HTTPStatusCode: resp.StatusCode,
		DurationMs:     time.Since(sentAt).Milliseconds(),
		ResponseBody:   string(body),
	}
	if !result.Success {
		result.ErrorMessage = fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
	}
	fields["http_status"] = resp.StatusCode
	return result, nil
}

func (s *Service) GetDeliveryLog(ctx context.Context, id string) (DeliveryLog, error) {
	if s == nil || s.deliveryLogStore == nil {
		return DeliveryLog{}, s.mapError(fmt.Errorf("core: delivery log store is required"))
	}
	record, err := s.deliveryLogStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return DeliveryLog{}, s.mapError(err)
	}
	return record, nil
}

func (s *Service) ListDeliveryLogs(ctx context.Context, filter DeliveryLogFilter) (DeliveryLogPage, error) {
	if s == nil || s.deliveryLogStore == nil {
		return DeliveryLogPage{}, s.mapError(fmt.Errorf("core: delivery log store is required"))
	}
	page, err := s.deliveryLogStore.List(ctx, filter)
	if err != nil {
		return DeliveryLogPage{}, s.mapError(err)
	}
	return page, nil
}

// ProcessRetryQueue runs one scheduler pass over due retries.
func (s *Service) ProcessRetryQueue(ctx context.Context, limit int) (stats DispatchStats, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "process_retry_queue", err, fields)
	}()

	if s == nil || s.scheduler == nil {
		err = s.mapError(fmt.Errorf("core: retry scheduler is not configured"))
		return DispatchStats{}, err
	}
	stats, err = s.scheduler.ProcessDue(ctx, limit)
	if err != nil {
		err = s.mapError(err)
		return DispatchStats{}, err
	}
	fields["claimed"] = stats.Claimed
	fields["delivered"] = stats.Delivered
	fields["retried"] = stats.Retried
	fields["failed"] = stats.Failed
	return stats, nil
}

// StartRetryScheduler blocks running the periodic retry loop until ctx
// is canceled.
func (s *Service) StartRetryScheduler(ctx context.Context) error {
	if s == nil || s.scheduler == nil {
		return s.mapError(fmt.Errorf("core: retry scheduler is not configured"))
	}
	return s.scheduler.Run(ctx)
}

// RunSync executes one synchronization pass through the registered
// adapter for the integration's provider.
func (s *Service) RunSync(ctx context.Context, req SyncRequest) (result SyncResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"integration_id": req.IntegrationID,
		"entity_type":    req.EntityType,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "run_sync", err, fields)
	}()

	if s == nil || s.integrationStore == nil {
		err = s.mapError(fmt.Errorf("core: integration store is required"))
		return SyncResult{}, err
	}
	integration, err := s.integrationStore.Get(ctx, strings.TrimSpace(req.IntegrationID))
	if err != nil {
		err = s.mapError(err)
		return SyncResult{}, err
	}
	if integration.Type != IntegrationTypeERP {
		err = s.mapError(fmt.Errorf("core: integration %s is not an erp integration", integration.ID))
		return SyncResult{}, err
	}
	if !integration.IsActive {
		err = s.mapError(fmt.Errorf("core: integration %s is disabled", integration.ID))
		return SyncResult{}, err
	}

	adapter, ok := s.adapterRegistry.Get(integration.Provider)
	if !ok {
		err = s.mapError(fmt.Errorf("core: adapter not registered for provider %q", integration.Provider))
		return SyncResult{}, err
	}

	result, syncErr := adapter.Sync(ctx, req)
	finishedAt := s.now()
	outcome := IntegrationOutcome{
		Success: syncErr == nil,
		Health:  HealthStatusHealthy,
		At:      finishedAt,
	}
	if syncErr != nil {
		outcome.Health = HealthStatusError
		outcome.ErrorMessage = syncErr.Error()
	}
	if recordErr := s.integrationStore.RecordOutcome(ctx, integration.ID, outcome); recordErr != nil {
		s.logError(ctx, "integration outcome update failed", map[string]any{
			"integration_id": integration.ID,
			"error":          recordErr.Error(),
		})
	}
	if syncErr != nil {
		err = s.mapError(syncErr)
		return SyncResult{}, err
	}
	fields["items_pushed"] = result.ItemsPushed
	fields["items_failed"] = result.ItemsFailed
	return result, nil
}

// RegisterAdapter adds an ERP sync adapter to the registry.
func (s *Service) RegisterAdapter(adapter SyncAdapter) error {
	if s == nil || s.adapterRegistry == nil {
		return fmt.Errorf("core: adapter registry is not configured")
	}
	return s.adapterRegistry.Register(adapter)
}

// WaitForDeliveries blocks until all background delivery attempts
// scheduled so far have finished. Intended for tests and shutdown.
func (s *Service) WaitForDeliveries() {
	if s == nil || s.dispatcher == nil {
		return
	}
	s.dispatcher.Wait()
}

func (s *Service) validateEndpointURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("core: endpoint url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("core: invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("core: invalid endpoint url scheme: %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("core: invalid endpoint url: missing host")
	}
	return nil
}
