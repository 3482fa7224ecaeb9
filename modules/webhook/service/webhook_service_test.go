package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesflow/core/cache"
	"salesflow/core/config"
	"salesflow/core/constants"
	"salesflow/core/errors"
	integrationDto "salesflow/modules/integration/dto"
	integrationEntity "salesflow/modules/integration/entity"
	"salesflow/modules/provider"
	syncService "salesflow/modules/sync/service"
)

// ---- fakes ----

type fakeSyncService struct {
	applied  []*provider.ProviderEvent
	runCalls int
	runErr   *errors.AppError
	applyErr error
}

func (f *fakeSyncService) RunSync(ctx context.Context, integrationID uuid.UUID) (*syncService.SyncResult, *errors.AppError) {
	f.runCalls++
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &syncService.SyncResult{}, nil
}

func (f *fakeSyncService) ApplyProviderEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, pe *provider.ProviderEvent) (string, error) {
	if f.applyErr != nil {
		return "", f.applyErr
	}
	f.applied = append(f.applied, pe)
	return "created", nil
}

type fakeIntegRepo struct {
	integrations []*integrationEntity.CalendarIntegration
}

func (f *fakeIntegRepo) Create(ctx context.Context, integ *integrationEntity.CalendarIntegration) (*integrationEntity.CalendarIntegration, error) {
	return integ, nil
}

func (f *fakeIntegRepo) GetByID(ctx context.Context, id uuid.UUID) (*integrationEntity.CalendarIntegration, error) {
	for _, integ := range f.integrations {
		if integ.ID == id {
			return integ, nil
		}
	}
	return nil, nil
}

func (f *fakeIntegRepo) GetActiveByUserAndProvider(ctx context.Context, companyID, userID uuid.UUID, provider string) (*integrationEntity.CalendarIntegration, error) {
	return nil, nil
}

func (f *fakeIntegRepo) GetActiveByCompany(ctx context.Context, companyID uuid.UUID) ([]integrationEntity.CalendarIntegration, error) {
	return nil, nil
}

func (f *fakeIntegRepo) GetAllActive(ctx context.Context) ([]integrationEntity.CalendarIntegration, error) {
	return nil, nil
}

func (f *fakeIntegRepo) GetBySubscriptionID(ctx context.Context, provider, subscriptionID string) (*integrationEntity.CalendarIntegration, error) {
	for _, integ := range f.integrations {
		if integ.Provider == provider && integ.WebhookSubscriptionID != nil && *integ.WebhookSubscriptionID == subscriptionID {
			return integ, nil
		}
	}
	return nil, nil
}

func (f *fakeIntegRepo) GetByAccount(ctx context.Context, provider, accountID, accountEmail string) (*integrationEntity.CalendarIntegration, error) {
	for _, integ := range f.integrations {
		if integ.Provider != provider {
			continue
		}
		if (accountID != "" && integ.ProviderAccountID == accountID) ||
			(accountEmail != "" && integ.ProviderAccountEmail == accountEmail) {
			return integ, nil
		}
	}
	return nil, nil
}

func (f *fakeIntegRepo) GetByParticipantEmail(ctx context.Context, provider, email string) (*integrationEntity.CalendarIntegration, error) {
	return nil, nil
}

func (f *fakeIntegRepo) UpdateTokens(ctx context.Context, integ *integrationEntity.CalendarIntegration) error {
	return nil
}

func (f *fakeIntegRepo) UpdateWebhookSubscription(ctx context.Context, id uuid.UUID, subscriptionID *string, expiresAt *time.Time) error {
	return nil
}

func (f *fakeIntegRepo) UpdateSyncState(ctx context.Context, id uuid.UUID, cursor *string, syncedAt time.Time, syncErr *string) error {
	return nil
}

func (f *fakeIntegRepo) MarkNeedsReauth(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeIntegRepo) Deactivate(ctx context.Context, id uuid.UUID) error { return nil }

type noopIntegService struct{}

func (noopIntegService) GetConnectURL(ctx context.Context, companyID, userID uuid.UUID, providerName, returnTo string) (string, *errors.AppError) {
	return "", nil
}

func (noopIntegService) HandleCallback(ctx context.Context, providerName, code, rawState string) (string, *errors.Warning, *errors.AppError) {
	return "", nil, nil
}

func (noopIntegService) List(ctx context.Context, companyID uuid.UUID) ([]integrationDto.IntegrationResponse, *errors.AppError) {
	return nil, nil
}

func (noopIntegService) Disconnect(ctx context.Context, companyID, userID uuid.UUID, providerName string) *errors.AppError {
	return nil
}

func (noopIntegService) EnsureValidToken(ctx context.Context, integ *integrationEntity.CalendarIntegration) *errors.AppError {
	return nil
}

func (noopIntegService) RenewWebhookSubscriptions(ctx context.Context) error { return nil }

// memoryCache dedupes delivery ids the way the redis cache does.
type memoryCache struct {
	seen map[string]bool
}

func newMemoryCache() *memoryCache { return &memoryCache{seen: make(map[string]bool)} }

func (c *memoryCache) MarkDeliveryProcessed(ctx context.Context, deliveryID string) (bool, error) {
	if c.seen[deliveryID] {
		return false, nil
	}
	c.seen[deliveryID] = true
	return true, nil
}

func (c *memoryCache) AcquireSyncLock(ctx context.Context, integrationID string) (bool, error) {
	return true, nil
}

func (c *memoryCache) ReleaseSyncLock(ctx context.Context, integrationID string) error { return nil }

func (c *memoryCache) Close() error { return nil }

// stubAdapter returns canned verify/parse/fetch results.
type stubAdapter struct {
	name      string
	verifyErr error
	change    *provider.NormalizedChange
	parseErr  error
	getEvents map[string]*provider.ProviderEvent
}

func (s *stubAdapter) Provider() string { return s.name }

func (s *stubAdapter) ExchangeAuthCode(ctx context.Context, code string) (*provider.TokenSet, *provider.AccountProfile, error) {
	return nil, nil, nil
}

func (s *stubAdapter) RefreshAccessToken(ctx context.Context, refreshToken string) (*provider.TokenSet, error) {
	return nil, nil
}

func (s *stubAdapter) ListEvents(ctx context.Context, integ *integrationEntity.CalendarIntegration, q provider.ListQuery) (*provider.ListResult, error) {
	return &provider.ListResult{}, nil
}

func (s *stubAdapter) GetEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, externalID string) (*provider.ProviderEvent, error) {
	ev, ok := s.getEvents[externalID]
	if !ok {
		return nil, errors.NewAppError(errors.ErrNotFound, "event not found", nil)
	}
	return ev, nil
}

func (s *stubAdapter) CreateEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, ev *provider.ProviderEvent) (string, error) {
	return "", nil
}

func (s *stubAdapter) CancelEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, externalID string) *errors.Warning {
	return nil
}

func (s *stubAdapter) CreateWebhookSubscription(ctx context.Context, integ *integrationEntity.CalendarIntegration, callbackURL string) (string, *time.Time, *errors.Warning) {
	return "", nil, nil
}

func (s *stubAdapter) DeleteWebhookSubscription(ctx context.Context, integ *integrationEntity.CalendarIntegration) *errors.Warning {
	return nil
}

func (s *stubAdapter) VerifyWebhookSignature(body []byte, headers http.Header, secret string) error {
	return s.verifyErr
}

func (s *stubAdapter) ParseWebhookPayload(body []byte, headers http.Header) (*provider.NormalizedChange, error) {
	if s.parseErr != nil {
		return nil, s.parseErr
	}
	return s.change, nil
}

// ---- helpers ----

func webhookTestConfig(secret string) *config.Config {
	return &config.Config{
		App:    config.AppConfig{BaseURL: "http://localhost:7070", DefaultTimezone: "UTC"},
		Google: config.ProviderConfig{WebhookSecret: secret},
	}
}

func subscribedIntegration(subscriptionID string) *integrationEntity.CalendarIntegration {
	integ := &integrationEntity.CalendarIntegration{
		CompanyID:            uuid.New(),
		UserID:               uuid.New(),
		Provider:             constants.ProviderGoogleCalendar,
		AccessToken:          "at",
		ProviderAccountEmail: "rep@example.com",
		ProviderAccountID:    "acct-1",
		IsActive:             true,
	}
	integ.ID = uuid.New()
	if subscriptionID != "" {
		integ.WebhookSubscriptionID = &subscriptionID
	}
	return integ
}

func inlineChange(subscriptionID string) *provider.NormalizedChange {
	start := time.Now().Add(24 * time.Hour)
	return &provider.NormalizedChange{
		DeliveryID:     "delivery-1",
		SubscriptionID: subscriptionID,
		ExternalID:     "ext-1",
		Event: &provider.ProviderEvent{
			ExternalID: "ext-1",
			Title:      "Discovery call",
			StartTime:  start,
			EndTime:    start.Add(30 * time.Minute),
		},
	}
}

func newTestWebhookService(adapter *stubAdapter, repo *fakeIntegRepo, syncSvc *fakeSyncService, c *memoryCache, cfg *config.Config) WebhookService {
	factory := provider.NewFactory(cfg)
	factory.Replace(constants.ProviderGoogleCalendar, adapter)
	var deliveryCache cache.Cache
	if c != nil {
		deliveryCache = c
	}
	return NewWebhookService(repo, noopIntegService{}, syncSvc, factory, deliveryCache, cfg)
}

// ---- tests ----

func TestHandleWebhookRejectsInvalidSignature(t *testing.T) {
	integ := subscribedIntegration("sub-1")
	syncSvc := &fakeSyncService{}
	adapter := &stubAdapter{
		name:      constants.ProviderGoogleCalendar,
		verifyErr: errors.NewAppError(errors.ErrSignatureInvalid, "bad token", nil),
		change:    inlineChange("sub-1"),
	}

	svc := newTestWebhookService(adapter, &fakeIntegRepo{integrations: []*integrationEntity.CalendarIntegration{integ}}, syncSvc, newMemoryCache(), webhookTestConfig("secret"))

	outcome, appErr := svc.HandleWebhook(context.Background(), constants.ProviderGoogleCalendar, []byte(`{}`), http.Header{})
	assert.Equal(t, OutcomeRejected, outcome)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrSignatureInvalid, appErr.Code)
	assert.Empty(t, syncSvc.applied)
	assert.Zero(t, syncSvc.runCalls)
}

func TestHandleWebhookAcceptsWhenNoSecretConfigured(t *testing.T) {
	integ := subscribedIntegration("sub-1")
	syncSvc := &fakeSyncService{}
	adapter := &stubAdapter{
		name:      constants.ProviderGoogleCalendar,
		verifyErr: errors.NewAppError(errors.ErrSignatureInvalid, "would fail", nil),
		change:    inlineChange("sub-1"),
	}

	// no webhook secret: verification is bypassed in degraded-trust mode
	svc := newTestWebhookService(adapter, &fakeIntegRepo{integrations: []*integrationEntity.CalendarIntegration{integ}}, syncSvc, newMemoryCache(), webhookTestConfig(""))

	outcome, appErr := svc.HandleWebhook(context.Background(), constants.ProviderGoogleCalendar, []byte(`{}`), http.Header{})
	assert.Nil(t, appErr)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Len(t, syncSvc.applied, 1)
}

func TestHandleWebhookDeduplicatesRedelivery(t *testing.T) {
	integ := subscribedIntegration("sub-1")
	syncSvc := &fakeSyncService{}
	adapter := &stubAdapter{name: constants.ProviderGoogleCalendar, change: inlineChange("sub-1")}

	svc := newTestWebhookService(adapter, &fakeIntegRepo{integrations: []*integrationEntity.CalendarIntegration{integ}}, syncSvc, newMemoryCache(), webhookTestConfig("secret"))

	outcome, appErr := svc.HandleWebhook(context.Background(), constants.ProviderGoogleCalendar, []byte(`{}`), http.Header{})
	require.Nil(t, appErr)
	assert.Equal(t, OutcomeProcessed, outcome)

	outcome, appErr = svc.HandleWebhook(context.Background(), constants.ProviderGoogleCalendar, []byte(`{}`), http.Header{})
	require.Nil(t, appErr)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Len(t, syncSvc.applied, 1)
}

func TestHandleWebhookSkipsUnmatchedIntegration(t *testing.T) {
	syncSvc := &fakeSyncService{}
	adapter := &stubAdapter{name: constants.ProviderGoogleCalendar, change: inlineChange("sub-unknown")}

	svc := newTestWebhookService(adapter, &fakeIntegRepo{}, syncSvc, newMemoryCache(), webhookTestConfig("secret"))

	outcome, appErr := svc.HandleWebhook(context.Background(), constants.ProviderGoogleCalendar, []byte(`{}`), http.Header{})
	assert.Nil(t, appErr)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, syncSvc.applied)
}

func TestHandleWebhookResolvesByAccountEmail(t *testing.T) {
	integ := subscribedIntegration("")
	syncSvc := &fakeSyncService{}
	change := inlineChange("")
	change.AccountEmail = "rep@example.com"
	adapter := &stubAdapter{name: constants.ProviderGoogleCalendar, change: change}

	svc := newTestWebhookService(adapter, &fakeIntegRepo{integrations: []*integrationEntity.CalendarIntegration{integ}}, syncSvc, newMemoryCache(), webhookTestConfig("secret"))

	outcome, appErr := svc.HandleWebhook(context.Background(), constants.ProviderGoogleCalendar, []byte(`{}`), http.Header{})
	assert.Nil(t, appErr)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Len(t, syncSvc.applied, 1)
}

func TestHandleWebhookFetchesIDOnlyNotification(t *testing.T) {
	integ := subscribedIntegration("sub-1")
	syncSvc := &fakeSyncService{}
	start := time.Now().Add(24 * time.Hour)
	adapter := &stubAdapter{
		name: constants.ProviderGoogleCalendar,
		change: &provider.NormalizedChange{
			DeliveryID:     "delivery-2",
			SubscriptionID: "sub-1",
			ExternalID:     "ext-9",
		},
		getEvents: map[string]*provider.ProviderEvent{
			"ext-9": {ExternalID: "ext-9", Title: "Fetched", StartTime: start, EndTime: start.Add(time.Hour)},
		},
	}

	svc := newTestWebhookService(adapter, &fakeIntegRepo{integrations: []*integrationEntity.CalendarIntegration{integ}}, syncSvc, newMemoryCache(), webhookTestConfig("secret"))

	outcome, appErr := svc.HandleWebhook(context.Background(), constants.ProviderGoogleCalendar, nil, http.Header{})
	require.Nil(t, appErr)
	assert.Equal(t, OutcomeProcessed, outcome)
	require.Len(t, syncSvc.applied, 1)
	assert.Equal(t, "Fetched", syncSvc.applied[0].Title)
}

func TestHandleWebhookTreatsFetch404AsTombstone(t *testing.T) {
	integ := subscribedIntegration("sub-1")
	syncSvc := &fakeSyncService{}
	adapter := &stubAdapter{
		name: constants.ProviderGoogleCalendar,
		change: &provider.NormalizedChange{
			DeliveryID:     "delivery-3",
			SubscriptionID: "sub-1",
			ExternalID:     "ext-gone",
		},
	}

	svc := newTestWebhookService(adapter, &fakeIntegRepo{integrations: []*integrationEntity.CalendarIntegration{integ}}, syncSvc, newMemoryCache(), webhookTestConfig("secret"))

	outcome, appErr := svc.HandleWebhook(context.Background(), constants.ProviderGoogleCalendar, nil, http.Header{})
	require.Nil(t, appErr)
	assert.Equal(t, OutcomeProcessed, outcome)
	require.Len(t, syncSvc.applied, 1)
	assert.True(t, syncSvc.applied[0].Cancelled)
	assert.Equal(t, "ext-gone", syncSvc.applied[0].ExternalID)
}

func TestHandleWebhookBodylessPingTriggersSync(t *testing.T) {
	integ := subscribedIntegration("sub-1")
	syncSvc := &fakeSyncService{}
	adapter := &stubAdapter{
		name: constants.ProviderGoogleCalendar,
		change: &provider.NormalizedChange{
			DeliveryID:     "chan-1:42",
			SubscriptionID: "sub-1",
		},
	}

	svc := newTestWebhookService(adapter, &fakeIntegRepo{integrations: []*integrationEntity.CalendarIntegration{integ}}, syncSvc, newMemoryCache(), webhookTestConfig("secret"))

	outcome, appErr := svc.HandleWebhook(context.Background(), constants.ProviderGoogleCalendar, nil, http.Header{})
	require.Nil(t, appErr)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, 1, syncSvc.runCalls)
	assert.Empty(t, syncSvc.applied)
}

func TestHandleWebhookBodylessPingSkipsWhenSyncInFlight(t *testing.T) {
	integ := subscribedIntegration("sub-1")
	syncSvc := &fakeSyncService{runErr: errors.NewAppError(errors.ErrAlreadyExists, "sync already running", nil)}
	adapter := &stubAdapter{
		name: constants.ProviderGoogleCalendar,
		change: &provider.NormalizedChange{
			DeliveryID:     "chan-1:43",
			SubscriptionID: "sub-1",
		},
	}

	svc := newTestWebhookService(adapter, &fakeIntegRepo{integrations: []*integrationEntity.CalendarIntegration{integ}}, syncSvc, newMemoryCache(), webhookTestConfig("secret"))

	outcome, appErr := svc.HandleWebhook(context.Background(), constants.ProviderGoogleCalendar, nil, http.Header{})
	assert.Nil(t, appErr)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestHandleWebhookRejectsUnknownProvider(t *testing.T) {
	syncSvc := &fakeSyncService{}
	adapter := &stubAdapter{name: constants.ProviderGoogleCalendar, change: inlineChange("sub-1")}
	svc := newTestWebhookService(adapter, &fakeIntegRepo{}, syncSvc, newMemoryCache(), webhookTestConfig("secret"))

	outcome, appErr := svc.HandleWebhook(context.Background(), "fax_machine", []byte(`{}`), http.Header{})
	assert.Equal(t, OutcomeRejected, outcome)
	require.NotNil(t, appErr)
}

func TestHandleWebhookRejectsMalformedPayload(t *testing.T) {
	syncSvc := &fakeSyncService{}
	adapter := &stubAdapter{
		name:     constants.ProviderGoogleCalendar,
		parseErr: errors.NewAppError(errors.ErrInvalidRequestData, "malformed payload", nil),
	}
	svc := newTestWebhookService(adapter, &fakeIntegRepo{}, syncSvc, newMemoryCache(), webhookTestConfig("secret"))

	outcome, appErr := svc.HandleWebhook(context.Background(), constants.ProviderGoogleCalendar, []byte(`not json`), http.Header{})
	assert.Equal(t, OutcomeRejected, outcome)
	require.NotNil(t, appErr)
}
