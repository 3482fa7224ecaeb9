package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"salesflow/core/config"
	"salesflow/core/constants"
	"salesflow/core/errors"
	integrationEntity "salesflow/modules/integration/entity"
)

const (
	calendlyAPIBase   = "https://api.calendly.com"
	calendlyAuthURL   = "https://auth.calendly.com/oauth/authorize"
	calendlyTokenURL  = "https://auth.calendly.com/oauth/token"
	calendlySigHeader = "Calendly-Webhook-Signature"
)

// CalendlyAdapter talks to the Calendly v2 API. Calendly has no incremental
// cursor, so listing always uses a bounded window, and scheduled events are
// read-only: bookings are created by invitees through Calendly itself.
// Webhook payloads arrive with the full event inline and are signed with
// HMAC-SHA256 over "t=<timestamp>.<body>".
type CalendlyAdapter struct {
	cfg         config.ProviderConfig
	redirectURL string
}

func NewCalendlyAdapter(cfg config.ProviderConfig, redirectURL string) *CalendlyAdapter {
	return &CalendlyAdapter{cfg: cfg, redirectURL: redirectURL}
}

func (a *CalendlyAdapter) Provider() string {
	return constants.ProviderCalendly
}

func (a *CalendlyAdapter) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		RedirectURL:  a.redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  calendlyAuthURL,
			TokenURL: calendlyTokenURL,
		},
	}
}

func (a *CalendlyAdapter) AuthCodeURL(state string) string {
	return a.oauthConfig().AuthCodeURL(state)
}

type calendlyUser struct {
	Resource struct {
		URI             string `json:"uri"`
		Email           string `json:"email"`
		Name            string `json:"name"`
		CurrentOrganization string `json:"current_organization"`
	} `json:"resource"`
}

func (a *CalendlyAdapter) ExchangeAuthCode(ctx context.Context, code string) (*TokenSet, *AccountProfile, error) {
	token, err := a.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return nil, nil, errors.NewAppError(errors.ErrAuthExpired, "failed to exchange Calendly auth code", err)
	}

	var me calendlyUser
	if err := doJSON(ctx, a.Provider(), http.MethodGet, calendlyAPIBase+"/users/me", token.AccessToken, nil, &me); err != nil {
		return nil, nil, err
	}

	set := &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		set.ExpiresAt = &expiry
	}
	return set, &AccountProfile{
		// The user URI doubles as the account id; list calls need it.
		AccountID: me.Resource.URI,
		Email:     me.Resource.Email,
		Name:      me.Resource.Name,
	}, nil
}

func (a *CalendlyAdapter) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	source := a.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, errors.NewAppError(errors.ErrAuthExpired, "failed to refresh Calendly token", err)
	}
	set := &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		set.ExpiresAt = &expiry
	}
	return set, nil
}

type calendlyEvent struct {
	URI       string `json:"uri"`
	Name      string `json:"name"`
	Status    string `json:"status"` // active | canceled
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	UpdatedAt string `json:"updated_at"`
	Location  struct {
		Location string `json:"location"`
	} `json:"location"`
	EventMemberships []struct {
		UserEmail string `json:"user_email"`
	} `json:"event_memberships"`
}

func (a *CalendlyAdapter) ListEvents(ctx context.Context, integ *integrationEntity.CalendarIntegration, q ListQuery) (*ListResult, error) {
	result := &ListResult{}

	params := url.Values{}
	params.Set("user", integ.ProviderAccountID)
	params.Set("min_start_time", q.WindowStart.UTC().Format(time.RFC3339))
	params.Set("max_start_time", q.WindowEnd.UTC().Format(time.RFC3339))
	params.Set("count", "100")
	endpoint := calendlyAPIBase + "/scheduled_events?" + params.Encode()

	for endpoint != "" {
		var page struct {
			Collection []calendlyEvent `json:"collection"`
			Pagination struct {
				NextPage string `json:"next_page"`
			} `json:"pagination"`
		}
		if err := doJSON(ctx, a.Provider(), http.MethodGet, endpoint, integ.AccessToken, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Collection {
			if ev := a.toProviderEvent(item); ev != nil {
				result.Events = append(result.Events, *ev)
			}
		}
		endpoint = page.Pagination.NextPage
	}

	return result, nil
}

func (a *CalendlyAdapter) GetEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, externalID string) (*ProviderEvent, error) {
	var resp struct {
		Resource calendlyEvent `json:"resource"`
	}
	endpoint := calendlyAPIBase + "/scheduled_events/" + url.PathEscape(externalID)
	if err := doJSON(ctx, a.Provider(), http.MethodGet, endpoint, integ.AccessToken, nil, &resp); err != nil {
		return nil, err
	}
	ev := a.toProviderEvent(resp.Resource)
	if ev == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "Calendly event is malformed", nil)
	}
	return ev, nil
}

// CreateEvent is unsupported: Calendly scheduling happens on the invitee side.
func (a *CalendlyAdapter) CreateEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, ev *ProviderEvent) (string, error) {
	return "", errors.NewAppError(errors.ErrInvalidInput, "Calendly does not support creating events via API", nil)
}

func (a *CalendlyAdapter) CancelEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, externalID string) *errors.Warning {
	body := map[string]string{"reason": "Cancelled by organizer"}
	endpoint := calendlyAPIBase + "/scheduled_events/" + url.PathEscape(externalID) + "/cancellation"
	if err := doJSON(ctx, a.Provider(), http.MethodPost, endpoint, integ.AccessToken, body, nil); err != nil {
		return errors.NewWarning("calendly:cancel_event", err.Error())
	}
	return nil
}

func (a *CalendlyAdapter) CreateWebhookSubscription(ctx context.Context, integ *integrationEntity.CalendarIntegration, callbackURL string) (string, *time.Time, *errors.Warning) {
	body := map[string]any{
		"url":    callbackURL,
		"events": []string{"invitee.created", "invitee.canceled"},
		"user":   integ.ProviderAccountID,
		"scope":  "user",
	}
	if a.cfg.WebhookSecret != "" {
		body["signing_key"] = a.cfg.WebhookSecret
	}

	var resp struct {
		Resource struct {
			URI string `json:"uri"`
		} `json:"resource"`
	}
	if err := doJSON(ctx, a.Provider(), http.MethodPost, calendlyAPIBase+"/webhook_subscriptions", integ.AccessToken, body, &resp); err != nil {
		return "", nil, errors.NewWarning("calendly:create_webhook", err.Error())
	}
	// Calendly subscriptions do not expire.
	return lastURISegment(resp.Resource.URI), nil, nil
}

func (a *CalendlyAdapter) DeleteWebhookSubscription(ctx context.Context, integ *integrationEntity.CalendarIntegration) *errors.Warning {
	if integ.WebhookSubscriptionID == nil {
		return nil
	}
	endpoint := calendlyAPIBase + "/webhook_subscriptions/" + url.PathEscape(*integ.WebhookSubscriptionID)
	if err := doJSON(ctx, a.Provider(), http.MethodDelete, endpoint, integ.AccessToken, nil, nil); err != nil {
		return errors.NewWarning("calendly:delete_webhook", err.Error())
	}
	return nil
}

// VerifyWebhookSignature checks the "t=<ts>,v1=<hex>" header: v1 is the
// HMAC-SHA256 of "<ts>.<body>" under the signing key.
func (a *CalendlyAdapter) VerifyWebhookSignature(body []byte, headers http.Header, secret string) error {
	header := headers.Get(calendlySigHeader)
	if header == "" {
		return errors.NewAppError(errors.ErrSignatureInvalid, "missing Calendly signature header", nil)
	}

	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			sig = kv[1]
		}
	}
	if ts == "" || sig == "" {
		return errors.NewAppError(errors.ErrSignatureInvalid, "malformed Calendly signature header", nil)
	}

	signed := append([]byte(ts+"."), body...)
	return verifyHMACSHA256(signed, sig, secret)
}

func (a *CalendlyAdapter) ParseWebhookPayload(body []byte, headers http.Header) (*NormalizedChange, error) {
	var payload struct {
		CreatedAt string `json:"created_at"`
		Event     string `json:"event"` // invitee.created | invitee.canceled
		Payload   struct {
			Email          string `json:"email"`
			ScheduledEvent calendlyEvent `json:"scheduled_event"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidRequestData, "malformed Calendly payload", err)
	}
	if payload.Payload.ScheduledEvent.URI == "" {
		return nil, errors.NewAppError(errors.ErrInvalidRequestData, "Calendly payload missing scheduled_event", nil)
	}

	ev := a.toProviderEvent(payload.Payload.ScheduledEvent)
	if ev == nil {
		return nil, errors.NewAppError(errors.ErrInvalidRequestData, "Calendly payload has malformed times", nil)
	}
	if payload.Event == "invitee.canceled" {
		ev.Cancelled = true
	}

	change := &NormalizedChange{
		DeliveryID: ev.ExternalID + ":" + payload.Event + ":" + payload.CreatedAt,
		ExternalID: ev.ExternalID,
		Cancelled:  ev.Cancelled,
		Event:      ev,
	}
	// The event owner's email comes from the membership list; the invitee
	// email is kept for the participant-based integration fallback.
	for _, m := range payload.Payload.ScheduledEvent.EventMemberships {
		if change.AccountEmail == "" {
			change.AccountEmail = m.UserEmail
		}
		change.ParticipantEmails = append(change.ParticipantEmails, m.UserEmail)
	}
	if payload.Payload.Email != "" {
		change.ParticipantEmails = append(change.ParticipantEmails, payload.Payload.Email)
	}
	return change, nil
}

func (a *CalendlyAdapter) toProviderEvent(item calendlyEvent) *ProviderEvent {
	start, err1 := time.Parse(time.RFC3339, item.StartTime)
	end, err2 := time.Parse(time.RFC3339, item.EndTime)
	if err1 != nil || err2 != nil {
		return nil
	}

	ev := &ProviderEvent{
		ExternalID: lastURISegment(item.URI),
		Title:      item.Name,
		Location:   item.Location.Location,
		StartTime:  start,
		EndTime:    end,
		Cancelled:  item.Status == "canceled",
		// Calendly has no etag; updated_at is the only revision signal.
	}
	if t, err := time.Parse(time.RFC3339, item.UpdatedAt); err == nil {
		ev.UpdatedAt = t
	}
	for _, m := range item.EventMemberships {
		ev.ParticipantEmails = append(ev.ParticipantEmails, m.UserEmail)
	}
	return ev
}

func lastURISegment(uri string) string {
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
