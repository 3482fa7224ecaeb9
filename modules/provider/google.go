package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"salesflow/core/config"
	"salesflow/core/constants"
	"salesflow/core/errors"
	"salesflow/core/logger"
	"salesflow/core/utils"
	integrationEntity "salesflow/modules/integration/entity"
)

const (
	googleCalendarAPIBase = "https://www.googleapis.com/calendar/v3"
	googleEventsAPI       = googleCalendarAPIBase + "/calendars/primary/events"
	googleUserInfoAPI     = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// GoogleAdapter talks to the Google Calendar v3 API. It supports incremental
// fetch via sync tokens and push channels for webhooks.
type GoogleAdapter struct {
	cfg         config.ProviderConfig
	redirectURL string
}

func NewGoogleAdapter(cfg config.ProviderConfig, redirectURL string) *GoogleAdapter {
	return &GoogleAdapter{cfg: cfg, redirectURL: redirectURL}
}

func (a *GoogleAdapter) Provider() string {
	return constants.ProviderGoogleCalendar
}

func (a *GoogleAdapter) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		RedirectURL:  a.redirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/calendar.events",
		},
		Endpoint: google.Endpoint,
	}
}

// AuthCodeURL builds the consent URL. Offline access is required for refresh
// tokens.
func (a *GoogleAdapter) AuthCodeURL(state string) string {
	return a.oauthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (a *GoogleAdapter) ExchangeAuthCode(ctx context.Context, code string) (*TokenSet, *AccountProfile, error) {
	token, err := a.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return nil, nil, errors.NewAppError(errors.ErrAuthExpired, "failed to exchange Google auth code", err)
	}

	var userInfo struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := doJSON(ctx, a.Provider(), http.MethodGet, googleUserInfoAPI, token.AccessToken, nil, &userInfo); err != nil {
		return nil, nil, err
	}

	expiry := token.Expiry
	return &TokenSet{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			ExpiresAt:    &expiry,
		}, &AccountProfile{
			AccountID: userInfo.ID,
			Email:     userInfo.Email,
			Name:      userInfo.Name,
		}, nil
}

func (a *GoogleAdapter) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	source := a.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, errors.NewAppError(errors.ErrAuthExpired, "failed to refresh Google token", err)
	}
	expiry := token.Expiry
	return &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    &expiry,
	}, nil
}

type googleEvent struct {
	ID          string `json:"id"`
	Etag        string `json:"etag"`
	Status      string `json:"status"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Updated     string `json:"updated"`
	Start       struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"end"`
	Attendees []struct {
		Email string `json:"email"`
	} `json:"attendees"`
}

type googleEventsPage struct {
	Items         []googleEvent `json:"items"`
	NextPageToken string        `json:"nextPageToken"`
	NextSyncToken string        `json:"nextSyncToken"`
}

func (a *GoogleAdapter) ListEvents(ctx context.Context, integ *integrationEntity.CalendarIntegration, q ListQuery) (*ListResult, error) {
	result := &ListResult{}
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("singleEvents", "true")
		params.Set("showDeleted", "true")
		params.Set("maxResults", "250")
		if q.SyncCursor != "" {
			params.Set("syncToken", q.SyncCursor)
		} else {
			params.Set("timeMin", q.WindowStart.Format(time.RFC3339))
			params.Set("timeMax", q.WindowEnd.Format(time.RFC3339))
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page googleEventsPage
		err := doJSON(ctx, a.Provider(), http.MethodGet, googleEventsAPI+"?"+params.Encode(), integ.AccessToken, nil, &page)
		if err != nil {
			if err == errSyncCursorGone {
				// Stored sync token expired; caller retries with a window.
				result.CursorInvalidated = true
				return result, nil
			}
			return nil, err
		}

		for _, item := range page.Items {
			ev, convErr := a.toProviderEvent(item)
			if convErr != nil {
				logger.Warn("GoogleAdapter:ListEvents:SkipMalformedEvent", "external_id", item.ID, "error", convErr)
				continue
			}
			result.Events = append(result.Events, *ev)
		}

		if page.NextPageToken == "" {
			result.NextCursor = page.NextSyncToken
			return result, nil
		}
		pageToken = page.NextPageToken
	}
}

func (a *GoogleAdapter) GetEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, externalID string) (*ProviderEvent, error) {
	var item googleEvent
	endpoint := fmt.Sprintf("%s/%s", googleEventsAPI, url.PathEscape(externalID))
	if err := doJSON(ctx, a.Provider(), http.MethodGet, endpoint, integ.AccessToken, nil, &item); err != nil {
		return nil, err
	}
	return a.toProviderEvent(item)
}

func (a *GoogleAdapter) CreateEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, ev *ProviderEvent) (string, error) {
	body := map[string]any{
		"summary":     ev.Title,
		"description": ev.Description,
		"location":    ev.Location,
		"start":       map[string]string{"dateTime": ev.StartTime.Format(time.RFC3339)},
		"end":         map[string]string{"dateTime": ev.EndTime.Format(time.RFC3339)},
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := doJSON(ctx, a.Provider(), http.MethodPost, googleEventsAPI, integ.AccessToken, body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (a *GoogleAdapter) CancelEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, externalID string) *errors.Warning {
	endpoint := fmt.Sprintf("%s/%s", googleEventsAPI, url.PathEscape(externalID))
	if err := doJSON(ctx, a.Provider(), http.MethodDelete, endpoint, integ.AccessToken, nil, nil); err != nil {
		return errors.NewWarning("google:cancel_event", err.Error())
	}
	return nil
}

func (a *GoogleAdapter) CreateWebhookSubscription(ctx context.Context, integ *integrationEntity.CalendarIntegration, callbackURL string) (string, *time.Time, *errors.Warning) {
	channelID := utils.GenerateChannelID()
	body := map[string]any{
		"id":      channelID,
		"type":    "web_hook",
		"address": callbackURL,
	}
	if a.cfg.WebhookSecret != "" {
		body["token"] = a.cfg.WebhookSecret
	}

	var resp struct {
		ResourceID string `json:"resourceId"`
		Expiration string `json:"expiration"` // epoch millis as string
	}
	if err := doJSON(ctx, a.Provider(), http.MethodPost, googleEventsAPI+"/watch", integ.AccessToken, body, &resp); err != nil {
		return "", nil, errors.NewWarning("google:create_webhook", err.Error())
	}

	var expiresAt *time.Time
	if ms, err := strconv.ParseInt(resp.Expiration, 10, 64); err == nil {
		t := time.UnixMilli(ms)
		expiresAt = &t
	}
	return channelID, expiresAt, nil
}

func (a *GoogleAdapter) DeleteWebhookSubscription(ctx context.Context, integ *integrationEntity.CalendarIntegration) *errors.Warning {
	if integ.WebhookSubscriptionID == nil {
		return nil
	}
	body := map[string]any{"id": *integ.WebhookSubscriptionID}
	endpoint := googleCalendarAPIBase + "/channels/stop"
	if err := doJSON(ctx, a.Provider(), http.MethodPost, endpoint, integ.AccessToken, body, nil); err != nil {
		return errors.NewWarning("google:delete_webhook", err.Error())
	}
	return nil
}

// VerifyWebhookSignature checks the channel token Google echoes back on every
// push notification against the configured secret.
func (a *GoogleAdapter) VerifyWebhookSignature(body []byte, headers http.Header, secret string) error {
	return verifySharedToken(headers.Get("X-Goog-Channel-Token"), secret)
}

// ParseWebhookPayload handles Google push notifications. They carry no event
// body: the channel id identifies the integration and the caller performs an
// incremental fetch to learn what changed.
func (a *GoogleAdapter) ParseWebhookPayload(body []byte, headers http.Header) (*NormalizedChange, error) {
	channelID := headers.Get("X-Goog-Channel-ID")
	if channelID == "" {
		return nil, errors.NewAppError(errors.ErrInvalidRequestData, "missing X-Goog-Channel-ID header", nil)
	}

	state := headers.Get("X-Goog-Resource-State")
	if state == "sync" {
		// Channel confirmation ping sent right after watch; nothing changed.
		return &NormalizedChange{DeliveryID: channelID + ":sync", SubscriptionID: channelID}, nil
	}

	return &NormalizedChange{
		DeliveryID:     channelID + ":" + headers.Get("X-Goog-Message-Number"),
		SubscriptionID: channelID,
	}, nil
}

func (a *GoogleAdapter) toProviderEvent(item googleEvent) (*ProviderEvent, error) {
	ev := &ProviderEvent{
		ExternalID:  item.ID,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Cancelled:   item.Status == "cancelled",
		Revision:    item.Etag,
	}

	if item.Updated != "" {
		if t, err := time.Parse(time.RFC3339, item.Updated); err == nil {
			ev.UpdatedAt = t
		}
	}
	for _, att := range item.Attendees {
		ev.ParticipantEmails = append(ev.ParticipantEmails, att.Email)
	}

	// Cancelled events come back as tombstones without times.
	if ev.Cancelled && item.Start.DateTime == "" && item.Start.Date == "" {
		return ev, nil
	}

	if item.Start.Date != "" {
		ev.AllDay = true
		start, err := time.Parse("2006-01-02", item.Start.Date)
		if err != nil {
			return nil, fmt.Errorf("parse all-day start: %w", err)
		}
		end, err := time.Parse("2006-01-02", item.End.Date)
		if err != nil {
			return nil, fmt.Errorf("parse all-day end: %w", err)
		}
		ev.StartTime, ev.EndTime = start, end
		return ev, nil
	}

	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return nil, fmt.Errorf("parse start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return nil, fmt.Errorf("parse end: %w", err)
	}
	ev.StartTime, ev.EndTime = start, end
	return ev, nil
}
