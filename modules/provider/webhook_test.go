package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesflow/core/config"
	"salesflow/core/errors"
)

func signCalendly(ts string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCalendlySignatureValid(t *testing.T) {
	a := NewCalendlyAdapter(config.ProviderConfig{}, "http://localhost/cb")
	body := []byte(`{"event":"invitee.created"}`)
	secret := "signing-key"
	ts := "1725000000"

	headers := http.Header{}
	headers.Set("Calendly-Webhook-Signature", fmt.Sprintf("t=%s,v1=%s", ts, signCalendly(ts, body, secret)))

	assert.NoError(t, a.VerifyWebhookSignature(body, headers, secret))
}

func TestCalendlySignatureInvalid(t *testing.T) {
	a := NewCalendlyAdapter(config.ProviderConfig{}, "http://localhost/cb")
	body := []byte(`{"event":"invitee.created"}`)

	headers := http.Header{}
	headers.Set("Calendly-Webhook-Signature", "t=1725000000,v1="+signCalendly("1725000000", body, "wrong-key"))

	err := a.VerifyWebhookSignature(body, headers, "signing-key")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSignatureInvalid))
}

func TestCalendlySignatureTamperedBody(t *testing.T) {
	a := NewCalendlyAdapter(config.ProviderConfig{}, "http://localhost/cb")
	secret := "signing-key"
	ts := "1725000000"
	sig := signCalendly(ts, []byte(`{"event":"invitee.created"}`), secret)

	headers := http.Header{}
	headers.Set("Calendly-Webhook-Signature", fmt.Sprintf("t=%s,v1=%s", ts, sig))

	err := a.VerifyWebhookSignature([]byte(`{"event":"invitee.canceled"}`), headers, secret)
	assert.True(t, errors.IsCode(err, errors.ErrSignatureInvalid))
}

func TestCalendlySignatureMissingHeader(t *testing.T) {
	a := NewCalendlyAdapter(config.ProviderConfig{}, "http://localhost/cb")
	err := a.VerifyWebhookSignature([]byte(`{}`), http.Header{}, "signing-key")
	assert.True(t, errors.IsCode(err, errors.ErrSignatureInvalid))
}

func TestCalendlyParseInviteeCreated(t *testing.T) {
	a := NewCalendlyAdapter(config.ProviderConfig{}, "http://localhost/cb")
	body := []byte(`{
		"created_at": "2026-09-01T12:00:00Z",
		"event": "invitee.created",
		"payload": {
			"email": "buyer@acme.com",
			"scheduled_event": {
				"uri": "https://api.calendly.com/scheduled_events/EV123",
				"name": "Discovery call",
				"status": "active",
				"start_time": "2026-09-08T14:00:00Z",
				"end_time": "2026-09-08T14:30:00Z",
				"updated_at": "2026-09-01T12:00:00Z",
				"event_memberships": [{"user_email": "rep@example.com"}]
			}
		}
	}`)

	change, err := a.ParseWebhookPayload(body, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "EV123", change.ExternalID)
	assert.False(t, change.Cancelled)
	require.NotNil(t, change.Event)
	assert.Equal(t, "Discovery call", change.Event.Title)
	assert.Equal(t, "rep@example.com", change.AccountEmail)
	assert.Contains(t, change.ParticipantEmails, "buyer@acme.com")
	assert.NotEmpty(t, change.DeliveryID)
}

func TestCalendlyParseInviteeCanceled(t *testing.T) {
	a := NewCalendlyAdapter(config.ProviderConfig{}, "http://localhost/cb")
	body := []byte(`{
		"created_at": "2026-09-01T13:00:00Z",
		"event": "invitee.canceled",
		"payload": {
			"scheduled_event": {
				"uri": "https://api.calendly.com/scheduled_events/EV123",
				"name": "Discovery call",
				"status": "canceled",
				"start_time": "2026-09-08T14:00:00Z",
				"end_time": "2026-09-08T14:30:00Z",
				"updated_at": "2026-09-01T13:00:00Z"
			}
		}
	}`)

	change, err := a.ParseWebhookPayload(body, http.Header{})
	require.NoError(t, err)
	assert.True(t, change.Cancelled)
	assert.True(t, change.Event.Cancelled)
}

func TestCalendlyParseMalformedPayload(t *testing.T) {
	a := NewCalendlyAdapter(config.ProviderConfig{}, "http://localhost/cb")
	_, err := a.ParseWebhookPayload([]byte(`{"event":"invitee.created","payload":{}}`), http.Header{})
	assert.Error(t, err)
}

func TestGoogleChannelTokenVerification(t *testing.T) {
	a := NewGoogleAdapter(config.ProviderConfig{}, "http://localhost/cb")

	headers := http.Header{}
	headers.Set("X-Goog-Channel-Token", "chan-secret")
	assert.NoError(t, a.VerifyWebhookSignature(nil, headers, "chan-secret"))

	headers.Set("X-Goog-Channel-Token", "forged")
	err := a.VerifyWebhookSignature(nil, headers, "chan-secret")
	assert.True(t, errors.IsCode(err, errors.ErrSignatureInvalid))
}

func TestGoogleParsePushNotification(t *testing.T) {
	a := NewGoogleAdapter(config.ProviderConfig{}, "http://localhost/cb")

	headers := http.Header{}
	headers.Set("X-Goog-Channel-ID", "chan-1")
	headers.Set("X-Goog-Resource-State", "exists")
	headers.Set("X-Goog-Message-Number", "42")

	change, err := a.ParseWebhookPayload(nil, headers)
	require.NoError(t, err)
	assert.Equal(t, "chan-1", change.SubscriptionID)
	assert.Equal(t, "chan-1:42", change.DeliveryID)
	// no body: the ingestor falls back to an incremental fetch
	assert.Empty(t, change.ExternalID)
	assert.Nil(t, change.Event)
}

func TestGoogleParseMissingChannelID(t *testing.T) {
	a := NewGoogleAdapter(config.ProviderConfig{}, "http://localhost/cb")
	_, err := a.ParseWebhookPayload(nil, http.Header{})
	assert.Error(t, err)
}

func TestMicrosoftClientStateVerification(t *testing.T) {
	a := NewMicrosoftAdapter(config.ProviderConfig{}, "http://localhost/cb")

	valid := []byte(`{"value":[{"clientState":"cs-secret","subscriptionId":"sub-1"}]}`)
	assert.NoError(t, a.VerifyWebhookSignature(valid, http.Header{}, "cs-secret"))

	forged := []byte(`{"value":[{"clientState":"forged","subscriptionId":"sub-1"}]}`)
	err := a.VerifyWebhookSignature(forged, http.Header{}, "cs-secret")
	assert.True(t, errors.IsCode(err, errors.ErrSignatureInvalid))
}

func TestMicrosoftParseChangeNotification(t *testing.T) {
	a := NewMicrosoftAdapter(config.ProviderConfig{}, "http://localhost/cb")
	body := []byte(`{
		"value": [{
			"subscriptionId": "sub-1",
			"changeType": "updated",
			"resource": "Users/u1/Events/AAMk1",
			"resourceData": {"id": "AAMk1"}
		}]
	}`)

	change, err := a.ParseWebhookPayload(body, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "sub-1", change.SubscriptionID)
	assert.Equal(t, "AAMk1", change.ExternalID)
	assert.False(t, change.Cancelled)
}

func TestMicrosoftParseDeletedNotification(t *testing.T) {
	a := NewMicrosoftAdapter(config.ProviderConfig{}, "http://localhost/cb")
	body := []byte(`{"value":[{"subscriptionId":"sub-1","changeType":"deleted","resourceData":{"id":"AAMk1"}}]}`)

	change, err := a.ParseWebhookPayload(body, http.Header{})
	require.NoError(t, err)
	assert.True(t, change.Cancelled)
}
