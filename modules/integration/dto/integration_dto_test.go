package dto

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectStateRoundTrip(t *testing.T) {
	state := ConnectState{
		UserID:    uuid.New(),
		CompanyID: uuid.New(),
		Provider:  "google_calendar",
		ReturnTo:  "https://app.example.com/settings?tab=calendar",
		Nonce:     "n0nce-value",
	}

	decoded, err := DecodeConnectState(state.Encode())
	require.NoError(t, err)
	assert.Equal(t, state, *decoded)
}

func TestDecodeConnectStateRejectsGarbage(t *testing.T) {
	_, err := DecodeConnectState("not-base64!!!")
	assert.Error(t, err)

	_, err = DecodeConnectState("bm90IGpzb24=")
	assert.Error(t, err)
}
