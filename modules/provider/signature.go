package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"salesflow/core/errors"
)

// verifyHMACSHA256 checks that signatureHex is the hex HMAC-SHA256 of message
// under secret, in constant time.
func verifyHMACSHA256(message []byte, signatureHex, secret string) error {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signatureHex)) {
		return errors.NewAppError(errors.ErrSignatureInvalid, "webhook signature mismatch", nil)
	}
	return nil
}

// verifySharedToken compares an opaque channel token / client state against
// the configured secret in constant time.
func verifySharedToken(got, secret string) error {
	if !hmac.Equal([]byte(got), []byte(secret)) {
		return errors.NewAppError(errors.ErrSignatureInvalid, "webhook token mismatch", nil)
	}
	return nil
}
