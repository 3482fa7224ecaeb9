package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"salesflow/core/constants"
	"salesflow/core/errors"
)

var httpClient = &http.Client{Timeout: constants.ProviderHTTPTimeout}

// doJSON performs a provider API call and decodes the JSON response into out
// (when out is non-nil). Non-2xx statuses are classified into the error
// taxonomy so callers never inspect provider status codes directly.
func doJSON(ctx context.Context, providerName, method, url, accessToken string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.NewAppError(errors.ErrInternalServer, "failed to encode request body", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to create request", err)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return errors.NewAppError(errors.ErrProviderUnavailable,
			fmt.Sprintf("%s request failed", providerName), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus(providerName, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewAppError(errors.ErrProviderUnavailable,
			fmt.Sprintf("%s returned malformed response", providerName), err)
	}
	return nil
}

// classifyStatus maps a provider HTTP status into the application taxonomy.
// 401/403 require user action (re-auth), 429/5xx are retryable, the rest are
// terminal request errors.
func classifyStatus(providerName string, status int, body string) *errors.AppError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.NewAppError(errors.ErrAuthExpired,
			fmt.Sprintf("%s credentials rejected (status %d)", providerName, status), nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return errors.NewAppError(errors.ErrProviderUnavailable,
			fmt.Sprintf("%s unavailable (status %d): %s", providerName, status, body), nil)
	case status == http.StatusGone:
		// Google invalidated sync token; callers detect this via errSyncCursorGone.
		return errSyncCursorGone
	case status == http.StatusNotFound:
		return errors.NewAppError(errors.ErrNotFound,
			fmt.Sprintf("%s resource not found", providerName), nil)
	default:
		return errors.NewAppError(errors.ErrInternalServer,
			fmt.Sprintf("%s API error (status %d): %s", providerName, status, body), nil)
	}
}

var errSyncCursorGone = errors.NewAppError(errors.ErrInvalidRequestData, "sync cursor invalidated by provider", nil)
