package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSessionExpired is returned when the trading service rejects the
// session token. The session is already invalidated when this surfaces.
var ErrSessionExpired = errors.New("session expired, re-authentication required")

// APIError is a structured rejection from the trading service, e.g.
// insufficient funds or an unknown symbol. Message is shown to the user
// verbatim.
type APIError struct {
	Status    int    `json:"status"`
	ErrorText string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("trading service error (status %d)", e.Status)
}

// parseAPIError decodes the service's error payload. When the body is not
// the expected shape, the status code alone is reported.
func parseAPIError(status int, path string, body []byte) error {
	apiErr := &APIError{Status: status, Path: path}
	if len(body) > 0 {
		// Best effort; a non-JSON body leaves only the status populated.
		_ = json.Unmarshal(body, apiErr)
		apiErr.Status = status
	}
	return apiErr
}
