package caption

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotConfigured = errors.New("API key not configured on server")

// NotConfigured wraps ErrNotConfigured with the provider's display name.
func NotConfigured(provider string) error {
	return fmt.Errorf("%s %w", provider, ErrNotConfigured)
}

// UpstreamError is a non-2xx answer from the completion service.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Provider, e.StatusCode, e.Body)
}

// EmptyContentError is a successful upstream answer that carried no usable text.
type EmptyContentError struct {
	Provider string
	Raw      json.RawMessage
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("no content returned by %s", e.Provider)
}
