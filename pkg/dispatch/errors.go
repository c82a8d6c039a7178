package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderSend indicates the provider rejected a send, either at
	// the HTTP level or with an error document.
	ErrProviderSend = errors.New("provider send failed")

	// ErrMissingMedia indicates a node or template binding references a
	// media asset that was never uploaded.
	ErrMissingMedia = errors.New("missing media")
)

// ProviderError carries the provider's error detail.
type ProviderError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider send failed (http %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return ErrProviderSend
}

// IsProviderSend checks if an error indicates a provider-level send failure.
func IsProviderSend(err error) bool {
	return errors.Is(err, ErrProviderSend)
}

// IsMissingMedia checks if an error indicates an absent media reference.
func IsMissingMedia(err error) bool {
	return errors.Is(err, ErrMissingMedia)
}
