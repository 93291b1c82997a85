package model

import (
	"fmt"
	"time"
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// SourceFetchError is a failure confined to a single source.
type SourceFetchError struct {
	Source string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}

// ChannelDeliveryError is a failure confined to a single notification channel.
type ChannelDeliveryError struct {
	Channel string
	Err     error
}

func (e *ChannelDeliveryError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Channel, e.Err)
}

func (e *ChannelDeliveryError) Unwrap() error {
	return e.Err
}

// StateLoadError means the notified-key baseline could not be read.
// A run that hits it must not notify.
type StateLoadError struct {
	Err error
}

func (e *StateLoadError) Error() string {
	return fmt.Sprintf("loading notified keys: %v", e.Err)
}

func (e *StateLoadError) Unwrap() error {
	return e.Err
}

// StatePersistError means notifications went out but their keys were not
// recorded, so the next run will likely repeat them.
type StatePersistError struct {
	Keys int
	Err  error
}

func (e *StatePersistError) Error() string {
	return fmt.Sprintf("persisting %d notified keys: %v", e.Keys, e.Err)
}

func (e *StatePersistError) Unwrap() error {
	return e.Err
}

// PermanentError marks a failure that will not go away on retry, such as an
// unparseable response or a misconfigured source.
type PermanentError struct {
	Err error
}

// Permanent wraps err in a PermanentError. It returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}
