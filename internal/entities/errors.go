package entities

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady         = errors.New("session not connected")
	ErrUnknownRecipient = errors.New("recipient is not registered on the network")
	ErrInvalidPhone     = errors.New("invalid phone number")
	ErrMediaFetchFailed = errors.New("failed to fetch media attachment")
	ErrMissingTarget    = errors.New("no chat id or recipient provided")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
)

// QuotaExceededError carries the current quota figures so callers can render
// the remaining balance without a second query.
type QuotaExceededError struct {
	Limit     int `json:"limit"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d/%d used, %d remaining", e.Used, e.Limit, e.Remaining)
}

// Info returns the quota figures the error was raised with.
func (e *QuotaExceededError) Info() QuotaInfo {
	return QuotaInfo{Limit: e.Limit, Used: e.Used, Remaining: e.Remaining}
}

// ProviderError wraps an opaque failure from the connectivity provider.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
