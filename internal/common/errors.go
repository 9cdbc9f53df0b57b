package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds shared by every provider and the pipeline. Wrap them with
// ProviderError or fmt.Errorf("...: %w") and test with errors.Is.
var (
	ErrConnection     = errors.New("provider connection failed")
	ErrAuthentication = errors.New("provider authentication failed")
	ErrRateLimit      = errors.New("provider rate limit exceeded")
	ErrNotFound       = errors.New("symbol not found")
	ErrNotSupported   = errors.New("operation not supported by provider")
	ErrDataQuality    = errors.New("data quality check failed")
	ErrConfiguration  = errors.New("configuration error")
)

// ProviderError carries the failing provider, symbol and operation along
// with one of the error kinds above.
type ProviderError struct {
	Kind     error
	Provider string
	Symbol   string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	if e.Op != "" {
		msg = fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Kind)
	}
	if e.Symbol != "" {
		msg += " (" + e.Symbol + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the error kind.
func (e *ProviderError) Is(target error) bool {
	return e.Kind == target
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError.
func NewProviderError(kind error, provider, op, symbol string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Op: op, Symbol: symbol, Err: err}
}

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimit
	default:
		return ErrConnection
	}
}

// ErrorCategory returns a short label for failure summaries.
func ErrorCategory(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDataQuality):
		return "data_quality"
	case errors.Is(err, ErrRateLimit):
		return "rate_limit"
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrNotSupported):
		return "not_supported"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrConnection):
		return "connection"
	default:
		return "other"
	}
}

// IsFatal reports whether err must abort a run rather than skip a symbol.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrAuthentication)
}
