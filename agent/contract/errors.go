package contract

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrAuth              = errors.New("missing or invalid credential")
	ErrRateLimited       = errors.New("too many requests")
	ErrUpstreamTransient = errors.New("upstream temporarily unavailable")
	ErrUpstream          = errors.New("upstream request failed")
	ErrNetwork           = errors.New("network failure")
	ErrBusUnavailable    = errors.New("event bus unavailable")
	ErrInternal          = errors.New("internal error")
)
