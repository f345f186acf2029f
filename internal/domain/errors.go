package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNotConfigured = errors.New("api credentials not configured")
	ErrAuth          = errors.New("authentication failed")
	ErrFetch         = errors.New("fetch failed")
	ErrNoData        = errors.New("no data")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
)
