package domain

import "time"

// AccessToken is an OAuth2 bearer token together with the instant after which
// it must no longer be used. Values are never mutated after creation.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token may still be used at now.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}
