// Package oauth obtains and caches client-credentials bearer tokens.
package oauth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultCacheKey is the store key used when Config.CacheKey is empty.
const DefaultCacheKey = "access_token"

// CachedToken is a bearer token together with its absolute expiry.
type CachedToken struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"` // epoch milliseconds
}

// Sentinel errors.
var (
	// ErrTokenNotFound is returned by a Store when no token is cached under a key.
	ErrTokenNotFound = errors.New("token not found")

	// ErrLoginFailed indicates the token endpoint did not issue a token.
	ErrLoginFailed = errors.New("login failed")
)

// LoginError describes a failed call to the token endpoint.
type LoginError struct {
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *LoginError) Error() string {
	var b strings.Builder
	b.WriteString("oauth login failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *LoginError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrLoginFailed, e.Cause}
	}
	return []error{ErrLoginFailed}
}

// tokenResponse is the body returned by the token endpoint.
type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	ExpiresIn   flexInt `json:"expires_in"`
	IssuedAt    flexInt `json:"issued_at"`
	Status      string  `json:"status"`
}

// flexInt decodes integers that may arrive quoted, as UPS sends expires_in
// and issued_at as strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid integer %q: %w", s, err)
		}
		n = int64(fl)
	}
	*f = flexInt(n)
	return nil
}
