package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TokenPath is the client-credentials endpoint relative to the carrier base URL.
const TokenPath = "/security/v1/oauth/token"

const grantType = "client_credentials"

// Config holds the client credentials and endpoint for a TokenCache.
type Config struct {
	TokenURL     string // full URL of the token endpoint
	ClientID     string
	ClientSecret string
	MerchantID   string // sent as x-merchant-id, may be empty
	CacheKey     string // defaults to DefaultCacheKey
	Timeout      time.Duration
}

// TokenCache obtains a bearer token with the client-credentials grant and
// re-uses it from a Store until it expires.
type TokenCache struct {
	config     Config
	store      Store
	httpClient *http.Client
	timeout    time.Duration
	logger     *otelzap.Logger
	now        func() time.Time
	onLogin    func(err error)
	group      singleflight.Group
}

// Option configures a TokenCache.
type Option func(*TokenCache)

// WithHTTPClient overrides the client used to call the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(tc *TokenCache) { tc.httpClient = c }
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(tc *TokenCache) { tc.now = now }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *otelzap.Logger) Option {
	return func(tc *TokenCache) { tc.logger = l }
}

// WithLoginHook registers fn to run after every login attempt with its result.
func WithLoginHook(fn func(err error)) Option {
	return func(tc *TokenCache) { tc.onLogin = fn }
}

// NewTokenCache creates a TokenCache backed by store.
func NewTokenCache(cfg Config, store Store, opts ...Option) *TokenCache {
	if cfg.CacheKey == "" {
		cfg.CacheKey = DefaultCacheKey
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	tc := &TokenCache{
		config:     cfg,
		store:      store,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     otelzap.New(zap.NewNop()),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// IsTokenValid reports whether a token expiring at expiresAt (epoch ms) may
// still be used.
func (c *TokenCache) IsTokenValid(expiresAt int64) bool {
	return c.now().UnixMilli() < expiresAt
}

// CheckToken makes sure a valid token is cached, logging in when the cache is
// empty or its token has expired.
func (c *TokenCache) CheckToken(ctx context.Context) error {
	_, err := c.Token(ctx)
	return err
}

// Token returns a valid cached token, logging in first when necessary.
// Concurrent callers share a single login.
func (c *TokenCache) Token(ctx context.Context) (CachedToken, error) {
	tok, err := c.store.Get(ctx, c.config.CacheKey)
	switch {
	case err == nil && c.IsTokenValid(tok.ExpiresAt):
		return tok, nil
	case err != nil && !errors.Is(err, ErrTokenNotFound):
		c.logger.Ctx(ctx).Warn("Token store read failed, logging in",
			zap.String("key", c.config.CacheKey),
			zap.Error(err),
		)
	}

	ch := c.group.DoChan(c.config.CacheKey, func() (interface{}, error) {
		// Detached from the first caller: waiters must not fail when it cancels.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		// Another caller may have stored a token since the read above.
		if tok, err := c.store.Get(flightCtx, c.config.CacheKey); err == nil && c.IsTokenValid(tok.ExpiresAt) {
			return tok, nil
		}
		return c.Login(flightCtx)
	})

	select {
	case <-ctx.Done():
		return CachedToken{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return CachedToken{}, res.Err
		}
		return res.Val.(CachedToken), nil
	}
}

// Login requests a new token and stores it. On failure nothing is stored.
func (c *TokenCache) Login(ctx context.Context) (CachedToken, error) {
	tok, ttl, err := c.requestToken(ctx)
	if c.onLogin != nil {
		c.onLogin(err)
	}
	if err != nil {
		c.logger.Ctx(ctx).Error("Token request failed", zap.Error(err))
		return CachedToken{}, err
	}

	if err := c.store.Put(ctx, c.config.CacheKey, tok, ttl); err != nil {
		// The token is still usable for this call.
		c.logger.Ctx(ctx).Warn("Failed to cache token",
			zap.String("key", c.config.CacheKey),
			zap.Error(err),
		)
	}

	c.logger.Ctx(ctx).Info("Obtained access token",
		zap.String("key", c.config.CacheKey),
		zap.Time("expires_at", time.UnixMilli(tok.ExpiresAt)),
	)
	return tok, nil
}

func (c *TokenCache) requestToken(ctx context.Context) (CachedToken, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", grantType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return CachedToken{}, 0, &LoginError{Message: "building request", Cause: err}
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-merchant-id", c.config.MerchantID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CachedToken{}, 0, &LoginError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CachedToken{}, 0, &LoginError{StatusCode: resp.StatusCode, Message: "reading body", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return CachedToken{}, 0, &LoginError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return CachedToken{}, 0, &LoginError{StatusCode: resp.StatusCode, Message: "decoding body", Cause: err}
	}
	if tr.AccessToken == "" {
		return CachedToken{}, 0, &LoginError{StatusCode: resp.StatusCode, Message: "response has no access_token"}
	}

	issuedAt := int64(tr.IssuedAt)
	if issuedAt == 0 {
		issuedAt = c.now().UnixMilli()
	}
	expiresIn := int64(tr.ExpiresIn)
	if expiresIn <= 0 {
		return CachedToken{}, 0, &LoginError{StatusCode: resp.StatusCode, Message: "response has no positive expires_in"}
	}

	expiresAt := ExpiresAt(issuedAt, expiresIn)
	if !c.IsTokenValid(expiresAt) {
		return CachedToken{}, 0, &LoginError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("token already expired at %s", time.UnixMilli(expiresAt).UTC().Format(time.RFC3339)),
		}
	}

	return CachedToken{
		Token:     tr.AccessToken,
		ExpiresAt: expiresAt,
	}, time.Duration(expiresIn) * time.Second, nil
}

// ExpiresAt computes the absolute expiry in epoch ms of a token issued at
// issuedAt (epoch ms) and valid for expiresIn seconds.
func ExpiresAt(issuedAt, expiresIn int64) int64 {
	return issuedAt + expiresIn*1000
}

// errorMessage extracts a readable message from a token endpoint error body.
func errorMessage(body []byte) string {
	var upsErr struct {
		Response struct {
			Errors []struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"errors"`
		} `json:"response"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &upsErr); err == nil {
		if len(upsErr.Response.Errors) > 0 {
			e := upsErr.Response.Errors[0]
			return fmt.Sprintf("%s: %s", e.Code, e.Message)
		}
		if upsErr.ErrorDescription != "" {
			return upsErr.ErrorDescription
		}
		if upsErr.Error != "" {
			return upsErr.Error
		}
	}
	return strings.TrimSpace(string(body))
}
