package oauth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/upsbridge/pkg/oauth"
)

type tokenServer struct {
	*httptest.Server
	logins atomic.Int32
}

// newTokenServer answers every login with body, or with status when it is not 200.
func newTokenServer(t *testing.T, status int, body string) *tokenServer {
	t.Helper()

	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.logins.Add(1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, oauth.TokenPath, r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func newCache(ts *tokenServer, store oauth.Store, nowMs int64) *oauth.TokenCache {
	return oauth.NewTokenCache(oauth.Config{
		TokenURL:     ts.URL + oauth.TokenPath,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}, store, oauth.WithClock(fixedClock(nowMs)))
}

func TestExpiresAt(t *testing.T) {
	assert.Equal(t, int64(3601000), oauth.ExpiresAt(1000, 3600))
	assert.Equal(t, int64(1000), oauth.ExpiresAt(1000, 0))
}

func TestTokenCache_IsTokenValid_Boundary(t *testing.T) {
	tests := []struct {
		name  string
		nowMs int64
		want  bool
	}{
		{"before expiry", 3600999, true},
		{"at expiry", 3601000, false},
		{"after expiry", 3601001, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := oauth.NewTokenCache(oauth.Config{}, oauth.NewMemoryStore(), oauth.WithClock(fixedClock(tt.nowMs)))
			assert.Equal(t, tt.want, cache.IsTokenValid(3601000))
		})
	}
}

func TestTokenCache_Login_StoresExpiry(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK,
		`{"token_type":"Bearer","issued_at":"1000","access_token":"abc","expires_in":"3600","status":"approved"}`)
	store := oauth.NewMemoryStore()
	cache := newCache(ts, store, 2000)

	tok, err := cache.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.Token)
	assert.Equal(t, int64(3601000), tok.ExpiresAt)

	cached, err := store.Get(context.Background(), oauth.DefaultCacheKey)
	require.NoError(t, err)
	assert.Equal(t, tok, cached)
}

func TestTokenCache_Login_NumericFields(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"abc","issued_at":1000,"expires_in":3600}`)
	cache := newCache(ts, oauth.NewMemoryStore(), 2000)

	tok, err := cache.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3601000), tok.ExpiresAt)
}

func TestTokenCache_Login_MissingIssuedAtUsesClock(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"abc","expires_in":"60"}`)
	cache := newCache(ts, oauth.NewMemoryStore(), 5000)

	tok, err := cache.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(65000), tok.ExpiresAt)
}

func TestTokenCache_Login_Failure(t *testing.T) {
	ts := newTokenServer(t, http.StatusUnauthorized,
		`{"response":{"errors":[{"code":"10401","message":"ClientId is Invalid"}]}}`)
	store := oauth.NewMemoryStore()

	var hookErr error
	cache := oauth.NewTokenCache(oauth.Config{
		TokenURL:     ts.URL + oauth.TokenPath,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}, store, oauth.WithLoginHook(func(err error) { hookErr = err }))

	_, err := cache.Login(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, oauth.ErrLoginFailed))
	assert.Contains(t, err.Error(), "ClientId is Invalid")
	assert.Equal(t, err, hookErr)

	var loginErr *oauth.LoginError
	require.True(t, errors.As(err, &loginErr))
	assert.Equal(t, http.StatusUnauthorized, loginErr.StatusCode)

	_, err = store.Get(context.Background(), oauth.DefaultCacheKey)
	assert.True(t, errors.Is(err, oauth.ErrTokenNotFound), "failed login must not store a token")
}

func TestTokenCache_Login_EmptyToken(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"expires_in":"3600"}`)
	cache := newCache(ts, oauth.NewMemoryStore(), 0)

	_, err := cache.Login(context.Background())
	assert.True(t, errors.Is(err, oauth.ErrLoginFailed))
}

func TestTokenCache_Login_Unreachable(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{}`)
	url := ts.URL
	ts.Close()

	cache := oauth.NewTokenCache(oauth.Config{TokenURL: url + oauth.TokenPath}, oauth.NewMemoryStore())
	_, err := cache.Login(context.Background())
	assert.True(t, errors.Is(err, oauth.ErrLoginFailed))
}

func TestTokenCache_CheckToken_EmptyCacheLogsInOnce(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"abc","issued_at":"1000","expires_in":"3600"}`)
	cache := newCache(ts, oauth.NewMemoryStore(), 2000)

	require.NoError(t, cache.CheckToken(context.Background()))
	assert.Equal(t, int32(1), ts.logins.Load())

	// Second check hits the cache.
	require.NoError(t, cache.CheckToken(context.Background()))
	assert.Equal(t, int32(1), ts.logins.Load())
}

func TestTokenCache_CheckToken_ValidTokenSkipsLogin(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"new","issued_at":"1000","expires_in":"3600"}`)
	store := oauth.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), oauth.DefaultCacheKey,
		oauth.CachedToken{Token: "cached", ExpiresAt: 10000}, time.Hour))

	cache := newCache(ts, store, 9999)

	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", tok.Token)
	assert.Equal(t, int32(0), ts.logins.Load())
}

func TestTokenCache_CheckToken_ExpiredTokenRefreshes(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"fresh","issued_at":"10000","expires_in":"3600"}`)
	store := oauth.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), oauth.DefaultCacheKey,
		oauth.CachedToken{Token: "stale", ExpiresAt: 5000}, time.Hour))

	cache := newCache(ts, store, 10000)

	require.NoError(t, cache.CheckToken(context.Background()))
	assert.Equal(t, int32(1), ts.logins.Load())

	cached, err := store.Get(context.Background(), oauth.DefaultCacheKey)
	require.NoError(t, err)
	assert.Equal(t, "fresh", cached.Token)
	assert.Greater(t, cached.ExpiresAt, int64(5000))
}

func TestTokenCache_Token_PropagatesLoginFailure(t *testing.T) {
	ts := newTokenServer(t, http.StatusInternalServerError, `upstream down`)
	cache := newCache(ts, oauth.NewMemoryStore(), 0)

	_, err := cache.Token(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, oauth.ErrLoginFailed))
	assert.Contains(t, err.Error(), "upstream down")
}

func TestTokenCache_Token_ConcurrentCallersShareLogin(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"abc","issued_at":"1000","expires_in":"3600"}`)
	cache := newCache(ts, oauth.NewMemoryStore(), 2000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := cache.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "abc", tok.Token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ts.logins.Load())
}

func TestTokenCache_Token_RejectsAlreadyExpiredToken(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"abc","issued_at":"1000","expires_in":"3600"}`)
	store := oauth.NewMemoryStore()
	cache := newCache(ts, store, 5000000)

	_, err := cache.Token(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, oauth.ErrLoginFailed))
	assert.Contains(t, err.Error(), "already expired")

	_, err = store.Get(context.Background(), oauth.DefaultCacheKey)
	assert.True(t, errors.Is(err, oauth.ErrTokenNotFound), "expired token must not be stored")
}

func TestTokenCache_Token_RejectsNonPositiveExpiresIn(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero", `{"access_token":"zero","issued_at":"1000","expires_in":"0"}`},
		{"negative", `{"access_token":"neg","issued_at":"1000","expires_in":-5}`},
		{"missing", `{"access_token":"none","issued_at":"1000"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t, http.StatusOK, tt.body)
			store := oauth.NewMemoryStore()
			cache := newCache(ts, store, 1000)

			_, err := cache.Token(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, oauth.ErrLoginFailed))

			_, err = store.Get(context.Background(), oauth.DefaultCacheKey)
			assert.True(t, errors.Is(err, oauth.ErrTokenNotFound))
		})
	}
}

func TestTokenCache_Token_CancelledCallerDoesNotFailSharedLogin(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var logins atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logins.Add(1) == 1 {
			close(started)
		}
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"abc","issued_at":"1000","expires_in":"3600"}`))
	}))
	t.Cleanup(srv.Close)

	var once sync.Once
	releaseLogin := func() { once.Do(func() { close(release) }) }
	t.Cleanup(releaseLogin)

	cache := oauth.NewTokenCache(oauth.Config{TokenURL: srv.URL + oauth.TokenPath},
		oauth.NewMemoryStore(), oauth.WithClock(fixedClock(2000)))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Token(firstCtx)
		firstErr <- err
	}()
	<-started

	type result struct {
		tok oauth.CachedToken
		err error
	}
	second := make(chan result, 1)
	go func() {
		tok, err := cache.Token(context.Background())
		second <- result{tok, err}
	}()

	cancelFirst()
	err := <-firstErr
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, oauth.ErrLoginFailed))

	releaseLogin()
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "abc", res.tok.Token)
	assert.Equal(t, int32(1), logins.Load())
}

func TestTokenCache_CustomCacheKey(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"abc","issued_at":"1000","expires_in":"3600"}`)
	store := oauth.NewMemoryStore()
	cache := oauth.NewTokenCache(oauth.Config{
		TokenURL:     ts.URL + oauth.TokenPath,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CacheKey:     "ups:token",
	}, store, oauth.WithClock(fixedClock(2000)))

	require.NoError(t, cache.CheckToken(context.Background()))

	_, err := store.Get(context.Background(), "ups:token")
	assert.NoError(t, err)
	_, err = store.Get(context.Background(), oauth.DefaultCacheKey)
	assert.True(t, errors.Is(err, oauth.ErrTokenNotFound))
}

func TestTokenCache_TokenSource(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"abc","issued_at":"1000","expires_in":"3600"}`)
	cache := newCache(ts, oauth.NewMemoryStore(), 2000)

	tok, err := cache.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, time.UnixMilli(3601000), tok.Expiry)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	tok.SetAuthHeader(req)
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
}

func TestCachedToken_JSON(t *testing.T) {
	data, err := json.Marshal(oauth.CachedToken{Token: "abc", ExpiresAt: 3601000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"abc","expires_at":3601000}`, string(data))
}
