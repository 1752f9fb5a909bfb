package oauth

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

type tokenSource struct {
	ctx   context.Context
	cache *TokenCache
}

// TokenSource adapts the cache to oauth2.TokenSource. Every call goes through
// the cache, so wrapping it in oauth2.ReuseTokenSource is unnecessary.
func (c *TokenCache) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, cache: c}
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.cache.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: tok.Token,
		TokenType:   "Bearer",
		Expiry:      time.UnixMilli(tok.ExpiresAt),
	}, nil
}
