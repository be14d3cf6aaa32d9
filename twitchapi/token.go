package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/endpoints"
)

// TokenSource fetches and caches a Twitch app access (client credentials) token.
// NOTE: This token CANNOT be used for IRC chat; chat requires a user (bot) OAuth
// token with chat:read/chat:edit scopes.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	// TokenURL overrides the Twitch token endpoint (tests).
	TokenURL   string
	HTTPClient *http.Client

	mu  sync.Mutex
	src oauth2.TokenSource
}

// Get returns a valid (fresh or cached) app access token. Refresh is handled
// by the underlying oauth2 client-credentials source.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.Lock()
	if ts.src == nil {
		if ts.ClientID == "" || ts.ClientSecret == "" {
			ts.mu.Unlock()
			return "", errors.New("missing client id/secret for twitch app token")
		}
		tokenURL := ts.TokenURL
		if tokenURL == "" {
			tokenURL = endpoints.Twitch.TokenURL
		}
		cc := &clientcredentials.Config{
			ClientID:     ts.ClientID,
			ClientSecret: ts.ClientSecret,
			TokenURL:     tokenURL,
			// Twitch wants credentials in the POST body, not basic auth.
			AuthStyle: oauth2.AuthStyleInParams,
		}
		cctx := context.Background()
		if ts.HTTPClient != nil {
			cctx = context.WithValue(cctx, oauth2.HTTPClient, ts.HTTPClient)
		}
		ts.src = oauth2.ReuseTokenSource(nil, cc.TokenSource(cctx))
	}
	src := ts.src
	ts.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("twitch app token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty access_token in twitch response")
	}
	return tok.AccessToken, nil
}

// SetToken seeds the cache with a known token (tests).
func (ts *TokenSource) SetToken(token string) {
	ts.mu.Lock()
	ts.src = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	ts.mu.Unlock()
}
