package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenSourceGet(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("client_id"); got != "cid" {
			t.Errorf("client_id=%q", got)
		}
		if got := r.Form.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type=%q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "app-token-1",
			"expires_in":   3600,
			"token_type":   "bearer",
		})
	}))
	defer server.Close()

	ts := &TokenSource{ClientID: "cid", ClientSecret: "secret", TokenURL: server.URL}
	tok, err := ts.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tok != "app-token-1" {
		t.Errorf("token = %q", tok)
	}

	// Cached: second call must not hit the endpoint again.
	if _, err := ts.Get(context.Background()); err != nil {
		t.Fatalf("Get() second call error = %v", err)
	}
	if requests != 1 {
		t.Errorf("token endpoint hit %d times, want 1", requests)
	}
}

func TestTokenSourceMissingCreds(t *testing.T) {
	ts := &TokenSource{}
	if _, err := ts.Get(context.Background()); err == nil {
		t.Fatal("expected error for missing client id/secret")
	}
}

func TestTokenSourceSetToken(t *testing.T) {
	ts := &TokenSource{ClientID: "cid", ClientSecret: "secret"}
	ts.SetToken("seeded")
	tok, err := ts.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tok != "seeded" {
		t.Errorf("token = %q, want seeded", tok)
	}
}
