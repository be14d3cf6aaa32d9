package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestHelix(t *testing.T, handler http.HandlerFunc) *HelixClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	ts := &TokenSource{ClientID: "test-client-id", ClientSecret: "test-secret"}
	ts.SetToken("test-token")
	return &HelixClient{
		AppTokenSource: ts,
		ClientID:       "test-client-id",
		BaseURL:        server.URL,
	}
}

func TestHelixClient_GetStreams(t *testing.T) {
	client := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helix/streams" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("user_login"); got != "livechannel" {
			t.Errorf("user_login=%q want livechannel", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization=%q", got)
		}
		if got := r.Header.Get("Client-Id"); got != "test-client-id" {
			t.Errorf("Client-Id=%q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{
				"id":         "s-1",
				"title":      "Live Now",
				"started_at": "2026-03-15T14:30:00Z",
			}},
		})
	})

	streams, err := client.GetStreams(context.Background(), "livechannel")
	if err != nil {
		t.Fatalf("GetStreams() error = %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(streams))
	}
	if streams[0].Title != "Live Now" || streams[0].ID != "s-1" {
		t.Errorf("stream = %+v", streams[0])
	}
	if streams[0].StartedAt.IsZero() {
		t.Error("StartedAt not parsed")
	}
}

func TestHelixClient_GetStreamsOffline(t *testing.T) {
	client := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{}})
	})
	streams, err := client.GetStreams(context.Background(), "sleepychannel")
	if err != nil {
		t.Fatalf("GetStreams() error = %v", err)
	}
	if len(streams) != 0 {
		t.Fatalf("expected no streams, got %d", len(streams))
	}
}

func TestHelixClient_GetStreamsErrors(t *testing.T) {
	tests := []struct {
		name   string
		login  string
		status int
	}{
		{"empty login", "", http.StatusOK},
		{"server error", "somechannel", http.StatusInternalServerError},
		{"unauthorized", "somechannel", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			if _, err := client.GetStreams(context.Background(), tt.login); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHelixClient_GetUserID(t *testing.T) {
	tests := []struct {
		name     string
		login    string
		response interface{}
		wantID   string
		wantErr  bool
	}{
		{
			name:  "successful lookup",
			login: "testuser",
			response: map[string]interface{}{
				"data": []map[string]string{{"id": "12345", "login": "testuser"}},
			},
			wantID: "12345",
		},
		{
			name:     "user not found",
			login:    "nonexistent",
			response: map[string]interface{}{"data": []map[string]string{}},
			wantErr:  true,
		},
		{
			name:    "empty login",
			login:   "",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/helix/users" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				_ = json.NewEncoder(w).Encode(tt.response)
			})
			id, err := client.GetUserID(context.Background(), tt.login)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetUserID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if id != tt.wantID {
				t.Errorf("GetUserID() = %q, want %q", id, tt.wantID)
			}
		})
	}
}
