package db_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luoshu/livesaver/db"
	"github.com/luoshu/livesaver/testutil"
)

func TestMigrateIdempotent(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	// SetupTestDB already migrated once; a second run must be a no-op.
	if err := db.Migrate(context.Background(), dbc); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestKVRoundTrip(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = dbc.ExecContext(context.Background(), `DELETE FROM kv WHERE key LIKE 'test_kv_%'`)
	})

	if got, err := db.GetKV(ctx, dbc, "test_kv_absent"); err != nil || got != "" {
		t.Errorf("GetKV(absent) = (%q, %v), want (\"\", nil)", got, err)
	}

	if err := db.SetKV(ctx, dbc, "test_kv_a", "one"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetKV(ctx, dbc, "test_kv_a", "two"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	got, err := db.GetKV(ctx, dbc, "test_kv_a")
	if err != nil {
		t.Fatal(err)
	}
	if got != "two" {
		t.Errorf("GetKV = %q, want two", got)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = dbc.ExecContext(context.Background(), `DELETE FROM credentials WHERE name LIKE 'test_cred_%'`)
	})

	if got, err := db.GetCredential(ctx, dbc, "test_cred_absent"); err != nil || got != "" {
		t.Errorf("GetCredential(absent) = (%q, %v), want (\"\", nil)", got, err)
	}

	if err := db.UpsertCredential(ctx, dbc, "test_cred_token", "secret-one"); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetCredential(ctx, dbc, "test_cred_token")
	if err != nil {
		t.Fatal(err)
	}
	if got != "secret-one" {
		t.Errorf("GetCredential = %q, want secret-one", got)
	}

	// Upsert replaces the value.
	if err := db.UpsertCredential(ctx, dbc, "test_cred_token", "secret-two"); err != nil {
		t.Fatal(err)
	}
	got, err = db.GetCredential(ctx, dbc, "test_cred_token")
	if err != nil {
		t.Fatal(err)
	}
	if got != "secret-two" {
		t.Errorf("GetCredential after upsert = %q, want secret-two", got)
	}
}

func TestSeedCredentialsFromEnv(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = dbc.ExecContext(context.Background(),
			`DELETE FROM credentials WHERE name IN ('twitch_bot_username','twitch_oauth_token','http_cookies')`)
	})

	cookies := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(cookies, []byte("# Netscape HTTP Cookie File\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TWITCH_BOT_USERNAME", "seedbot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:seedtoken")
	t.Setenv("COOKIES_FILE", cookies)

	if err := db.SeedCredentialsFromEnv(ctx, dbc); err != nil {
		t.Fatalf("SeedCredentialsFromEnv: %v", err)
	}

	for name, want := range map[string]string{
		"twitch_bot_username": "seedbot",
		"twitch_oauth_token":  "oauth:seedtoken",
		"http_cookies":        "# Netscape HTTP Cookie File\n",
	} {
		got, err := db.GetCredential(ctx, dbc, name)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("credential %s = %q, want %q", name, got, want)
		}
	}

	// Empty env values must not clobber stored credentials.
	t.Setenv("TWITCH_BOT_USERNAME", "")
	t.Setenv("TWITCH_OAUTH_TOKEN", "")
	t.Setenv("COOKIES_FILE", "")
	if err := db.SeedCredentialsFromEnv(ctx, dbc); err != nil {
		t.Fatalf("SeedCredentialsFromEnv with empty env: %v", err)
	}
	got, err := db.GetCredential(ctx, dbc, "twitch_oauth_token")
	if err != nil {
		t.Fatal(err)
	}
	if got != "oauth:seedtoken" {
		t.Errorf("stored token clobbered by empty env: %q", got)
	}
}

func TestMaterializeCookies(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = dbc.ExecContext(context.Background(), `DELETE FROM credentials WHERE name='http_cookies'`)
	})

	dir := filepath.Join(t.TempDir(), "data")

	// Nothing stored: no file, no error.
	path, err := db.MaterializeCookies(ctx, dbc, dir)
	if err != nil || path != "" {
		t.Fatalf("MaterializeCookies(empty) = (%q, %v), want (\"\", nil)", path, err)
	}

	if err := db.UpsertCredential(ctx, dbc, "http_cookies", "cookie-data"); err != nil {
		t.Fatal(err)
	}
	path, err = db.MaterializeCookies(ctx, dbc, dir)
	if err != nil {
		t.Fatalf("MaterializeCookies: %v", err)
	}
	if path != filepath.Join(dir, "cookies.txt") {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "cookie-data" {
		t.Errorf("cookies content = %q", data)
	}
}

func TestHeartbeat(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = dbc.ExecContext(context.Background(), `DELETE FROM kv WHERE key='test_job_heartbeat'`)
	})

	db.Heartbeat(ctx, dbc, "test_job_heartbeat")
	got, err := db.GetKV(ctx, dbc, "test_job_heartbeat")
	if err != nil {
		t.Fatal(err)
	}
	ts, err := time.Parse(time.RFC3339, got)
	if err != nil {
		t.Fatalf("heartbeat value %q is not RFC3339: %v", got, err)
	}
	if time.Since(ts) > time.Minute {
		t.Errorf("heartbeat timestamp too old: %s", ts)
	}
}
