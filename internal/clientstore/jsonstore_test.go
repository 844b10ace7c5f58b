package clientstore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestJSONStore_Lookup(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clients.json")
	writeConfig(t, path, `{
		"clients": [
			{"client_id": "acme", "api_key": "key-acme", "provider": "openai", "rate_limit_rpm": 30},
			{"client_id": "globex", "api_key": "key-globex", "provider": "bedrock", "bedrock_model_id": "anthropic.claude-3-sonnet-20240229-v1:0"}
		]
	}`)
	s := NewJSONStore(path, discard())

	rec, err := s.GetByAPIKey(context.Background(), "key-acme")
	if err != nil {
		t.Fatalf("GetByAPIKey: %v", err)
	}
	if rec == nil || rec.ClientID != "acme" {
		t.Fatalf("rec = %+v, want acme", rec)
	}
	if rec.RateLimitRPM != 30 {
		t.Errorf("RateLimitRPM = %d, want 30", rec.RateLimitRPM)
	}

	rec, err = s.GetByAPIKey(context.Background(), "key-globex")
	if err != nil {
		t.Fatalf("GetByAPIKey: %v", err)
	}
	if rec == nil || rec.Provider != "bedrock" {
		t.Fatalf("rec = %+v, want bedrock client", rec)
	}
}

func TestJSONStore_Miss(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clients.json")
	writeConfig(t, path, `{"clients": [{"client_id": "acme", "api_key": "key-acme"}]}`)
	s := NewJSONStore(path, discard())

	rec, err := s.GetByAPIKey(context.Background(), "unknown-key")
	if err != nil {
		t.Fatalf("GetByAPIKey: %v", err)
	}
	if rec != nil {
		t.Errorf("rec = %+v, want nil on miss", rec)
	}
}

func TestJSONStore_DefaultsApplied(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clients.json")
	writeConfig(t, path, `{"clients": [{"client_id": "bare", "api_key": "key-bare"}]}`)
	s := NewJSONStore(path, discard())

	rec, _ := s.GetByAPIKey(context.Background(), "key-bare")
	if rec == nil {
		t.Fatal("rec = nil")
	}
	if rec.Provider != "openai" || rec.RateLimitRPM != 60 || rec.Status != "active" {
		t.Errorf("defaults not applied: %+v", rec)
	}
	if rec.Suspended() {
		t.Error("bare record reports suspended")
	}
}

func TestJSONStore_ReloadOnMtimeChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clients.json")
	writeConfig(t, path, `{"clients": [{"client_id": "acme", "api_key": "key-acme"}]}`)
	s := NewJSONStore(path, discard())

	if rec, _ := s.GetByAPIKey(context.Background(), "key-acme"); rec == nil {
		t.Fatal("initial lookup missed")
	}

	writeConfig(t, path, `{"clients": [{"client_id": "acme", "api_key": "key-rotated"}]}`)
	// Ensure the mtime visibly advances on coarse-grained filesystems.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	if rec, _ := s.GetByAPIKey(context.Background(), "key-acme"); rec != nil {
		t.Error("rotated-away key still resolves")
	}
	rec, _ := s.GetByAPIKey(context.Background(), "key-rotated")
	if rec == nil || rec.ClientID != "acme" {
		t.Errorf("rec = %+v, want acme via rotated key", rec)
	}
}

func TestJSONStore_MissingFileIsMiss(t *testing.T) {
	t.Parallel()
	s := NewJSONStore(filepath.Join(t.TempDir(), "absent.json"), discard())

	rec, err := s.GetByAPIKey(context.Background(), "key")
	if err != nil {
		t.Fatalf("GetByAPIKey: %v", err)
	}
	if rec != nil {
		t.Errorf("rec = %+v, want nil", rec)
	}
}

func TestJSONStore_MalformedFileIsMiss(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clients.json")
	writeConfig(t, path, `{"clients": [`)
	s := NewJSONStore(path, discard())

	rec, err := s.GetByAPIKey(context.Background(), "key")
	if err != nil {
		t.Fatalf("GetByAPIKey: %v", err)
	}
	if rec != nil {
		t.Errorf("rec = %+v, want nil", rec)
	}
}

func TestJSONStore_DuplicateKeyLastWins(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clients.json")
	writeConfig(t, path, `{"clients": [
		{"client_id": "first", "api_key": "dup"},
		{"client_id": "second", "api_key": "dup"}
	]}`)
	s := NewJSONStore(path, discard())

	rec, _ := s.GetByAPIKey(context.Background(), "dup")
	if rec == nil || rec.ClientID != "second" {
		t.Errorf("rec = %+v, want the later record", rec)
	}
}
