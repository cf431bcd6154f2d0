package secrets

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestAPIKeyRoundTrip(t *testing.T) {
	keyring.MockInit()

	if _, err := LoadAPIKey("claude"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := SaveAPIKey("Claude", "  sk-test \n"); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadAPIKey("claude")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "sk-test" {
		t.Fatalf("key = %q", got)
	}

	if err := DeleteAPIKey("claude"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := DeleteAPIKey("claude"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := LoadAPIKey("claude"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSaveAPIKeyRejectsEmpty(t *testing.T) {
	keyring.MockInit()
	if err := SaveAPIKey("openai", "   "); err == nil {
		t.Fatal("expected error for empty key")
	}
}
