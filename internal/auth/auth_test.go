package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGenerateAndValidateKey(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	rawKey, key, err := m.GenerateKey(ctx, "alice", "laptop")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if !strings.HasPrefix(rawKey, "sk_") {
		t.Errorf("Raw key missing sk_ prefix: %s", rawKey)
	}
	if key.UserID != "alice" || key.Name != "laptop" {
		t.Errorf("Unexpected key metadata: %+v", key)
	}
	if key.Hash == rawKey {
		t.Error("Raw key must not be stored verbatim")
	}

	got, err := m.ValidateKey(ctx, rawKey)
	if err != nil {
		t.Fatalf("ValidateKey failed: %v", err)
	}
	if got.UserID != "alice" {
		t.Errorf("Expected alice, got %s", got.UserID)
	}

	// Bearer prefix is tolerated.
	if _, err := m.ValidateKey(ctx, "Bearer "+rawKey); err != nil {
		t.Errorf("Bearer-prefixed key should validate, got %v", err)
	}
}

func TestValidateKey_Rejections(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	if _, err := m.ValidateKey(ctx, ""); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("Empty key: expected ErrNoAPIKey, got %v", err)
	}
	if _, err := m.ValidateKey(ctx, "not-a-key"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("Malformed key: expected ErrInvalidAPIKey, got %v", err)
	}
	if _, err := m.ValidateKey(ctx, "sk_deadbeef"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("Unknown key: expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestRevokeKey(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	rawKey, key, err := m.GenerateKey(ctx, "alice", "laptop")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	// Another player cannot revoke it.
	if err := m.RevokeKey(ctx, key.ID, "bob"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Cross-user revoke: expected ErrKeyNotFound, got %v", err)
	}

	if err := m.RevokeKey(ctx, key.ID, "alice"); err != nil {
		t.Fatalf("RevokeKey failed: %v", err)
	}
	if _, err := m.ValidateKey(ctx, rawKey); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("Revoked key should fail validation, got %v", err)
	}
}

func TestValidateKey_Expired(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store)
	ctx := context.Background()

	rawKey, key, err := m.GenerateKey(ctx, "alice", "laptop")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	key.ExpiresAt = &past
	if err := store.Update(ctx, key); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if _, err := m.ValidateKey(ctx, rawKey); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("Expired key should fail validation, got %v", err)
	}
}
