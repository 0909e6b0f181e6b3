package profiles

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "profiles.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Profile{}); err != nil {
		t.Fatalf("failed to migrate profile schema: %v", err)
	}
	resolver, err := NewResolver(ResolverConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}
	return resolver
}

func registerProfile(t *testing.T, resolver *Resolver, key, accountID, displayName string, balance int64) {
	t.Helper()
	profile, err := NewProfile(key, accountID, displayName, balance)
	if err != nil {
		t.Fatalf("failed to build profile: %v", err)
	}
	if err := resolver.Register(context.Background(), profile); err != nil {
		t.Fatalf("failed to register profile: %v", err)
	}
}

func TestResolveMatchesHashedKey(t *testing.T) {
	resolver := newTestResolver(t)
	registerProfile(t, resolver, "vip123@", "vip_user", "VIP Member 👑", 9999)
	registerProfile(t, resolver, "test123@", "test_user", "Member", 500)

	profile, err := resolver.Resolve(context.Background(), "test123@")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if profile.AccountID != "test_user" || profile.DisplayName != "Member" || profile.OpeningBalance != 500 {
		t.Fatalf("unexpected profile %#v", profile)
	}
	if profile.CredentialHash == "test123@" {
		t.Fatalf("expected credential to be stored hashed")
	}

	account := profile.Account("DEV-17862")
	if account.ID != "test_user" || account.Balance != 500 || account.BoundDevice != "DEV-17862" || len(account.Library) != 0 {
		t.Fatalf("unexpected opening account %#v", account)
	}

	// second call is served from the cached profile list.
	profile, err = resolver.Resolve(context.Background(), " vip123@ ")
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if profile.AccountID != "vip_user" {
		t.Fatalf("expected vip profile, got %q", profile.AccountID)
	}
}

func TestResolveRejectsUnknownAndEmptyKeys(t *testing.T) {
	resolver := newTestResolver(t)
	registerProfile(t, resolver, "test123@", "test_user", "Member", 500)

	if _, err := resolver.Resolve(context.Background(), "guess"); !errors.Is(err, ErrUnknownCredential) {
		t.Fatalf("expected unknown credential, got %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), "   "); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
}

func TestRegisterRefreshesCache(t *testing.T) {
	resolver := newTestResolver(t)
	registerProfile(t, resolver, "test123@", "test_user", "Member", 500)
	if _, err := resolver.Resolve(context.Background(), "test123@"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	registerProfile(t, resolver, "rotated@", "test_user", "Member", 500)
	if _, err := resolver.Resolve(context.Background(), "test123@"); !errors.Is(err, ErrUnknownCredential) {
		t.Fatalf("expected old key to be rejected after rotation, got %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), "rotated@"); err != nil {
		t.Fatalf("expected rotated key to resolve: %v", err)
	}
}

func TestNewProfileValidatesInput(t *testing.T) {
	if _, err := NewProfile("", "test_user", "Member", 0); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected invalid credential for empty key, got %v", err)
	}
	if _, err := NewProfile("key", "test_user", "Member", -1); err == nil {
		t.Fatalf("expected error for negative opening balance")
	}
}

func TestNewResolverRequiresDatabase(t *testing.T) {
	if _, err := NewResolver(ResolverConfig{}); err == nil {
		t.Fatalf("expected error for missing database")
	}
}
