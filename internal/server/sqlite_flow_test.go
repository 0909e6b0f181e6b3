package server

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/docvault/internal/access"
	"github.com/MarcoPoloResearchLab/docvault/internal/auth"
	"github.com/MarcoPoloResearchLab/docvault/internal/catalog"
	"github.com/MarcoPoloResearchLab/docvault/internal/database"
	"github.com/MarcoPoloResearchLab/docvault/internal/licensing"
	"github.com/MarcoPoloResearchLab/docvault/internal/profiles"
	"github.com/MarcoPoloResearchLab/docvault/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newSQLiteServer(t *testing.T, databasePath string) (testServer, *catalog.GormStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store, err := catalog.NewGormStore(catalog.GormStoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build catalog store: %v", err)
	}
	engine, err := licensing.NewEngine(licensing.EngineConfig{Catalog: store, IDProvider: licensing.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	capabilities, err := auth.NewCapabilityIssuer(auth.CapabilityIssuerConfig{
		SigningSecret: []byte("integration-secret"),
		Issuer:        "docvault-access",
		TTL:           time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to build capability issuer: %v", err)
	}
	gate, err := access.NewGate(access.GateConfig{Catalog: store, Issuer: capabilities})
	if err != nil {
		t.Fatalf("failed to build gate: %v", err)
	}
	resolver, err := profiles.NewResolver(profiles.ResolverConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("integration-secret"),
		Issuer:        "docvault-auth",
		Audience:      "docvault-api",
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Catalog:      store,
		Engine:       engine,
		Gate:         gate,
		Sessions:     session.NewStore(session.StoreConfig{}),
		Profiles:     resolver,
		TokenManager: tokens,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testServer{handler: handler, tokens: tokens}, store
}

func TestSQLiteBindingSurvivesRestart(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "docvault.db")

	first, _ := newSQLiteServer(t, databasePath)
	buyer := first.login(t, "test123@", "DEV-AAAA")
	expectStatus(t, first.do(t, http.MethodPost, "/documents/1/purchase", buyer, map[string]bool{"consent": true}), http.StatusOK)

	second, store := newSQLiteServer(t, databasePath)
	document, err := store.Get(context.Background(), "1")
	if err != nil {
		t.Fatalf("failed to reload document: %v", err)
	}
	bound, ok := document.Binding.Device()
	if !ok || bound != "DEV-AAAA" {
		t.Fatalf("expected binding to persist, got %#v", document.Binding)
	}

	other := second.login(t, "vip123@", "DEV-BBBB")
	exported := second.do(t, http.MethodPost, "/documents/1/export", other, nil)
	expectStatus(t, exported, http.StatusForbidden)
	var denial errorPayload
	decodeBody(t, exported, &denial)
	if denial.BoundDevice != "DEV-AAAA" || denial.RequesterDevice != "DEV-BBBB" {
		t.Fatalf("unexpected denial %#v", denial)
	}

	listing := second.do(t, http.MethodGet, "/documents", other, nil)
	var listed documentListPayload
	decodeBody(t, listing, &listed)
	if len(listed.Documents) != 3 {
		t.Fatalf("expected seeded catalog once, got %d documents", len(listed.Documents))
	}
}

func TestSQLiteLoginUsesSeededProfiles(t *testing.T) {
	server, _ := newSQLiteServer(t, filepath.Join(t.TempDir(), "docvault.db"))

	recorder := server.do(t, http.MethodPost, "/auth/login", "", map[string]string{"key": "vip123@", "device_id": "DEV-1234"})
	expectStatus(t, recorder, http.StatusOK)
	var response loginResponsePayload
	decodeBody(t, recorder, &response)
	if response.Account.ID != "vip_user" || response.Account.Balance != 9999 {
		t.Fatalf("unexpected seeded account %#v", response.Account)
	}

	recorder = server.do(t, http.MethodPost, "/auth/login", "", map[string]string{"key": "nobody@", "device_id": "DEV-1234"})
	expectStatus(t, recorder, http.StatusUnauthorized)
}
