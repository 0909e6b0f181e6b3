package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/docvault/internal/access"
	"github.com/MarcoPoloResearchLab/docvault/internal/assist"
	"github.com/MarcoPoloResearchLab/docvault/internal/auth"
	"github.com/MarcoPoloResearchLab/docvault/internal/catalog"
	"github.com/MarcoPoloResearchLab/docvault/internal/licensing"
	"github.com/MarcoPoloResearchLab/docvault/internal/profiles"
	"github.com/MarcoPoloResearchLab/docvault/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type stubProfiles map[string]profiles.Profile

func (s stubProfiles) Resolve(_ context.Context, key string) (profiles.Profile, error) {
	if key == "" {
		return profiles.Profile{}, profiles.ErrInvalidCredential
	}
	if profile, ok := s[key]; ok {
		return profile, nil
	}
	return profiles.Profile{}, profiles.ErrUnknownCredential
}

func demoProfiles() stubProfiles {
	return stubProfiles{
		"vip123@":  {AccountID: "vip_user", DisplayName: "VIP Member 👑", OpeningBalance: 9999},
		"test123@": {AccountID: "test_user", DisplayName: "Member", OpeningBalance: 500},
		"poor123@": {AccountID: "poor_user", DisplayName: "Student", OpeningBalance: 50},
	}
}

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(step)
}

type testServer struct {
	handler    http.Handler
	catalog    *catalog.MemoryStore
	tokens     *auth.TokenIssuer
	dispatcher *RealtimeDispatcher
	clock      *testClock
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := catalog.NewMemoryStore(catalog.LaunchDocuments()...)
	engine, err := licensing.NewEngine(licensing.EngineConfig{
		Catalog:    store,
		IDProvider: licensing.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	clock := &testClock{current: time.Now().UTC()}
	capabilities, err := auth.NewCapabilityIssuer(auth.CapabilityIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "docvault-access",
		TTL:           time.Minute,
		Clock:         clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to build capability issuer: %v", err)
	}
	gate, err := access.NewGate(access.GateConfig{Catalog: store, Issuer: capabilities, Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to build gate: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "docvault-auth",
		Audience:      "docvault-api",
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		Catalog:      store,
		Engine:       engine,
		Gate:         gate,
		Sessions:     session.NewStore(session.StoreConfig{}),
		Profiles:     demoProfiles(),
		TokenManager: tokens,
		Assist:       assist.NewGuard(assist.GuardConfig{}),
		Realtime:     dispatcher,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testServer{handler: handler, catalog: store, tokens: tokens, dispatcher: dispatcher, clock: clock}
}

func (s testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s testServer) login(t *testing.T, key, deviceID string) string {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"key": key, "device_id": deviceID})
	if recorder.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var response loginResponsePayload
	decodeBody(t, recorder, &response)
	if response.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return response.AccessToken
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, status int) {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("unexpected status: got %d, want %d (body %s)", recorder.Code, status, recorder.Body.String())
	}
}
