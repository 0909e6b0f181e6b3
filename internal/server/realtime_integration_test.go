package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLibraryStreamEmitsPurchaseEvents(t *testing.T) {
	fixture := newTestServer(t)
	server := httptest.NewServer(fixture.handler)
	t.Cleanup(server.Close)

	token := fixture.login(t, "test123@", "DEV-AAAA")

	streamRequest, err := http.NewRequest(http.MethodGet, server.URL+"/library/events?access_token="+token, http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	streamResp, err := http.DefaultClient.Do(streamRequest)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = streamResp.Body.Close()
	})
	if streamResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", streamResp.StatusCode)
	}

	streamReader := bufio.NewReader(streamResp.Body)

	purchaseReq, err := http.NewRequest(http.MethodPost, server.URL+"/documents/3/purchase", bytes.NewBufferString(`{"consent":true}`))
	if err != nil {
		t.Fatalf("failed to construct purchase request: %v", err)
	}
	purchaseReq.Header.Set("Authorization", "Bearer "+token)
	purchaseReq.Header.Set("Content-Type", "application/json")
	purchaseResp, err := http.DefaultClient.Do(purchaseReq)
	if err != nil {
		t.Fatalf("purchase request failed: %v", err)
	}
	if purchaseResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected purchase status: %d", purchaseResp.StatusCode)
	}
	var purchasePayload struct {
		Outcome string `json:"outcome"`
	}
	if err := json.NewDecoder(purchaseResp.Body).Decode(&purchasePayload); err != nil {
		t.Fatalf("failed to decode purchase response: %v", err)
	}
	_ = purchaseResp.Body.Close()
	if purchasePayload.Outcome != "completed" {
		t.Fatalf("unexpected purchase outcome: %#v", purchasePayload)
	}

	type eventPayload struct {
		DocumentIDs []string `json:"documentIds"`
		Source      string   `json:"source"`
	}

	currentEventType := ""
	deadline := time.After(5 * time.Second)
	type readResult struct {
		line string
		err  error
	}
	for {
		resultCh := make(chan readResult, 1)
		go func() {
			line, err := streamReader.ReadString('\n')
			resultCh <- readResult{line: line, err: err}
		}()
		select {
		case <-deadline:
			t.Fatal("timed out waiting for realtime event")
		case res := <-resultCh:
			if res.err != nil {
				t.Fatalf("failed to read stream: %v", res.err)
			}
			line := strings.TrimSpace(res.line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "event:") {
				currentEventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			if currentEventType != RealtimeEventLibraryChanged {
				continue
			}
			dataJSON := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			var payload eventPayload
			if err := json.Unmarshal([]byte(dataJSON), &payload); err != nil {
				t.Fatalf("failed to decode event payload: %v", err)
			}
			if len(payload.DocumentIDs) == 0 || payload.DocumentIDs[0] != "3" {
				t.Fatalf("unexpected document identifiers: %#v", payload.DocumentIDs)
			}
			if payload.Source != realtimeSourceBackend {
				t.Fatalf("unexpected event source %q", payload.Source)
			}
			return
		}
	}
}
