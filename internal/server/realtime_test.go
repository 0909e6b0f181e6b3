package server

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "session-1")
	defer cleanup()

	message := RealtimeMessage{
		SessionID:   "session-1",
		EventType:   RealtimeEventLibraryChanged,
		DocumentIDs: []string{"1", "2"},
		Timestamp:   time.Now().UTC(),
	}
	dispatcher.Publish(message)

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventLibraryChanged {
			t.Fatalf("expected event type %s, got %s", RealtimeEventLibraryChanged, received.EventType)
		}
		if len(received.DocumentIDs) != 2 {
			t.Fatalf("expected 2 document ids, got %d", len(received.DocumentIDs))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByAccount(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	sessionStream, cleanup := dispatcher.Subscribe(ctx, "session-2")
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(otherCtx, "session-3")
	defer otherCleanup()

	dispatcher.Publish(RealtimeMessage{
		SessionID:   "session-3",
		EventType:   RealtimeEventDocumentPublish,
		DocumentIDs: []string{"doc-c"},
		Timestamp:   time.Now().UTC(),
	})

	select {
	case <-sessionStream:
		t.Fatal("did not expect realtime message for unrelated session")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.SessionID != "session-3" {
			t.Fatalf("expected session-3, received %s", msg.SessionID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message for subscribed session")
	}
}

func TestRealtimeDispatcherCleanupStopsDelivery(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	stream, cleanup := dispatcher.Subscribe(context.Background(), "session-4")
	cleanup()
	cleanup()

	dispatcher.Publish(RealtimeMessage{
		SessionID:   "session-4",
		EventType:   RealtimeEventLibraryChanged,
		DocumentIDs: []string{"1"},
		Timestamp:   time.Now().UTC(),
	})

	select {
	case <-stream:
		t.Fatal("did not expect delivery after cleanup")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLibraryEventsReachOnlyTheBuyingSession(t *testing.T) {
	server := newTestServer(t)
	first := server.login(t, "test123@", "DEV-AAAA")
	second := server.login(t, "test123@", "DEV-AAAA")

	firstClaims, err := server.tokens.ValidateToken(first)
	if err != nil {
		t.Fatalf("failed to read first session: %v", err)
	}
	secondClaims, err := server.tokens.ValidateToken(second)
	if err != nil {
		t.Fatalf("failed to read second session: %v", err)
	}
	if firstClaims.SessionID == secondClaims.SessionID {
		t.Fatalf("expected independent sessions, both are %s", firstClaims.SessionID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstStream, firstCleanup := server.dispatcher.Subscribe(ctx, firstClaims.SessionID)
	defer firstCleanup()
	secondStream, secondCleanup := server.dispatcher.Subscribe(ctx, secondClaims.SessionID)
	defer secondCleanup()

	expectStatus(t, server.do(t, http.MethodPost, "/documents/1/purchase", first, map[string]bool{"consent": true}), http.StatusOK)

	select {
	case message := <-firstStream:
		if message.EventType != RealtimeEventLibraryChanged || len(message.DocumentIDs) != 1 || message.DocumentIDs[0] != "1" {
			t.Fatalf("unexpected message %#v", message)
		}
	case <-time.After(time.Second):
		t.Fatal("expected library change for the buying session")
	}
	select {
	case message := <-secondStream:
		t.Fatalf("other session must not be notified, received %#v", message)
	case <-time.After(50 * time.Millisecond):
	}

	library := server.do(t, http.MethodGet, "/library", second, nil)
	var listed documentListPayload
	decodeBody(t, library, &listed)
	if len(listed.Documents) != 0 {
		t.Fatalf("other session library must stay empty, got %#v", listed.Documents)
	}
}
