package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReplySendsBoundedHistoryAndSchema(t *testing.T) {
	var received replyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Reply{
			ReplyText:           "hello back",
			SessionStatus:       SessionStatus{BroadcastLive: true, RoomID: "room-1"},
			SessionStateUpdates: State{"greeted": true},
		})
	}))
	defer server.Close()

	client := NewClient("companion-1",
		WithReplyURL(server.URL),
		WithAPIKey("test-key"),
		WithHistoryLimit(1),
	)

	history := []Turn{
		{Role: RoleSystem, Text: "be kind"},
		{Role: RoleUser, Text: "old question"},
		{Role: RoleCompanion, Text: "old answer"},
		{Role: RoleUser, Text: "hello"},
	}
	reply, err := client.Reply(context.Background(), history, State{"scene": "garden"})
	if err != nil {
		t.Fatalf("expected reply, got: %v", err)
	}

	if reply.ReplyText != "hello back" {
		t.Fatalf("expected the decoded reply, got %q", reply.ReplyText)
	}
	if !reply.SessionStatus.BroadcastLive || reply.SessionStatus.RoomID != "room-1" {
		t.Fatalf("expected the piggybacked session status, got %+v", reply.SessionStatus)
	}
	if reply.SessionStateUpdates["greeted"] != true {
		t.Fatalf("expected state updates, got %v", reply.SessionStateUpdates)
	}

	if received.Companion != "companion-1" {
		t.Fatalf("expected the companion identity, got %q", received.Companion)
	}
	// One exchange plus the system entry survives a limit of 1.
	if len(received.History) != 3 {
		t.Fatalf("expected bounded history of 3 entries, got %d", len(received.History))
	}
	if received.History[0].Role != RoleSystem {
		t.Fatal("expected the system entry to survive bounding")
	}
	if received.History[2].Text != "hello" {
		t.Fatalf("expected the newest turn last, got %q", received.History[2].Text)
	}
	if received.ResponseSchema == nil {
		t.Fatal("expected the response schema to be advertised")
	}
}

func TestReplyErrorsOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient("companion-1", WithReplyURL(server.URL))
	if _, err := client.Reply(context.Background(), nil, nil); err == nil {
		t.Fatal("expected an error for a non-OK status")
	}
}

func TestReplyIsCancellable(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	client := NewClient("companion-1", WithReplyURL(server.URL))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Reply(ctx, nil, nil); err == nil {
		t.Fatal("expected a cancelled request to fail")
	}
}

func TestBoundHistory(t *testing.T) {
	history := []Turn{
		{Role: RoleUser, Text: "u1"},
		{Role: RoleCompanion, Text: "c1"},
		{Role: RoleUser, Text: "u2"},
		{Role: RoleCompanion, Text: "c2"},
	}

	bounded := boundHistory(history, 1)
	if len(bounded) != 2 || bounded[0].Text != "u2" {
		t.Fatalf("expected the most recent exchange, got %v", bounded)
	}

	if got := boundHistory(history, 0); len(got) != len(history) {
		t.Fatal("expected a non-positive limit to keep everything")
	}
}
