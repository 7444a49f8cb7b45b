package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jayallenwarren/elaralo-sub000/core/livesessions"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("participant-1", WithBaseURL(server.URL), WithAPIKey("test-key"))
}

func TestResolveRoomAndRole(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rooms/resolve":
			if got := r.URL.Query().Get("companion"); got != "companion-1" {
				t.Errorf("expected companion query, got %q", got)
			}
			_ = json.NewEncoder(w).Encode(livesessions.Room{ID: "room-1", Live: true})
		case "/rooms/room-1/role":
			if got := r.URL.Query().Get("participant"); got != "participant-1" {
				t.Errorf("expected participant query, got %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"role": "observer"})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	room, err := client.ResolveRoom(context.Background(), "companion-1")
	if err != nil {
		t.Fatalf("expected room resolution, got: %v", err)
	}
	if room.ID != "room-1" || !room.Live {
		t.Fatalf("expected the live room, got %+v", room)
	}

	role, err := client.ResolveRole(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("expected role resolution, got: %v", err)
	}
	if role != livesessions.RoleObserver {
		t.Fatalf("expected observer, got %s", role)
	}
}

func TestGoneStatusMapsToSessionExpired(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})

	_, err := client.SubscriberCredential(context.Background(), "room-1")
	if !errors.Is(err, livesessions.ErrSessionExpired) {
		t.Fatalf("expected the expired-session fault, got: %v", err)
	}
	if !livesessions.IsRecoverable(err) {
		t.Fatal("expected the fault to be recoverable")
	}
}

func TestStartReturnsPublishCredential(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rooms/room-1/start" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(livesessions.Credential{Token: "publish", CanPublish: true})
	})

	credential, err := client.Start(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("expected start to succeed, got: %v", err)
	}
	if !credential.CanPublish || credential.Token != "publish" {
		t.Fatalf("expected a publish credential, got %+v", credential)
	}
}

func TestJoinRequestLifecycle(t *testing.T) {
	var admitted []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/rooms/room-1/join-requests":
			var body struct {
				Participant string `json:"participant"`
				DisplayName string `json:"displayName"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.DisplayName != "Sam" || body.Participant != "participant-1" {
				t.Errorf("unexpected join request body: %+v", body)
			}
			_ = json.NewEncoder(w).Encode(livesessions.JoinRequest{
				ID:     "req-1",
				RoomID: "room-1",
				Status: livesessions.JoinRequestPending,
			})
		case r.Method == http.MethodGet && r.URL.Path == "/join-requests/req-1":
			_ = json.NewEncoder(w).Encode(livesessions.JoinRequest{
				ID:         "req-1",
				Status:     livesessions.JoinRequestAdmitted,
				Credential: &livesessions.Credential{Token: "subscribe"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/rooms/room-1/join-requests":
			_ = json.NewEncoder(w).Encode([]livesessions.JoinRequest{{ID: "req-2", Status: livesessions.JoinRequestPending}})
		case r.Method == http.MethodPost && r.URL.Path == "/join-requests/req-2/admit":
			admitted = append(admitted, "req-2")
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	request, err := client.CreateJoinRequest(context.Background(), "room-1", "Sam")
	if err != nil {
		t.Fatalf("expected join request creation, got: %v", err)
	}
	if request.Status != livesessions.JoinRequestPending {
		t.Fatalf("expected a pending request, got %s", request.Status)
	}

	polled, err := client.JoinRequestStatus(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("expected status poll, got: %v", err)
	}
	if polled.Status != livesessions.JoinRequestAdmitted || polled.Credential == nil {
		t.Fatalf("expected an admitted request with credential, got %+v", polled)
	}

	pending, err := client.PendingJoinRequests(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("expected pending list, got: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "req-2" {
		t.Fatalf("expected the pending request, got %v", pending)
	}

	if err := client.Admit(context.Background(), "req-2"); err != nil {
		t.Fatalf("expected admit to succeed, got: %v", err)
	}
	if len(admitted) != 1 {
		t.Fatalf("expected one admit call, got %d", len(admitted))
	}
}

func TestStopPostsToBackend(t *testing.T) {
	var stops int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/rooms/room-1/stop" {
			stops++
			w.WriteHeader(http.StatusNoContent)
			return
		}
		t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
	})

	if err := client.Stop(context.Background(), "room-1"); err != nil {
		t.Fatalf("expected stop to succeed, got: %v", err)
	}
	if stops != 1 {
		t.Fatalf("expected one stop call, got %d", stops)
	}
}
