// Package broadcast implements the human broadcast/conferencing provider
// client. All coordination is pull-based HTTP against the companion backend:
// room and role resolution, presenter start/stop, subscriber credentials, and
// the admission request/list/admit/deny surface. The backend holds the
// authoritative state; this client only ever reads snapshots and posts
// intents.
package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/jayallenwarren/elaralo-sub000/core/livesessions"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const defaultBaseURL = "https://api.companions.app/v1/broadcast"

type Client struct {
	baseURL       string
	apiKey        string
	participantID string

	httpClient *http.Client
}

type ClientOption func(*Client)

// WithBaseURL overrides the backend base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

// WithHTTPClient overrides the underlying HTTP client. The otelhttp
// transport is not re-applied to an injected client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a broadcast provider client for one participant. The
// participant ID is the stable per-brand identity used to label shared chat
// turns and attribute admission requests.
func NewClient(participantID string, opts ...ClientOption) *Client {
	client := &Client{
		baseURL:       defaultBaseURL,
		participantID: participantID,
		httpClient:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// ParticipantID returns the stable identity this client acts as.
func (c *Client) ParticipantID() string { return c.participantID }

// ResolveRoom resolves the shared room for a companion, reporting whether a
// broadcast is currently live in it.
func (c *Client) ResolveRoom(ctx context.Context, companionID string) (*livesessions.Room, error) {
	var room livesessions.Room
	if err := c.get(ctx, "/rooms/resolve?companion="+url.QueryEscape(companionID), &room); err != nil {
		return nil, fmt.Errorf("failed to resolve room: %w", err)
	}
	return &room, nil
}

// ResolveRole resolves the local participant's role in a room.
func (c *Client) ResolveRole(ctx context.Context, roomID string) (livesessions.Role, error) {
	var resolved struct {
		Role livesessions.Role `json:"role"`
	}
	if err := c.get(ctx, "/rooms/"+url.PathEscape(roomID)+"/role?participant="+url.QueryEscape(c.participantID), &resolved); err != nil {
		return livesessions.RoleUnknown, fmt.Errorf("failed to resolve role: %w", err)
	}
	if resolved.Role == "" {
		return livesessions.RoleUnknown, nil
	}
	return resolved.Role, nil
}

// Start opens the room for broadcasting and returns the presenter's publish
// credential. Only presenters may call it; the backend rejects others.
func (c *Client) Start(ctx context.Context, roomID string) (*livesessions.Credential, error) {
	var credential livesessions.Credential
	if err := c.post(ctx, "/rooms/"+url.PathEscape(roomID)+"/start", nil, &credential); err != nil {
		return nil, fmt.Errorf("failed to start broadcast: %w", err)
	}
	return &credential, nil
}

// Stop ends the broadcast for everyone. Callers must only invoke it for the
// presenter; observers leaving a session release local resources instead.
func (c *Client) Stop(ctx context.Context, roomID string) error {
	if err := c.post(ctx, "/rooms/"+url.PathEscape(roomID)+"/stop", nil, nil); err != nil {
		return fmt.Errorf("failed to stop broadcast: %w", err)
	}
	return nil
}

// SubscriberCredential returns a subscribe-only credential for a room that
// is already live, letting an observer join without the admission handshake.
func (c *Client) SubscriberCredential(ctx context.Context, roomID string) (*livesessions.Credential, error) {
	var credential livesessions.Credential
	if err := c.post(ctx, "/rooms/"+url.PathEscape(roomID)+"/subscribe", nil, &credential); err != nil {
		return nil, fmt.Errorf("failed to obtain subscriber credential: %w", err)
	}
	return &credential, nil
}

// RoomStatus reports whether the room's broadcast is still live. The session
// controller polls this while connected to observe the broadcast-ended
// transition.
func (c *Client) RoomStatus(ctx context.Context, roomID string) (*livesessions.Room, error) {
	var room livesessions.Room
	if err := c.get(ctx, "/rooms/"+url.PathEscape(roomID), &room); err != nil {
		return nil, fmt.Errorf("failed to fetch room status: %w", err)
	}
	return &room, nil
}

// RelayChat posts a joined participant's message to the broadcast's shared
// chat, labeled with the participant identity. Relayed messages stay inside
// the broadcast; they are never part of the companion conversation.
func (c *Client) RelayChat(ctx context.Context, roomID, text string) error {
	body := struct {
		Participant string `json:"participant"`
		Text        string `json:"text"`
	}{Participant: c.participantID, Text: text}

	if err := c.post(ctx, "/rooms/"+url.PathEscape(roomID)+"/chat", body, nil); err != nil {
		return fmt.Errorf("failed to relay broadcast chat: %w", err)
	}
	return nil
}

// CreateJoinRequest files a pending admission request for a restricted room.
func (c *Client) CreateJoinRequest(ctx context.Context, roomID, displayName string) (*livesessions.JoinRequest, error) {
	body := struct {
		Participant string `json:"participant"`
		DisplayName string `json:"displayName"`
	}{Participant: c.participantID, DisplayName: displayName}

	var request livesessions.JoinRequest
	if err := c.post(ctx, "/rooms/"+url.PathEscape(roomID)+"/join-requests", body, &request); err != nil {
		return nil, fmt.Errorf("failed to create join request: %w", err)
	}
	return &request, nil
}

// JoinRequestStatus polls one admission request. An admitted request carries
// the observer's subscribe credential.
func (c *Client) JoinRequestStatus(ctx context.Context, requestID string) (*livesessions.JoinRequest, error) {
	var request livesessions.JoinRequest
	if err := c.get(ctx, "/join-requests/"+url.PathEscape(requestID), &request); err != nil {
		return nil, fmt.Errorf("failed to poll join request: %w", err)
	}
	return &request, nil
}

// PendingJoinRequests lists unresolved admission requests for a room, for
// the presenter's admit/deny surface. The list is a polled snapshot and may
// contain entries already resolved elsewhere.
func (c *Client) PendingJoinRequests(ctx context.Context, roomID string) ([]livesessions.JoinRequest, error) {
	var requests []livesessions.JoinRequest
	if err := c.get(ctx, "/rooms/"+url.PathEscape(roomID)+"/join-requests?status=pending", &requests); err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	return requests, nil
}

// Admit resolves a request in the observer's favor. Resolving an
// already-resolved request is a no-op: stale entries from a polled list must
// not flip a decision.
func (c *Client) Admit(ctx context.Context, requestID string) error {
	if err := c.post(ctx, "/join-requests/"+url.PathEscape(requestID)+"/admit", nil, nil); err != nil {
		return fmt.Errorf("failed to admit join request: %w", err)
	}
	return nil
}

// Deny resolves a request against the observer. Idempotent like Admit.
func (c *Client) Deny(ctx context.Context, requestID string) error {
	if err := c.post(ctx, "/join-requests/"+url.PathEscape(requestID)+"/deny", nil, nil); err != nil {
		return fmt.Errorf("failed to deny join request: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, span := tracer.Start(ctx, "broadcast backend request")
	defer span.End()
	span.SetAttributes(attribute.String("request.path", path))

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshalling JSON: %w", err)
		}
		bodyReader = bytes.NewBuffer(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	switch {
	case resp.StatusCode == http.StatusGone:
		// The backend reports expired credentials/sessions with 410.
		return livesessions.ErrSessionExpired
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		if errorBody, readErr := io.ReadAll(resp.Body); readErr == nil && len(errorBody) > 0 {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		return fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response body: %w", err)
	}
	return nil
}
