// Package avatar implements the talking-avatar synthesis provider client.
//
// The provider exposes a single websocket per session: the client sends
// speak/stop requests and receives connection-state and speak-lifecycle
// messages. Connection-state messages are surfaced through the callbacks in
// [livesessions.ConnectOptions] so the session controller can stay transport
// agnostic.
package avatar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jayallenwarren/elaralo-sub000/core/livesessions"
)

const defaultEndpoint = "wss://api.avatarsynthesis.app/v1/session"

type Client struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	endpoint  string
	apiKey    string
	companion string
	voiceID   string

	options livesessions.ConnectOptions

	closed bool
}

type ClientOption func(*Client)

// WithEndpoint overrides the provider websocket endpoint.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithAPIKey overrides the AVATAR_SYNTHESIS_API_KEY environment lookup.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

// WithVoice selects the synthesized voice for this session.
func WithVoice(voiceID string) ClientOption {
	return func(c *Client) { c.voiceID = voiceID }
}

func NewClient(companionID string, opts ...ClientOption) *Client {
	client := &Client{
		endpoint:  defaultEndpoint,
		companion: companionID,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Connect dials the provider and starts the message pump. Connection-state
// transitions arrive through the provided callbacks, not the return value:
// a nil error only means the dial itself succeeded.
func (c *Client) Connect(ctx context.Context, opts ...livesessions.ConnectOption) error {
	options := livesessions.ConnectOptions{
		ConnectedCallback:    func(string) {},
		DisconnectedCallback: func(error, bool) {},
		SpeakEndedCallback:   func(string) {},
		ErrorCallback:        func(error) {},
	}
	for _, opt := range opts {
		opt(&options)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.options = options
	c.closed = false
	c.connMu.Unlock()

	go c.processIncomingMessages(ctx, conn)

	return nil
}

// Reconnect tears down the current socket and dials again, reusing the
// callbacks registered by Connect.
func (c *Client) Reconnect(ctx context.Context) error {
	c.connMu.Lock()
	if c.conn != nil {
		c.closed = true
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.closed = false
	c.connMu.Unlock()

	go c.processIncomingMessages(ctx, conn)

	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	apiKey := c.apiKey
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("AVATAR_SYNTHESIS_API_KEY"); !ok {
			return nil, fmt.Errorf("avatar synthesis api key not found")
		}
	}

	endpointURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid avatar endpoint: %w", err)
	}
	queryParams := endpointURL.Query()
	queryParams.Set("companion", c.companion)
	if c.voiceID != "" {
		queryParams.Set("voice", c.voiceID)
	}
	endpointURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpointURL.String(),
		http.Header{"Authorization": {"Bearer " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to avatar provider: %w", err)
	}

	return conn, nil
}

type serverMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`
	Text   string `json:"text,omitempty"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

func (c *Client) processIncomingMessages(ctx context.Context, conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			c.connMu.Lock()
			closed := c.closed
			options := c.options
			c.connMu.Unlock()
			if !closed {
				options.DisconnectedCallback(fmt.Errorf("avatar socket read failed: %w", err), false)
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		var parsedMsg serverMessage
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			logger.WarnContext(ctx, "failed to unmarshal avatar provider message", "error", err)
			continue
		}

		c.connMu.Lock()
		options := c.options
		c.connMu.Unlock()

		switch parsedMsg.Type {
		case "connected":
			options.ConnectedCallback(parsedMsg.RoomID)
		case "speak_ended":
			options.SpeakEndedCallback(parsedMsg.Text)
		case "error":
			options.ErrorCallback(providerError(parsedMsg))
		case "disconnected":
			err := providerError(parsedMsg)
			options.DisconnectedCallback(err, livesessions.IsRecoverable(err))
		default:
			logger.WarnContext(ctx, "unknown avatar provider message type", "type", parsedMsg.Type)
		}
	}
}

// providerError maps the provider's error codes to typed errors. The expired
// session code is the single recoverable kind.
func providerError(msg serverMessage) error {
	if msg.Code == "session_expired" {
		return fmt.Errorf("%w: %s", livesessions.ErrSessionExpired, msg.Detail)
	}
	return fmt.Errorf("avatar provider error: %s", msg.Detail)
}

// Speak asks the avatar to voice text. A non-empty assetURL points the
// provider at pre-synthesized audio; otherwise the provider synthesizes from
// text. A session-expired rejection is returned wrapped so the caller can
// attempt one reconnect.
func (c *Client) Speak(ctx context.Context, text string, assetURL string) error {
	ctx, span := tracer.Start(ctx, "avatar speak")
	defer span.End()

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil || c.closed {
		return fmt.Errorf("avatar session not connected")
	}

	if err := c.conn.WriteJSON(struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		AssetURL string `json:"assetUrl,omitempty"`
	}{Type: "speak", Text: text, AssetURL: assetURL}); err != nil {
		return fmt.Errorf("failed to send speak request: %w", err)
	}

	return nil
}

// StopSpeaking interrupts the current utterance without dropping the session.
func (c *Client) StopSpeaking() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil || c.closed {
		return nil
	}

	if err := c.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: "stop"}); err != nil {
		return fmt.Errorf("failed to send stop request: %w", err)
	}

	return nil
}

// Disconnect closes the session socket. Safe to call repeatedly.
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil || c.closed {
		c.closed = true
		return nil
	}

	c.closed = true
	if err := c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	); err != nil {
		_ = c.conn.Close()
		return fmt.Errorf("failed to close avatar socket cleanly: %w", err)
	}

	return c.conn.Close()
}
