// Package chat implements the chat-completion backend client: one reply
// endpoint taking bounded conversation history plus session state and
// returning the companion's reply, the backend's live-session status, and
// structured session-state updates.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultReplyURL         = "https://api.companions.app/v1/chat/reply"
	defaultHistoryExchanges = 20
)

type Client struct {
	replyURL     string
	apiKey       string
	companionID  string
	maxExchanges int

	httpClient *http.Client
}

type ClientOption func(*Client)

// WithReplyURL overrides the reply endpoint.
func WithReplyURL(replyURL string) ClientOption {
	return func(c *Client) { c.replyURL = replyURL }
}

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

// WithHistoryLimit bounds history to the most recent n exchanges.
func WithHistoryLimit(n int) ClientOption {
	return func(c *Client) { c.maxExchanges = n }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(companionID string, opts ...ClientOption) *Client {
	client := &Client{
		replyURL:     defaultReplyURL,
		companionID:  companionID,
		maxExchanges: defaultHistoryExchanges,
		httpClient:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// replySchema is advertised with every request so the backend returns the
// reply as strict JSON matching this client's Reply shape.
var replySchema = func() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return reflector.Reflect(&Reply{})
}()

type replyRequest struct {
	Companion      string             `json:"companion"`
	History        []Turn             `json:"history"`
	SessionState   State              `json:"sessionState,omitempty"`
	ResponseSchema *jsonschema.Schema `json:"responseSchema,omitempty"`
}

// Reply requests the companion's answer to the last user entry in history.
// History is bounded to the configured number of recent exchanges plus any
// leading system entry before it leaves the process. The request is
// ctx-cancellable so an epoch bump can abort it mid-flight.
func (c *Client) Reply(ctx context.Context, history []Turn, state State) (*Reply, error) {
	ctx, span := tracer.Start(ctx, "request companion reply")
	defer span.End()

	bounded := boundHistory(history, c.maxExchanges)
	span.SetAttributes(
		attribute.Int("request.history_entries", len(bounded)),
		attribute.Int("request.history_dropped", len(history)-len(bounded)),
	)

	requestBodyBytes, err := json.Marshal(replyRequest{
		Companion:      c.companionID,
		History:        bounded,
		SessionState:   state,
		ResponseSchema: replySchema,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.replyURL, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, readErr := io.ReadAll(resp.Body); readErr == nil && len(errorBody) > 0 {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		return nil, fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	var reply Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("error decoding reply body: %w", err)
	}

	return &reply, nil
}
