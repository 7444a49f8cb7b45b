package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const defaultResolveURL = "https://api.companions.app/v1/speech/resolve"

// Asset is a synthesized speech asset. Duration is the provider-measured
// playback length when known, zero otherwise.
type Asset struct {
	URL      string
	Duration time.Duration
}

// Resolver resolves reply text into a playable speech asset.
type Resolver struct {
	resolveURL string
	apiKey     string

	httpClient *http.Client
}

type ResolverOption func(*Resolver)

// WithResolveURL overrides the resolution endpoint.
func WithResolveURL(resolveURL string) ResolverOption {
	return func(r *Resolver) { r.resolveURL = resolveURL }
}

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(apiKey string) ResolverOption {
	return func(r *Resolver) { r.apiKey = apiKey }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ResolverOption {
	return func(r *Resolver) { r.httpClient = httpClient }
}

func NewResolver(opts ...ResolverOption) *Resolver {
	resolver := &Resolver{
		resolveURL: defaultResolveURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}

	for _, opt := range opts {
		opt(resolver)
	}

	return resolver
}

// Resolve synthesizes text with the given voice. A nil asset with nil error
// means the backend could not synthesize; the caller completes the turn
// text-only. The request aborts with ctx, which is how an epoch bump cancels
// in-flight resolution.
func (r *Resolver) Resolve(ctx context.Context, text, voiceID string) (*Asset, error) {
	ctx, span := tracer.Start(ctx, "resolve speech asset")
	defer span.End()
	span.SetAttributes(attribute.String("request.voice", voiceID))

	requestBodyBytes, err := json.Marshal(struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}{Text: text, Voice: voiceID})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.resolveURL, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
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

	var resolved struct {
		AssetURL   *string `json:"assetUrl"`
		DurationMS int64   `json:"durationMs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&resolved); err != nil {
		return nil, fmt.Errorf("error decoding resolve body: %w", err)
	}

	if resolved.AssetURL == nil || *resolved.AssetURL == "" {
		logger.InfoContext(ctx, "speech asset could not be synthesized, falling back to text-only")
		return nil, nil
	}

	return &Asset{
		URL:      *resolved.AssetURL,
		Duration: time.Duration(resolved.DurationMS) * time.Millisecond,
	}, nil
}
