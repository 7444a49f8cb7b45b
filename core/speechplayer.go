package orchestration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
)

// playbackSink is the local audio output surface. *miniaudio.Client
// satisfies it.
type playbackSink interface {
	StartPlayback(ctx context.Context) error
	StopPlayback() error
	SendAudio(audio []byte) error
	EndOfAudio()
	NotifyDrained(callback func())
}

const playbackChunkSize = 4096

// SpeechPlayer plays resolved speech assets through a local output device.
// It fetches the asset's PCM stream and feeds it to the sink; onEnded fires
// when the device buffer drains, which is the actual end of audible speech.
type SpeechPlayer struct {
	sink       playbackSink
	httpClient *http.Client

	mu      sync.Mutex
	started bool
}

type SpeechPlayerOption func(*SpeechPlayer)

// WithPlayerHTTPClient overrides the client used to fetch asset streams.
func WithPlayerHTTPClient(httpClient *http.Client) SpeechPlayerOption {
	return func(p *SpeechPlayer) { p.httpClient = httpClient }
}

func NewSpeechPlayer(sink playbackSink, opts ...SpeechPlayerOption) *SpeechPlayer {
	player := &SpeechPlayer{
		sink:       sink,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}

	for _, opt := range opts {
		opt(player)
	}

	return player
}

// Speak streams the asset into the output device. It returns once the
// stream is fully buffered; onEnded fires later, when the buffer drains.
func (p *SpeechPlayer) Speak(ctx context.Context, _ string, assetURL string, onEnded func()) error {
	if p == nil || p.sink == nil {
		return fmt.Errorf("no playback sink configured")
	}
	if assetURL == "" {
		return fmt.Errorf("no playable asset for reply")
	}

	ctx, span := tracer.Start(ctx, "play speech asset")
	defer span.End()

	if err := p.ensureStarted(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error fetching speech asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("non-OK HTTP status fetching speech asset: %s", resp.Status)
	}

	p.sink.NotifyDrained(onEnded)

	chunk := make([]byte, playbackChunkSize)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			if sendErr := p.sink.SendAudio(chunk[:n]); sendErr != nil {
				return fmt.Errorf("failed to buffer speech audio: %w", sendErr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("error streaming speech asset: %w", readErr)
		}
	}

	p.sink.EndOfAudio()
	return nil
}

func (p *SpeechPlayer) ensureStarted(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.sink.StartPlayback(ctx); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	p.started = true
	return nil
}

// Stop halts playback and clears anything still buffered.
func (p *SpeechPlayer) Stop() error {
	if p == nil || p.sink == nil {
		return nil
	}

	p.mu.Lock()
	started := p.started
	p.started = false
	p.mu.Unlock()

	if !started {
		return nil
	}
	return p.sink.StopPlayback()
}
