package orchestration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type fakeSink struct {
	mu      sync.Mutex
	starts  int
	stops   int
	audio   []byte
	ended   int
	drained func()
}

func (f *fakeSink) StartPlayback(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeSink) StopPlayback() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeSink) SendAudio(audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, audio...)
	return nil
}

func (f *fakeSink) EndOfAudio() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended++
	if f.drained != nil {
		f.drained()
	}
}

func (f *fakeSink) NotifyDrained(callback func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drained = callback
}

func TestSpeakStreamsAssetIntoSink(t *testing.T) {
	pcm := make([]byte, 10_000)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(pcm)
	}))
	defer server.Close()

	sink := &fakeSink{}
	player := NewSpeechPlayer(sink)

	endedCalls := 0
	if err := player.Speak(context.Background(), "hello", server.URL, func() { endedCalls++ }); err != nil {
		t.Fatalf("expected speak to succeed, got: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.audio) != len(pcm) {
		t.Fatalf("expected the full stream buffered, got %d of %d bytes", len(sink.audio), len(pcm))
	}
	if sink.ended != 1 {
		t.Fatalf("expected one end-of-audio mark, got %d", sink.ended)
	}
	if sink.starts != 1 {
		t.Fatalf("expected the device started once, got %d", sink.starts)
	}
	if endedCalls != 1 {
		t.Fatalf("expected the drain callback wired through, got %d calls", endedCalls)
	}
}

func TestSpeakRequiresAnAsset(t *testing.T) {
	player := NewSpeechPlayer(&fakeSink{})
	if err := player.Speak(context.Background(), "hello", "", func() {}); err == nil {
		t.Fatal("expected speak without an asset to fail")
	}
}

func TestSpeakFailsOnMissingAsset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	player := NewSpeechPlayer(&fakeSink{})
	if err := player.Speak(context.Background(), "hello", server.URL, func() {}); err == nil {
		t.Fatal("expected a missing asset to fail")
	}
}

func TestStopOnlyTouchesAStartedDevice(t *testing.T) {
	sink := &fakeSink{}
	player := NewSpeechPlayer(sink)

	if err := player.Stop(); err != nil {
		t.Fatalf("expected stop before start to be a no-op, got: %v", err)
	}
	if sink.stops != 0 {
		t.Fatal("expected no device stop before playback started")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte{0, 0})
	}))
	defer server.Close()
	if err := player.Speak(context.Background(), "hello", server.URL, nil); err != nil {
		t.Fatalf("expected speak to succeed, got: %v", err)
	}

	if err := player.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got: %v", err)
	}
	if sink.stops != 1 {
		t.Fatalf("expected one device stop, got %d", sink.stops)
	}
}
