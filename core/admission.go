package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jayallenwarren/elaralo-sub000/core/events"
	"github.com/jayallenwarren/elaralo-sub000/core/livesessions"
)

// admissionController drives an observer's join request through the
// pull-based handshake: create the request on the backend, poll its status
// until it resolves, and hand the resolution to the session controller.
// The backend holds the authoritative request state; this side only ever
// observes snapshots, so resolving twice is harmless by construction.
type admissionController struct {
	client   BroadcastProvider
	interval time.Duration

	mu      sync.Mutex
	request *livesessions.JoinRequest
	watcher *poller

	onResolved func(events.AdmissionResolved)
}

func newAdmissionController(client BroadcastProvider, interval time.Duration, onResolved func(events.AdmissionResolved)) *admissionController {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if onResolved == nil {
		onResolved = func(events.AdmissionResolved) {}
	}
	return &admissionController{
		client:     client,
		interval:   interval,
		onResolved: onResolved,
	}
}

// begin creates the join request and starts polling its status. A request
// already in flight is left alone.
func (a *admissionController) begin(ctx context.Context, roomID, displayName string) error {
	if a == nil {
		return fmt.Errorf("no admission controller configured")
	}
	if a.client == nil {
		return fmt.Errorf("no broadcast provider configured")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.request != nil && !a.request.Status.Resolved() {
		return nil
	}

	request, err := a.client.CreateJoinRequest(ctx, roomID, displayName)
	if err != nil {
		return fmt.Errorf("failed to create join request: %w", err)
	}

	a.request = request
	a.watcher = startPoller(ctx, a.interval, func(ctx context.Context) bool {
		return a.pollStatus(ctx, request.ID)
	})
	return nil
}

// pollStatus returns true while the request is still pending. Transient
// polling errors keep the subscription alive; the backend expires stale
// requests on its own clock.
func (a *admissionController) pollStatus(ctx context.Context, requestID string) bool {
	request, err := a.client.JoinRequestStatus(ctx, requestID)
	if err != nil {
		logger.Warn("failed to poll join request status", "requestID", requestID, "error", err)
		return true
	}
	if !request.Status.Resolved() {
		return true
	}

	a.mu.Lock()
	a.request = request
	a.mu.Unlock()

	a.onResolved(resolutionEvent(request))
	return false
}

func resolutionEvent(request *livesessions.JoinRequest) events.AdmissionResolved {
	switch request.Status {
	case livesessions.JoinRequestAdmitted:
		var token string
		if request.Credential != nil {
			token = request.Credential.Token
		}
		return events.NewAdmissionResolved(request.ID, true, token, "")
	case livesessions.JoinRequestExpired:
		return events.NewAdmissionResolved(request.ID, false, "", "Your request to join timed out.")
	default:
		return events.NewAdmissionResolved(request.ID, false, "", "The presenter declined your request to join.")
	}
}

// stop cancels status polling without touching the backend request; it
// expires there on its own.
func (a *admissionController) stop() {
	if a == nil {
		return
	}
	a.mu.Lock()
	watcher := a.watcher
	a.watcher = nil
	a.mu.Unlock()

	watcher.Stop()
}
