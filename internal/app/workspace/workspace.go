// Package workspace holds the live state of one client: its camera
// controller, file fallback, analysis orchestrator and current image.
package workspace

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"fro-server/internal/domain/analysis"
	"fro-server/internal/domain/capture"
	"fro-server/internal/domain/eventbus"
	"fro-server/internal/domain/image"
	"fro-server/internal/platform/logging"
)

// ImageInfo describes the current image without its bytes.
type ImageInfo struct {
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int    `json:"size"`
}

// FallbackInfo is the state of the upload prompt.
type FallbackInfo struct {
	Active bool   `json:"active"`
	Reason string `json:"reason,omitempty"`
}

// Snapshot is a consistent read of a workspace.
type Snapshot struct {
	ClientID string         `json:"client_id"`
	Camera   capture.State  `json:"camera"`
	Fallback FallbackInfo   `json:"fallback"`
	Image    *ImageInfo     `json:"image,omitempty"`
	Cycle    analysis.Cycle `json:"cycle"`
}

// Workspace is the per-client state object. Methods are safe for
// concurrent use.
type Workspace struct {
	id           string
	controller   *capture.Controller
	fallback     *capture.Fallback
	orchestrator *analysis.Orchestrator
	logger       *logging.Logger

	mu      sync.RWMutex
	current *image.Payload

	lastUsed atomic.Int64
}

func newWorkspace(clientID string, platform capture.Platform, deps Dependencies) *Workspace {
	notifier := eventbus.NewNotifier(deps.Publisher, clientID)
	w := &Workspace{
		id: clientID,
		controller: capture.NewController(capture.ControllerOptions{
			Platform: platform,
			Pipeline: deps.Pipeline,
			Notifier: notifier,
			Logger:   deps.Logger,
		}),
		fallback: capture.NewFallback(deps.Pipeline, notifier, deps.Logger),
		orchestrator: analysis.NewOrchestrator(analysis.Options{
			Identifier:     deps.Identifier,
			HealthAnalyzer: deps.HealthAnalyzer,
			CareAdvisor:    deps.CareAdvisor,
			CallTimeout:    deps.CallTimeout,
			Notifier:       notifier,
			Logger:         deps.Logger,
		}),
		logger: deps.Logger,
	}
	w.touch()
	return w
}

func (w *Workspace) ID() string { return w.id }

func (w *Workspace) touch() {
	w.lastUsed.Store(time.Now().UnixNano())
}

// IdleSince returns the last time the workspace was used.
func (w *Workspace) IdleSince() time.Time {
	return time.Unix(0, w.lastUsed.Load())
}

// OpenCamera acquires a camera. When none can be opened the upload
// fallback is activated and the error is returned.
func (w *Workspace) OpenCamera(ctx context.Context, deviceID string) (*capture.SessionInfo, error) {
	w.touch()
	info, err := w.controller.Acquire(ctx, deviceID)
	if err != nil {
		if stderrors.Is(err, capture.ErrCameraUnavailable) {
			w.fallback.Activate(err.Error())
		}
		return nil, err
	}
	w.fallback.Dismiss()
	return info, nil
}

// SwitchCamera moves to the next device, or keeps the current one when
// only one exists.
func (w *Workspace) SwitchCamera(ctx context.Context) (*capture.SessionInfo, error) {
	w.touch()
	info, err := w.controller.SwitchToNext(ctx)
	if err != nil && stderrors.Is(err, capture.ErrCameraUnavailable) {
		w.fallback.Activate(err.Error())
	}
	return info, err
}

// CloseCamera stops the live stream, if any.
func (w *Workspace) CloseCamera() {
	w.touch()
	w.controller.Release()
}

// Capture takes a still from the live stream, makes it the current image
// and closes the camera. The previous analysis is dropped.
func (w *Workspace) Capture(ctx context.Context) (*image.Payload, error) {
	w.touch()
	if err := w.orchestrator.Clear(); err != nil {
		return nil, err
	}
	payload, err := w.controller.CaptureFrame(ctx)
	if err != nil {
		return nil, err
	}
	w.controller.Release()
	w.setCurrent(payload)
	return payload, nil
}

// SelectFile reads a user-chosen file into the current image, closing the
// camera and dismissing the upload prompt.
func (w *Workspace) SelectFile(ctx context.Context, r io.Reader, filename string) (*image.Payload, error) {
	w.touch()
	if err := w.orchestrator.Clear(); err != nil {
		return nil, err
	}
	payload, err := w.fallback.ReadSelectedFile(ctx, r, filename)
	if err != nil {
		return nil, err
	}
	w.controller.Release()
	w.setCurrent(payload)
	return payload, nil
}

// Analyze runs a full cycle on the current image.
func (w *Workspace) Analyze(ctx context.Context) (analysis.Cycle, error) {
	w.touch()
	return w.orchestrator.Run(ctx, w.Current())
}

// ClearAll forgets the image and results and closes the camera. It is
// rejected while an analysis is running.
func (w *Workspace) ClearAll() error {
	w.touch()
	if err := w.orchestrator.Clear(); err != nil {
		return err
	}
	w.controller.Reset()
	w.fallback.Dismiss()
	w.setCurrent(nil)
	w.logger.DebugTag("ANALYSIS", "workspace %s cleared", w.id)
	return nil
}

// Current returns the current image, or nil.
func (w *Workspace) Current() *image.Payload {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Workspace) setCurrent(p *image.Payload) {
	w.mu.Lock()
	w.current = p
	w.mu.Unlock()
}

// Busy reports whether an analysis is in flight.
func (w *Workspace) Busy() bool {
	return w.orchestrator.Busy()
}

func (w *Workspace) Snapshot() Snapshot {
	snap := Snapshot{
		ClientID: w.id,
		Camera:   w.controller.State(),
		Fallback: FallbackInfo{Active: w.fallback.Active(), Reason: w.fallback.Reason()},
		Cycle:    w.orchestrator.Cycle(),
	}
	if p := w.Current(); !p.Empty() {
		snap.Image = &ImageInfo{MIMEType: p.MIMEType, Width: p.Width, Height: p.Height, Size: p.Size()}
	}
	return snap
}

// Close releases the camera. The workspace stays usable.
func (w *Workspace) Close() {
	w.controller.Release()
}
