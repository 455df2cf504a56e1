package capture

import (
	"context"
	"errors"
	stdimage "image"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"fro-server/internal/domain/eventbus"
	"fro-server/internal/domain/image"
	platformerrors "fro-server/internal/platform/errors"
	"fro-server/internal/platform/logging"
	"fro-server/internal/platform/observability"
)

// Controller owns camera acquisition for one client. Every operation holds
// mu for its whole duration, so a release always completes before the next
// acquire starts and at most one session is ever live.
type Controller struct {
	mu sync.Mutex

	platform Platform
	pipeline *image.Pipeline
	notifier *eventbus.Notifier
	logger   *logging.Logger

	permission Permission
	devices    []Device
	current    int
	session    *Session

	newID func() string
	now   func() time.Time
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Platform Platform
	Pipeline *image.Pipeline
	Notifier *eventbus.Notifier
	Logger   *logging.Logger
}

func NewController(opts ControllerOptions) *Controller {
	return &Controller{
		platform:   opts.Platform,
		pipeline:   opts.Pipeline,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
		permission: PermissionUnknown,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// Supported reports whether the platform offers camera access at all.
func (c *Controller) Supported() bool {
	return c.platform != nil && c.platform.Supported()
}

// Acquire opens a stream, releasing any previous one first. With an empty
// deviceID the rear camera is preferred and any camera accepted.
func (c *Controller) Acquire(ctx context.Context, deviceID string) (*SessionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquireLocked(ctx, deviceID)
}

func (c *Controller) acquireLocked(ctx context.Context, deviceID string) (info *SessionInfo, err error) {
	const op = "capture.Controller.Acquire"
	ctx, end := observability.StartSpan(ctx, "capture", "acquire")
	defer func() { end(err) }()

	c.releaseLocked("reacquire")

	if !c.Supported() {
		c.permission = PermissionDenied
		c.notifier.Notify(eventbus.NoticeError, noticeUnsupportedTitle, noticeUnsupportedBody)
		c.emit(eventbus.EventCameraDenied, "", "", "unsupported")
		return nil, captureError(op, "camera access not supported", ErrCameraUnavailable, nil)
	}

	stream, err := c.open(ctx, deviceID)
	if err != nil && ctx.Err() != nil {
		c.logger.InfoTag("CAMERA", "camera request abandoned: %v", ctx.Err())
		return nil, platformerrors.Wrap(platformerrors.KindCapture, op, "camera request cancelled", ctx.Err())
	}
	if err != nil {
		c.permission = PermissionDenied
		c.logger.WarnTag("CAMERA", "camera access failed: %v", err)
		c.notifier.Notify(eventbus.NoticeError, noticeDeniedTitle, noticeDeniedBody)
		c.emit(eventbus.EventCameraDenied, "", deviceID, err.Error())
		return nil, captureError(op, "open stream", ErrCameraUnavailable, err)
	}
	c.permission = PermissionGranted

	devices, enumErr := c.platform.EnumerateVideoInputs(ctx)
	if enumErr != nil || len(devices) == 0 {
		c.logger.WarnTag("CAMERA", "device enumeration failed, keeping the opened device only: %v", enumErr)
		devices = []Device{{ID: stream.DeviceID(), Facing: FacingUnknown}}
	}
	c.devices = devices
	c.current = 0
	opened := Device{ID: stream.DeviceID(), Facing: FacingUnknown}
	for i, d := range devices {
		if d.ID == stream.DeviceID() {
			c.current = i
			opened = d
			break
		}
	}

	res := stream.Resolution()
	c.session = &Session{
		ID:         c.newID(),
		Device:     opened,
		Resolution: res,
		StartedAt:  c.now(),
		stream:     stream,
	}
	c.logger.InfoTag("CAMERA", "session %s opened on %q (%dx%d, %d devices)",
		c.session.ID, c.session.Device.ID, res.Width, res.Height, len(c.devices))
	c.emit(eventbus.EventCameraAcquired, c.session.ID, c.session.Device.ID, "")
	return c.session.Info(), nil
}

func (c *Controller) open(ctx context.Context, deviceID string) (Stream, error) {
	if deviceID != "" {
		return c.platform.OpenStream(ctx, Constraints{DeviceID: deviceID})
	}
	stream, err := c.platform.OpenStream(ctx, Constraints{Facing: FacingEnvironment})
	if err == nil {
		return stream, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	c.logger.DebugTag("CAMERA", "rear camera unavailable, retrying unconstrained: %v", err)
	return c.platform.OpenStream(ctx, Constraints{})
}

// SwitchToNext cycles to the next enumerated device. With one device or
// fewer it publishes a notice and keeps the current session.
func (c *Controller) SwitchToNext(ctx context.Context) (*SessionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.devices) <= 1 {
		c.notifier.Notify(eventbus.NoticeInfo, noticeSingleTitle, noticeSingleBody)
		return c.session.Info(), nil
	}
	next := c.devices[(c.current+1)%len(c.devices)]
	return c.acquireLocked(ctx, next.ID)
}

// CaptureFrame grabs the current frame at native resolution and encodes it
// as a JPEG payload.
func (c *Controller) CaptureFrame(ctx context.Context) (payload *image.Payload, err error) {
	const op = "capture.Controller.CaptureFrame"
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, end := observability.StartSpan(ctx, "capture", "frame")
	defer func() { end(err) }()

	if c.session == nil {
		return nil, captureError(op, "no active session", ErrCaptureFailed, ErrNoSession)
	}
	defer func() {
		if err != nil {
			c.notifier.Notify(eventbus.NoticeError, noticeCaptureFailTitle, noticeCaptureFailBody)
		}
	}()

	frame, err := c.session.stream.Frame(ctx)
	if err != nil {
		return nil, captureError(op, "read frame", ErrCaptureFailed, err)
	}
	if frame == nil || frame.Bounds().Empty() {
		return nil, captureError(op, "empty frame", ErrCaptureFailed, image.ErrEmpty)
	}

	res := c.session.stream.Resolution()
	if !res.Valid() {
		res = Resolution{Width: frame.Bounds().Dx(), Height: frame.Bounds().Dy()}
	}
	if err := c.pipeline.CheckFrameSize(res.Width, res.Height); err != nil {
		return nil, captureError(op, "frame size out of bounds", ErrCaptureFailed, err)
	}
	canvas := stdimage.NewRGBA(stdimage.Rect(0, 0, res.Width, res.Height))
	draw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), frame, frame.Bounds(), draw.Src, nil)

	payload, err = c.pipeline.EncodeFrame(ctx, canvas)
	if err != nil {
		return nil, captureError(op, "encode frame", ErrCaptureFailed, err)
	}

	c.logger.InfoTag("CAMERA", "captured %dx%d frame from session %s (%d bytes)",
		res.Width, res.Height, c.session.ID, payload.Size())
	c.notifier.Notify(eventbus.NoticeSuccess, noticeCapturedTitle, noticeCapturedBody)
	c.emit(eventbus.EventPhotoCaptured, c.session.ID, c.session.Device.ID, "")
	observability.RecordMetric(ctx, "capture.frame_bytes", float64(payload.Size()), nil)
	return payload, nil
}

// Release stops all tracks of the current session. It is idempotent.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked("release")
}

func (c *Controller) releaseLocked(reason string) {
	if c.session == nil {
		return
	}
	session := c.session
	c.session = nil
	if err := session.stream.Stop(); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.WarnTag("CAMERA", "stopping session %s: %v", session.ID, err)
	}
	c.logger.DebugTag("CAMERA", "session %s released (%s)", session.ID, reason)
	c.emit(eventbus.EventCameraReleased, session.ID, session.Device.ID, reason)
}

// Reset releases the session and forgets permission and devices.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked("reset")
	c.permission = PermissionUnknown
	c.devices = nil
	c.current = 0
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	devices := make([]Device, len(c.devices))
	copy(devices, c.devices)
	return State{
		Permission:   c.permission,
		Devices:      devices,
		CurrentIndex: c.current,
		Session:      c.session.Info(),
	}
}

func (c *Controller) emit(topic, sessionID, deviceID, reason string) {
	c.notifier.Emit(topic, eventbus.CameraEventData{
		ClientID:  c.notifier.ClientID(),
		SessionID: sessionID,
		DeviceID:  deviceID,
		Reason:    reason,
	})
}
