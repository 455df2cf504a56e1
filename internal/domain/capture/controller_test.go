package capture

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fro-server/internal/domain/eventbus"
	"fro-server/internal/domain/image"
	platformerrors "fro-server/internal/platform/errors"
	fixtures "fro-server/internal/platform/testing"
)

var (
	frontCam = Device{ID: "front", Label: "Front Camera", Facing: FacingUser}
	backCam  = Device{ID: "back", Label: "Back Camera", Facing: FacingEnvironment}
)

type harness struct {
	ctrl     *Controller
	fallback *Fallback
	platform *fakePlatform
	bus      *eventbus.AsyncEventBus

	mu      sync.Mutex
	notices []eventbus.Notice
}

func newHarness(t *testing.T, platform *fakePlatform) *harness {
	t.Helper()
	logger := fixtures.SetupTestLogger(t)
	bus := eventbus.NewAsyncEventBus(1)
	bus.Start()
	t.Cleanup(bus.Stop)

	h := &harness{platform: platform, bus: bus}
	require.NoError(t, bus.Subscribe(eventbus.EventNotice, func(n eventbus.Notice) {
		h.mu.Lock()
		h.notices = append(h.notices, n)
		h.mu.Unlock()
	}))

	notifier := eventbus.NewNotifier(bus, "client-1")
	pipeline := image.NewPipeline(image.Options{Limits: image.DefaultLimits(), Logger: logger})
	h.ctrl = NewController(ControllerOptions{Platform: platform, Pipeline: pipeline, Notifier: notifier, Logger: logger})
	h.fallback = NewFallback(pipeline, notifier, logger)
	return h
}

func (h *harness) titles() []string {
	h.bus.Flush()
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.notices))
	for _, n := range h.notices {
		out = append(out, n.Title)
	}
	return out
}

func TestAcquirePrefersRearCamera(t *testing.T) {
	h := newHarness(t, newFakePlatform(frontCam, backCam))

	info, err := h.ctrl.Acquire(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "back", info.Device.ID)
	assert.Equal(t, []Constraints{{Facing: FacingEnvironment}}, h.platform.lastRequests(1))

	state := h.ctrl.State()
	assert.Equal(t, PermissionGranted, state.Permission)
	assert.Len(t, state.Devices, 2)
	assert.Equal(t, 1, state.CurrentIndex)
	assert.True(t, state.Active())
}

func TestAcquireFallsBackToUnconstrained(t *testing.T) {
	platform := newFakePlatform(frontCam)
	platform.denyFacing = true
	h := newHarness(t, platform)

	info, err := h.ctrl.Acquire(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "front", info.Device.ID)
	assert.Equal(t, []Constraints{{Facing: FacingEnvironment}, {}}, h.platform.lastRequests(2))
}

func TestAcquireDeniedReportsCameraUnavailable(t *testing.T) {
	platform := newFakePlatform(frontCam)
	platform.deny = true
	h := newHarness(t, platform)

	_, err := h.ctrl.Acquire(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCameraUnavailable)
	assert.ErrorIs(t, err, errDenied)
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindCapture))

	state := h.ctrl.State()
	assert.Equal(t, PermissionDenied, state.Permission)
	assert.False(t, state.Active())
	assert.Contains(t, h.titles(), noticeDeniedTitle)
}

func TestAcquireUnsupportedPlatform(t *testing.T) {
	platform := newFakePlatform(frontCam)
	platform.unsupported = true
	h := newHarness(t, platform)

	_, err := h.ctrl.Acquire(context.Background(), "")
	assert.ErrorIs(t, err, ErrCameraUnavailable)
	assert.Empty(t, platform.lastRequests(1))
	assert.Equal(t, PermissionDenied, h.ctrl.State().Permission)
	assert.Contains(t, h.titles(), noticeUnsupportedTitle)
}

func TestDoubleAcquireLeavesOneSession(t *testing.T) {
	h := newHarness(t, newFakePlatform(frontCam, backCam))
	ctx := context.Background()

	first, err := h.ctrl.Acquire(ctx, "")
	require.NoError(t, err)
	second, err := h.ctrl.Acquire(ctx, "")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, h.platform.liveStreams())
	assert.True(t, h.platform.streams[0].isStopped())
}

func TestConcurrentAcquireNeverOverlaps(t *testing.T) {
	h := newHarness(t, newFakePlatform(frontCam, backCam))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.ctrl.Acquire(context.Background(), "")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.platform.liveStreams())
}

func TestSwitchToNextCyclesDevices(t *testing.T) {
	h := newHarness(t, newFakePlatform(frontCam, backCam))
	ctx := context.Background()

	_, err := h.ctrl.Acquire(ctx, "front")
	require.NoError(t, err)
	assert.Equal(t, 0, h.ctrl.State().CurrentIndex)

	info, err := h.ctrl.SwitchToNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "back", info.Device.ID)
	assert.Equal(t, 1, h.ctrl.State().CurrentIndex)
	assert.Equal(t, []Constraints{{DeviceID: "back"}}, h.platform.lastRequests(1))

	info, err = h.ctrl.SwitchToNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "front", info.Device.ID)
	assert.Equal(t, 0, h.ctrl.State().CurrentIndex)
	assert.Equal(t, 1, h.platform.liveStreams())
}

func TestSwitchToNextWithSingleCameraIsNoop(t *testing.T) {
	h := newHarness(t, newFakePlatform(frontCam))
	ctx := context.Background()

	before, err := h.ctrl.Acquire(ctx, "")
	require.NoError(t, err)
	requests := len(h.platform.requests)

	after, err := h.ctrl.SwitchToNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Len(t, h.platform.requests, requests)
	assert.Contains(t, h.titles(), noticeSingleTitle)
}

func TestAcquireEnumerationFailureKeepsOpenedDevice(t *testing.T) {
	platform := newFakePlatform(frontCam, backCam)
	platform.enumErr = errors.New("enumerate failed")
	h := newHarness(t, platform)

	_, err := h.ctrl.Acquire(context.Background(), "")
	require.NoError(t, err)
	state := h.ctrl.State()
	require.Len(t, state.Devices, 1)
	assert.Equal(t, "back", state.Devices[0].ID)
}

func TestAcquireUnlistedDeviceKeepsStreamDevice(t *testing.T) {
	platform := newFakePlatform(backCam)
	platform.listed = []Device{frontCam}
	h := newHarness(t, platform)

	info, err := h.ctrl.Acquire(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "back", info.Device.ID)

	state := h.ctrl.State()
	assert.Equal(t, 0, state.CurrentIndex)
	assert.Equal(t, "back", state.Session.Device.ID)
}

func TestAcquireCancelledIsNotDenial(t *testing.T) {
	h := newHarness(t, newFakePlatform(frontCam, backCam))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.ctrl.Acquire(ctx, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrCameraUnavailable)
	assert.Equal(t, PermissionUnknown, h.ctrl.State().Permission)
	assert.NotContains(t, h.titles(), noticeDeniedTitle)
	assert.Len(t, h.platform.lastRequests(10), 1, "no unconstrained retry after cancel")
}

func TestResetForgetsPermissionAndDevices(t *testing.T) {
	h := newHarness(t, newFakePlatform(frontCam, backCam))
	_, err := h.ctrl.Acquire(context.Background(), "")
	require.NoError(t, err)

	h.ctrl.Reset()

	state := h.ctrl.State()
	assert.Equal(t, PermissionUnknown, state.Permission)
	assert.Empty(t, state.Devices)
	assert.Equal(t, 0, state.CurrentIndex)
	assert.False(t, state.Active())
	assert.Equal(t, 0, h.platform.liveStreams())
}

func TestCaptureFrameRejectsOversizedResolution(t *testing.T) {
	h := newHarness(t, newFakePlatform(backCam))
	ctx := context.Background()
	_, err := h.ctrl.Acquire(ctx, "")
	require.NoError(t, err)
	h.platform.streams[0].res = Resolution{Width: 1 << 30, Height: 1 << 30}

	_, err = h.ctrl.CaptureFrame(ctx)
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.ErrorIs(t, err, image.ErrTooLarge)
	assert.True(t, h.ctrl.State().Active(), "session survives a rejected frame")
}

func TestCaptureFrameEncodesNativeResolution(t *testing.T) {
	h := newHarness(t, newFakePlatform(backCam))
	ctx := context.Background()

	_, err := h.ctrl.Acquire(ctx, "")
	require.NoError(t, err)

	payload, err := h.ctrl.CaptureFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", payload.MIMEType)
	assert.Equal(t, 64, payload.Width)
	assert.Equal(t, 48, payload.Height)
	assert.Contains(t, h.titles(), noticeCapturedTitle)
}

func TestCaptureFrameWithoutSession(t *testing.T) {
	h := newHarness(t, newFakePlatform(backCam))

	_, err := h.ctrl.CaptureFrame(context.Background())
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestCaptureFrameReadFailure(t *testing.T) {
	h := newHarness(t, newFakePlatform(backCam))
	ctx := context.Background()
	_, err := h.ctrl.Acquire(ctx, "")
	require.NoError(t, err)
	h.platform.streams[0].frameErr = errors.New("video not ready")

	_, err = h.ctrl.CaptureFrame(ctx)
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.Contains(t, h.titles(), noticeCaptureFailTitle)
}

func TestReleaseIsIdempotent(t *testing.T) {
	h := newHarness(t, newFakePlatform(backCam))
	_, err := h.ctrl.Acquire(context.Background(), "")
	require.NoError(t, err)

	h.ctrl.Release()
	h.ctrl.Release()

	assert.Equal(t, 0, h.platform.liveStreams())
	assert.Equal(t, 1, h.platform.streams[0].stops)
	assert.False(t, h.ctrl.State().Active())
}

func TestCapturedAndUploadedPayloadsAreInterchangeable(t *testing.T) {
	h := newHarness(t, newFakePlatform(backCam))
	ctx := context.Background()
	_, err := h.ctrl.Acquire(ctx, "")
	require.NoError(t, err)

	captured, err := h.ctrl.CaptureFrame(ctx)
	require.NoError(t, err)

	uploaded, err := h.fallback.ReadSelectedFile(ctx, bytes.NewReader(captured.Data), "captured.jpg")
	require.NoError(t, err)

	assert.Equal(t, *captured, *uploaded)
}
