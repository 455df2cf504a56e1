package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fro-server/internal/domain/capture"
	"fro-server/internal/domain/eventbus"
	"fro-server/internal/domain/image"
	fixtures "fro-server/internal/platform/testing"
)

// fakeBrowser answers bridge requests the way the camera page does.
type fakeBrowser struct {
	t        *testing.T
	platform *Platform
	devices  []capture.Device
	frame    []byte
	deny     bool
	silent   bool
	openLate time.Duration

	mu       sync.Mutex
	received []Message
	stopped  []string
}

func (b *fakeBrowser) SendText(data []byte) error {
	msg, err := Decode(data)
	require.NoError(b.t, err)

	b.mu.Lock()
	b.received = append(b.received, msg)
	b.mu.Unlock()

	if b.silent || msg.Type == TypeNotice {
		return nil
	}

	var reply Message
	switch msg.Type {
	case TypeEnumerate:
		reply = Message{Type: TypeDevices, Devices: b.devices}
	case TypeOpen:
		if b.deny {
			reply = Message{Type: TypeError, Name: "NotAllowedError", Error: "Permission denied"}
			break
		}
		device := b.devices[0]
		if msg.Constraints != nil && msg.Constraints.DeviceID != "" {
			device = capture.Device{ID: msg.Constraints.DeviceID}
		}
		reply = Message{Type: TypeOpened, StreamID: "s-" + device.ID, DeviceID: device.ID, Width: 32, Height: 24}
	case TypeSnapshot:
		payload := image.Payload{Data: b.frame, MIMEType: "image/jpeg"}
		reply = Message{Type: TypeFrame, Data: payload.DataURI()}
	case TypeStop:
		b.mu.Lock()
		b.stopped = append(b.stopped, msg.StreamID)
		b.mu.Unlock()
		reply = Message{Type: TypeStopped}
	}
	reply.ID = msg.ID

	data, err = Encode(reply)
	require.NoError(b.t, err)
	delay := time.Duration(0)
	if msg.Type == TypeOpen {
		delay = b.openLate
	}
	go func() {
		time.Sleep(delay)
		_ = b.platform.HandleMessage(data)
	}()
	return nil
}

func (b *fakeBrowser) stoppedStreams() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.stopped...)
}

func newBridge(t *testing.T, timeout time.Duration) (*Platform, *fakeBrowser) {
	p := New("client-1", timeout, fixtures.SetupTestLogger(t))
	b := &fakeBrowser{
		t:        t,
		platform: p,
		devices: []capture.Device{
			{ID: "cam-front", Label: "Front", Facing: capture.FacingUser},
			{ID: "cam-back", Label: "Back"},
		},
		frame: fixtures.JPEGBytes(t, 32, 24),
	}
	p.Attach(b)
	return p, b
}

func TestEnumerateAndOpen(t *testing.T) {
	p, browser := newBridge(t, time.Second)
	ctx := context.Background()

	devices, err := p.EnumerateVideoInputs(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, capture.FacingUnknown, devices[1].Facing)

	stream, err := p.OpenStream(ctx, capture.Constraints{DeviceID: "cam-back"})
	require.NoError(t, err)
	assert.Equal(t, "cam-back", stream.DeviceID())
	assert.Equal(t, capture.Resolution{Width: 32, Height: 24}, stream.Resolution())

	frame, err := stream.Frame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 32, frame.Bounds().Dx())

	require.NoError(t, stream.Stop())
	browser.mu.Lock()
	assert.Equal(t, []string{"s-cam-back"}, browser.stopped)
	browser.mu.Unlock()
}

func TestOpenDeniedReturnsClientError(t *testing.T) {
	p, browser := newBridge(t, time.Second)
	browser.deny = true

	_, err := p.OpenStream(context.Background(), capture.Constraints{Facing: capture.FacingEnvironment})
	var clientErr *ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, "NotAllowedError", clientErr.Name)
}

func TestRequestTimesOut(t *testing.T) {
	p, browser := newBridge(t, 20*time.Millisecond)
	browser.silent = true

	_, err := p.EnumerateVideoInputs(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestLateOpenedStreamIsStopped(t *testing.T) {
	p, browser := newBridge(t, 20*time.Millisecond)
	browser.openLate = 60 * time.Millisecond

	_, err := p.OpenStream(context.Background(), capture.Constraints{Facing: capture.FacingEnvironment})
	require.ErrorIs(t, err, ErrTimeout)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"s-cam-front"}, browser.stoppedStreams())
	}, time.Second, 5*time.Millisecond)
}

func TestOpenedAfterCancelIsStopped(t *testing.T) {
	p, browser := newBridge(t, time.Second)
	browser.openLate = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.OpenStream(ctx, capture.Constraints{DeviceID: "cam-back"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"s-cam-back"}, browser.stoppedStreams())
	}, time.Second, 5*time.Millisecond)
}

func TestDetachFailsPendingAndUnsupports(t *testing.T) {
	p, browser := newBridge(t, time.Second)
	browser.silent = true

	done := make(chan error, 1)
	go func() {
		_, err := p.EnumerateVideoInputs(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		browser.mu.Lock()
		defer browser.mu.Unlock()
		return len(browser.received) == 1
	}, time.Second, 5*time.Millisecond)

	p.Detach()
	assert.ErrorIs(t, <-done, ErrDetached)
	assert.False(t, p.Supported())

	_, err := p.OpenStream(context.Background(), capture.Constraints{})
	assert.ErrorIs(t, err, ErrDetached)
}

func TestHelloAnnouncesSupport(t *testing.T) {
	p, _ := newBridge(t, time.Second)
	assert.True(t, p.Supported())

	no := false
	data, err := Encode(Message{Type: TypeHello, Supported: &no})
	require.NoError(t, err)
	require.NoError(t, p.HandleMessage(data))
	assert.False(t, p.Supported())
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	p, _ := newBridge(t, time.Second)
	assert.Error(t, p.HandleMessage([]byte("{not json")))
	assert.NoError(t, p.HandleMessage([]byte(`{"id":"999","type":"devices"}`)))
}

func TestRegistryDeliversNotices(t *testing.T) {
	r := NewRegistry(time.Second, fixtures.SetupTestLogger(t))
	p := r.Platform("client-1")
	assert.Same(t, p, r.Platform("client-1"))

	browser := &fakeBrowser{t: t, platform: p}
	p.Attach(browser)

	r.Deliver(eventbus.Notice{ClientID: "client-1", Title: "Foto Capturada"})
	r.Deliver(eventbus.Notice{ClientID: "someone-else", Title: "ignored"})

	browser.mu.Lock()
	require.Len(t, browser.received, 1)
	assert.Equal(t, TypeNotice, browser.received[0].Type)
	assert.Equal(t, "Foto Capturada", browser.received[0].Notice.Title)
	browser.mu.Unlock()

	r.Remove("client-1")
	assert.False(t, p.Attached())
	_, ok := r.Lookup("client-1")
	assert.False(t, ok)
}

func TestControllerOverBridge(t *testing.T) {
	p, _ := newBridge(t, time.Second)
	logger := fixtures.SetupTestLogger(t)
	ctrl := capture.NewController(capture.ControllerOptions{
		Platform: p,
		Pipeline: image.NewPipeline(image.Options{Limits: image.DefaultLimits(), Logger: logger}),
		Logger:   logger,
	})
	ctx := context.Background()

	_, err := ctrl.Acquire(ctx, "")
	require.NoError(t, err)

	info, err := ctrl.SwitchToNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cam-back", info.Device.ID)

	payload, err := ctrl.CaptureFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", payload.MIMEType)
	ctrl.Release()
}
