// Package bridge drives a browser camera over a WebSocket. The server sends
// getUserMedia-style requests and the page answers with devices, stream
// handles and frames.
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	stdimage "image"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"fro-server/internal/domain/capture"
	"fro-server/internal/domain/eventbus"
	"fro-server/internal/domain/image"
	"fro-server/internal/platform/logging"
)

var (
	ErrDetached        = errors.New("bridge: browser not connected")
	ErrTimeout         = errors.New("bridge: browser did not answer in time")
	ErrUnexpectedReply = errors.New("bridge: unexpected reply")
)

// ClientError is an error reported by the browser, e.g. NotAllowedError.
type ClientError struct {
	Name    string
	Message string
}

func (e *ClientError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// Sender writes one text frame to the browser.
type Sender interface {
	SendText(data []byte) error
}

// Platform implements capture.Platform for one browser client.
type Platform struct {
	clientID string
	timeout  time.Duration
	logger   *logging.Logger

	mu        sync.Mutex
	sender    Sender
	supported bool
	pending   map[string]chan Message

	seq atomic.Uint64
}

func New(clientID string, timeout time.Duration, logger *logging.Logger) *Platform {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Platform{
		clientID: clientID,
		timeout:  timeout,
		logger:   logger,
		pending:  make(map[string]chan Message),
	}
}

// Attach binds a live connection. Camera support is assumed until the page
// says otherwise in its hello message.
func (p *Platform) Attach(sender Sender) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sender = sender
	p.supported = true
}

// Detach drops the connection and fails every pending request.
func (p *Platform) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sender = nil
	p.supported = false
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
}

func (p *Platform) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sender != nil
}

func (p *Platform) Supported() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sender != nil && p.supported
}

// HandleMessage routes one frame received from the browser.
func (p *Platform) HandleMessage(data []byte) error {
	msg, err := Decode(data)
	if err != nil {
		return fmt.Errorf("decode bridge message: %w", err)
	}

	if msg.Type == TypeHello {
		p.mu.Lock()
		p.supported = msg.Supported == nil || *msg.Supported
		supported := p.supported
		p.mu.Unlock()
		p.logger.InfoTag("CAMERA", "client %s camera support: %v", p.clientID, supported)
		return nil
	}

	// Delivery and abandon both run under mu, so a reply is either handed
	// to its waiter or treated as unsolicited, never lost in between.
	p.mu.Lock()
	ch, ok := p.pending[msg.ID]
	if ok {
		delete(p.pending, msg.ID)
		ch <- msg
	}
	p.mu.Unlock()

	if !ok {
		if msg.Type == TypeOpened && msg.StreamID != "" {
			p.stopOrphan(msg.StreamID)
			return nil
		}
		p.logger.DebugTag("CAMERA", "client %s sent unsolicited %q (id=%q)", p.clientID, msg.Type, msg.ID)
	}
	return nil
}

// stopOrphan stops a stream the page opened for a request nobody waits on
// anymore. The stopped reply is not awaited since this may run on the
// connection's read loop.
func (p *Platform) stopOrphan(streamID string) {
	p.logger.WarnTag("CAMERA", "client %s opened stream %s after its request ended, stopping it", p.clientID, streamID)
	data, err := Encode(Message{
		ID:       strconv.FormatUint(p.seq.Add(1), 10),
		Type:     TypeStop,
		StreamID: streamID,
	})
	if err != nil {
		return
	}
	p.mu.Lock()
	sender := p.sender
	p.mu.Unlock()
	if sender == nil {
		return
	}
	if err := sender.SendText(data); err != nil {
		p.logger.WarnTag("CAMERA", "stop orphan stream %s: %v", streamID, err)
	}
}

// abandon forgets a request and stops any stream whose reply raced in.
func (p *Platform) abandon(id string, ch chan Message) {
	var orphan string
	p.mu.Lock()
	delete(p.pending, id)
	select {
	case reply, ok := <-ch:
		if ok && reply.Type == TypeOpened {
			orphan = reply.StreamID
		}
	default:
	}
	p.mu.Unlock()

	if orphan != "" {
		p.stopOrphan(orphan)
	}
}

// Notify pushes a notice to the page.
func (p *Platform) Notify(n eventbus.Notice) error {
	data, err := Encode(Message{Type: TypeNotice, Notice: &n})
	if err != nil {
		return err
	}
	p.mu.Lock()
	sender := p.sender
	p.mu.Unlock()
	if sender == nil {
		return ErrDetached
	}
	return sender.SendText(data)
}

func (p *Platform) request(ctx context.Context, req Message, want string) (Message, error) {
	req.ID = strconv.FormatUint(p.seq.Add(1), 10)
	data, err := Encode(req)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s request: %w", req.Type, err)
	}

	ch := make(chan Message, 1)
	p.mu.Lock()
	sender := p.sender
	if sender == nil {
		p.mu.Unlock()
		return Message{}, ErrDetached
	}
	p.pending[req.ID] = ch
	p.mu.Unlock()

	cleanup := func() {
		p.mu.Lock()
		delete(p.pending, req.ID)
		p.mu.Unlock()
	}

	if err := sender.SendText(data); err != nil {
		cleanup()
		return Message{}, fmt.Errorf("send %s request: %w", req.Type, err)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case reply, ok := <-ch:
		if !ok {
			return Message{}, ErrDetached
		}
		if reply.Type == TypeError {
			return Message{}, &ClientError{Name: reply.Name, Message: reply.Error}
		}
		if reply.Type != want {
			return Message{}, fmt.Errorf("%w: got %q, want %q", ErrUnexpectedReply, reply.Type, want)
		}
		return reply, nil
	case <-timer.C:
		p.abandon(req.ID, ch)
		return Message{}, fmt.Errorf("%w: %s", ErrTimeout, req.Type)
	case <-ctx.Done():
		p.abandon(req.ID, ch)
		return Message{}, ctx.Err()
	}
}

func (p *Platform) EnumerateVideoInputs(ctx context.Context) ([]capture.Device, error) {
	reply, err := p.request(ctx, Message{Type: TypeEnumerate}, TypeDevices)
	if err != nil {
		return nil, err
	}
	for i := range reply.Devices {
		if reply.Devices[i].Facing == "" {
			reply.Devices[i].Facing = capture.FacingUnknown
		}
	}
	return reply.Devices, nil
}

func (p *Platform) OpenStream(ctx context.Context, constraints capture.Constraints) (capture.Stream, error) {
	c := constraints
	reply, err := p.request(ctx, Message{Type: TypeOpen, Constraints: &c}, TypeOpened)
	if err != nil {
		return nil, err
	}
	if reply.StreamID == "" {
		return nil, fmt.Errorf("%w: opened without stream id", ErrUnexpectedReply)
	}
	return &stream{
		platform: p,
		id:       reply.StreamID,
		deviceID: reply.DeviceID,
		res:      capture.Resolution{Width: reply.Width, Height: reply.Height},
	}, nil
}

type stream struct {
	platform *Platform
	id       string
	deviceID string
	res      capture.Resolution
}

func (s *stream) DeviceID() string               { return s.deviceID }
func (s *stream) Resolution() capture.Resolution { return s.res }

// Frame asks the page to draw the current video frame and decodes it.
func (s *stream) Frame(ctx context.Context) (stdimage.Image, error) {
	reply, err := s.platform.request(ctx, Message{Type: TypeSnapshot, StreamID: s.id}, TypeFrame)
	if err != nil {
		return nil, err
	}
	payload, err := image.ParseDataURI(reply.Data)
	if err != nil {
		return nil, err
	}
	img, _, err := stdimage.Decode(bytes.NewReader(payload.Data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// Stop asks the page to stop every track. A detached page has no tracks left.
func (s *stream) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.platform.timeout)
	defer cancel()
	_, err := s.platform.request(ctx, Message{Type: TypeStop, StreamID: s.id}, TypeStopped)
	if errors.Is(err, ErrDetached) {
		return nil
	}
	return err
}

// Registry hands out one Platform per client.
type Registry struct {
	timeout   time.Duration
	logger    *logging.Logger
	platforms sync.Map // clientID -> *Platform
}

func NewRegistry(timeout time.Duration, logger *logging.Logger) *Registry {
	return &Registry{timeout: timeout, logger: logger}
}

// Platform returns the client's platform, creating it on first use.
func (r *Registry) Platform(clientID string) *Platform {
	if v, ok := r.platforms.Load(clientID); ok {
		return v.(*Platform)
	}
	v, _ := r.platforms.LoadOrStore(clientID, New(clientID, r.timeout, r.logger))
	return v.(*Platform)
}

// Lookup returns the client's platform without creating one.
func (r *Registry) Lookup(clientID string) (*Platform, bool) {
	v, ok := r.platforms.Load(clientID)
	if !ok {
		return nil, false
	}
	return v.(*Platform), true
}

// Remove detaches and forgets the client's platform.
func (r *Registry) Remove(clientID string) {
	if v, ok := r.platforms.LoadAndDelete(clientID); ok {
		v.(*Platform).Detach()
	}
}

// Deliver pushes a notice to its client if a page is attached.
func (r *Registry) Deliver(n eventbus.Notice) {
	p, ok := r.Lookup(n.ClientID)
	if !ok || !p.Attached() {
		return
	}
	if err := p.Notify(n); err != nil && !errors.Is(err, ErrDetached) {
		r.logger.WarnTag("WS", "notice to %s failed: %v", n.ClientID, err)
	}
}
