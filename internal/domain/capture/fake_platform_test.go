package capture

import (
	"context"
	"errors"
	stdimage "image"
	"image/color"
	"sync"

	fixtures "fro-server/internal/platform/testing"
)

var errDenied = errors.New("NotAllowedError")

type fakeStream struct {
	deviceID string
	res      Resolution
	frame    stdimage.Image
	frameErr error

	mu      sync.Mutex
	stopped bool
	stops   int
}

func (s *fakeStream) DeviceID() string       { return s.deviceID }
func (s *fakeStream) Resolution() Resolution { return s.res }

func (s *fakeStream) Frame(context.Context) (stdimage.Image, error) {
	if s.frameErr != nil {
		return nil, s.frameErr
	}
	return s.frame, nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.stops++
	return nil
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakePlatform struct {
	mu          sync.Mutex
	unsupported bool
	devices     []Device
	// deny rejects every request; denyFacing rejects only facing requests.
	deny       bool
	denyFacing bool
	enumErr    error
	// listed, when set, is what enumeration reports instead of devices.
	listed []Device

	requests []Constraints
	streams  []*fakeStream
}

func newFakePlatform(devices ...Device) *fakePlatform {
	return &fakePlatform{devices: devices}
}

func (p *fakePlatform) Supported() bool { return !p.unsupported }

func (p *fakePlatform) EnumerateVideoInputs(context.Context) ([]Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enumErr != nil {
		return nil, p.enumErr
	}
	src := p.devices
	if p.listed != nil {
		src = p.listed
	}
	out := make([]Device, len(src))
	copy(out, src)
	return out, nil
}

func (p *fakePlatform) OpenStream(ctx context.Context, c Constraints) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, c)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.deny || len(p.devices) == 0 {
		return nil, errDenied
	}
	if c.Facing != "" && p.denyFacing {
		return nil, errors.New("OverconstrainedError")
	}

	device := p.devices[0]
	switch {
	case c.DeviceID != "":
		found := false
		for _, d := range p.devices {
			if d.ID == c.DeviceID {
				device, found = d, true
			}
		}
		if !found {
			return nil, errors.New("NotFoundError")
		}
	case c.Facing != "":
		for _, d := range p.devices {
			if d.Facing == c.Facing {
				device = d
				break
			}
		}
	}

	stream := &fakeStream{
		deviceID: device.ID,
		res:      Resolution{Width: 64, Height: 48},
		frame:    fixtures.SolidImage(32, 24, color.RGBA{G: 200, A: 255}),
	}
	p.streams = append(p.streams, stream)
	return stream, nil
}

func (p *fakePlatform) liveStreams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	live := 0
	for _, s := range p.streams {
		if !s.isStopped() {
			live++
		}
	}
	return live
}

func (p *fakePlatform) lastRequests(n int) []Constraints {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.requests) {
		n = len(p.requests)
	}
	return append([]Constraints(nil), p.requests[len(p.requests)-n:]...)
}
