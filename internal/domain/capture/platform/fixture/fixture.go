// Package fixture provides virtual cameras backed by still images. It serves
// development setups without a browser and the end-to-end tests.
package fixture

import (
	"context"
	"errors"
	"fmt"
	stdimage "image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"fro-server/internal/domain/capture"
	_ "fro-server/internal/domain/image"
)

var (
	ErrNoCamera       = errors.New("fixture: no camera available")
	ErrDeviceNotFound = errors.New("fixture: requested device not found")
	ErrStreamStopped  = errors.New("fixture: stream stopped")
)

// Camera is one virtual video input.
type Camera struct {
	Device capture.Device
	Image  stdimage.Image
}

// Platform implements capture.Platform over a fixed set of cameras.
type Platform struct {
	cameras     []Camera
	unsupported bool
}

func New(cameras ...Camera) *Platform {
	return &Platform{cameras: cameras}
}

// Unsupported returns a platform without camera access.
func Unsupported() *Platform {
	return &Platform{unsupported: true}
}

// Load turns every image in dir into a camera. File names containing
// "front" or "user" face the user; "back", "rear" or "environment" face away.
func Load(dir string) (*Platform, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("read fixture dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var cameras []Camera
	for _, name := range names {
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		cameras = append(cameras, Camera{
			Device: capture.Device{ID: id, Label: id, Facing: facingFromName(id)},
			Image:  img,
		})
	}
	return New(cameras...), nil
}

func decodeFile(path string) (stdimage.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := stdimage.Decode(f)
	return img, err
}

func facingFromName(name string) capture.Facing {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "front"), strings.Contains(lower, "user"):
		return capture.FacingUser
	case strings.Contains(lower, "back"), strings.Contains(lower, "rear"), strings.Contains(lower, "environment"):
		return capture.FacingEnvironment
	default:
		return capture.FacingUnknown
	}
}

func (p *Platform) Supported() bool {
	return !p.unsupported
}

func (p *Platform) EnumerateVideoInputs(context.Context) ([]capture.Device, error) {
	devices := make([]capture.Device, 0, len(p.cameras))
	for _, c := range p.cameras {
		devices = append(devices, c.Device)
	}
	return devices, nil
}

// OpenStream honours an exact device ID strictly and a facing preference
// loosely, falling back to the first camera.
func (p *Platform) OpenStream(ctx context.Context, constraints capture.Constraints) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.unsupported || len(p.cameras) == 0 {
		return nil, ErrNoCamera
	}

	chosen := p.cameras[0]
	switch {
	case constraints.DeviceID != "":
		found := false
		for _, c := range p.cameras {
			if c.Device.ID == constraints.DeviceID {
				chosen, found = c, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, constraints.DeviceID)
		}
	case constraints.Facing != "":
		for _, c := range p.cameras {
			if c.Device.Facing == constraints.Facing {
				chosen = c
				break
			}
		}
	}

	b := chosen.Image.Bounds()
	return &stream{
		deviceID: chosen.Device.ID,
		res:      capture.Resolution{Width: b.Dx(), Height: b.Dy()},
		frame:    chosen.Image,
	}, nil
}

type stream struct {
	deviceID string
	res      capture.Resolution
	frame    stdimage.Image

	mu      sync.Mutex
	stopped bool
}

func (s *stream) DeviceID() string               { return s.deviceID }
func (s *stream) Resolution() capture.Resolution { return s.res }

func (s *stream) Frame(ctx context.Context) (stdimage.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStreamStopped
	}
	return s.frame, nil
}

func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}
