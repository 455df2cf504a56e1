package capture

import (
	"context"
	"image"
	"time"
)

// Facing is the direction a camera points.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
	FacingUnknown     Facing = "unknown"
)

// Device is one video input reported by the platform.
type Device struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Facing Facing `json:"facing"`
}

// Constraints select a stream. An exact DeviceID wins over Facing; with
// neither set the platform picks any camera.
type Constraints struct {
	DeviceID string `json:"device_id,omitempty"`
	Facing   Facing `json:"facing,omitempty"`
}

// Unconstrained reports whether c leaves the choice to the platform.
func (c Constraints) Unconstrained() bool {
	return c.DeviceID == "" && (c.Facing == "" || c.Facing == FacingUnknown)
}

// Resolution is a native stream size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// Stream is a live video stream.
type Stream interface {
	DeviceID() string
	Resolution() Resolution
	// Frame returns the current video frame.
	Frame(ctx context.Context) (image.Image, error)
	// Stop stops every track of the stream.
	Stop() error
}

// Platform is the media capability the controller drives.
type Platform interface {
	Supported() bool
	EnumerateVideoInputs(ctx context.Context) ([]Device, error)
	OpenStream(ctx context.Context, constraints Constraints) (Stream, error)
}

// Permission tracks the outcome of the last acquisition attempt.
type Permission string

const (
	PermissionUnknown Permission = "unknown"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Session is the controller's single live capture session.
type Session struct {
	ID         string
	Device     Device
	Resolution Resolution
	StartedAt  time.Time
	stream     Stream
}

// SessionInfo is a serializable view of a Session.
type SessionInfo struct {
	ID         string     `json:"id"`
	Device     Device     `json:"device"`
	Resolution Resolution `json:"resolution"`
	StartedAt  time.Time  `json:"started_at"`
}

func (s *Session) Info() *SessionInfo {
	if s == nil {
		return nil
	}
	return &SessionInfo{ID: s.ID, Device: s.Device, Resolution: s.Resolution, StartedAt: s.StartedAt}
}

// State is a snapshot of the controller.
type State struct {
	Permission   Permission   `json:"permission"`
	Devices      []Device     `json:"devices"`
	CurrentIndex int          `json:"current_index"`
	Session      *SessionInfo `json:"session,omitempty"`
}

// Active reports whether a session is live.
func (s State) Active() bool {
	return s.Session != nil
}
