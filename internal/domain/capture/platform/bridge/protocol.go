package bridge

import (
	"github.com/bytedance/sonic"

	"fro-server/internal/domain/capture"
	"fro-server/internal/domain/eventbus"
)

// Message types sent to the browser.
const (
	TypeEnumerate = "enumerate"
	TypeOpen      = "open"
	TypeStop      = "stop"
	TypeSnapshot  = "snapshot"
	TypeNotice    = "notice"
)

// Message types sent by the browser.
const (
	TypeHello   = "hello"
	TypeDevices = "devices"
	TypeOpened  = "opened"
	TypeStopped = "stopped"
	TypeFrame   = "frame"
	TypeError   = "error"
)

// Message is the single JSON frame shape used in both directions. ID
// correlates a reply with its request.
type Message struct {
	ID          string               `json:"id,omitempty"`
	Type        string               `json:"type"`
	Constraints *capture.Constraints `json:"constraints,omitempty"`
	StreamID    string               `json:"stream_id,omitempty"`
	DeviceID    string               `json:"device_id,omitempty"`
	Width       int                  `json:"width,omitempty"`
	Height      int                  `json:"height,omitempty"`
	Devices     []capture.Device     `json:"devices,omitempty"`
	// Data is a data URI holding the frame (canvas.toDataURL output).
	Data      string           `json:"data,omitempty"`
	Error     string           `json:"error,omitempty"`
	Name      string           `json:"name,omitempty"`
	Supported *bool            `json:"supported,omitempty"`
	Notice    *eventbus.Notice `json:"notice,omitempty"`
}

func Encode(m Message) ([]byte, error) {
	return sonic.Marshal(&m)
}

func Decode(data []byte) (Message, error) {
	var m Message
	err := sonic.Unmarshal(data, &m)
	return m, err
}
