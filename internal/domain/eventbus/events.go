package eventbus

import "time"

const (
	// EventNotice carries a user-visible Notice (toast).
	EventNotice = "notice:published"

	EventCameraAcquired = "camera:acquired"
	EventCameraReleased = "camera:released"
	EventCameraDenied   = "camera:denied"
	EventPhotoCaptured  = "camera:captured"

	EventAnalysisStarted   = "analysis:started"
	EventAnalysisCompleted = "analysis:completed"
	EventAnalysisFailed    = "analysis:failed"
)

// NoticeLevel mirrors toast variants shown by the front end.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a short message for one client.
type Notice struct {
	ClientID string      `json:"client_id"`
	Level    NoticeLevel `json:"level"`
	Title    string      `json:"title"`
	Message  string      `json:"message"`
	Time     time.Time   `json:"time"`
}

type CameraEventData struct {
	ClientID  string `json:"client_id"`
	SessionID string `json:"session_id,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type AnalysisEventData struct {
	ClientID string        `json:"client_id"`
	CycleID  string        `json:"cycle_id"`
	State    string        `json:"state"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}
