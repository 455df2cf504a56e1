package eventbus

import (
	"fro-server/internal/platform/logging"
)

// LogSubscriber writes domain events to the service log.
type LogSubscriber struct {
	logger *logging.Logger
}

func NewLogSubscriber(logger *logging.Logger) *LogSubscriber {
	return &LogSubscriber{logger: logger}
}

// Register subscribes to every camera and analysis topic.
func (s *LogSubscriber) Register(bus *AsyncEventBus) error {
	cameraTopics := []string{EventCameraAcquired, EventCameraReleased, EventCameraDenied, EventPhotoCaptured}
	for _, topic := range cameraTopics {
		topic := topic
		if err := bus.Subscribe(topic, func(data CameraEventData) { s.camera(topic, data) }); err != nil {
			return err
		}
	}
	analysisTopics := []string{EventAnalysisStarted, EventAnalysisCompleted, EventAnalysisFailed}
	for _, topic := range analysisTopics {
		topic := topic
		if err := bus.Subscribe(topic, func(data AnalysisEventData) { s.analysis(topic, data) }); err != nil {
			return err
		}
	}
	return nil
}

func (s *LogSubscriber) camera(topic string, data CameraEventData) {
	s.logger.DebugTag("CAMERA", "%s client=%s session=%s device=%s reason=%s",
		topic, data.ClientID, data.SessionID, data.DeviceID, data.Reason)
}

func (s *LogSubscriber) analysis(topic string, data AnalysisEventData) {
	if data.Error != "" {
		s.logger.WarnTag("ANALYSIS", "%s client=%s cycle=%s error=%s", topic, data.ClientID, data.CycleID, data.Error)
		return
	}
	s.logger.InfoTag("ANALYSIS", "%s client=%s cycle=%s state=%s duration=%s",
		topic, data.ClientID, data.CycleID, data.State, data.Duration)
}
