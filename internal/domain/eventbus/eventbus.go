package eventbus

import (
	"time"
)

// Publisher is what domain components need to emit events.
type Publisher interface {
	Publish(topic string, args ...interface{})
	PublishAsync(topic string, args ...interface{})
}

// Notifier publishes user-visible notices for one client.
type Notifier struct {
	publisher Publisher
	clientID  string
	now       func() time.Time
}

// NewNotifier binds publisher to clientID. A nil publisher yields a Notifier
// that silently drops everything.
func NewNotifier(publisher Publisher, clientID string) *Notifier {
	return &Notifier{publisher: publisher, clientID: clientID, now: time.Now}
}

// ClientID returns the client notices are addressed to.
func (n *Notifier) ClientID() string {
	if n == nil {
		return ""
	}
	return n.clientID
}

// Notify publishes a notice asynchronously.
func (n *Notifier) Notify(level NoticeLevel, title, message string) {
	if n == nil || n.publisher == nil {
		return
	}
	n.publisher.PublishAsync(EventNotice, Notice{
		ClientID: n.clientID,
		Level:    level,
		Title:    title,
		Message:  message,
		Time:     n.now(),
	})
}

// Emit publishes a domain event asynchronously.
func (n *Notifier) Emit(topic string, data interface{}) {
	if n == nil || n.publisher == nil {
		return
	}
	n.publisher.PublishAsync(topic, data)
}
