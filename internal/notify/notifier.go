// Package notify fans engine notifications out to the connected transports.
//
// The interpreter reports run failures with SendNotification and pushes the
// serialised result cache with BroadcastJSON. A Notifier forwards both to
// the WebSocket hub and, when connected, to MQTT.
package notify

import (
	"encoding/json"
	"time"
)

// WebSocket channels used by the notifier.
const (
	ChannelNotification = "notification"
	ChannelCache        = "cache"
)

// Broadcaster is the WebSocket hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Publisher is the MQTT client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Topics names the MQTT topics the notifier publishes to.
type Topics struct {
	Notification string
	Cache        string
}

// Logger defines the logging interface used by the notifier.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notification is the payload of a notification event.
type Notification struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier forwards notifications to every configured transport.
// Either transport may be nil.
type Notifier struct {
	hub    Broadcaster
	mqtt   Publisher
	topics Topics
	logger Logger
}

// New creates a notifier.
func New(hub Broadcaster, mqtt Publisher, topics Topics) *Notifier {
	return &Notifier{hub: hub, mqtt: mqtt, topics: topics, logger: noopLogger{}}
}

// SetLogger sets the logger. Every notification is also logged.
func (n *Notifier) SetLogger(logger Logger) {
	n.logger = logger
}

// SendNotification publishes a title/body event.
func (n *Notifier) SendNotification(title, body string) {
	msg := Notification{Title: title, Body: body, Timestamp: time.Now().UTC()}
	n.logger.Info("notification", "title", title, "body", body)

	if n.hub != nil {
		n.hub.Broadcast(ChannelNotification, msg)
	}
	if n.mqtt != nil && n.topics.Notification != "" {
		data, err := json.Marshal(msg)
		if err != nil {
			n.logger.Error("marshalling notification", "error", err)
			return
		}
		if err := n.mqtt.Publish(n.topics.Notification, data, 1, false); err != nil {
			n.logger.Warn("publishing notification failed", "error", err)
		}
	}
}

// BroadcastJSON pushes an already serialised JSON document, such as the
// result cache, to every transport.
func (n *Notifier) BroadcastJSON(text string) {
	if n.hub != nil {
		n.hub.Broadcast(ChannelCache, json.RawMessage(text))
	}
	if n.mqtt != nil && n.topics.Cache != "" {
		// Retained so a late subscriber sees the current cache.
		if err := n.mqtt.Publish(n.topics.Cache, []byte(text), 1, true); err != nil {
			n.logger.Warn("publishing cache failed", "error", err)
		}
	}
}
