package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every DeskPilot topic.
const TopicPrefix = "deskpilot"

// Trigger kinds, the third level of a trigger topic.
const (
	TriggerKindActions = "actions"
	TriggerKindSteps   = "steps"
)

// Topics provides builders for DeskPilot MQTT topics.
//
//	deskpilot/system/status            retained online/offline status (LWT)
//	deskpilot/trigger/actions/{name}   play an action script
//	deskpilot/trigger/steps/{name}     play a browser step script
//	deskpilot/notification             run failure notifications
//	deskpilot/cache                    retained serialised result cache
type Topics struct{}

// SystemStatus returns the system status topic.
//
// Example: deskpilot/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// Notification returns the notification topic.
//
// Example: deskpilot/notification
func (Topics) Notification() string {
	return TopicPrefix + "/notification"
}

// Cache returns the result cache topic.
//
// Example: deskpilot/cache
func (Topics) Cache() string {
	return TopicPrefix + "/cache"
}

// Trigger returns the topic that plays the named script of the given kind.
//
// Example: deskpilot/trigger/actions/morning-reports
func (Topics) Trigger(kind, name string) string {
	return fmt.Sprintf("%s/trigger/%s/%s", TopicPrefix, kind, name)
}

// AllTriggers returns a pattern matching every trigger topic.
//
// Pattern: deskpilot/trigger/+/+
func (Topics) AllTriggers() string {
	return TopicPrefix + "/trigger/+/+"
}

// AllTopics returns a pattern matching all DeskPilot topics.
//
// Pattern: deskpilot/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// ParseTrigger splits a trigger topic into its kind and script name.
func (Topics) ParseTrigger(topic string) (kind, name string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "trigger" {
		return "", "", false
	}
	kind, name = parts[2], parts[3]
	if name == "" || (kind != TriggerKindActions && kind != TriggerKindSteps) {
		return "", "", false
	}
	return kind, name, true
}
