// Package mqtt is DeskPilot's optional broker transport.
//
// Anything that can publish to the broker can play a script by sending to
// deskpilot/trigger/{actions|steps}/{name}. In the other direction the
// notifier publishes run failures to deskpilot/notification and the
// serialised result cache, retained, to deskpilot/cache. A retained
// status message with a last will tells subscribers whether the engine
// is up.
package mqtt
