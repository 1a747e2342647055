package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// session
	"session.started":   {},
	"session.ended":     {},
	"session.abandoned": {},
	"session.expired":   {},

	// scene
	"scene.entered": {},

	// choice
	"choice.made":    {},
	"choice.invalid": {},

	// registry
	"outcome.recorded": {},
	"registry.full":    {},

	// kiosk
	"kiosk.input":    {},
	"kiosk.error":    {},
	"kiosk.released": {},

	// mqtt
	"mqtt.connected":    {},
	"mqtt.disconnected": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

// Validate reports an error for event names outside the known set.
func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
