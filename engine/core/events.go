package core

import "sync"

// EventContext carries the payload of a fired event. Only the fields
// relevant to the event code are populated.
type EventContext struct {
	Width  uint32
	Height uint32
	Path   string
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Resized/resolution changed from the OS. Width/Height are populated.
	EVENT_CODE_RESIZED SystemEventCode = 0x02

	// A watched shader binary changed on disk. Path is populated.
	EVENT_CODE_SHADER_CHANGED SystemEventCode = 0x03

	// The user requested a new environment map. Path is populated.
	EVENT_CODE_ENVMAP_REQUESTED SystemEventCode = 0x04

	// The user requested a new model. Path is populated.
	EVENT_CODE_MODEL_REQUESTED SystemEventCode = 0x05

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type OnEventFunc func(code SystemEventCode, context EventContext) bool

type eventSystemState struct {
	mu       sync.RWMutex
	registry map[SystemEventCode][]OnEventFunc
}

var eventState *eventSystemState
var onceEvents sync.Once

func EventSystemInitialize() bool {
	onceEvents.Do(func() {
		eventState = &eventSystemState{
			registry: make(map[SystemEventCode][]OnEventFunc),
		}
	})
	return eventState != nil
}

// EventRegister subscribes the listener to the given code. Listeners are
// invoked on the thread that fires the event.
func EventRegister(code SystemEventCode, fn OnEventFunc) {
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	eventState.registry[code] = append(eventState.registry[code], fn)
}

// EventFire notifies all listeners in registration order. A listener
// returning true consumes the event and stops propagation.
func EventFire(code SystemEventCode, context EventContext) bool {
	eventState.mu.RLock()
	listeners := eventState.registry[code]
	eventState.mu.RUnlock()

	for _, fn := range listeners {
		if fn(code, context) {
			return true
		}
	}
	return false
}
