package domovoy

import (
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent types emitted by the engine, using reverse domain notation.
const (
	// App lifecycle events
	EventTypeAppRegistered   = "com.domovoy.app.registered"
	EventTypeAppRunning      = "com.domovoy.app.running"
	EventTypeAppFailed       = "com.domovoy.app.failed"
	EventTypeAppTerminated   = "com.domovoy.app.terminated"
	EventTypeAppUnregistered = "com.domovoy.app.unregistered"

	// Reload events
	EventTypeReloadStarted   = "com.domovoy.reload.started"
	EventTypeReloadCompleted = "com.domovoy.reload.completed"
	EventTypeReloadFailed    = "com.domovoy.reload.failed"

	// Connector supervision events
	EventTypeConnectorUp   = "com.domovoy.connector.connected"
	EventTypeConnectorDown = "com.domovoy.connector.disconnected"
)

// eventSource identifies the engine as the CloudEvents source.
const eventSource = "domovoy/engine"

// NewCloudEvent builds a CloudEvent with the required attributes set.
func NewCloudEvent(eventType, source string, data any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(newEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

// newEventID returns a time-ordered UUIDv7, falling back to v4.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
