package webmod

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is the envelope every framework event travels in.
type CloudEvent = cloudevents.Event

// NewCloudEvent builds a v1.0 event. data is encoded as JSON when non-nil
// and each extensions entry becomes a CloudEvents extension attribute.
func NewCloudEvent(eventType, source string, data any, extensions map[string]any) CloudEvent {
	e := cloudevents.NewEvent(cloudevents.VersionV1)
	e.SetID(newID())
	e.SetType(eventType)
	e.SetSource(source)
	e.SetTime(time.Now())
	if data != nil {
		// Only unencodable data fails here; the event still carries its
		// attributes so observers learn that it happened.
		_ = e.SetData(cloudevents.ApplicationJSON, data)
	}
	for name, v := range extensions {
		e.SetExtension(name, v)
	}
	return e
}

// newID returns a time-ordered UUIDv7. Event ids and request ids share it.
func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// ValidateCloudEvent reports whether e carries the required attributes.
func ValidateCloudEvent(e CloudEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid event %q: %w", e.Type(), err)
	}
	return nil
}
