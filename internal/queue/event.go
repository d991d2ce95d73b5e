// Package queue defines message payloads exchanged over the message broker
// and the RabbitMQ publisher and consumer that carry them.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// QueueName is the durable queue every enrollment and course event is
// routed to.
const QueueName = "enrollment.events"

// Event types.
const (
	EnrollmentCreated   = "enrollment.created"
	EnrollmentActivated = "enrollment.activated"
	EnrollmentRejected  = "enrollment.rejected"
	EnrollmentCancelled = "enrollment.cancelled"
	EnrollmentCompleted = "enrollment.completed"
	CourseTransitioned  = "course.transitioned"
)

// EnrollmentEvent is published after a committed change to an enrollment
// or a course status.  It carries enough for downstream consumers to log
// or notify without querying the primary database.
type EnrollmentEvent struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	EnrollmentID  uint64 `json:"enrollment_id,omitempty"`
	CourseID      uint64 `json:"course_id"`
	UserID        uint64 `json:"user_id,omitempty"`
	ActorID       uint64 `json:"actor_id"`
	Status        string `json:"status"`
	EnrolledCount int    `json:"enrolled_count"`
	Capacity      int    `json:"capacity"`
	OccurredAt    string `json:"occurred_at"`
}

// NewEvent stamps a fresh event ID and the occurrence time in RFC 3339.
func NewEvent(typ string, at time.Time) EnrollmentEvent {
	return EnrollmentEvent{
		EventID:    uuid.NewString(),
		Type:       typ,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
}
