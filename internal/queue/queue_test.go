package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewEventStampsIDAndTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := NewEvent(EnrollmentCreated, at)
	b := NewEvent(EnrollmentCreated, at)
	if a.EventID == "" || a.EventID == b.EventID {
		t.Fatalf("event ids = %q, %q; want distinct non-empty", a.EventID, b.EventID)
	}
	if a.OccurredAt != "2026-03-01T10:00:00Z" {
		t.Fatalf("occurred_at = %q", a.OccurredAt)
	}
}

func TestHandleMessageAppendsAuditLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "enrollment.log")
	c := NewAuditConsumer("", path, nil)

	ev := NewEvent(EnrollmentCancelled, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ev.EnrollmentID, ev.CourseID, ev.UserID, ev.ActorID = 7, 3, 11, 11
	ev.Status, ev.EnrolledCount, ev.Capacity = "CANCELLED", 1, 2
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := c.handleMessage(body); err != nil {
			t.Fatalf("handle message: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	for _, want := range []string{"enrollment.cancelled", "enrollment_id=7", "course_id=3", "seats=1/2"} {
		if !strings.Contains(lines[0], want) {
			t.Fatalf("line %q missing %q", lines[0], want)
		}
	}
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	t.Parallel()

	c := NewAuditConsumer("", filepath.Join(t.TempDir(), "a.log"), nil)
	if err := c.handleMessage([]byte("not json")); err == nil {
		t.Fatal("expected unmarshal error")
	}
	if err := c.handleMessage([]byte(`{"course_id":1}`)); err == nil {
		t.Fatal("expected missing type error")
	}
}
