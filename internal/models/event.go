package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventKind identifies the type of a job event on the wire.
type EventKind string

const (
	EventJobStatus    EventKind = "job-status"
	EventStepStatus   EventKind = "step-status"
	EventStepProgress EventKind = "step-progress"
	EventWarning      EventKind = "warning"
	EventHeartbeat    EventKind = "heartbeat"
	EventJobCompleted EventKind = "job-completed"
	EventJobFailed    EventKind = "job-failed"
	EventJobCanceled  EventKind = "job-canceled"
)

// IsTerminal returns true for the terminal event kinds that end a stream.
func (k EventKind) IsTerminal() bool {
	return k == EventJobCompleted || k == EventJobFailed || k == EventJobCanceled
}

// EventID is the per-job ordering key, formatted as "{unix_ms}-{counter}".
// IDs are strictly increasing per job.
type EventID struct {
	UnixMs  int64
	Counter uint64
}

// String formats the ID as "{ms}-{counter}".
func (id EventID) String() string {
	return fmt.Sprintf("%d-%d", id.UnixMs, id.Counter)
}

// After reports whether id orders strictly after other.
func (id EventID) After(other EventID) bool {
	if id.UnixMs != other.UnixMs {
		return id.UnixMs > other.UnixMs
	}
	return id.Counter > other.Counter
}

// IsZero returns true for the zero EventID.
func (id EventID) IsZero() bool {
	return id.UnixMs == 0 && id.Counter == 0
}

// ParseEventID parses "{ms}-{counter}".
func ParseEventID(s string) (EventID, error) {
	ms, counter, ok := strings.Cut(s, "-")
	if !ok {
		return EventID{}, fmt.Errorf("invalid event id %q", s)
	}
	m, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return EventID{}, fmt.Errorf("invalid event id %q: %w", s, err)
	}
	c, err := strconv.ParseUint(counter, 10, 64)
	if err != nil {
		return EventID{}, fmt.Errorf("invalid event id %q: %w", s, err)
	}
	return EventID{UnixMs: m, Counter: c}, nil
}

// JobEvent is a record in the per-job event stream.
type JobEvent struct {
	ID             EventID   `json:"-"`
	EventID        string    `json:"event_id"`
	Kind           EventKind `json:"kind"`
	JobID          string    `json:"job_id"`
	Stage          Stage     `json:"stage,omitempty"`
	PercentStage   float64   `json:"percent_stage"`
	PercentOverall float64   `json:"percent_overall"`
	Message        string    `json:"message,omitempty"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	SubstageDetail string    `json:"substage_detail,omitempty"`
	CurrentItem    int       `json:"current_item,omitempty"`
	TotalItems     int       `json:"total_items,omitempty"`
	Warnings       []string  `json:"warnings,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
