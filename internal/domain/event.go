package domain

import (
	"sort"
	"time"
)

// EventKind is the type of an issue timeline event.
type EventKind string

const (
	EventLabeled   EventKind = "labeled"
	EventUnlabeled EventKind = "unlabeled"
	EventClosed    EventKind = "closed"
	EventReopened  EventKind = "reopened"
)

// Event represents a single entry of an issue's event log.
type Event struct {
	IssueNumber int
	Kind        EventKind // Platform event name; anything not listed above is ignored by replay
	Label       string    // Set for labeled/unlabeled only
	CreatedAt   time.Time
}

// IsLabelChange returns true for labeled and unlabeled events.
func (e Event) IsLabelChange() bool {
	return e.Kind == EventLabeled || e.Kind == EventUnlabeled
}

// SortEvents orders events chronologically, keeping the API order for equal timestamps.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}
