// Package timeline replays issue event logs into per-day qualification transitions.
//
// An issue qualifies while it holds both tracked labels and is not closed. Each
// issue's events are replayed in chronological order; the day an issue starts
// or stops qualifying is recorded in a Buckets map, which the report package
// walks day by day.
package timeline

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/vilaca/labelage/internal/domain"
)

// ReopenPolicy decides whether a reopened event re-enters the issue.
type ReopenPolicy string

const (
	// ReopenAlways enters on every reopen, whatever labels the issue holds.
	ReopenAlways ReopenPolicy = "always"
	// ReopenWhenLabeled enters on reopen only if both tracked labels are still held.
	ReopenWhenLabeled ReopenPolicy = "when-labeled"
)

// ParseReopenPolicy validates a policy name. Empty means ReopenAlways.
func ParseReopenPolicy(s string) (ReopenPolicy, error) {
	switch ReopenPolicy(s) {
	case "", ReopenAlways:
		return ReopenAlways, nil
	case ReopenWhenLabeled:
		return ReopenWhenLabeled, nil
	}
	return "", fmt.Errorf("unknown reopen policy %q (want %q or %q)", s, ReopenAlways, ReopenWhenLabeled)
}

// Effect is what a replayed event did to qualification.
type Effect string

const (
	EffectNone  Effect = ""
	EffectEnter Effect = "enter"
	EffectExit  Effect = "exit"
)

// Step is one replayed event that touched the tracked labels or the open/closed state.
type Step struct {
	At     time.Time
	Kind   domain.EventKind
	Label  string
	Held   int // Tracked labels held after the event
	Effect Effect
}

// History is everything the aggregator needs, owned by the caller once returned.
type History struct {
	Buckets Buckets
	Created map[int]time.Time // Issue number -> creation time
	Kinds   map[domain.EventKind]int
}

// Replayer accumulates the History of many issues.
// It is not safe for concurrent use.
type Replayer struct {
	tracked map[string]struct{}
	policy  ReopenPolicy
	history *History
}

// NewReplayer creates a replayer for a pair of distinct tracked labels.
func NewReplayer(labels []string, policy ReopenPolicy) (*Replayer, error) {
	if len(labels) != 2 {
		return nil, fmt.Errorf("exactly two tracked labels are required, got %d", len(labels))
	}
	if labels[0] == labels[1] {
		return nil, fmt.Errorf("tracked labels must differ, got %q twice", labels[0])
	}
	if _, err := ParseReopenPolicy(string(policy)); err != nil {
		return nil, err
	}
	if policy == "" {
		policy = ReopenAlways
	}

	return &Replayer{
		tracked: map[string]struct{}{labels[0]: {}, labels[1]: {}},
		policy:  policy,
		history: &History{
			Buckets: make(Buckets),
			Created: make(map[int]time.Time),
			Kinds:   make(map[domain.EventKind]int),
		},
	}, nil
}

// Replay records the transitions of one issue and returns its filtered timeline.
// events may be in any order; they are stably sorted by time first.
func (r *Replayer) Replay(issue domain.Issue, events []domain.Event) []Step {
	r.history.Created[issue.Number] = issue.CreatedAt

	sorted := make([]domain.Event, len(events))
	copy(sorted, events)
	domain.SortEvents(sorted)

	held := make(map[string]struct{}, 2)
	qualifying := false
	var steps []Step

	for _, ev := range sorted {
		r.history.Kinds[ev.Kind]++
		day := civil.DateOf(ev.CreatedAt.UTC())
		effect := EffectNone

		switch {
		case ev.IsLabelChange():
			if _, ok := r.tracked[ev.Label]; !ok {
				continue
			}
			if ev.Kind == domain.EventLabeled {
				held[ev.Label] = struct{}{}
				if len(held) == 2 {
					effect = EffectEnter
				}
			} else {
				if len(held) == 2 {
					effect = EffectExit
				}
				delete(held, ev.Label)
			}

		case ev.Kind == domain.EventClosed:
			if qualifying {
				effect = EffectExit
			}

		case ev.Kind == domain.EventReopened:
			if r.policy == ReopenAlways || len(held) == 2 {
				effect = EffectEnter
			}

		default:
			continue
		}

		switch effect {
		case EffectEnter:
			r.history.Buckets.enter(day, issue.Number)
			qualifying = true
		case EffectExit:
			r.history.Buckets.exit(day, issue.Number)
			qualifying = false
		}

		steps = append(steps, Step{
			At:     ev.CreatedAt,
			Kind:   ev.Kind,
			Label:  ev.Label,
			Held:   len(held),
			Effect: effect,
		})
	}

	return steps
}

// History returns the accumulated history. The replayer must not be used afterwards.
func (r *Replayer) History() *History {
	h := r.history
	r.history = nil
	return h
}
