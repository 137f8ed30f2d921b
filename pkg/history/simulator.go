package history

import (
	"sort"
	"time"

	"github.com/leapstack-labs/leapmeta/pkg/plan"
)

// Version is one history row as tracked by the Simulator.
type Version struct {
	Key       string
	RowHash   string
	StartedAt time.Time
	EndedAt   *time.Time
	State     plan.CloseReason
	RunID     string
}

// Open reports whether the version is current.
func (v Version) Open() bool { return v.EndedAt == nil }

// Outcome counts the rows each of the four statements touched.
type Outcome struct {
	ClosedChanged   int
	ClosedDeleted   int
	InsertedChanged int
	InsertedNew     int
}

// Simulator applies the four history statements to an in-memory table. It
// mirrors the SQL the planner emits and serves as its executable reference.
type Simulator struct {
	rows []Version
}

// Apply runs one historization against a current snapshot (business key to
// row hash) and returns what changed.
func (s *Simulator) Apply(current map[string]string, at time.Time, runID string) Outcome {
	var out Outcome

	// close changed
	for i := range s.rows {
		r := &s.rows[i]
		if h, ok := current[r.Key]; ok && r.Open() && h != r.RowHash {
			r.EndedAt, r.State = timePtr(at), plan.StateChanged
			out.ClosedChanged++
		}
	}
	// close deleted
	for i := range s.rows {
		r := &s.rows[i]
		if _, ok := current[r.Key]; !ok && r.Open() {
			r.EndedAt, r.State = timePtr(at), plan.StateDeleted
			out.ClosedDeleted++
		}
	}

	keys := make([]string, 0, len(current))
	for k := range current {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// insert changed
	for _, k := range keys {
		if s.closedChangedAt(k, at) && !s.hasOpen(k) {
			s.rows = append(s.rows, Version{Key: k, RowHash: current[k], StartedAt: at, State: plan.StateChanged, RunID: runID})
			out.InsertedChanged++
		}
	}
	// insert new
	for _, k := range keys {
		if !s.hasOpen(k) {
			s.rows = append(s.rows, Version{Key: k, RowHash: current[k], StartedAt: at, State: plan.StateNew, RunID: runID})
			out.InsertedNew++
		}
	}
	return out
}

// Versions returns a copy of all history rows in insertion order.
func (s *Simulator) Versions() []Version {
	out := make([]Version, len(s.rows))
	copy(out, s.rows)
	return out
}

// OpenCount returns the number of open versions of key.
func (s *Simulator) OpenCount(key string) int {
	n := 0
	for _, r := range s.rows {
		if r.Key == key && r.Open() {
			n++
		}
	}
	return n
}

func (s *Simulator) hasOpen(key string) bool {
	return s.OpenCount(key) > 0
}

func (s *Simulator) closedChangedAt(key string, at time.Time) bool {
	for _, r := range s.rows {
		if r.Key == key && r.State == plan.StateChanged && r.EndedAt != nil && r.EndedAt.Equal(at) {
			return true
		}
	}
	return false
}

func timePtr(t time.Time) *time.Time { return &t }
