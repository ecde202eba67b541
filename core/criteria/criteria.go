package criteria

import (
	"encoding/json"
	"sync"
)

// Criterion is a single success criterion with its satisfaction flag.
type Criterion struct {
	Text      string `json:"criterion"`
	Satisfied bool   `json:"satisfied"`
}

// Set tracks success criteria extracted from a research brief.
// Keys keep their order of appearance and are never removed; the
// satisfied flag is monotonic, once a criterion is satisfied it stays
// satisfied regardless of later updates.
type Set struct {
	mu        sync.RWMutex
	order     []string
	satisfied map[string]bool
}

func NewSet() *Set {
	return &Set{
		satisfied: map[string]bool{},
	}
}

// Add registers a criterion as unsatisfied. Adding a key twice is a no-op,
// the first occurrence wins the position.
func (s *Set) Add(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.satisfied[text]; ok {
		return
	}
	s.order = append(s.order, text)
	s.satisfied[text] = false
}

// MarkSatisfied flips a criterion to satisfied. It reports whether the call
// changed anything, so callers can emit deltas only on real transitions.
// Unknown keys are ignored.
func (s *Set) MarkSatisfied(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	done, ok := s.satisfied[text]
	if !ok || done {
		return false
	}
	s.satisfied[text] = true
	return true
}

// Merge applies updates with OR semantics. Only true values have an effect,
// so merging is commutative and idempotent and can be applied from several
// evidence sources in any order.
func (s *Set) Merge(updates map[string]bool) {
	for text, done := range updates {
		if done {
			s.MarkSatisfied(text)
		}
	}
}

// Satisfied reports the flag for a criterion.
func (s *Set) Satisfied(text string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.satisfied[text]
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Keys returns the criteria in order of appearance.
func (s *Set) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.order...)
}

// Pending returns the criteria that are not yet satisfied, in order.
func (s *Set) Pending() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := []string{}
	for _, text := range s.order {
		if !s.satisfied[text] {
			pending = append(pending, text)
		}
	}
	return pending
}

// Complete reports whether every declared criterion is satisfied. An empty
// set is never complete: with no declared criteria only the model's stop
// signal or the iteration budget can end the research loop.
func (s *Set) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return false
	}
	for _, text := range s.order {
		if !s.satisfied[text] {
			return false
		}
	}
	return true
}

// Snapshot returns an ordered copy of all criteria and flags.
func (s *Set) Snapshot() []Criterion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Criterion, 0, len(s.order))
	for _, text := range s.order {
		out = append(out, Criterion{Text: text, Satisfied: s.satisfied[text]})
	}
	return out
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	c := NewSet()
	for _, cr := range s.Snapshot() {
		c.Add(cr.Text)
		if cr.Satisfied {
			c.MarkSatisfied(cr.Text)
		}
	}
	return c
}

// MarshalJSON encodes the set as an ordered array so that serialized
// snapshots keep the order of appearance.
func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var items []Criterion
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}

	s.mu.Lock()
	s.order = nil
	s.satisfied = map[string]bool{}
	s.mu.Unlock()

	for _, cr := range items {
		s.Add(cr.Text)
		if cr.Satisfied {
			s.MarkSatisfied(cr.Text)
		}
	}
	return nil
}
