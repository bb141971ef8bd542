package timeline

import "time"

// Cursor is the bookkeeping for one timeline.
type Cursor struct {
	// Position is the next available begin time.
	Position time.Duration `json:"position"`
	// LatestEnd is the furthest begin+duration among timing-relevant actions.
	LatestEnd time.Duration `json:"latest_end"`
}

func (c *Cursor) extend(end time.Duration) {
	if end > c.LatestEnd {
		c.LatestEnd = end
	}
}

// Span is the resolved timing of a labeled action.
type Span struct {
	Begin    time.Duration `json:"begin"`
	Duration time.Duration `json:"duration"`
}

// End returns Begin+Duration.
func (s Span) End() time.Duration {
	return s.Begin + s.Duration
}

// State is the mutable bookkeeping of one scheduling pass. It is owned by a
// single block and never shared.
type State struct {
	Global   Cursor             `json:"global"`
	Subjects map[string]*Cursor `json:"subjects,omitempty"`
	Labels   map[string]Span    `json:"labels,omitempty"`
}

func newState(origin time.Duration) *State {
	return &State{
		Global:   Cursor{Position: origin, LatestEnd: origin},
		Subjects: map[string]*Cursor{},
		Labels:   map[string]Span{},
	}
}

// record returns the cursor a step with the given subject works against,
// creating the subject entry on first reference.
func (s *State) record(subject string) *Cursor {
	if subject == "" {
		return &s.Global
	}
	cur, ok := s.Subjects[subject]
	if !ok {
		cur = &Cursor{Position: s.Global.Position}
		s.Subjects[subject] = cur
	}
	return cur
}

// Subject returns a copy of the subject cursor.
func (s *State) Subject(id string) (Cursor, bool) {
	if s == nil {
		return Cursor{}, false
	}
	cur, ok := s.Subjects[id]
	if !ok {
		return Cursor{}, false
	}
	return *cur, true
}

func (s *State) clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		Global:   s.Global,
		Subjects: make(map[string]*Cursor, len(s.Subjects)),
		Labels:   make(map[string]Span, len(s.Labels)),
	}
	for id, cur := range s.Subjects {
		c := *cur
		out.Subjects[id] = &c
	}
	for label, span := range s.Labels {
		out.Labels[label] = span
	}
	return out
}
