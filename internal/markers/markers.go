// Package markers keeps the user's time annotations on a waveform.
package markers

import (
	"math"
	"slices"
)

// Marker is a labelled time offset.
type Marker struct {
	Seconds float64
	Label   string
}

// Set is an ordered set of markers keyed by time at microsecond resolution.
// It is not safe for concurrent use.
type Set struct {
	items   []Marker
	version uint64
	last    Marker
	hasLast bool
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{}
}

func key(seconds float64) int64 {
	return int64(math.Round(seconds * 1e6))
}

func (s *Set) search(seconds float64) (int, bool) {
	k := key(seconds)
	return slices.BinarySearchFunc(s.items, k, func(m Marker, k int64) int {
		switch mk := key(m.Seconds); {
		case mk < k:
			return -1
		case mk > k:
			return 1
		}
		return 0
	})
}

// Add inserts m, replacing the label of a marker already at the same time.
// It reports whether the set changed.
func (s *Set) Add(m Marker) bool {
	if m.Seconds < 0 || math.IsNaN(m.Seconds) || math.IsInf(m.Seconds, 0) {
		return false
	}
	i, found := s.search(m.Seconds)
	if found {
		s.last, s.hasLast = s.items[i], true
		if s.items[i].Label == m.Label {
			return false
		}
		s.items[i].Label = m.Label
	} else {
		s.items = slices.Insert(s.items, i, m)
	}
	s.last, s.hasLast = s.items[i], true
	s.version++
	return true
}

// Remove deletes the marker at seconds and reports whether one existed.
func (s *Set) Remove(seconds float64) bool {
	i, found := s.search(seconds)
	if !found {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	if s.hasLast && key(s.last.Seconds) == key(seconds) {
		s.hasLast = false
	}
	s.version++
	return true
}

// Clear removes every marker.
func (s *Set) Clear() {
	if len(s.items) == 0 && !s.hasLast {
		return
	}
	s.items = nil
	s.hasLast = false
	s.version++
}

// All returns the markers in time order.
func (s *Set) All() []Marker {
	return slices.Clone(s.items)
}

// Between returns the markers with start <= Seconds < end.
func (s *Set) Between(start, end float64) []Marker {
	lo, _ := s.search(start)
	hi, _ := s.search(end)
	return slices.Clone(s.items[lo:hi])
}

// Len returns the number of markers.
func (s *Set) Len() int { return len(s.items) }

// Version increases every time the set changes.
func (s *Set) Version() uint64 { return s.version }

// Last returns the marker most recently added or relabelled.
func (s *Set) Last() (Marker, bool) {
	return s.last, s.hasLast
}

// Nearest returns the marker closest to seconds.
func (s *Set) Nearest(seconds float64) (Marker, bool) {
	if len(s.items) == 0 {
		return Marker{}, false
	}
	i, _ := s.search(seconds)
	switch {
	case i == 0:
		return s.items[0], true
	case i == len(s.items):
		return s.items[i-1], true
	}
	before, after := s.items[i-1], s.items[i]
	if seconds-before.Seconds <= after.Seconds-seconds {
		return before, true
	}
	return after, true
}
