package models

import "strings"

const trackURIPrefix = "spotify:track:"

// TrackID is an opaque catalog track identifier. Equality is exact string match.
type TrackID string

// URI returns the catalog URI used by the add-items endpoint.
func (id TrackID) URI() string {
	return trackURIPrefix + string(id)
}

// TrackSet is an immutable, deduplicated set of [TrackID].
//
// Iteration order is first-insertion order; membership and equality ignore it.
// Every operation returns a new set, so a TrackSet can be shared between goroutines
// without synchronization.
type TrackSet struct {
	ids   []TrackID
	index map[TrackID]struct{}
}

// NewTrackSet builds a set from ids, dropping duplicates and empty ids.
func NewTrackSet(ids ...TrackID) TrackSet {
	s := TrackSet{
		ids:   make([]TrackID, 0, len(ids)),
		index: make(map[TrackID]struct{}, len(ids)),
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.index[id]; ok {
			continue
		}
		s.index[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
	return s
}

// Len returns the number of ids in the set.
func (s TrackSet) Len() int {
	return len(s.ids)
}

// Empty reports whether the set has no ids.
func (s TrackSet) Empty() bool {
	return len(s.ids) == 0
}

// Contains reports whether id is a member.
func (s TrackSet) Contains(id TrackID) bool {
	_, ok := s.index[id]
	return ok
}

// IDs returns a copy of the members in insertion order.
func (s TrackSet) IDs() []TrackID {
	out := make([]TrackID, len(s.ids))
	copy(out, s.ids)
	return out
}

// URIs returns the catalog URI of every member in insertion order.
func (s TrackSet) URIs() []string {
	out := make([]string, len(s.ids))
	for i, id := range s.ids {
		out[i] = id.URI()
	}
	return out
}

// Intersect returns the members of s that are also in other, in the order of s.
func (s TrackSet) Intersect(other TrackSet) TrackSet {
	ids := make([]TrackID, 0, min(s.Len(), other.Len()))
	for _, id := range s.ids {
		if other.Contains(id) {
			ids = append(ids, id)
		}
	}
	return NewTrackSet(ids...)
}

// Union returns the members of s followed by members of others not already present.
func (s TrackSet) Union(others ...TrackSet) TrackSet {
	n := s.Len()
	for _, o := range others {
		n += o.Len()
	}
	ids := make([]TrackID, 0, n)
	ids = append(ids, s.ids...)
	for _, o := range others {
		ids = append(ids, o.ids...)
	}
	return NewTrackSet(ids...)
}

// Difference returns the members of s that are not in other.
func (s TrackSet) Difference(other TrackSet) TrackSet {
	ids := make([]TrackID, 0, s.Len())
	for _, id := range s.ids {
		if !other.Contains(id) {
			ids = append(ids, id)
		}
	}
	return NewTrackSet(ids...)
}

// Slice returns the members in positions [from, to) as a new set.
func (s TrackSet) Slice(from, to int) TrackSet {
	from = max(0, min(from, s.Len()))
	to = max(from, min(to, s.Len()))
	return NewTrackSet(s.ids[from:to]...)
}

// Equal reports whether both sets hold the same members, ignoring order.
func (s TrackSet) Equal(other TrackSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, id := range s.ids {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

// String renders the set for logs.
func (s TrackSet) String() string {
	parts := make([]string, len(s.ids))
	for i, id := range s.ids {
		parts[i] = string(id)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// PageResult is the intersection of one destination page with the candidate set.
// Pages with no overlap carry an empty set.
type PageResult struct {
	Index        int
	Intersection TrackSet
}
