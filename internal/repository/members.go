package repository

import (
	"sort"

	"github.com/google/uuid"
)

// SortedMembers returns a sorted copy of ids. DM lookups compare member sets
// in this canonical order so [A,B] and [B,A] are the same conversation.
func SortedMembers(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// SameMembers reports whether a and b hold exactly the same ids.
// Both slices are expected to be free of duplicates.
func SameMembers(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := SortedMembers(a), SortedMembers(b)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// DMLockKey is the string two concurrent creators of the same DM agree on.
func DMLockKey(name string, ids []uuid.UUID) string {
	key := name
	for _, id := range SortedMembers(ids) {
		key += "|" + id.String()
	}
	return key
}
