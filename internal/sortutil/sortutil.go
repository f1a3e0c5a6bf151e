package sortutil

import (
	"sort"
)

// LessIDPath provides deterministic ordering by identity first, then by
// path for entries that share an identity.
func LessIDPath(idI, pathI, idJ, pathJ string) bool {
	if idI == idJ {
		return pathI < pathJ
	}
	return idI < idJ
}

// SortByID orders items by the string key returned for each, keeping the
// relative order of equal keys.
func SortByID[T any](items []T, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		return id(items[i]) < id(items[j])
	})
}

// IsSortedByID reports whether items are already in SortByID order.
func IsSortedByID[T any](items []T, id func(T) string) bool {
	return sort.SliceIsSorted(items, func(i, j int) bool {
		return id(items[i]) < id(items[j])
	})
}
