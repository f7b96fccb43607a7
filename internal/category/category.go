// Package category implements the category matching rules shared by tracked
// threads and todo entries.
package category

import "strings"

// Sentinel category names understood by Matches. Comparison is
// case-insensitive.
const (
	All   = "all"
	None  = "none"
	Unset = "unset"
)

// TodoMarker prefixes todo categories so a bare thread category name never
// accidentally selects todo entries, and vice versa.
const TodoMarker = "!"

// Matches reports whether an item with the given category is selected by the
// requested set.
//
// Rules:
//   - an empty requested set matches everything
//   - a requested set containing "all" matches everything
//   - "none"/"unset" match items with no category
//   - otherwise: case-insensitive membership
func Matches(itemCategory string, requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	for _, want := range requested {
		switch strings.ToLower(want) {
		case All:
			return true
		case None, Unset:
			if itemCategory == "" {
				return true
			}
		default:
			if strings.EqualFold(itemCategory, want) {
				return true
			}
		}
	}
	return false
}

// IsTodo reports whether the category name carries the todo marker.
func IsTodo(cat string) bool {
	return strings.HasPrefix(cat, TodoMarker)
}

// TrimTodoMarker strips the todo marker for display purposes.
func TrimTodoMarker(cat string) string {
	return strings.TrimPrefix(cat, TodoMarker)
}

// SplitSet parses a stored filter set (space-separated, as kept on watcher
// rows) into its categories. Empty input yields nil, meaning "all".
func SplitSet(raw string) []string {
	return strings.Fields(raw)
}

// JoinSet is the inverse of SplitSet.
func JoinSet(cats []string) string {
	return strings.Join(cats, " ")
}
