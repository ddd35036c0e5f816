// Package pagination defines the cursor-paginated page shape shared by
// all adapters. Cursors are opaque continuation tokens: only the adapter
// that issued a cursor may decode it, and the core merely round-trips it.
package pagination

// Page holds one page of a listing. Invariant: Cursor is non-empty if
// and only if HasMore is true.
type Page[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"hasMore"`
}

// New builds a page, enforcing the cursor/hasMore invariant: the cursor
// is dropped when there is no further page.
func New[T any](items []T, cursor string, hasMore bool) Page[T] {
	if items == nil {
		items = []T{}
	}
	if !hasMore {
		cursor = ""
	}
	return Page[T]{Items: items, Cursor: cursor, HasMore: hasMore}
}
