// Package content defines the content persistence contract consumed by
// application procedures, plus the adapter implementations shipped with
// the server. The core dispatch layer depends only on the Adapter
// interface, never on a concrete store.
package content

import (
	"context"
	"time"

	"github.com/gremlinhq/gremlin/internal/pagination"
)

// Resource is one unit of managed content: a post, a lesson, a video, a
// collection. Fields carries the type-specific payload.
type Resource struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Fields      map[string]any `json:"fields"`
	CreatedByID string         `json:"createdById,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// ListOptions narrows and pages a resource listing. Cursor is an opaque
// token from a previous page; only the adapter that issued it can decode
// it.
type ListOptions struct {
	Type   string
	Limit  int
	Cursor string
}

// DefaultListLimit caps listings when the caller does not set one.
const DefaultListLimit = 50

// Adapter is the persistence contract for content resources: CRUD,
// cursor pagination, and parent/child relationship management.
type Adapter interface {
	GetResource(ctx context.Context, id string) (Resource, error)
	ListResources(ctx context.Context, opts ListOptions) (pagination.Page[Resource], error)
	CreateResource(ctx context.Context, res Resource) (Resource, error)
	UpdateResource(ctx context.Context, id string, fields map[string]any) (Resource, error)
	DeleteResource(ctx context.Context, id string) error

	AddResourceToResource(ctx context.Context, parentID, childID string) error
	RemoveResourceFromResource(ctx context.Context, parentID, childID string) error
	ReorderResources(ctx context.Context, parentID string, childIDs []string) error
}
