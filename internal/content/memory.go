package content

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gremlinhq/gremlin/internal/errors"
	"github.com/gremlinhq/gremlin/internal/pagination"
)

// MemoryAdapter is an in-memory Adapter for tests and single-node
// deployments without a database.
type MemoryAdapter struct {
	mu        sync.RWMutex
	resources map[string]Resource
	// children preserves insertion/reorder order per parent.
	children map[string][]string
}

// NewMemoryAdapter creates an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		resources: make(map[string]Resource),
		children:  make(map[string][]string),
	}
}

// GetResource returns the resource or NOT_FOUND.
func (a *MemoryAdapter) GetResource(ctx context.Context, id string) (Resource, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	res, ok := a.resources[id]
	if !ok {
		return Resource{}, errors.NotFound(fmt.Sprintf("Resource not found: %s", id))
	}
	return res, nil
}

// ListResources pages resources ordered by creation time then ID. The
// cursor is a hex-encoded offset token private to this adapter.
func (a *MemoryAdapter) ListResources(ctx context.Context, opts ListOptions) (pagination.Page[Resource], error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	offset := 0
	if opts.Cursor != "" {
		n, err := decodeOffsetCursor(opts.Cursor)
		if err != nil {
			return pagination.Page[Resource]{}, errors.Validation("Invalid pagination cursor.", err)
		}
		offset = n
	}

	all := make([]Resource, 0, len(a.resources))
	for _, res := range a.resources {
		if opts.Type != "" && res.Type != opts.Type {
			continue
		}
		all = append(all, res)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	if offset >= len(all) {
		return pagination.New([]Resource{}, "", false), nil
	}
	end := offset + limit
	hasMore := end < len(all)
	if !hasMore {
		end = len(all)
	}

	return pagination.New(all[offset:end], encodeOffsetCursor(end), hasMore), nil
}

// CreateResource stores a new resource, assigning ID and timestamps when
// absent. An existing ID is a CONFLICT.
func (a *MemoryAdapter) CreateResource(ctx context.Context, res Resource) (Resource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if _, exists := a.resources[res.ID]; exists {
		return Resource{}, errors.Conflict(fmt.Sprintf("Resource already exists: %s", res.ID))
	}
	now := time.Now().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = now
	if res.Fields == nil {
		res.Fields = map[string]any{}
	}

	a.resources[res.ID] = res
	return res, nil
}

// UpdateResource shallow-merges fields into the resource.
func (a *MemoryAdapter) UpdateResource(ctx context.Context, id string, fields map[string]any) (Resource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, ok := a.resources[id]
	if !ok {
		return Resource{}, errors.NotFound(fmt.Sprintf("Resource not found: %s", id))
	}

	merged := make(map[string]any, len(res.Fields)+len(fields))
	for k, v := range res.Fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	res.Fields = merged
	res.UpdatedAt = time.Now().UTC()

	a.resources[id] = res
	return res, nil
}

// DeleteResource removes the resource and any links referencing it.
func (a *MemoryAdapter) DeleteResource(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.resources[id]; !ok {
		return errors.NotFound(fmt.Sprintf("Resource not found: %s", id))
	}
	delete(a.resources, id)
	delete(a.children, id)
	for parent, ids := range a.children {
		a.children[parent] = remove(ids, id)
	}
	return nil
}

// AddResourceToResource appends child to parent's ordered children.
// Attaching twice is a CONFLICT.
func (a *MemoryAdapter) AddResourceToResource(ctx context.Context, parentID, childID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.mustExist(parentID); err != nil {
		return err
	}
	if err := a.mustExist(childID); err != nil {
		return err
	}
	for _, id := range a.children[parentID] {
		if id == childID {
			return errors.Conflict(fmt.Sprintf("Resource %s is already attached to %s", childID, parentID))
		}
	}
	a.children[parentID] = append(a.children[parentID], childID)
	return nil
}

// RemoveResourceFromResource detaches child from parent.
func (a *MemoryAdapter) RemoveResourceFromResource(ctx context.Context, parentID, childID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := a.children[parentID]
	next := remove(ids, childID)
	if len(next) == len(ids) {
		return errors.NotFound(fmt.Sprintf("Resource %s is not attached to %s", childID, parentID))
	}
	a.children[parentID] = next
	return nil
}

// ReorderResources replaces parent's child order. The new order must be
// a permutation of the current children.
func (a *MemoryAdapter) ReorderResources(ctx context.Context, parentID string, childIDs []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.children[parentID]
	if len(childIDs) != len(current) {
		return errors.Validation("Reorder must list every attached child exactly once.", nil)
	}
	seen := make(map[string]bool, len(current))
	for _, id := range current {
		seen[id] = true
	}
	for _, id := range childIDs {
		if !seen[id] {
			return errors.Validation(fmt.Sprintf("Resource %s is not attached to %s.", id, parentID), nil)
		}
		delete(seen, id)
	}

	ordered := make([]string, len(childIDs))
	copy(ordered, childIDs)
	a.children[parentID] = ordered
	return nil
}

// Children returns parent's ordered child IDs.
func (a *MemoryAdapter) Children(parentID string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, len(a.children[parentID]))
	copy(out, a.children[parentID])
	return out
}

func (a *MemoryAdapter) mustExist(id string) error {
	if _, ok := a.resources[id]; !ok {
		return errors.NotFound(fmt.Sprintf("Resource not found: %s", id))
	}
	return nil
}

func remove(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func encodeOffsetCursor(offset int) string {
	return hex.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeOffsetCursor(cursor string) (int, error) {
	raw, err := hex.DecodeString(cursor)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(raw))
}
