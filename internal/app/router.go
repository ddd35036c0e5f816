// Package app assembles the procedures the gremlin server exposes over
// RPC. Every procedure closes over the content adapter; authorization
// happens inside handlers using the session seeded into the merged
// context.
package app

import (
	"context"
	"fmt"

	"github.com/gremlinhq/gremlin/internal/auth"
	"github.com/gremlinhq/gremlin/internal/content"
	"github.com/gremlinhq/gremlin/internal/errors"
	"github.com/gremlinhq/gremlin/internal/procedure"
	"github.com/gremlinhq/gremlin/internal/schema"
)

// NewRouter builds the content procedure table backed by the given
// adapter.
func NewRouter(store content.Adapter) procedure.Router {
	return procedure.Router{
		"content.get":     getProcedure(store),
		"content.list":    listProcedure(store),
		"content.create":  createProcedure(store),
		"content.update":  updateProcedure(store),
		"content.delete":  deleteProcedure(store),
		"content.attach":  attachProcedure(store),
		"content.detach":  detachProcedure(store),
		"content.reorder": reorderProcedure(store),
	}
}

// requireUser rejects anonymous callers. Mutating procedures call this
// before touching the store.
func requireUser(ctx *procedure.Context) (auth.Session, error) {
	session := ctx.Session()
	if session.User == nil {
		return auth.Session{}, errors.Unauthorized("Authentication required.")
	}
	return session, nil
}

func inputMap(req procedure.Request) map[string]any {
	m, _ := req.Input.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func getProcedure(store content.Adapter) *procedure.Procedure {
	return procedure.New().
		Input(schema.NewObject().Field("id", schema.String().WithRequired())).
		Handler(func(ctx context.Context, req procedure.Request) (any, error) {
			return store.GetResource(ctx, stringField(inputMap(req), "id"))
		})
}

func listProcedure(store content.Adapter) *procedure.Procedure {
	input := schema.NewObject().
		Field("type", schema.String()).
		Field("limit", schema.Number().WithMin(1).WithMax(200)).
		Field("cursor", schema.String())

	return procedure.New().
		Input(input).
		Handler(func(ctx context.Context, req procedure.Request) (any, error) {
			m := inputMap(req)
			limit := 0
			if n, ok := m["limit"].(float64); ok {
				limit = int(n)
			}
			return store.ListResources(ctx, content.ListOptions{
				Type:   stringField(m, "type"),
				Limit:  limit,
				Cursor: stringField(m, "cursor"),
			})
		})
}

func createProcedure(store content.Adapter) *procedure.Procedure {
	input := schema.NewObject().
		Field("type", schema.String().WithRequired()).
		Field("fields", schema.ObjectField())

	return procedure.New().
		Input(input).
		Handler(func(ctx context.Context, req procedure.Request) (any, error) {
			session, err := requireUser(req.Ctx)
			if err != nil {
				return nil, err
			}
			m := inputMap(req)
			fields, _ := m["fields"].(map[string]any)
			return store.CreateResource(ctx, content.Resource{
				Type:        stringField(m, "type"),
				Fields:      fields,
				CreatedByID: session.User.ID,
			})
		})
}

func updateProcedure(store content.Adapter) *procedure.Procedure {
	input := schema.NewObject().
		Field("id", schema.String().WithRequired()).
		Field("fields", schema.ObjectField().WithRequired())

	return procedure.New().
		Input(input).
		Handler(func(ctx context.Context, req procedure.Request) (any, error) {
			if _, err := requireUser(req.Ctx); err != nil {
				return nil, err
			}
			m := inputMap(req)
			fields, _ := m["fields"].(map[string]any)
			return store.UpdateResource(ctx, stringField(m, "id"), fields)
		})
}

func deleteProcedure(store content.Adapter) *procedure.Procedure {
	return procedure.New().
		Input(schema.NewObject().Field("id", schema.String().WithRequired())).
		Handler(func(ctx context.Context, req procedure.Request) (any, error) {
			if _, err := requireUser(req.Ctx); err != nil {
				return nil, err
			}
			id := stringField(inputMap(req), "id")
			if err := store.DeleteResource(ctx, id); err != nil {
				return nil, err
			}
			return map[string]any{"deleted": id}, nil
		})
}

func attachProcedure(store content.Adapter) *procedure.Procedure {
	return procedure.New().
		Input(parentChildSchema()).
		Handler(func(ctx context.Context, req procedure.Request) (any, error) {
			if _, err := requireUser(req.Ctx); err != nil {
				return nil, err
			}
			m := inputMap(req)
			parent, child := stringField(m, "parentId"), stringField(m, "childId")
			if err := store.AddResourceToResource(ctx, parent, child); err != nil {
				return nil, err
			}
			return map[string]any{"parentId": parent, "childId": child}, nil
		})
}

func detachProcedure(store content.Adapter) *procedure.Procedure {
	return procedure.New().
		Input(parentChildSchema()).
		Handler(func(ctx context.Context, req procedure.Request) (any, error) {
			if _, err := requireUser(req.Ctx); err != nil {
				return nil, err
			}
			m := inputMap(req)
			parent, child := stringField(m, "parentId"), stringField(m, "childId")
			if err := store.RemoveResourceFromResource(ctx, parent, child); err != nil {
				return nil, err
			}
			return map[string]any{"parentId": parent, "childId": child}, nil
		})
}

func reorderProcedure(store content.Adapter) *procedure.Procedure {
	input := schema.NewObject().
		Field("parentId", schema.String().WithRequired()).
		Field("childIds", schema.Array().WithRequired())

	return procedure.New().
		Input(input).
		Handler(func(ctx context.Context, req procedure.Request) (any, error) {
			if _, err := requireUser(req.Ctx); err != nil {
				return nil, err
			}
			m := inputMap(req)
			raw, _ := m["childIds"].([]any)
			childIDs := make([]string, 0, len(raw))
			for _, v := range raw {
				id, ok := v.(string)
				if !ok {
					return nil, errors.Validation(fmt.Sprintf("childIds must be strings, got %T", v), nil)
				}
				childIDs = append(childIDs, id)
			}
			parent := stringField(m, "parentId")
			if err := store.ReorderResources(ctx, parent, childIDs); err != nil {
				return nil, err
			}
			return map[string]any{"parentId": parent, "childIds": childIDs}, nil
		})
}

func parentChildSchema() *schema.Object {
	return schema.NewObject().
		Field("parentId", schema.String().WithRequired()).
		Field("childId", schema.String().WithRequired())
}
