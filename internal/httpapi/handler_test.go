package httpapi

import (
	"bytes"
	"context"
	stderrors "errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gremlinhq/gremlin/internal/auth"
	"github.com/gremlinhq/gremlin/internal/content"
	"github.com/gremlinhq/gremlin/internal/errors"
	"github.com/gremlinhq/gremlin/internal/procedure"
	"github.com/gremlinhq/gremlin/internal/schema"
)

func testUserSession() auth.Session {
	return auth.Session{
		User:    &auth.User{ID: "u1", Roles: []string{"user"}},
		Expires: "2099-01-01T00:00:00.000Z",
	}
}

func newTestHandler(t *testing.T, opts Options) http.Handler {
	t.Helper()
	if opts.Content == nil {
		opts.Content = content.NewMemoryAdapter()
	}
	if opts.Auth == nil {
		opts.Auth = auth.StaticProvider{Session: testUserSession()}
	}
	h, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func doRPC(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/gremlin/rpc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decodeErrorEnvelope(t *testing.T, body *bytes.Buffer) (string, string) {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal error envelope %q: %v", body.String(), err)
	}
	return envelope.Error.Code, envelope.Error.Message
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{Auth: auth.AnonymousProvider{}}); err == nil {
		t.Error("expected error without content adapter")
	}
	if _, err := New(Options{Content: content.NewMemoryAdapter()}); err == nil {
		t.Error("expected error without session provider")
	}
}

func TestRPCDoubleEndToEnd(t *testing.T) {
	router := procedure.Router{
		"double": procedure.New().
			Input(schema.NewObject().Field("value", schema.Number().WithRequired())).
			Handler(func(ctx context.Context, req procedure.Request) (any, error) {
				input := req.Input.(map[string]any)
				return map[string]any{"doubled": input["value"].(float64) * 2}, nil
			}),
	}
	h := newTestHandler(t, Options{Router: router})

	resp := doRPC(t, h, `{"procedure":"double","input":{"value":8}}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}
	var out map[string]float64
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["doubled"] != 16 {
		t.Errorf("doubled = %v, want 16", out["doubled"])
	}
}

func TestSessionEndToEnd(t *testing.T) {
	h := newTestHandler(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/gremlin/session", nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var session struct {
		User *struct {
			ID    string   `json:"id"`
			Roles []string `json:"roles"`
		} `json:"user"`
		Expires string `json:"expires"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if session.User == nil || session.User.ID != "u1" || session.User.Roles[0] != "user" {
		t.Errorf("session user = %+v", session.User)
	}
	if session.Expires != "2099-01-01T00:00:00.000Z" {
		t.Errorf("expires = %q, want verbatim round-trip", session.Expires)
	}
}

func TestErrorCodeStatusDeterminism(t *testing.T) {
	cases := []struct {
		code   errors.Code
		status int
	}{
		{errors.CodeValidation, 400},
		{errors.CodeUnauthorized, 401},
		{errors.CodeForbidden, 403},
		{errors.CodeNotFound, 404},
		{errors.CodeConflict, 409},
		{errors.CodeInternal, 500},
	}

	for _, tc := range cases {
		router := procedure.Router{
			"fail": procedure.New().Handler(func(ctx context.Context, req procedure.Request) (any, error) {
				return nil, errors.New(tc.code, "it broke")
			}),
		}
		h := newTestHandler(t, Options{Router: router})

		resp := doRPC(t, h, `{"procedure":"fail"}`)
		if resp.Code != tc.status {
			t.Errorf("%s: status = %d, want %d", tc.code, resp.Code, tc.status)
		}
		code, message := decodeErrorEnvelope(t, resp.Body)
		if code != string(tc.code) || message != "it broke" {
			t.Errorf("%s: envelope = (%s, %q)", tc.code, code, message)
		}
	}
}

func TestForeignErrorBecomesInternal(t *testing.T) {
	router := procedure.Router{
		"explode": procedure.New().Handler(func(ctx context.Context, req procedure.Request) (any, error) {
			return nil, stderrors.New("raw database failure with secrets")
		}),
	}
	h := newTestHandler(t, Options{Router: router})

	resp := doRPC(t, h, `{"procedure":"explode"}`)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.Code)
	}
	code, message := decodeErrorEnvelope(t, resp.Body)
	if code != "INTERNAL" {
		t.Errorf("code = %s", code)
	}
	if strings.Contains(message, "secrets") {
		t.Errorf("internal detail leaked into message: %q", message)
	}
}

func TestPanicBecomesInternal(t *testing.T) {
	router := procedure.Router{
		"panic": procedure.New().Handler(func(ctx context.Context, req procedure.Request) (any, error) {
			panic("boom")
		}),
	}
	h := newTestHandler(t, Options{Router: router})

	resp := doRPC(t, h, `{"procedure":"panic"}`)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.Code)
	}
	if code, _ := decodeErrorEnvelope(t, resp.Body); code != "INTERNAL" {
		t.Errorf("code = %s", code)
	}
}

func TestUnknownProcedure404(t *testing.T) {
	h := newTestHandler(t, Options{})

	resp := doRPC(t, h, `{"procedure":"doesNotExist"}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d", resp.Code)
	}
	code, message := decodeErrorEnvelope(t, resp.Body)
	if code != "NOT_FOUND" || message != "Procedure not found: doesNotExist" {
		t.Errorf("envelope = (%s, %q)", code, message)
	}
}

func TestRPCBadRequests(t *testing.T) {
	h := newTestHandler(t, Options{})

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{"procedure":`},
		{"missing procedure", `{"input":{"value":1}}`},
		{"non-string procedure", `{"procedure":42}`},
	}
	for _, tc := range cases {
		resp := doRPC(t, h, tc.body)
		if resp.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, resp.Code)
			continue
		}
		if code, _ := decodeErrorEnvelope(t, resp.Body); code != "VALIDATION" {
			t.Errorf("%s: code = %s, want VALIDATION", tc.name, code)
		}
	}
}

func TestRouteContainment(t *testing.T) {
	h := newTestHandler(t, Options{})

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/"},
		{http.MethodGet, "/api"},
		{http.MethodPost, "/api/other/rpc"},
		{http.MethodGet, "/api/gremlin"},
		{http.MethodGet, "/api/gremlin/unknown"},
		{http.MethodDelete, "/api/gremlin/session"},
		{http.MethodGet, "/api/gremlin/rpc"},
		{http.MethodPut, "/totally/elsewhere"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		if resp.Code != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", tc.method, tc.path, resp.Code)
			continue
		}
		if code, _ := decodeErrorEnvelope(t, resp.Body); code != "NOT_FOUND" {
			t.Errorf("%s %s: code = %s", tc.method, tc.path, code)
		}
	}
}

func TestCustomBasePath(t *testing.T) {
	router := procedure.Router{
		"ping": procedure.New().Handler(func(ctx context.Context, req procedure.Request) (any, error) {
			return map[string]any{"pong": true}, nil
		}),
	}
	h := newTestHandler(t, Options{BasePath: "/v2/api/", Router: router})

	req := httptest.NewRequest(http.MethodPost, "/v2/api/rpc", strings.NewReader(`{"procedure":"ping"}`))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Errorf("normalized base path: status = %d", resp.Code)
	}

	// The default base path is not served when a custom one is set.
	resp = doRPC(t, h, `{"procedure":"ping"}`)
	if resp.Code != http.StatusNotFound {
		t.Errorf("old base path: status = %d, want 404", resp.Code)
	}
}

func TestOnErrorCallback(t *testing.T) {
	var observed []*errors.GremlinError
	h := newTestHandler(t, Options{
		OnError: func(gerr *errors.GremlinError) {
			observed = append(observed, gerr)
		},
	})

	resp := doRPC(t, h, `{"procedure":"nope"}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d", resp.Code)
	}
	if len(observed) != 1 || observed[0].Code != errors.CodeNotFound {
		t.Fatalf("observed = %+v", observed)
	}
}

func TestOnErrorPanicDoesNotAffectResponse(t *testing.T) {
	h := newTestHandler(t, Options{
		OnError: func(gerr *errors.GremlinError) {
			panic("telemetry is down")
		},
	})

	resp := doRPC(t, h, `{"procedure":"nope"}`)
	if resp.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 despite callback panic", resp.Code)
	}
	if code, _ := decodeErrorEnvelope(t, resp.Body); code != "NOT_FOUND" {
		t.Errorf("code = %s", code)
	}
}

func TestRPCSeesSessionInContext(t *testing.T) {
	router := procedure.Router{
		"whoami": procedure.New().Handler(func(ctx context.Context, req procedure.Request) (any, error) {
			session := req.Ctx.Session()
			if session.User == nil {
				return nil, errors.Unauthorized("Authentication required.")
			}
			return map[string]any{"id": session.User.ID}, nil
		}),
	}

	h := newTestHandler(t, Options{Router: router})
	resp := doRPC(t, h, `{"procedure":"whoami"}`)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "u1") {
		t.Errorf("authenticated whoami = %d %s", resp.Code, resp.Body.String())
	}

	anon := newTestHandler(t, Options{Router: router, Auth: auth.AnonymousProvider{}})
	resp = doRPC(t, anon, `{"procedure":"whoami"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("anonymous whoami = %d, want 401", resp.Code)
	}
}
