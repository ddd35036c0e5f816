// Package httpapi translates inbound HTTP requests into procedure
// executions and procedure results into HTTP responses. It owns routing
// and the single error-normalization boundary; business logic lives in
// the procedures it dispatches to.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/gremlinhq/gremlin/internal/auth"
	"github.com/gremlinhq/gremlin/internal/content"
	"github.com/gremlinhq/gremlin/internal/errors"
	"github.com/gremlinhq/gremlin/internal/logging"
	"github.com/gremlinhq/gremlin/internal/metrics"
	"github.com/gremlinhq/gremlin/internal/procedure"
)

// DefaultBasePath is the route prefix used when Options.BasePath is
// empty.
const DefaultBasePath = "/api/gremlin"

// Options configures the API handler. Content and Auth are required;
// everything else has a usable zero value.
type Options struct {
	// BasePath prefixes every route; trailing slashes are stripped.
	BasePath string
	// Content is the persistence collaborator handed to application
	// procedures. The dispatch layer itself never calls it.
	Content content.Adapter
	// Auth resolves sessions for /session and for RPC execution
	// contexts.
	Auth auth.SessionProvider
	// Router is the name -> procedure table for RPC dispatch.
	Router procedure.Router
	// OnError observes every normalized error before the response is
	// written. It must not write the response and cannot affect it.
	OnError func(*errors.GremlinError)
	// Runtime is an optional effect runtime for result resolution.
	Runtime procedure.EffectRuntime
	// Logger and Metrics are optional instrumentation.
	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

type handler struct {
	auth    auth.SessionProvider
	router  procedure.Router
	exec    *procedure.Executor
	onError func(*errors.GremlinError)
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// New builds the API handler. The returned handler is stateless per
// request and safe for concurrent use; all configuration is captured
// immutably at construction time.
func New(opts Options) (http.Handler, error) {
	if opts.Content == nil {
		return nil, fmt.Errorf("httpapi: content adapter is required")
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("httpapi: session provider is required")
	}

	router := opts.Router
	if router == nil {
		router = procedure.Router{}
	}

	var execOpts []procedure.ExecutorOption
	if opts.Runtime != nil {
		execOpts = append(execOpts, procedure.WithRuntime(opts.Runtime))
	}

	h := &handler{
		auth:    opts.Auth,
		router:  router,
		exec:    procedure.NewExecutor(execOpts...),
		onError: opts.OnError,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}

	basePath := opts.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	basePath = strings.TrimRight(basePath, "/")

	r := mux.NewRouter()
	sub := r.PathPrefix(basePath).Subrouter()
	sub.HandleFunc("/session", h.session).Methods(http.MethodGet)
	sub.HandleFunc("/rpc", h.rpc).Methods(http.MethodPost)

	// Everything else, inside or outside the base path, is a uniform
	// NOT_FOUND envelope.
	r.NotFoundHandler = http.HandlerFunc(h.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.notFound)

	return h.recoverer(r), nil
}

// recoverer is the outermost layer of the single catch boundary: a
// panic anywhere below becomes an INTERNAL envelope instead of a torn
// connection.
func (h *handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.writeError(w, r, errors.Internal("An unexpected error occurred.", fmt.Errorf("panic: %v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	session := h.auth.GetSession(r.Context(), r)
	h.writeJSON(w, http.StatusOK, session)
}

type rpcRequest struct {
	Procedure string          `json:"procedure"`
	Input     json.RawMessage `json:"input"`
}

func (h *handler) rpc(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeRPCRequest(r.Body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	proc, ok := h.router[payload.Procedure]
	if !ok {
		h.writeError(w, r, errors.NotFound(fmt.Sprintf("Procedure not found: %s", payload.Procedure)))
		return
	}

	var input any
	if len(payload.Input) > 0 {
		if err := json.Unmarshal(payload.Input, &input); err != nil {
			h.writeError(w, r, errors.Validation("Invalid RPC input payload.", err))
			return
		}
	}

	session := h.auth.GetSession(r.Context(), r)

	start := time.Now()
	result, err := h.exec.Execute(r.Context(), proc, input, procedure.ExecutionContext{
		Request: r,
		Session: session,
		Headers: r.Header,
	})
	h.recordCall(payload.Procedure, err, time.Since(start))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func decodeRPCRequest(body io.ReadCloser) (rpcRequest, error) {
	defer body.Close()

	var payload rpcRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&payload); err != nil {
		return rpcRequest{}, errors.Validation("Invalid JSON body.", err)
	}
	if payload.Procedure == "" {
		return rpcRequest{}, errors.Validation(`Request body must include a string "procedure" field.`, nil)
	}
	return payload, nil
}

func (h *handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, errors.NotFound("Not found."))
}

func (h *handler) recordCall(name string, err error, duration time.Duration) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(errors.Wrap(err).Code)
	}
	h.metrics.RecordProcedureCall(name, outcome, duration)
}

type errorBody struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// writeError is the single normalization point: every failure leaves as
// a well-formed envelope with a taxonomy status, never a raw 500.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	gerr := errors.Wrap(err)

	if h.onError != nil {
		// The callback observes the error; its own failures must not
		// alter the response.
		func() {
			defer func() { _ = recover() }()
			h.onError(gerr)
		}()
	}
	if h.logger != nil {
		h.logger.WithContext(r.Context()).WithError(gerr).WithFields(map[string]interface{}{
			"path":   r.URL.Path,
			"method": r.Method,
			"code":   string(gerr.Code),
			"status": gerr.HTTPStatus(),
		}).Warn("request failed")
	}

	h.writeJSON(w, gerr.HTTPStatus(), errorEnvelope{Error: errorBody{Code: gerr.Code, Message: gerr.Message}})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
