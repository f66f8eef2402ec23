package gqlmock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/99designs/gqlgen/graphql"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server exposes a backend over HTTP so that clients running in another
// process can be tested.
type Server struct {
	Backend *Backend

	plugins  []Plugin
	upgrader websocket.Upgrader
}

// NewServer returns a server intercepting operations with backend.
func NewServer(backend *Backend, plugins []Plugin) *Server {
	return &Server{
		Backend: backend,
		plugins: plugins,
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(r *http.Request) bool { return true },
			Subprotocols: []string{graphqlTransportWSProtocol},
		},
	}
}

// Router returns the public handler serving /query.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/query", s.serveQuery)

	for _, plugin := range s.plugins {
		plugin.SetupPublicMux(mux)
	}

	var result http.Handler = mux

	for i := len(s.plugins) - 1; i >= 0; i-- {
		result = s.plugins[i].ApplyMiddlewarePublicMux(result)
	}

	return otelhttp.NewHandler(applyMiddleware(result, monitoringMiddleware), "gqlmock")
}

// PrivateRouter returns the control API handler.
func (s *Server) PrivateRouter() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /operations", s.listOperations)
	mux.HandleFunc("POST /operations/{id}/flush", s.flushOperation)

	for _, plugin := range s.plugins {
		plugin.SetupPrivateMux(mux)
	}

	var result http.Handler = mux
	for i := len(s.plugins) - 1; i >= 0; i-- {
		result = s.plugins[i].ApplyMiddlewarePrivateMux(result)
	}

	return result
}

func (s *Server) serveQuery(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebsocket(w, r)
		return
	}

	req, err := decodeRequest(r)
	if err != nil {
		writeGraphqlError(w, http.StatusBadRequest, err.Error())
		return
	}

	op, err := s.newOperation(r, req)
	if err != nil {
		writeGraphqlError(w, http.StatusBadRequest, err.Error())
		return
	}
	if op.Kind() == OperationKindSubscription {
		writeGraphqlError(w, http.StatusBadRequest, "subscriptions require a websocket connection")
		return
	}

	ctx := r.Context()
	rec := NewRecorder()
	s.Backend.Execute(ctx, op, rec)

	if err := rec.Wait(ctx); err != nil {
		log.WithField("operation", op.OperationName).Debug("request ended before the operation was flushed")
		if errors.Is(err, context.DeadlineExceeded) {
			writeGraphqlError(w, http.StatusGatewayTimeout, "operation was not flushed in time")
		}
		return
	}

	if err := rec.Err(); err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) && !clientErr.IsNetworkError() {
			writeResponse(w, http.StatusOK, &graphql.Response{Errors: clientErrorList(clientErr)})
			return
		}
		log.WithError(err).WithField("operation", op.OperationName).Debug("aborting response with network error")
		panic(http.ErrAbortHandler)
	}

	var resp *graphql.Response
	if responses := rec.Responses(); len(responses) > 0 {
		resp = responses[0]
	}
	writeResponse(w, http.StatusOK, resp)
}

func (s *Server) newOperation(r *http.Request, req *Request, opts ...OperationOpt) (*Operation, error) {
	ctx := r.Context()
	clientName, ok := GetClientNameFromContext(ctx)
	if !ok {
		clientName = r.Header.Get(ClientNameHeader)
	}

	req.Headers = GetOperationHeadersFromContext(ctx)

	opts = append([]OperationOpt{
		WithClientName(clientName),
		WithOperationID(GetOperationIDFromContext(ctx)),
	}, opts...)
	return NewOperation(req, opts...)
}

func decodeRequest(r *http.Request) (*Request, error) {
	var req Request
	switch r.Method {
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("error decoding request body: %w", err)
		}
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if v := q.Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
				return nil, fmt.Errorf("error decoding variables: %w", err)
			}
		}
		if v := q.Get("extensions"); v != "" {
			if err := json.Unmarshal([]byte(v), &req.Extensions); err != nil {
				return nil, fmt.Errorf("error decoding extensions: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported method %s", r.Method)
	}

	if req.Query == "" {
		return nil, errors.New("missing query")
	}
	return &req, nil
}

func clientErrorList(err *ClientError) gqlerror.List {
	if len(err.GraphQLErrors) > 0 {
		return err.GraphQLErrors
	}
	return gqlerror.List{gqlerror.Errorf("%s", err.Error())}
}

func writeResponse(w http.ResponseWriter, status int, resp *graphql.Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Error("error writing response")
	}
}

func writeGraphqlError(w http.ResponseWriter, status int, message string) {
	writeResponse(w, status, &graphql.Response{Errors: gqlerror.List{gqlerror.Errorf("%s", message)}})
}

type operationSummary struct {
	ID            string                 `json:"id"`
	OperationName string                 `json:"operationName"`
	ClientName    string                 `json:"clientName"`
	Kind          string                 `json:"kind"`
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

func (s *Server) listOperations(w http.ResponseWriter, r *http.Request) {
	summaries := []operationSummary{}
	for _, t := range s.Backend.Open() {
		op := t.Operation()
		summaries = append(summaries, operationSummary{
			ID:            op.ID,
			OperationName: op.OperationName,
			ClientName:    op.ClientName,
			Kind:          op.Kind().String(),
			Query:         op.Query,
			Variables:     op.Variables,
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		log.WithError(err).Error("error writing operations")
	}
}

// flushRequest is the body accepted by the flush endpoint. Response is kept
// raw so that an explicit null can be told apart from a missing field.
type flushRequest struct {
	Response      json.RawMessage `json:"response"`
	Data          json.RawMessage `json:"data"`
	GraphQLErrors gqlerror.List   `json:"graphqlErrors"`
	NetworkError  string          `json:"networkError"`
	Complete      bool            `json:"complete"`
}

func (s *Server) flushOperation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	op, ok := s.Backend.Lookup(id)
	if !ok {
		writeGraphqlError(w, http.StatusNotFound, fmt.Sprintf("no open operation with id %q", id))
		return
	}

	var req flushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeGraphqlError(w, http.StatusBadRequest, fmt.Sprintf("error decoding flush request: %s", err))
		return
	}

	if err := applyFlushRequest(op, req); err != nil {
		writeGraphqlError(w, flushErrorStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]bool{"closed": op.Closed()})
}

// flushErrorStatus maps a flush error to its status code. Lookup only returns
// open operations, so a conflict means the operation was closed by a
// concurrent flush or a fixture between Lookup and the flush.
func flushErrorStatus(err error) int {
	if errors.Is(err, ErrOperationClosed) {
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func applyFlushRequest(op *TestOperation, req flushRequest) error {
	switch {
	case req.NetworkError != "":
		return op.NetworkError(errors.New(req.NetworkError))
	case len(req.Response) > 0:
		var resp *graphql.Response
		if err := json.Unmarshal(req.Response, &resp); err != nil {
			return fmt.Errorf("error decoding response: %w", err)
		}
		if err := op.FlushResponse(resp); err != nil {
			return err
		}
	case len(req.Data) > 0:
		if err := op.FlushData(req.Data); err != nil {
			return err
		}
	case len(req.GraphQLErrors) > 0:
		if err := op.GraphQLErrors(req.GraphQLErrors...); err != nil {
			return err
		}
	case req.Complete:
		return op.Complete()
	default:
		return errors.New("flush request has no outcome")
	}

	// queries already completed with their result
	if req.Complete && !op.Closed() {
		return op.Complete()
	}
	return nil
}
