package gqlmock

import (
	"context"
	"net/http"
)

type contextKey string
type gqlmockContextKey int

const (
	clientNameContextKey gqlmockContextKey = iota + 1
	operationIDContextKey
	operationHeaderContextKey
)

// AddClientNameToContext sets the client name given to operations created
// for the request, overriding the client name header.
func AddClientNameToContext(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, clientNameContextKey, name)
}

// GetClientNameFromContext returns the client name stored in the context
func GetClientNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(clientNameContextKey).(string)
	return name, ok
}

// AddOperationIDToContext sets the ID given to the operation created for the
// request.
func AddOperationIDToContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationIDContextKey, id)
}

// GetOperationIDFromContext returns the operation ID stored in the context
func GetOperationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(operationIDContextKey).(string)
	return id
}

// AddOperationHeaderToContext adds a header to the operations created for the
// current request.
func AddOperationHeaderToContext(ctx context.Context, key, value string) context.Context {
	h, ok := ctx.Value(operationHeaderContextKey).(http.Header)
	if !ok {
		h = make(http.Header)
	} else {
		h = h.Clone()
	}
	h.Add(key, value)

	return context.WithValue(ctx, operationHeaderContextKey, h)
}

// GetOperationHeadersFromContext gets the headers that should be attached to
// operations created for the current request.
func GetOperationHeadersFromContext(ctx context.Context) http.Header {
	h, _ := ctx.Value(operationHeaderContextKey).(http.Header)
	return h
}
