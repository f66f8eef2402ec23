package gqlmock

import (
	"context"
	"net/http"
)

// Link executes operations. Results are delivered to the observer, possibly
// from another goroutine, after Execute returns.
type Link interface {
	Execute(ctx context.Context, op *Operation, observer Observer)
}

// LinkFunc adapts a function to the Link interface.
type LinkFunc func(ctx context.Context, op *Operation, observer Observer)

func (f LinkFunc) Execute(ctx context.Context, op *Operation, observer Observer) {
	f(ctx, op, observer)
}

// SplitLink routes operations accepted by test to left and the others to
// right.
func SplitLink(test func(*Operation) bool, left, right Link) Link {
	return LinkFunc(func(ctx context.Context, op *Operation, observer Observer) {
		if test(op) {
			left.Execute(ctx, op, observer)
			return
		}
		right.Execute(ctx, op, observer)
	})
}

// IsSubscription reports whether the operation is a subscription.
func IsSubscription(op *Operation) bool {
	return op.Kind() == OperationKindSubscription
}

// Request is a GraphQL request.
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`
	Headers       http.Header            `json:"-"`
}

// NewRequest creates a new GraphQL requests from the provided body.
func NewRequest(body string) *Request {
	return &Request{
		Query: body,
	}
}

// WithOperationName sets the operation name of the request.
func (r *Request) WithOperationName(operationName string) *Request {
	r.OperationName = operationName
	return r
}

// WithVariables sets the variables of the request.
func (r *Request) WithVariables(variables map[string]interface{}) *Request {
	r.Variables = variables
	return r
}
