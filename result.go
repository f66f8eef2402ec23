package gqlmock

import (
	"errors"
	"strings"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// ErrOperationClosed is returned when a result is flushed to an operation
// that already completed or failed.
var ErrOperationClosed = errors.New("operation already closed")

// ClientError is a failure that happens outside of the GraphQL response
// envelope, e.g. a transport failure. It terminates the operation.
type ClientError struct {
	Message       string
	GraphQLErrors gqlerror.List
	NetworkError  error
}

// NewNetworkError wraps a transport error into a client error.
func NewNetworkError(err error) *ClientError {
	return &ClientError{NetworkError: err}
}

func (e *ClientError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	var msgs []string
	for _, err := range e.GraphQLErrors {
		msgs = append(msgs, err.Message)
	}
	if e.NetworkError != nil {
		msgs = append(msgs, e.NetworkError.Error())
	}
	if len(msgs) == 0 {
		return "client error"
	}
	return strings.Join(msgs, "\n")
}

func (e *ClientError) Unwrap() error {
	return e.NetworkError
}

// IsNetworkError reports whether the error carries a transport failure.
func (e *ClientError) IsNetworkError() bool {
	return e.NetworkError != nil
}

// Result is what a test flushes to an operation: either a Success carrying a
// response envelope or a Failure carrying a client error.
type Result interface {
	isResult()
}

// Success delivers a response envelope through the observer's next channel.
// A nil Response is delivered as-is.
type Success struct {
	Response *graphql.Response
}

// Failure terminates the operation through the observer's error channel.
type Failure struct {
	Err *ClientError
}

func (Success) isResult() {}
func (Failure) isResult() {}

func copyResponse(r *graphql.Response) *graphql.Response {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
