package gqlmock

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// OperationKind classifies an operation for completion purposes.
type OperationKind int

const (
	OperationKindOther OperationKind = iota
	OperationKindSubscription
)

func (k OperationKind) String() string {
	if k == OperationKindSubscription {
		return "subscription"
	}
	return "other"
}

// Operation describes a single GraphQL request intercepted by a link. It is
// created once and must not be modified afterwards.
type Operation struct {
	ID            string
	Query         string
	Document      *ast.QueryDocument
	OperationName string
	Variables     map[string]interface{}
	Extensions    map[string]interface{}
	ClientName    string
	Headers       http.Header

	kind          OperationKind
	operationType ast.Operation
	autoComplete  bool
}

// OperationOpt is a function used to set an operation option
type OperationOpt func(*Operation)

// WithClientName sets the name of the client instance that issued the
// operation.
func WithClientName(name string) OperationOpt {
	return func(o *Operation) {
		o.ClientName = name
	}
}

// WithOperationID overrides the generated operation identifier.
func WithOperationID(id string) OperationOpt {
	return func(o *Operation) {
		if id != "" {
			o.ID = id
		}
	}
}

// WithHeaders attaches request headers to the operation.
func WithHeaders(h http.Header) OperationOpt {
	return func(o *Operation) {
		o.Headers = h.Clone()
	}
}

var errNoDefinition = errors.New("query must contain an operation or fragment definition")

// NewOperation parses the request query and builds the operation descriptor.
func NewOperation(req *Request, opts ...OperationOpt) (*Operation, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: req.Query})
	if err != nil {
		return nil, fmt.Errorf("unable to parse query: %w", err)
	}

	op := &Operation{
		ID:            uuid.Must(uuid.NewV4()).String(),
		Query:         req.Query,
		Document:      doc,
		OperationName: req.OperationName,
		Variables:     req.Variables,
		Extensions:    req.Extensions,
		Headers:       req.Headers.Clone(),
	}
	for _, opt := range opts {
		opt(op)
	}

	operation, fragment := mainDefinition(doc, req.OperationName)
	switch {
	case operation != nil:
		op.operationType = operation.Operation
		if op.OperationName == "" {
			op.OperationName = operation.Name
		}
		if operation.Operation == ast.Subscription {
			op.kind = OperationKindSubscription
		} else {
			op.autoComplete = true
		}
	case fragment != nil:
		op.kind = OperationKindOther
	default:
		return nil, errNoDefinition
	}

	return op, nil
}

// mainDefinition returns the definition that drives the request: the
// operation with the given name, the first operation, or failing that the
// first fragment.
func mainDefinition(doc *ast.QueryDocument, operationName string) (*ast.OperationDefinition, *ast.FragmentDefinition) {
	if operationName != "" {
		if op := doc.Operations.ForName(operationName); op != nil {
			return op, nil
		}
	}
	if len(doc.Operations) > 0 {
		return doc.Operations[0], nil
	}
	if len(doc.Fragments) > 0 {
		return nil, doc.Fragments[0]
	}
	return nil, nil
}

// Kind returns the operation kind computed when the operation was created.
func (o *Operation) Kind() OperationKind {
	return o.kind
}

// Type returns the GraphQL operation type of the main definition, or an empty
// string for fragment-only documents.
func (o *Operation) Type() ast.Operation {
	return o.operationType
}

// AutoCompletes reports whether the stream ends after the first successful
// result. Only query and mutation definitions auto-complete.
func (o *Operation) AutoCompletes() bool {
	return o.autoComplete
}

// Request returns a GraphQL request equivalent to the operation.
func (o *Operation) Request() *Request {
	return &Request{
		Query:         o.Query,
		OperationName: o.OperationName,
		Variables:     o.Variables,
		Extensions:    o.Extensions,
		Headers:       o.Headers,
	}
}
