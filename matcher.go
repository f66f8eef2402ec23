package gqlmock

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

// Matcher selects intercepted operations.
type Matcher interface {
	Match(op *Operation) bool
	String() string
}

type matcherFunc struct {
	desc string
	fn   func(*Operation) bool
}

func (m matcherFunc) Match(op *Operation) bool { return m.fn(op) }
func (m matcherFunc) String() string           { return m.desc }

// MatchFunc matches operations with an arbitrary predicate.
func MatchFunc(description string, fn func(*Operation) bool) Matcher {
	return matcherFunc{desc: description, fn: fn}
}

// MatchQuery matches operations whose document prints the same as the given
// query once both are parsed, so whitespace and comments are ignored.
func MatchQuery(query string) Matcher {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return matcherFunc{
			desc: fmt.Sprintf("query (invalid: %s)", err),
			fn:   func(*Operation) bool { return false },
		}
	}
	return MatchDocument(doc)
}

// MatchDocument matches operations with an equivalent parsed document.
func MatchDocument(doc *ast.QueryDocument) Matcher {
	expected := formatDocument(doc)
	return matcherFunc{
		desc: fmt.Sprintf("query %q", compact(expected)),
		fn: func(op *Operation) bool {
			return formatDocument(op.Document) == expected
		},
	}
}

// MatchOperationName matches operations by operation name.
func MatchOperationName(name string) Matcher {
	return matcherFunc{
		desc: fmt.Sprintf("operation name %q", name),
		fn: func(op *Operation) bool {
			return op.OperationName == name
		},
	}
}

// MatchClient matches operations issued by the named client.
func MatchClient(name string) Matcher {
	return matcherFunc{
		desc: fmt.Sprintf("client %q", name),
		fn: func(op *Operation) bool {
			return op.ClientName == name
		},
	}
}

// MatchHeader matches operations carrying the header with the given value.
func MatchHeader(key, value string) Matcher {
	return matcherFunc{
		desc: fmt.Sprintf("header %s=%q", key, value),
		fn: func(op *Operation) bool {
			for _, v := range op.Headers.Values(key) {
				if v == value {
					return true
				}
			}
			return false
		},
	}
}

// MatchVariables matches operations whose variables contain the given
// values. Variables decoded from a JSON request hold float64 numbers.
func MatchVariables(vars map[string]interface{}) Matcher {
	return matcherFunc{
		desc: fmt.Sprintf("variables %v", vars),
		fn: func(op *Operation) bool {
			for k, v := range vars {
				actual, ok := op.Variables[k]
				if !ok || !reflect.DeepEqual(actual, v) {
					return false
				}
			}
			return true
		},
	}
}

// MatchAll matches operations accepted by every matcher.
func MatchAll(matchers ...Matcher) Matcher {
	var descs []string
	for _, m := range matchers {
		descs = append(descs, m.String())
	}
	return matcherFunc{
		desc: strings.Join(descs, " and "),
		fn: func(op *Operation) bool {
			for _, m := range matchers {
				if !m.Match(op) {
					return false
				}
			}
			return true
		},
	}
}

func formatDocument(doc *ast.QueryDocument) string {
	if doc == nil {
		return ""
	}
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(doc)
	return buf.String()
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
