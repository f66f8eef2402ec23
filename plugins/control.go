package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/movio/gqlmock"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

func init() {
	gqlmock.RegisterPlugin(NewControlPlugin())
}

// ControlPath is where the control GraphQL API is mounted on the private mux.
const ControlPath = "/control/query"

var controlPluginSchema = `
type Header {
	name: String!
	values: [String!]!
}
type Operation {
	id: ID!
	name: String
	kind: String!
	type: String!
	client: String
	query: String!
	variables: String
	headers: [Header!]!
}
type Query {
	operations(name: String, client: String): [Operation!]!
	operation(id: ID!): Operation
}
type Mutation {
	flushData(id: ID!, data: String!): Boolean!
	graphqlErrors(id: ID!, messages: [String!]!): Boolean!
	networkError(id: ID!, message: String!): Boolean!
	complete(id: ID!): Boolean!
}
`

type controlHeader struct {
	Name   string
	Values []string
}

type controlOperation struct {
	op *gqlmock.Operation
}

func (o controlOperation) ID() graphql.ID {
	return graphql.ID(o.op.ID)
}

func (o controlOperation) Name() *string {
	return strToPtr(o.op.OperationName)
}

func (o controlOperation) Kind() string {
	return o.op.Kind().String()
}

func (o controlOperation) Type() string {
	return string(o.op.Type())
}

func (o controlOperation) Client() *string {
	return strToPtr(o.op.ClientName)
}

func (o controlOperation) Query() string {
	return o.op.Query
}

func (o controlOperation) Variables() (*string, error) {
	if len(o.op.Variables) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(o.op.Variables)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func (o controlOperation) Headers() []controlHeader {
	headers := []controlHeader{}
	for name, values := range o.op.Headers {
		headers = append(headers, controlHeader{Name: name, Values: values})
	}
	sort.Slice(headers, func(i, j int) bool {
		return headers[i].Name < headers[j].Name
	})
	return headers
}

type controlResolver struct {
	backend *gqlmock.Backend
}

func (r *controlResolver) Operations(args struct {
	Name   *string
	Client *string
}) []controlOperation {
	var matchers []gqlmock.Matcher
	if args.Name != nil {
		matchers = append(matchers, gqlmock.MatchOperationName(*args.Name))
	}
	if args.Client != nil {
		matchers = append(matchers, gqlmock.MatchClient(*args.Client))
	}
	m := gqlmock.MatchAll(matchers...)

	res := []controlOperation{}
	for _, t := range r.backend.Open() {
		if m.Match(t.Operation()) {
			res = append(res, controlOperation{t.Operation()})
		}
	}
	return res
}

func (r *controlResolver) Operation(args struct{ ID graphql.ID }) *controlOperation {
	t, ok := r.backend.Lookup(string(args.ID))
	if !ok {
		return nil
	}
	return &controlOperation{t.Operation()}
}

func (r *controlResolver) lookup(id graphql.ID) (*gqlmock.TestOperation, error) {
	t, ok := r.backend.Lookup(string(id))
	if !ok {
		return nil, fmt.Errorf("no open operation with id %q", id)
	}
	return t, nil
}

func (r *controlResolver) FlushData(args struct {
	ID   graphql.ID
	Data string
}) (bool, error) {
	t, err := r.lookup(args.ID)
	if err != nil {
		return false, err
	}
	if !json.Valid([]byte(args.Data)) {
		return false, errors.New("data is not valid JSON")
	}
	if err := t.FlushData(json.RawMessage(args.Data)); err != nil {
		return false, err
	}
	return t.Closed(), nil
}

func (r *controlResolver) GraphqlErrors(args struct {
	ID       graphql.ID
	Messages []string
}) (bool, error) {
	t, err := r.lookup(args.ID)
	if err != nil {
		return false, err
	}
	errs := make([]*gqlerror.Error, 0, len(args.Messages))
	for _, m := range args.Messages {
		errs = append(errs, gqlerror.Errorf("%s", m))
	}
	if err := t.GraphQLErrors(errs...); err != nil {
		return false, err
	}
	return t.Closed(), nil
}

func (r *controlResolver) NetworkError(args struct {
	ID      graphql.ID
	Message string
}) (bool, error) {
	t, err := r.lookup(args.ID)
	if err != nil {
		return false, err
	}
	if err := t.NetworkError(errors.New(args.Message)); err != nil {
		return false, err
	}
	return t.Closed(), nil
}

func (r *controlResolver) Complete(args struct{ ID graphql.ID }) (bool, error) {
	t, err := r.lookup(args.ID)
	if err != nil {
		return false, err
	}
	if err := t.Complete(); err != nil {
		return false, err
	}
	return t.Closed(), nil
}

func strToPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ControlPlugin exposes the open operations of the backend as a GraphQL API
// on the private mux, so that tests written in any language can flush them.
type ControlPlugin struct {
	gqlmock.BasePlugin
	resolver *controlResolver
}

func NewControlPlugin() *ControlPlugin {
	return &ControlPlugin{
		resolver: &controlResolver{},
	}
}

func (p *ControlPlugin) ID() string {
	return "control"
}

func (p *ControlPlugin) Init(backend *gqlmock.Backend) {
	p.resolver.backend = backend
}

func (p *ControlPlugin) SetupPrivateMux(mux *http.ServeMux) {
	s := graphql.MustParseSchema(controlPluginSchema, p.resolver, graphql.UseFieldResolvers())
	mux.Handle(ControlPath, &relay.Handler{Schema: s})
}
