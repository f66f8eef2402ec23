package gqlmock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ClientNameHeader carries the name of the client instance that issued a
// request.
const ClientNameHeader = "apollographql-client-name"

// HTTPLink executes queries and mutations with HTTP POST requests.
type HTTPLink struct {
	URL             string
	HTTPClient      *http.Client
	MaxResponseSize int64
	UserAgent       string
}

// HTTPLinkOpt is a function used to set an HTTP link option
type HTTPLinkOpt func(*HTTPLink)

// NewHTTPLink creates a new link sending requests to url.
func NewHTTPLink(url string, opts ...HTTPLinkOpt) *HTTPLink {
	l := &HTTPLink{
		URL: url,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		MaxResponseSize: 1024 * 1024,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithMaxResponseSize sets the max allowed response size. The link will only
// read up to maxResponseSize and that size is exceeded an an error will be
// returned.
func WithMaxResponseSize(maxResponseSize int64) HTTPLinkOpt {
	return func(l *HTTPLink) {
		l.MaxResponseSize = maxResponseSize
	}
}

// WithUserAgent set the user agent used by the link.
func WithUserAgent(userAgent string) HTTPLinkOpt {
	return func(l *HTTPLink) {
		l.UserAgent = userAgent
	}
}

// WithHTTPClient sets the HTTP client used by the link.
func WithHTTPClient(client *http.Client) HTTPLinkOpt {
	return func(l *HTTPLink) {
		l.HTTPClient = client
	}
}

// Execute sends the operation in a new goroutine. Transport and decoding
// failures are delivered as network errors.
func (l *HTTPLink) Execute(ctx context.Context, op *Operation, observer Observer) {
	if op.Kind() == OperationKindSubscription {
		observer.Error(&ClientError{Message: "subscriptions are not supported over HTTP"})
		return
	}

	go func() {
		resp, err := l.request(ctx, op)
		if err != nil {
			observer.Error(NewNetworkError(err))
			return
		}
		observer.Next(resp)
		observer.Complete()
	}()
}

func (l *HTTPLink) request(ctx context.Context, op *Operation) (*graphql.Response, error) {
	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(op.Request())
	if err != nil {
		return nil, fmt.Errorf("unable to encode request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.URL, &buf)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}

	if op.Headers != nil {
		httpReq.Header = op.Headers.Clone()
	}

	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("Accept", "application/json; charset=utf-8")

	if l.UserAgent != "" {
		httpReq.Header.Set("User-Agent", l.UserAgent)
	}
	if op.ClientName != "" {
		httpReq.Header.Set(ClientNameHeader, op.ClientName)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	res, err := l.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error during request: %w", err)
	}
	defer res.Body.Close()

	maxResponseSize := l.MaxResponseSize
	if maxResponseSize == 0 {
		maxResponseSize = math.MaxInt64
	}

	limitReader := io.LimitedReader{
		R: res.Body,
		N: maxResponseSize,
	}

	var graphqlResponse *graphql.Response
	err = json.NewDecoder(&limitReader).Decode(&graphqlResponse)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			if limitReader.N == 0 {
				return nil, fmt.Errorf("response exceeded maximum size of %d bytes", maxResponseSize)
			}
		}
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	if res.StatusCode >= http.StatusBadRequest && (graphqlResponse == nil || len(graphqlResponse.Errors) == 0) {
		return nil, fmt.Errorf("unexpected status code %d", res.StatusCode)
	}

	return graphqlResponse, nil
}

// Client issues GraphQL operations through a link.
type Client struct {
	Link Link
	Name string
}

// NewClient creates a client named name sending operations through link.
func NewClient(link Link, name string) *Client {
	return &Client{
		Link: link,
		Name: name,
	}
}

// Execute builds the operation and starts it. Results are delivered to the
// observer.
func (c *Client) Execute(ctx context.Context, req *Request, observer Observer) (*Operation, error) {
	op, err := NewOperation(req, WithClientName(c.Name))
	if err != nil {
		return nil, err
	}
	c.Link.Execute(ctx, op, observer)
	return op, nil
}

func (c *Client) execute(ctx context.Context, req *Request, observer Observer, subscription bool) (*Operation, error) {
	op, err := NewOperation(req, WithClientName(c.Name))
	if err != nil {
		return nil, err
	}
	if subscription && op.Kind() != OperationKindSubscription {
		return nil, fmt.Errorf("operation %q is not a subscription, use Query", op.OperationName)
	}
	if !subscription && op.Kind() == OperationKindSubscription {
		return nil, fmt.Errorf("operation %q is a subscription, use Subscribe", op.OperationName)
	}
	c.Link.Execute(ctx, op, observer)
	return op, nil
}

// Query executes a query or mutation, waits for it to terminate and decodes
// the data into out. GraphQL errors are returned as a gqlerror.List after
// the data was decoded; client errors are returned as a *ClientError.
func (c *Client) Query(ctx context.Context, req *Request, out interface{}) error {
	rec := NewRecorder()
	if _, err := c.execute(ctx, req, rec, false); err != nil {
		return err
	}

	if err := rec.Wait(ctx); err != nil {
		return err
	}
	if err := rec.Err(); err != nil {
		return err
	}

	responses := rec.Responses()
	if len(responses) == 0 || responses[0] == nil {
		return nil
	}
	resp := responses[0]

	if len(resp.Data) > 0 && out != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("error decoding data: %w", err)
		}
	}
	if len(resp.Errors) > 0 {
		return resp.Errors
	}
	return nil
}

// Subscribe starts a subscription. The subscription must be closed once the
// caller is done with it.
func (c *Client) Subscribe(ctx context.Context, req *Request) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	rec := NewRecorder()
	op, err := c.execute(ctx, req, rec, true)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Subscription{
		Operation: op,
		recorder:  rec,
		cancel:    cancel,
	}, nil
}

// Subscription is a stream of results for one operation.
type Subscription struct {
	Operation *Operation

	recorder *Recorder
	cancel   context.CancelFunc
	next     int
}

// Next returns the next result. It returns io.EOF once the stream completed
// and the client error if the stream failed.
func (s *Subscription) Next(ctx context.Context) (*graphql.Response, error) {
	e, err := s.recorder.waitEvent(ctx, s.next)
	if err != nil {
		return nil, err
	}
	switch e.Type {
	case EventNext:
		s.next++
		return e.Response, nil
	case EventError:
		return nil, e.Err
	default:
		return nil, io.EOF
	}
}

// Close stops the subscription.
func (s *Subscription) Close() {
	s.cancel()
}
