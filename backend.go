package gqlmock

import (
	"context"
	"strings"
	"sync"

	"github.com/99designs/gqlgen/graphql"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TB is the subset of testing.TB used by the backend assertions.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Backend intercepts operations executed through it and keeps them open until
// the test flushes a result, unless a fixture answers them first.
type Backend struct {
	mutex    sync.Mutex
	open     []*TestOperation
	fixtures []*Fixture
	plugins  []Plugin
	tracer   trace.Tracer
}

// BackendOpt is a function used to set a backend option
type BackendOpt func(*Backend)

// WithFixtures registers canned responses applied on interception.
func WithFixtures(fixtures ...*Fixture) BackendOpt {
	return func(b *Backend) {
		b.fixtures = append(b.fixtures, fixtures...)
	}
}

// WithPlugins sets the plugins notified of every intercepted operation.
func WithPlugins(plugins ...Plugin) BackendOpt {
	return func(b *Backend) {
		b.plugins = plugins
	}
}

// WithTracerProvider sets the provider of the spans recorded for intercepted
// operations. The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) BackendOpt {
	return func(b *Backend) {
		b.tracer = tp.Tracer(instrumentationName)
	}
}

// NewBackend returns an empty backend.
func NewBackend(opts ...BackendOpt) *Backend {
	b := &Backend{
		tracer: otel.GetTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetFixtures replaces the registered fixtures.
func (b *Backend) SetFixtures(fixtures []*Fixture) {
	b.mutex.Lock()
	b.fixtures = fixtures
	b.mutex.Unlock()
}

// Execute intercepts the operation. It never blocks: results reach the
// observer when the test, or a fixture, flushes them. The operation is
// discarded if the context ends before it is closed.
func (b *Backend) Execute(ctx context.Context, op *Operation, observer Observer) {
	ctx, span := b.tracer.Start(ctx, "Intercepted GraphQL Operation",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.GraphqlOperationTypeKey.String(string(op.Type())),
			semconv.GraphqlOperationName(op.OperationName),
			semconv.GraphqlDocument(op.Query),
			attribute.String("graphql.client.name", op.ClientName),
			attribute.String("gqlmock.operation.id", op.ID),
		),
	)

	for _, plugin := range b.plugins {
		plugin.InterceptOperation(ctx, op)
	}

	AppendField(ctx, "operations", EventFields{
		"id":     op.ID,
		"name":   op.OperationName,
		"kind":   op.Kind().String(),
		"client": op.ClientName,
	})
	promOperationsIntercepted.WithLabelValues(op.Kind().String()).Inc()

	// the span ends on the terminal signal or on cancellation, whichever
	// comes first
	var endOnce sync.Once
	endSpan := func(code codes.Code, description string) {
		endOnce.Do(func() {
			span.SetStatus(code, description)
			span.End()
		})
	}

	done := make(chan struct{})
	var testOp *TestOperation
	testOp = NewTestOperation(op, &instrumentedObserver{
		Observer: observer,
		onNext: func(resp *graphql.Response) {
			outcome := "data"
			if resp != nil && len(resp.Errors) > 0 {
				outcome = "errors"
				span.AddEvent("graphql errors", trace.WithAttributes(
					attribute.Int("graphql.errors", len(resp.Errors)),
				))
			}
			promOperationsFlushed.WithLabelValues(outcome).Inc()
		},
		onTerminal: func(err error) {
			outcome := "complete"
			code, description := codes.Ok, ""
			if err != nil {
				outcome = "error"
				span.RecordError(err)
				code, description = codes.Error, err.Error()
			}
			promOperationsFlushed.WithLabelValues(outcome).Inc()
			endSpan(code, description)
			b.remove(testOp)
			close(done)
		},
	})

	if fixture := b.findFixture(op); fixture != nil {
		log.WithFields(log.Fields{
			"operation": op.OperationName,
			"fixture":   fixture.Name(),
		}).Debug("answering operation with fixture")
		fixture.Apply(testOp)
	}

	if testOp.Closed() {
		return
	}

	b.mutex.Lock()
	b.open = append(b.open, testOp)
	promOpenOperations.Inc()
	b.mutex.Unlock()

	if ctx.Done() != nil {
		go func() {
			select {
			case <-done:
			case <-ctx.Done():
				if b.remove(testOp) {
					log.WithField("operation", op.OperationName).Debug("operation discarded before being flushed")
				}
				// matched operations are no longer in the open set
				if !testOp.Closed() {
					endSpan(codes.Error, "cancelled")
				}
			}
		}()
	}
}

func (b *Backend) findFixture(op *Operation) *Fixture {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, f := range b.fixtures {
		if f.Match(op) {
			return f
		}
	}
	return nil
}

// remove drops the operation from the open set and reports whether it was
// still there.
func (b *Backend) remove(op *TestOperation) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for i, o := range b.open {
		if o == op {
			b.open = append(b.open[:i], b.open[i+1:]...)
			promOpenOperations.Dec()
			return true
		}
	}
	return false
}

// Match removes and returns every open operation accepted by the matcher.
func (b *Backend) Match(m Matcher) []*TestOperation {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var matched, remaining []*TestOperation
	for _, op := range b.open {
		if m.Match(op.Operation()) {
			matched = append(matched, op)
		} else {
			remaining = append(remaining, op)
		}
	}
	b.open = remaining
	promOpenOperations.Sub(float64(len(matched)))
	return matched
}

// ExpectOne asserts that exactly one open operation matches and returns it.
func (b *Backend) ExpectOne(t TB, m Matcher) *TestOperation {
	t.Helper()
	matched := b.Match(m)
	if len(matched) != 1 {
		t.Fatalf("expected one open operation matching %s, found %d", m, len(matched))
		return nil
	}
	return matched[0]
}

// ExpectNone asserts that no open operation matches.
func (b *Backend) ExpectNone(t TB, m Matcher) {
	t.Helper()
	if matched := b.Match(m); len(matched) > 0 {
		t.Errorf("expected no open operation matching %s, found %d", m, len(matched))
	}
}

// Verify asserts that every intercepted operation was matched or closed.
func (b *Backend) Verify(t TB) {
	t.Helper()
	open := b.Open()
	if len(open) == 0 {
		return
	}
	var names []string
	for _, op := range open {
		name := op.Operation().OperationName
		if name == "" {
			name = "(anonymous)"
		}
		names = append(names, name)
	}
	t.Errorf("expected no open operations, found %d: %s", len(open), strings.Join(names, ", "))
}

// Open returns the operations that are still waiting for a result.
func (b *Backend) Open() []*TestOperation {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([]*TestOperation(nil), b.open...)
}

// Lookup returns the open operation with the given ID without removing it.
func (b *Backend) Lookup(id string) (*TestOperation, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, op := range b.open {
		if op.Operation().ID == id {
			return op, true
		}
	}
	return nil, false
}

type instrumentedObserver struct {
	Observer
	onNext     func(*graphql.Response)
	onTerminal func(error)
}

func (o *instrumentedObserver) Next(resp *graphql.Response) {
	o.onNext(resp)
	o.Observer.Next(resp)
}

func (o *instrumentedObserver) Error(err error) {
	o.onTerminal(err)
	o.Observer.Error(err)
}

func (o *instrumentedObserver) Complete() {
	o.onTerminal(nil)
	o.Observer.Complete()
}
