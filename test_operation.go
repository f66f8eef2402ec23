package gqlmock

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// TestOperation is the handle a test uses to answer one intercepted
// operation. Results are forwarded synchronously to the operation's observer,
// in call order.
//
// Queries and mutations complete automatically after a successful flush.
// Subscriptions stay open until Complete is called or a failure is flushed.
type TestOperation struct {
	operation *Operation
	observer  Observer

	mutex  sync.Mutex
	closed bool
}

// NewTestOperation binds an operation to the observer that receives its
// results. The observer is not owned by the TestOperation.
func NewTestOperation(op *Operation, observer Observer) *TestOperation {
	return &TestOperation{
		operation: op,
		observer:  observer,
	}
}

// Operation returns the intercepted operation.
func (t *TestOperation) Operation() *Operation {
	return t.operation
}

// Closed reports whether the operation received a terminal signal.
func (t *TestOperation) Closed() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.closed
}

// Flush delivers a result to the observer. Flushing to a closed operation
// forwards nothing and returns ErrOperationClosed. The observer is called
// without holding the lock, so it may call back into the TestOperation.
func (t *TestOperation) Flush(result Result) error {
	switch r := result.(type) {
	case Failure:
		if r.Err == nil {
			return errors.New("failure without a client error")
		}
		if err := t.close(); err != nil {
			return err
		}
		t.observer.Error(r.Err)
	case Success:
		complete := t.operation.AutoCompletes()
		if err := t.transition(complete); err != nil {
			return err
		}
		t.observer.Next(copyResponse(r.Response))
		if complete {
			t.observer.Complete()
		}
	default:
		return fmt.Errorf("unsupported result type %T", result)
	}

	return nil
}

// transition checks that the operation is open and marks it closed when
// closing is set.
func (t *TestOperation) transition(closing bool) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.closed {
		return ErrOperationClosed
	}
	if closing {
		t.closed = true
	}
	return nil
}

func (t *TestOperation) close() error {
	return t.transition(true)
}

// FlushResponse delivers a response envelope. A nil response is forwarded
// unchanged.
func (t *TestOperation) FlushResponse(resp *graphql.Response) error {
	return t.Flush(Success{Response: resp})
}

// FlushData delivers a response carrying only data. The value is encoded to
// JSON unless it already is a json.RawMessage.
func (t *TestOperation) FlushData(data interface{}) error {
	raw, err := encodeData(data)
	if err != nil {
		return err
	}
	return t.Flush(Success{Response: &graphql.Response{Data: raw}})
}

// GraphQLErrors delivers a response carrying only errors, with no data.
func (t *TestOperation) GraphQLErrors(errs ...*gqlerror.Error) error {
	return t.Flush(Success{Response: &graphql.Response{Errors: gqlerror.List(errs)}})
}

// NetworkError terminates the operation with a transport failure.
func (t *TestOperation) NetworkError(err error) error {
	return t.Flush(Failure{Err: NewNetworkError(err)})
}

// Complete ends the result stream. It is mostly useful for subscriptions.
func (t *TestOperation) Complete() error {
	if err := t.close(); err != nil {
		return err
	}
	t.observer.Complete()
	return nil
}

func encodeData(data interface{}) (json.RawMessage, error) {
	if raw, ok := data.(json.RawMessage); ok {
		return raw, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("unable to encode data: %w", err)
	}
	return raw, nil
}
