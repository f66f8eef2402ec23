package gqlmock

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

const (
	allHeroesQuery = `query allHeroes { heroes { name } }`
	newHeroesQuery = `subscription newHeroes { heroes { name } }`
)

func newTestOperation(t *testing.T, query string) (*TestOperation, *Recorder) {
	t.Helper()
	op, err := NewOperation(NewRequest(query))
	require.NoError(t, err)
	rec := NewRecorder()
	return NewTestOperation(op, rec), rec
}

func eventTypes(events []Event) []EventType {
	var types []EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestTestOperationQuery(t *testing.T) {
	t.Run("flushData completes a query", func(t *testing.T) {
		op, rec := newTestOperation(t, allHeroesQuery)

		require.NoError(t, op.FlushData(map[string]interface{}{"heroes": []string{}}))

		events := rec.Events()
		assert.Equal(t, []EventType{EventNext, EventComplete}, eventTypes(events))
		assert.JSONEq(t, `{"heroes": []}`, string(events[0].Response.Data))
		assert.Empty(t, events[0].Response.Errors)
		assert.True(t, op.Closed())
	})

	t.Run("mutations complete too", func(t *testing.T) {
		op, rec := newTestOperation(t, `mutation addHero { addHero(name: "Rey") { name } }`)

		require.NoError(t, op.FlushData(json.RawMessage(`{"addHero": {"name": "Rey"}}`)))

		assert.Equal(t, []EventType{EventNext, EventComplete}, eventTypes(rec.Events()))
		assert.Equal(t, `{"addHero": {"name": "Rey"}}`, string(rec.Responses()[0].Data))
	})

	t.Run("calls after completion are rejected", func(t *testing.T) {
		op, rec := newTestOperation(t, allHeroesQuery)
		require.NoError(t, op.FlushData(map[string]interface{}{"heroes": []string{}}))

		assert.ErrorIs(t, op.FlushData(map[string]interface{}{"heroes": []string{}}), ErrOperationClosed)
		assert.ErrorIs(t, op.Complete(), ErrOperationClosed)
		assert.ErrorIs(t, op.NetworkError(errors.New("boom")), ErrOperationClosed)
		assert.ErrorIs(t, op.GraphQLErrors(gqlerror.Errorf("boom")), ErrOperationClosed)
		assert.Len(t, rec.Events(), 2)
	})

	t.Run("flushing a nil response forwards nil", func(t *testing.T) {
		op, rec := newTestOperation(t, allHeroesQuery)

		require.NoError(t, op.Flush(Success{Response: nil}))

		events := rec.Events()
		assert.Equal(t, []EventType{EventNext, EventComplete}, eventTypes(events))
		assert.Nil(t, events[0].Response)
	})

	t.Run("flushed response is copied", func(t *testing.T) {
		op, rec := newTestOperation(t, allHeroesQuery)
		resp := &graphql.Response{Data: json.RawMessage(`{"heroes": []}`)}

		require.NoError(t, op.FlushResponse(resp))

		received := rec.Responses()[0]
		assert.NotSame(t, resp, received)
		assert.Equal(t, resp, received)
	})

	t.Run("graphql errors are delivered as a response without data", func(t *testing.T) {
		op, rec := newTestOperation(t, allHeroesQuery)
		err1 := gqlerror.Errorf("first")
		err2 := &gqlerror.Error{Message: "second", Path: ast.Path{ast.PathName("heroes"), ast.PathIndex(0)}}

		require.NoError(t, op.GraphQLErrors(err1, err2))

		events := rec.Events()
		assert.Equal(t, []EventType{EventNext, EventComplete}, eventTypes(events))
		assert.Nil(t, events[0].Response.Data)
		assert.Equal(t, gqlerror.List{err1, err2}, events[0].Response.Errors)
		assert.NoError(t, rec.Err())
	})

	t.Run("network error fails the operation", func(t *testing.T) {
		op, rec := newTestOperation(t, allHeroesQuery)
		cause := errors.New("connection refused")

		require.NoError(t, op.NetworkError(cause))

		events := rec.Events()
		assert.Equal(t, []EventType{EventError}, eventTypes(events))
		var clientErr *ClientError
		require.ErrorAs(t, events[0].Err, &clientErr)
		assert.Same(t, cause, clientErr.NetworkError)
		assert.ErrorIs(t, events[0].Err, cause)
		assert.True(t, clientErr.IsNetworkError())
		assert.Empty(t, rec.Responses())
		assert.False(t, rec.Completed())
	})

	t.Run("failure with graphql errors", func(t *testing.T) {
		op, rec := newTestOperation(t, allHeroesQuery)
		clientErr := &ClientError{GraphQLErrors: gqlerror.List{gqlerror.Errorf("unauthorized")}}

		require.NoError(t, op.Flush(Failure{Err: clientErr}))

		assert.Equal(t, []EventType{EventError}, eventTypes(rec.Events()))
		assert.Equal(t, "unauthorized", rec.Err().Error())
		assert.True(t, op.Closed())
	})

	t.Run("unencodable data", func(t *testing.T) {
		op, rec := newTestOperation(t, allHeroesQuery)

		err := op.FlushData(map[string]interface{}{"fn": func() {}})

		assert.ErrorContains(t, err, "unable to encode data")
		assert.Empty(t, rec.Events())
		assert.False(t, op.Closed())
	})
}

func TestTestOperationSubscription(t *testing.T) {
	t.Run("subscriptions are not auto completed", func(t *testing.T) {
		op, rec := newTestOperation(t, newHeroesQuery)

		require.NoError(t, op.FlushData(map[string]interface{}{"heroes": []string{"first Hero"}}))
		require.NoError(t, op.FlushData(map[string]interface{}{"heroes": []string{"second Hero"}}))

		assert.Equal(t, []EventType{EventNext, EventNext}, eventTypes(rec.Events()))
		assert.False(t, op.Closed())

		require.NoError(t, op.Complete())

		events := rec.Events()
		assert.Equal(t, []EventType{EventNext, EventNext, EventComplete}, eventTypes(events))
		assert.JSONEq(t, `{"heroes": ["first Hero"]}`, string(events[0].Response.Data))
		assert.JSONEq(t, `{"heroes": ["second Hero"]}`, string(events[1].Response.Data))
		assert.ErrorIs(t, op.Complete(), ErrOperationClosed)
	})

	t.Run("graphql errors keep the subscription open", func(t *testing.T) {
		op, rec := newTestOperation(t, newHeroesQuery)

		require.NoError(t, op.GraphQLErrors(gqlerror.Errorf("partial failure")))
		require.NoError(t, op.FlushData(map[string]interface{}{"heroes": []string{}}))

		assert.Equal(t, []EventType{EventNext, EventNext}, eventTypes(rec.Events()))
		assert.False(t, op.Closed())
	})

	t.Run("network error ends the subscription", func(t *testing.T) {
		op, rec := newTestOperation(t, newHeroesQuery)

		require.NoError(t, op.FlushData(map[string]interface{}{"heroes": []string{}}))
		require.NoError(t, op.NetworkError(errors.New("socket closed")))

		assert.Equal(t, []EventType{EventNext, EventError}, eventTypes(rec.Events()))
		assert.ErrorIs(t, op.FlushData(map[string]interface{}{}), ErrOperationClosed)
	})
}

func TestTestOperationFragmentDocument(t *testing.T) {
	op, rec := newTestOperation(t, `fragment HeroName on Hero { name }`)

	require.NoError(t, op.FlushData(map[string]interface{}{"name": "Han"}))

	assert.Equal(t, []EventType{EventNext}, eventTypes(rec.Events()))
	assert.False(t, op.Closed())
}

func TestTestOperationObserverFuncs(t *testing.T) {
	var calls []string
	op, err := NewOperation(NewRequest(allHeroesQuery))
	require.NoError(t, err)

	testOp := NewTestOperation(op, ObserverFuncs{
		NextFunc:     func(*graphql.Response) { calls = append(calls, "next") },
		CompleteFunc: func() { calls = append(calls, "complete") },
	})

	require.NoError(t, testOp.FlushData(nil))
	assert.Equal(t, []string{"next", "complete"}, calls)
	assert.Same(t, op, testOp.Operation())
}

type unknownResult struct{ Success }

func TestTestOperationUnknownResult(t *testing.T) {
	op, rec := newTestOperation(t, allHeroesQuery)

	err := op.Flush(unknownResult{})

	assert.ErrorContains(t, err, "unsupported result type")
	assert.Empty(t, rec.Events())
}

func TestTestOperationReentrantObserver(t *testing.T) {
	t.Run("subscription completed from next", func(t *testing.T) {
		op, err := NewOperation(NewRequest(newHeroesQuery))
		require.NoError(t, err)

		var calls []string
		var completeErr error
		var testOp *TestOperation
		testOp = NewTestOperation(op, ObserverFuncs{
			NextFunc: func(*graphql.Response) {
				calls = append(calls, "next")
				assert.False(t, testOp.Closed())
				completeErr = testOp.Complete()
			},
			CompleteFunc: func() { calls = append(calls, "complete") },
		})

		done := make(chan error, 1)
		go func() { done <- testOp.FlushData(map[string]interface{}{"heroes": []string{"Rey"}}) }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("flush did not return")
		}
		require.NoError(t, completeErr)
		assert.Equal(t, []string{"next", "complete"}, calls)
		assert.True(t, testOp.Closed())
		assert.ErrorIs(t, testOp.Complete(), ErrOperationClosed)
	})

	t.Run("query flushed again from next", func(t *testing.T) {
		op, err := NewOperation(NewRequest(allHeroesQuery))
		require.NoError(t, err)

		var flushErr error
		var testOp *TestOperation
		testOp = NewTestOperation(op, ObserverFuncs{
			NextFunc: func(*graphql.Response) {
				assert.True(t, testOp.Closed())
				flushErr = testOp.FlushData(nil)
			},
		})

		require.NoError(t, testOp.FlushData(nil))
		assert.ErrorIs(t, flushErr, ErrOperationClosed)
	})
}

func TestTestOperationFailureWithoutClientError(t *testing.T) {
	op, rec := newTestOperation(t, allHeroesQuery)

	err := op.Flush(Failure{})

	assert.ErrorContains(t, err, "failure without a client error")
	assert.Empty(t, rec.Events())
	assert.False(t, op.Closed())
}
