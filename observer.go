package gqlmock

import (
	"context"
	"sync"

	"github.com/99designs/gqlgen/graphql"
)

// Observer receives the results of a single operation. Next may be called any
// number of times, followed by at most one call to either Error or Complete.
type Observer interface {
	Next(*graphql.Response)
	Error(error)
	Complete()
}

// ObserverFuncs implements Observer with optional callbacks.
type ObserverFuncs struct {
	NextFunc     func(*graphql.Response)
	ErrorFunc    func(error)
	CompleteFunc func()
}

func (o ObserverFuncs) Next(r *graphql.Response) {
	if o.NextFunc != nil {
		o.NextFunc(r)
	}
}

func (o ObserverFuncs) Error(err error) {
	if o.ErrorFunc != nil {
		o.ErrorFunc(err)
	}
}

func (o ObserverFuncs) Complete() {
	if o.CompleteFunc != nil {
		o.CompleteFunc()
	}
}

// EventType is the kind of a recorded observer event.
type EventType string

const (
	EventNext     EventType = "next"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is a single call recorded by a Recorder.
type Event struct {
	Type     EventType
	Response *graphql.Response
	Err      error
}

// Recorder is an Observer that records every call in order. It is safe for
// concurrent use.
type Recorder struct {
	mutex    sync.Mutex
	events   []Event
	notify   chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (r *Recorder) record(e Event) {
	r.mutex.Lock()
	r.events = append(r.events, e)
	r.mutex.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Recorder) Next(resp *graphql.Response) {
	r.record(Event{Type: EventNext, Response: resp})
}

func (r *Recorder) Error(err error) {
	r.record(Event{Type: EventError, Err: err})
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *Recorder) Complete() {
	r.record(Event{Type: EventComplete})
	r.doneOnce.Do(func() { close(r.done) })
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Event(nil), r.events...)
}

// Responses returns the responses received through Next, in order.
func (r *Recorder) Responses() []*graphql.Response {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var res []*graphql.Response
	for _, e := range r.events {
		if e.Type == EventNext {
			res = append(res, e.Response)
		}
	}
	return res
}

// Err returns the error received through Error, if any.
func (r *Recorder) Err() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, e := range r.events {
		if e.Type == EventError {
			return e.Err
		}
	}
	return nil
}

// Completed reports whether Complete was called.
func (r *Recorder) Completed() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, e := range r.events {
		if e.Type == EventComplete {
			return true
		}
	}
	return false
}

// Done is closed once a terminal event (error or complete) is recorded.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until a terminal event is recorded or the context ends.
func (r *Recorder) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitEvent blocks until at least n events were recorded and returns the n-th.
func (r *Recorder) waitEvent(ctx context.Context, n int) (Event, error) {
	for {
		r.mutex.Lock()
		if len(r.events) > n {
			e := r.events[n]
			r.mutex.Unlock()
			return e, nil
		}
		r.mutex.Unlock()

		select {
		case <-r.notify:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}
