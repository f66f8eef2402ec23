package gqlmock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/99designs/gqlgen/graphql"
	log "github.com/sirupsen/logrus"
)

// Fixture is a canned answer applied to matching operations as soon as they
// are intercepted. Empty match fields match everything.
type Fixture struct {
	OperationName string              `json:"operation-name"`
	ClientName    string              `json:"client-name"`
	Query         string              `json:"query"`
	Responses     []*graphql.Response `json:"responses"`
	NetworkError  string              `json:"network-error"`
	// Complete ends subscriptions after the responses. Queries and mutations
	// complete on their own.
	Complete bool `json:"complete"`

	once    sync.Once
	matcher Matcher
}

// Name returns a human readable description of the fixture.
func (f *Fixture) Name() string {
	return f.getMatcher().String()
}

func (f *Fixture) getMatcher() Matcher {
	f.once.Do(func() {
		var matchers []Matcher
		if f.OperationName != "" {
			matchers = append(matchers, MatchOperationName(f.OperationName))
		}
		if f.ClientName != "" {
			matchers = append(matchers, MatchClient(f.ClientName))
		}
		if f.Query != "" {
			matchers = append(matchers, MatchQuery(f.Query))
		}
		if len(matchers) == 0 {
			f.matcher = MatchFunc("any operation", func(*Operation) bool { return true })
			return
		}
		f.matcher = MatchAll(matchers...)
	})
	return f.matcher
}

// Match reports whether the fixture answers the operation.
func (f *Fixture) Match(op *Operation) bool {
	return f.getMatcher().Match(op)
}

// Apply flushes the fixture's outcome to the operation.
func (f *Fixture) Apply(op *TestOperation) {
	for _, resp := range f.Responses {
		if err := op.FlushResponse(resp); err != nil {
			log.WithError(err).WithField("fixture", f.Name()).Warn("fixture has more responses than the operation accepts")
			return
		}
	}

	if f.NetworkError != "" {
		_ = op.NetworkError(errors.New(f.NetworkError))
		return
	}

	if f.Complete && !op.Closed() {
		_ = op.Complete()
	}
}

// Validate checks that the fixture can be applied.
func (f *Fixture) Validate() error {
	if len(f.Responses) == 0 && f.NetworkError == "" && !f.Complete {
		return fmt.Errorf("fixture %s has no outcome", f.Name())
	}
	return nil
}

// LoadFixtures reads a JSON array of fixtures from a file.
func LoadFixtures(path string) ([]*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var fixtures []*Fixture
	if err := json.NewDecoder(f).Decode(&fixtures); err != nil {
		return nil, fmt.Errorf("error decoding fixtures file %q: %w", path, err)
	}
	for _, fixture := range fixtures {
		if err := fixture.Validate(); err != nil {
			return nil, fmt.Errorf("invalid fixture in %q: %w", path, err)
		}
	}
	return fixtures, nil
}
