package plugins

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/99designs/gqlgen/graphql"
	"github.com/movio/gqlmock"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaders(t *testing.T) {
	p := NewHeadersPlugin(HeadersPluginConfig{
		AllowedHeaders: []string{"X-Fun-Header"},
	})

	t.Run("unknown header is not recorded", func(t *testing.T) {
		called := false
		handler := p.ApplyMiddlewarePublicMux(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			headers := gqlmock.GetOperationHeadersFromContext(r.Context())
			assert.Empty(t, headers.Get("X-Bad-Header"))
		}))
		req := httptest.NewRequest(http.MethodPost, "/query", nil)
		req.Header.Add("X-Bad-Header", "bad")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.True(t, called)
	})
	t.Run("allowed header is recorded", func(t *testing.T) {
		called := false
		handler := p.ApplyMiddlewarePublicMux(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			headers := gqlmock.GetOperationHeadersFromContext(r.Context())
			assert.Equal(t, headers.Get("X-Fun-Header"), "funtime")
		}))
		req := httptest.NewRequest(http.MethodPost, "/query", nil)
		req.Header.Add("X-Fun-Header", "funtime")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.True(t, called)
	})
	t.Run("record all headers but the ignored ones", func(t *testing.T) {
		p := NewHeadersPlugin(HeadersPluginConfig{
			RecordAll:      true,
			IgnoredHeaders: []string{"authorization"},
		})
		called := false
		handler := p.ApplyMiddlewarePublicMux(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			headers := gqlmock.GetOperationHeadersFromContext(r.Context())
			assert.Equal(t, []string{"a", "b"}, headers.Values("X-Multi"))
			assert.Empty(t, headers.Get("Authorization"))
		}))
		req := httptest.NewRequest(http.MethodPost, "/query", nil)
		req.Header.Add("X-Multi", "a")
		req.Header.Add("X-Multi", "b")
		req.Header.Add("Authorization", "Bearer secret")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.True(t, called)
	})
}

func TestHeadersLoggedOnInterception(t *testing.T) {
	var buf bytes.Buffer
	prevOutput, prevFormatter, prevLevel := log.StandardLogger().Out, log.StandardLogger().Formatter, log.GetLevel()
	log.SetOutput(&buf)
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)
	defer func() {
		log.SetOutput(prevOutput)
		log.SetFormatter(prevFormatter)
		log.SetLevel(prevLevel)
	}()

	p := NewHeadersPlugin(HeadersPluginConfig{
		AllowedHeaders: []string{"X-Fun-Header", "X-Tenant"},
	})
	backend := gqlmock.NewBackend(
		gqlmock.WithPlugins(p),
		gqlmock.WithFixtures(&gqlmock.Fixture{
			Responses: []*graphql.Response{{Data: json.RawMessage(`{"heroes": []}`)}},
		}),
	)
	router := gqlmock.NewServer(backend, []gqlmock.Plugin{p}).Router()

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query": "{ heroes { name } }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant", "rebels")
	req.Header.Set("X-Fun-Header", "funtime")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var event map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var e map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		if e["msg"] == "request" {
			event = e
		}
	}
	require.NotNil(t, event)
	assert.Equal(t, []interface{}{[]interface{}{"X-Fun-Header", "X-Tenant"}}, event["recorded-headers"])
}
