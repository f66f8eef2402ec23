package plugins

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/movio/gqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminUI(t *testing.T) {
	plugin := &AdminUIPlugin{}
	backend := gqlmock.NewBackend()
	plugin.Init(backend)
	m := http.NewServeMux()
	plugin.SetupPrivateMux(m)

	op, err := gqlmock.NewOperation(gqlmock.NewRequest(`subscription OnReview { reviewAdded { stars } }`))
	require.NoError(t, err)
	backend.Execute(context.Background(), op, gqlmock.NewRecorder())

	t.Run("lists open operations", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		rr := httptest.NewRecorder()
		m.ServeHTTP(rr, req)

		assert.Contains(t, rr.Body.String(), "OnReview")
		assert.Contains(t, rr.Body.String(), "kind-subscription")
	})

	t.Run("test valid query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Form = url.Values{
			"query": []string{`query Hero { hero { name } }`},
		}
		rr := httptest.NewRecorder()
		m.ServeHTTP(rr, req)

		assert.Contains(t, rr.Body.String(), "Query parsed successfully (other operation)")
	})

	t.Run("escapes queries", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Form = url.Values{
			"query": []string{`query Hero { hero(name: "<script>") { name } }`},
		}
		rr := httptest.NewRecorder()
		m.ServeHTTP(rr, req)

		assert.NotContains(t, rr.Body.String(), "<script>")
		assert.Contains(t, rr.Body.String(), "&lt;script&gt;")
	})

	t.Run("test invalid query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Form = url.Values{
			"query": []string{`query { hero `},
		}
		rr := httptest.NewRecorder()
		m.ServeHTTP(rr, req)

		assert.NotContains(t, rr.Body.String(), "Query parsed successfully")
		assert.Contains(t, rr.Body.String(), "unable to parse query")
	})
}
