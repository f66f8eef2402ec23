package plugins

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/movio/gqlmock"
)

func init() {
	gqlmock.RegisterPlugin(&HeadersPlugin{})
}

// HeadersPlugin records the allowed request headers on intercepted
// operations.
type HeadersPlugin struct {
	gqlmock.BasePlugin
	config HeadersPluginConfig
}

type HeadersPluginConfig struct {
	AllowedHeaders []string `json:"allowed-headers"`
	// RecordAll records every request header except the ones in
	// IgnoredHeaders.
	RecordAll      bool     `json:"record-all"`
	IgnoredHeaders []string `json:"ignored-headers"`
}

func NewHeadersPlugin(options HeadersPluginConfig) *HeadersPlugin {
	return &HeadersPlugin{gqlmock.BasePlugin{}, options}
}

func (p *HeadersPlugin) ID() string {
	return "headers"
}

func (p *HeadersPlugin) Configure(cfg *gqlmock.Config, data json.RawMessage) error {
	return json.Unmarshal(data, &p.config)
}

func (p *HeadersPlugin) recorded(header string) bool {
	if !p.config.RecordAll {
		return false
	}
	for _, ignored := range p.config.IgnoredHeaders {
		if http.CanonicalHeaderKey(ignored) == header {
			return false
		}
	}
	return true
}

func (p *HeadersPlugin) middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if p.config.RecordAll {
			for header, values := range r.Header {
				if !p.recorded(header) {
					continue
				}
				for _, value := range values {
					ctx = gqlmock.AddOperationHeaderToContext(ctx, header, value)
				}
			}
		} else {
			for _, header := range p.config.AllowedHeaders {
				if value := r.Header.Get(header); value != "" {
					ctx = gqlmock.AddOperationHeaderToContext(ctx, header, value)
				}
			}
		}
		h.ServeHTTP(rw, r.WithContext(ctx))
	})
}

func (p *HeadersPlugin) ApplyMiddlewarePublicMux(h http.Handler) http.Handler {
	return p.middleware(h)
}

// InterceptOperation lists the headers recorded on the operation in the
// request log, since they are what header matchers see.
func (p *HeadersPlugin) InterceptOperation(ctx context.Context, op *gqlmock.Operation) {
	if len(op.Headers) == 0 {
		return
	}
	names := make([]string, 0, len(op.Headers))
	for name := range op.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	gqlmock.AppendField(ctx, "recorded-headers", names)
}
