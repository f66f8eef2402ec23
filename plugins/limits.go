package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/movio/gqlmock"
)

func init() {
	gqlmock.RegisterPlugin(&LimitsPlugin{})
}

// LimitsPlugin bounds the size of incoming requests and how long a request
// waits for its operation to be flushed.
type LimitsPlugin struct {
	gqlmock.BasePlugin
	config LimitsPluginConfig
}

type LimitsPluginConfig struct {
	MaxRequestBytes     int64  `json:"max-request-bytes"`
	MaxResponseTime     string `json:"max-response-time"`
	maxResponseDuration time.Duration
}

func NewLimitsPlugin(options LimitsPluginConfig) *LimitsPlugin {
	return &LimitsPlugin{gqlmock.BasePlugin{}, options}
}

func (p *LimitsPlugin) ID() string {
	return "limits"
}

func (p *LimitsPlugin) Configure(cfg *gqlmock.Config, data json.RawMessage) error {
	err := json.Unmarshal(data, &p.config)
	if err != nil {
		return err
	}

	if p.config.MaxRequestBytes == 0 {
		return fmt.Errorf("MaxRequestBytes is undefined")
	}

	if p.config.MaxResponseTime == "" {
		return fmt.Errorf("MaxResponseTime is undefined")
	}

	p.config.maxResponseDuration, err = time.ParseDuration(p.config.MaxResponseTime)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}

	return nil
}

func (p *LimitsPlugin) ApplyMiddlewarePublicMux(h http.Handler) http.Handler {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, p.config.MaxRequestBytes)
		// websocket connections outlive any single operation
		if p.config.maxResponseDuration > 0 && r.Header.Get("Upgrade") == "" {
			ctx, cancel := context.WithTimeout(r.Context(), p.config.maxResponseDuration)
			defer cancel()
			r = r.WithContext(ctx)
		}
		h.ServeHTTP(w, r)
	})
	return handler
}
