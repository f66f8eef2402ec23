package plugins

import (
	"net/http"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/movio/gqlmock"
)

func init() {
	gqlmock.RegisterPlugin(&PlaygroundPlugin{})
}

// PlaygroundPlugin serves a GraphQL playground for the control API. It needs
// the control plugin to be enabled.
type PlaygroundPlugin struct {
	gqlmock.BasePlugin
}

func (p *PlaygroundPlugin) ID() string {
	return "playground"
}

func (p *PlaygroundPlugin) SetupPrivateMux(mux *http.ServeMux) {
	mux.HandleFunc("/playground", playground.Handler("gqlmock control", ControlPath))
}
