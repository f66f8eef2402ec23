package plugins

import (
	"net/http"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/movio/gqlmock"
)

// RequestIDHeader is the header carrying the request identifier. It is also
// used as the identifier of the operation created for the request.
const RequestIDHeader = "X-Request-Id"

func init() {
	gqlmock.RegisterPlugin(&RequestIdentifierPlugin{})
}

type RequestIdentifierPlugin struct {
	gqlmock.BasePlugin
}

func (p *RequestIdentifierPlugin) ID() string {
	return "request-id"
}

func (p *RequestIdentifierPlugin) middleware(h http.Handler) http.HandlerFunc {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)

		ctx := r.Context()
		if strings.TrimSpace(requestID) == "" {
			requestID = uuid.Must(uuid.NewV4()).String()
		} else if id, err := uuid.FromString(requestID); err == nil {
			requestID = id.String()
		}
		gqlmock.AddField(ctx, "request.id", requestID)
		rw.Header().Set(RequestIDHeader, requestID)

		ctx = gqlmock.AddOperationIDToContext(ctx, requestID)
		ctx = gqlmock.AddOperationHeaderToContext(ctx, RequestIDHeader, requestID)
		h.ServeHTTP(rw, r.WithContext(ctx))
	})
}

func (p *RequestIdentifierPlugin) ApplyMiddlewarePublicMux(h http.Handler) http.Handler {
	return p.middleware(h)
}
