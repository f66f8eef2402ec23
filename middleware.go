package gqlmock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

type middleware func(http.Handler) http.Handler

// monitoringMiddleware logs one event per request and records the HTTP
// metrics. Websocket connections are logged when they close.
func monitoringMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, event := startEvent(r.Context(), "request")
		defer event.finish()

		transport := transportHTTP
		if websocket.IsWebSocketUpgrade(r) {
			transport = transportWebsocket
		}
		event.addFields(EventFields{
			"request.method":    r.Method,
			"request.path":      r.URL.Path,
			"request.transport": transport,
		})
		if host := r.Header.Get("X-Forwarded-Host"); host != "" {
			event.addField("forwarded_host", host)
		}
		if client := r.Header.Get(ClientNameHeader); client != "" {
			event.addField("request.client-name", client)
		}

		var buf bytes.Buffer
		if transport == transportHTTP {
			if _, err := io.Copy(&buf, r.Body); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			r.Body = io.NopCloser(&buf)
			addRequestBody(event, r, buf)
		}

		m := httpsnoop.CaptureMetrics(h, w, r.WithContext(ctx))

		event.addFields(EventFields{
			"response.status": m.Code,
			"response.size":   m.Written,
		})

		promHTTPRequestCounter.With(prometheus.Labels{
			"code":      fmt.Sprintf("%dXX", m.Code/100),
			"transport": transport,
		}).Inc()
		promHTTPRequestSizes.With(prometheus.Labels{}).Observe(float64(buf.Len()))
		promHTTPResponseSizes.With(prometheus.Labels{}).Observe(float64(m.Written))
		promHTTPResponseDurations.With(prometheus.Labels{"transport": transport}).Observe(m.Duration.Seconds())
	})
}

const (
	transportHTTP      = "http"
	transportWebsocket = "websocket"
)

func addRequestBody(e *event, r *http.Request, buf bytes.Buffer) {
	if r.Method == http.MethodGet {
		e.addField("request.query", r.URL.Query().Get("query"))
		return
	}

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	e.addField("request.content-type", contentType)
	if contentType != "application/json" {
		e.addField("request.body", buf.String())
		return
	}

	var payload Request
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		e.addField("request.body", buf.String())
		e.addField("request.error", err)
		return
	}
	e.addFields(EventFields{
		"request.query":          payload.Query,
		"request.operation-name": payload.OperationName,
		"request.variables":      payload.Variables,
	})
}

func applyMiddleware(h http.Handler, mws ...middleware) http.Handler {
	for _, mw := range mws {
		h = mw(h)
	}
	return h
}
