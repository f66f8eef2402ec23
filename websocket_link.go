package gqlmock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// WebsocketLink executes operations over the graphql-transport-ws protocol,
// one connection per operation.
type WebsocketLink struct {
	URL               string
	Dialer            *websocket.Dialer
	ConnectionParams  map[string]interface{}
	AckTimeout        time.Duration
	MaxResponseSize   int64
	AdditionalHeaders http.Header
}

// NewWebsocketLink creates a link connecting to url, which must use the ws or
// wss scheme. http and https URLs are converted.
func NewWebsocketLink(url string) *WebsocketLink {
	url = strings.Replace(url, "http://", "ws://", 1)
	url = strings.Replace(url, "https://", "wss://", 1)
	return &WebsocketLink{
		URL: url,
		Dialer: &websocket.Dialer{
			Subprotocols:     []string{graphqlTransportWSProtocol},
			HandshakeTimeout: 5 * time.Second,
		},
		AckTimeout:      5 * time.Second,
		MaxResponseSize: 1024 * 1024,
	}
}

type wsClientConn struct {
	conn       *websocket.Conn
	writeMutex sync.Mutex
}

func (c *wsClientConn) send(msg wsMessage) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	return c.conn.WriteJSON(msg)
}

// Execute dials the server in a new goroutine and streams results to the
// observer. Cancelling the context stops the operation without notifying the
// observer.
func (l *WebsocketLink) Execute(ctx context.Context, op *Operation, observer Observer) {
	go func() {
		if err := l.run(ctx, op, observer); err != nil && ctx.Err() == nil {
			observer.Error(err)
		}
	}()
}

func (l *WebsocketLink) run(ctx context.Context, op *Operation, observer Observer) error {
	header := l.AdditionalHeaders.Clone()
	if header == nil {
		header = http.Header{}
	}
	if op.ClientName != "" {
		header.Set(ClientNameHeader, op.ClientName)
	}

	ws, _, err := l.Dialer.DialContext(ctx, l.URL, header)
	if err != nil {
		return NewNetworkError(fmt.Errorf("unable to connect: %w", err))
	}
	if l.MaxResponseSize > 0 {
		ws.SetReadLimit(l.MaxResponseSize)
	}
	conn := &wsClientConn{conn: ws}
	defer ws.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.send(wsMessage{ID: op.ID, Type: wsComplete})
			ws.Close()
		case <-done:
		}
	}()

	initPayload, err := json.Marshal(l.ConnectionParams)
	if err != nil {
		return fmt.Errorf("unable to encode connection params: %w", err)
	}
	if err := conn.send(wsMessage{Type: wsConnectionInit, Payload: initPayload}); err != nil {
		return NewNetworkError(err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(l.AckTimeout))
	var ack wsMessage
	if err := ws.ReadJSON(&ack); err != nil {
		return NewNetworkError(fmt.Errorf("waiting for connection ack: %w", err))
	}
	if ack.Type != wsConnectionAck {
		return NewNetworkError(fmt.Errorf("unexpected message %q while waiting for connection ack", ack.Type))
	}
	_ = ws.SetReadDeadline(time.Time{})

	payload, err := json.Marshal(op.Request())
	if err != nil {
		return fmt.Errorf("unable to encode request: %w", err)
	}
	if err := conn.send(wsMessage{ID: op.ID, Type: wsSubscribe, Payload: payload}); err != nil {
		return NewNetworkError(err)
	}

	for {
		var msg wsMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return NewNetworkError(err)
		}

		switch msg.Type {
		case wsNext:
			var resp *graphql.Response
			if err := json.Unmarshal(msg.Payload, &resp); err != nil {
				return NewNetworkError(fmt.Errorf("error decoding response: %w", err))
			}
			observer.Next(resp)
		case wsError:
			var errs gqlerror.List
			if err := json.Unmarshal(msg.Payload, &errs); err != nil {
				return NewNetworkError(fmt.Errorf("error decoding errors: %w", err))
			}
			observer.Error(&ClientError{GraphQLErrors: errs})
			return nil
		case wsComplete:
			observer.Complete()
			return nil
		case wsPing:
			if err := conn.send(wsMessage{Type: wsPong}); err != nil {
				return NewNetworkError(err)
			}
		case wsPong:
		default:
			log.WithField("type", msg.Type).Debug("ignoring unexpected websocket message")
		}
	}
}
