package gqlmock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const graphqlTransportWSProtocol = "graphql-transport-ws"

// graphql-transport-ws message types
const (
	wsConnectionInit = "connection_init"
	wsConnectionAck  = "connection_ack"
	wsPing           = "ping"
	wsPong           = "pong"
	wsSubscribe      = "subscribe"
	wsNext           = "next"
	wsError          = "error"
	wsComplete       = "complete"
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsServerConn struct {
	conn       *websocket.Conn
	writeMutex sync.Mutex

	subsMutex     sync.Mutex
	subscriptions map[string]context.CancelFunc
}

func (c *wsServerConn) send(msg wsMessage) {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		log.WithError(err).Debug("error writing websocket message")
	}
}

func (c *wsServerConn) sendPayload(id, typ string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("error encoding websocket payload")
		return
	}
	c.send(wsMessage{ID: id, Type: typ, Payload: raw})
}

func (c *wsServerConn) stop(id string) {
	c.subsMutex.Lock()
	defer c.subsMutex.Unlock()
	if cancel, ok := c.subscriptions[id]; ok {
		cancel()
		delete(c.subscriptions, id)
	}
}

func (c *wsServerConn) stopAll() {
	c.subsMutex.Lock()
	defer c.subsMutex.Unlock()
	for id, cancel := range c.subscriptions {
		cancel()
		delete(c.subscriptions, id)
	}
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Info("websocket upgrade failed")
		return
	}
	defer ws.Close()

	conn := &wsServerConn{
		conn:          ws,
		subscriptions: map[string]context.CancelFunc{},
	}
	defer conn.stopAll()

	initialized := false
	for {
		var msg wsMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case wsConnectionInit:
			initialized = true
			conn.send(wsMessage{Type: wsConnectionAck})
		case wsPing:
			conn.send(wsMessage{Type: wsPong})
		case wsPong:
		case wsSubscribe:
			if !initialized {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(4401, "Unauthorized"), time.Now().Add(time.Second))
				return
			}
			s.startWebsocketOperation(r, conn, msg)
		case wsComplete:
			conn.stop(msg.ID)
		default:
			log.WithField("type", msg.Type).Debug("ignoring unexpected websocket message")
		}
	}
}

func (s *Server) startWebsocketOperation(r *http.Request, conn *wsServerConn, msg wsMessage) {
	var req Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		conn.sendPayload(msg.ID, wsError, clientErrorList(&ClientError{Message: "error decoding subscribe payload"}))
		return
	}

	// a connection carries many operations, the subscription id keeps them apart
	var opID string
	if connID := GetOperationIDFromContext(r.Context()); connID != "" {
		opID = connID + ":" + msg.ID
	}
	op, err := s.newOperation(r, &req, WithOperationID(opID))
	if err != nil {
		conn.sendPayload(msg.ID, wsError, clientErrorList(&ClientError{Message: err.Error()}))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	conn.subsMutex.Lock()
	conn.subscriptions[msg.ID] = cancel
	conn.subsMutex.Unlock()

	s.Backend.Execute(ctx, op, &wsObserver{conn: conn, id: msg.ID})
}

// wsObserver forwards results of one operation to the websocket connection.
type wsObserver struct {
	conn *wsServerConn
	id   string
}

func (o *wsObserver) Next(resp *graphql.Response) {
	o.conn.sendPayload(o.id, wsNext, resp)
}

func (o *wsObserver) Error(err error) {
	var clientErr *ClientError
	if errors.As(err, &clientErr) && !clientErr.IsNetworkError() {
		o.conn.sendPayload(o.id, wsError, clientErrorList(clientErr))
		o.conn.stop(o.id)
		return
	}
	// Dropping the connection is the closest thing to a network failure.
	_ = o.conn.conn.UnderlyingConn().Close()
}

func (o *wsObserver) Complete() {
	o.conn.send(wsMessage{ID: o.id, Type: wsComplete})
	o.conn.stop(o.id)
}
