package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	SubProtocol = "graphql-transport-ws"

	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"

	initTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second

	closeInitTimeout       = 4408
	closeUnauthorized      = 4401
	closeDuplicateID       = 4409
	closeBadRequest        = 4400
	closeTooManyInitialise = 4429
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsRequest struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// SubscriptionServer speaks graphql-transport-ws. Subscriptions stream until
// the client completes them or the connection drops; queries and mutations
// answer with a single next message.
type SubscriptionServer struct {
	ds       *DataSource
	schema   graphql.Schema
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[*wsConnection]struct{}
	closing  bool
	sessions sync.WaitGroup
}

func NewSubscriptionServer(ds *DataSource, schema graphql.Schema) *SubscriptionServer {
	return &SubscriptionServer{
		ds:     ds,
		schema: schema,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{SubProtocol},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
		conns: make(map[*wsConnection]struct{}),
	}
}

func (s *SubscriptionServer) track(c *wsConnection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.sessions.Add(1)
	return true
}

func (s *SubscriptionServer) untrack(c *wsConnection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.sessions.Done()
}

// Connections reports the number of open websocket sessions.
func (s *SubscriptionServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown refuses new sessions, closes the open ones with 1001 and waits
// until their operations have returned or ctx ends.
func (s *SubscriptionServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for c := range s.conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
		c.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "websocket sessions still open")
	}
}

func (s *SubscriptionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	if conn.Subprotocol() != SubProtocol {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseProtocolError, "unsupported subprotocol"), time.Now().Add(writeTimeout))
		conn.Close()
		return
	}
	c := &wsConnection{
		server: s,
		conn:   conn,
		header: r.Header.Get("Authorization"),
		subs:   make(map[string]context.CancelFunc),
	}
	if !s.track(c) {
		c.close(websocket.CloseGoingAway, "server shutting down")
		conn.Close()
		return
	}
	defer s.untrack(c)
	c.run(r.Context())
}

type wsConnection struct {
	server *SubscriptionServer
	conn   *websocket.Conn
	header string

	writeMu sync.Mutex
	mu      sync.Mutex
	subs    map[string]context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup
}

func (c *wsConnection) write(msg wsMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *wsConnection) close(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeTimeout))
}

func (c *wsConnection) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		c.wg.Wait()
		c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(initTimeout))
	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if c.ctx == nil {
				c.close(closeInitTimeout, "connection initialisation timeout")
			}
			return
		}
		switch msg.Type {
		case msgConnectionInit:
			if c.ctx != nil {
				c.close(closeTooManyInitialise, "too many initialisation requests")
				return
			}
			c.ctx = c.server.ds.WithRequest(ctx, c.authorization(msg.Payload))
			_ = c.conn.SetReadDeadline(time.Time{})
			if err := c.write(wsMessage{Type: msgConnectionAck}); err != nil {
				return
			}
		case msgPing:
			if err := c.write(wsMessage{Type: msgPong}); err != nil {
				return
			}
		case msgPong:
		case msgSubscribe:
			if c.ctx == nil {
				c.close(closeUnauthorized, "unauthorized")
				return
			}
			if !c.subscribe(msg) {
				return
			}
		case msgComplete:
			c.cancel(msg.ID)
		default:
			c.close(closeBadRequest, "unknown message type "+msg.Type)
			return
		}
	}
}

// authorization prefers the connection_init payload over the upgrade header.
func (c *wsConnection) authorization(payload json.RawMessage) string {
	if len(payload) > 0 {
		var params map[string]interface{}
		if err := json.Unmarshal(payload, &params); err == nil {
			for _, key := range []string{"Authorization", "authorization"} {
				if v, ok := params[key].(string); ok && v != "" {
					return v
				}
			}
		}
	}
	return c.header
}

func (c *wsConnection) cancel(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.subs[id]; ok {
		cancel()
		delete(c.subs, id)
	}
}

func (c *wsConnection) subscribe(msg wsMessage) bool {
	var req wsRequest
	if msg.ID == "" || json.Unmarshal(msg.Payload, &req) != nil {
		c.close(closeBadRequest, "invalid subscribe message")
		return false
	}

	c.mu.Lock()
	if _, ok := c.subs[msg.ID]; ok {
		c.mu.Unlock()
		c.close(closeDuplicateID, "subscriber for "+msg.ID+" already exists")
		return false
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.subs[msg.ID] = cancel
	c.mu.Unlock()

	operation, err := OperationType(req.Query, req.OperationName)
	if err != nil {
		c.cancel(msg.ID)
		payload, _ := json.Marshal([]gqlerrors.FormattedError{gqlerrors.FormatError(err)})
		return c.write(wsMessage{ID: msg.ID, Type: msgError, Payload: payload}) == nil
	}

	params := graphql.Params{
		Schema:         c.server.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	}
	logger := zerolog.Ctx(ctx).With().Str("subscription", msg.ID).Str("operation", operation).Logger()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.cancel(msg.ID)
		if operation == ast.OperationTypeSubscription {
			for result := range graphql.Subscribe(params) {
				if ctx.Err() != nil {
					continue
				}
				c.next(msg.ID, result, logger)
			}
		} else {
			c.next(msg.ID, graphql.Do(params), logger)
		}
		if ctx.Err() == nil {
			_ = c.write(wsMessage{ID: msg.ID, Type: msgComplete})
		}
	}()
	return true
}

func (c *wsConnection) next(id string, result *graphql.Result, logger zerolog.Logger) {
	payload, err := json.Marshal(result)
	if err != nil {
		logger.Error().Err(err).Msg("encode subscription result")
		return
	}
	if err := c.write(wsMessage{ID: id, Type: msgNext, Payload: payload}); err != nil {
		logger.Debug().Err(err).Msg("write subscription result")
	}
}

// OperationType returns "query", "mutation" or "subscription" for the
// operation a request would execute.
func OperationType(query string, operationName string) (string, error) {
	doc, err := parser.Parse(parser.ParseParams{Source: source.NewSource(&source.Source{Body: []byte(query), Name: "GraphQL request"})})
	if err != nil {
		return "", err
	}
	var found *ast.OperationDefinition
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if operationName == "" {
			if found != nil {
				return "", errors.New("must provide operation name if query contains multiple operations")
			}
			found = op
		} else if op.Name != nil && op.Name.Value == operationName {
			found = op
		}
	}
	if found == nil {
		return "", errors.Errorf("unknown operation %q", operationName)
	}
	return found.Operation, nil
}
