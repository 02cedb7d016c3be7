package graph_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/99designs/gqlgen/client"
	"github.com/gorilla/websocket"
	"github.com/senomas/librarygql/graph"
	"github.com/senomas/librarygql/graph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	dialer := websocket.Dialer{Subprotocols: []string{graph.SubProtocol}}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) wsMessage {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestPlayground(t *testing.T) {
	ds := Setup(t, false)
	schema, err := graph.NewSchema()
	require.NoError(t, err)
	h := graph.NewHandler(ds, schema)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Library")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?query=%7BbookCount%7D", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"bookCount":0}}`, w.Body.String())
}

func TestSubscription(t *testing.T) {
	ds := Setup(t, false)
	schema, err := graph.NewSchema()
	require.NoError(t, err)
	h := graph.NewHandler(ds, schema)
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := client.New(h)
	token := CreateUserAndLogin(t, c, "mluukkai", "salainen")

	t.Run("subscribe before init", func(t *testing.T) {
		conn := dialWS(t, srv)
		require.NoError(t, conn.WriteJSON(wsMessage{ID: "1", Type: "subscribe", Payload: json.RawMessage(`{"query":"subscription { bookAdded { title } }"}`)}))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, _, err := conn.ReadMessage()
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, 4401, closeErr.Code)
	})

	t.Run("book added", func(t *testing.T) {
		conn := dialWS(t, srv)
		require.NoError(t, conn.WriteJSON(wsMessage{Type: "connection_init", Payload: json.RawMessage(`{"Authorization":"Bearer ` + token + `"}`)}))
		assert.Equal(t, "connection_ack", readWS(t, conn).Type)

		require.NoError(t, conn.WriteJSON(wsMessage{Type: "ping"}))
		assert.Equal(t, "pong", readWS(t, conn).Type)

		require.NoError(t, conn.WriteJSON(wsMessage{ID: "books", Type: "subscribe", Payload: json.RawMessage(`{"query":"subscription { bookAdded { title author { name } genres } }"}`)}))
		require.Eventually(t, func() bool { return ds.BookAdded.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

		c.MustPost(addBookMutation, &struct{ AddBook model.Book }{}, append(addBookVars("Clean Code", "Robert Martin", 2008, "refactoring"), Bearer(token))...)

		msg := readWS(t, conn)
		assert.Equal(t, "next", msg.Type)
		assert.Equal(t, "books", msg.ID)
		assert.JSONEq(t, `{"data":{"bookAdded":{"title":"Clean Code","author":{"name":"Robert Martin"},"genres":["refactoring"]}}}`, string(msg.Payload))

		require.NoError(t, conn.WriteJSON(wsMessage{ID: "books", Type: "complete"}))
		require.Eventually(t, func() bool { return ds.BookAdded.Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("mutation over websocket", func(t *testing.T) {
		conn := dialWS(t, srv)
		require.NoError(t, conn.WriteJSON(wsMessage{Type: "connection_init"}))
		assert.Equal(t, "connection_ack", readWS(t, conn).Type)

		require.NoError(t, conn.WriteJSON(wsMessage{ID: "q", Type: "subscribe", Payload: json.RawMessage(`{"query":"{ bookCount me { username } }"}`)}))
		msg := readWS(t, conn)
		assert.Equal(t, "next", msg.Type)
		assert.JSONEq(t, `{"data":{"bookCount":1,"me":null}}`, string(msg.Payload))
		assert.Equal(t, "complete", readWS(t, conn).Type)

		require.NoError(t, conn.WriteJSON(wsMessage{ID: "m", Type: "subscribe", Payload: json.RawMessage(`{"query":"mutation { addBook(title: \"Refactoring\", author: \"Martin Fowler\", published: 1999, genres: []) { title } }"}`)}))
		msg = readWS(t, conn)
		assert.Equal(t, "next", msg.Type)
		assert.Contains(t, string(msg.Payload), "UNAUTHENTICATED")
		assert.Equal(t, "complete", readWS(t, conn).Type)
	})
}

func TestSubscriptionShutdown(t *testing.T) {
	ds := Setup(t, false)
	schema, err := graph.NewSchema()
	require.NoError(t, err)
	h := graph.NewHandler(ds, schema)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialWS(t, srv)
	require.NoError(t, conn.WriteJSON(wsMessage{Type: "connection_init"}))
	assert.Equal(t, "connection_ack", readWS(t, conn).Type)
	require.NoError(t, conn.WriteJSON(wsMessage{ID: "books", Type: "subscribe", Payload: json.RawMessage(`{"query":"subscription { bookAdded { title } }"}`)}))
	require.Eventually(t, func() bool {
		return ds.BookAdded.Subscribers() == 1 && h.Subscriptions().Connections() == 1
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
	assert.Equal(t, 0, h.Subscriptions().Connections())
	require.Eventually(t, func() bool { return ds.BookAdded.Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected %v", err)

	t.Run("new sessions refused", func(t *testing.T) {
		conn := dialWS(t, srv)
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, _, err := conn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected %v", err)
		assert.Equal(t, 0, h.Subscriptions().Connections())
	})
}

func TestOperationType(t *testing.T) {
	op, err := graph.OperationType(`subscription { bookAdded { title } }`, "")
	require.NoError(t, err)
	assert.Equal(t, "subscription", op)

	op, err = graph.OperationType(`query A { bookCount } mutation B { login(username: "a", password: "b") { value } }`, "B")
	require.NoError(t, err)
	assert.Equal(t, "mutation", op)

	_, err = graph.OperationType(`query A { bookCount } query B { authorCount }`, "")
	assert.Error(t, err)

	_, err = graph.OperationType(`{ bookCount `, "")
	assert.Error(t, err)
}
