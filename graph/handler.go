package graph

import (
	"context"
	"net/http"
	"strings"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/google/uuid"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"github.com/rs/zerolog/log"
)

// WithRequest returns ctx carrying ds and a freshly built request context
// for the given Authorization value.
func (ds *DataSource) WithRequest(ctx context.Context, authorization string) context.Context {
	requestID := uuid.NewString()
	logger := log.With().Str("request_id", requestID).Logger()
	ctx = logger.WithContext(ctx)
	ctx = context.WithValue(ctx, Context_DataSource, ds)
	rc := ds.Authenticate(ctx, authorization)
	rc.RequestID = requestID
	return context.WithValue(ctx, Context_Request, rc)
}

// Middleware builds the per-request context before next runs.
func (ds *DataSource) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ds.WithRequest(r.Context(), r.Header.Get("Authorization"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// Handler serves GraphQL on a single path: POST executes operations, a
// websocket upgrade opens a graphql-transport-ws session, any other GET
// renders the playground.
type Handler struct {
	gql  http.Handler
	ws   *SubscriptionServer
	play http.Handler
}

func NewHandler(ds *DataSource, schema graphql.Schema) *Handler {
	return &Handler{
		gql: ds.Middleware(handler.New(&handler.Config{
			Schema: &schema,
			Pretty: true,
		})),
		ws:   NewSubscriptionServer(ds, schema),
		play: playground.Handler("Library", "/"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case isWebSocketUpgrade(r):
		h.ws.ServeHTTP(w, r)
	case r.Method == http.MethodGet && r.URL.Query().Get("query") == "":
		h.play.ServeHTTP(w, r)
	default:
		h.gql.ServeHTTP(w, r)
	}
}

func (h *Handler) Subscriptions() *SubscriptionServer {
	return h.ws
}

// Shutdown closes the websocket sessions, which http.Server.Shutdown does
// not track once they are hijacked.
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.ws.Shutdown(ctx)
}
