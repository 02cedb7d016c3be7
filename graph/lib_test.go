package graph_test

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/99designs/gqlgen/client"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/graphql-go/graphql"
	"github.com/senomas/librarygql/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

var NoArgs = []driver.Value{}

var dbSeq atomic.Int64

func JsonMatch(t *testing.T, expected interface{}, resp interface{}) {
	rJSON, _ := json.MarshalIndent(resp, "", "\t")
	eJSON, _ := json.MarshalIndent(expected, "", "\t")

	assert.Equal(t, string(eJSON), string(rJSON))
}

func QuoteMeta(r string) string {
	r = strings.Join(strings.Fields(r), " ")
	r = strings.ReplaceAll(r, "( ", "(")
	r = strings.ReplaceAll(r, " )", ")")
	return "^" + regexp.QuoteMeta(r) + "$"
}

func testCredentials(t *testing.T, ttl time.Duration) *graph.Credentials {
	credentials, err := graph.NewCredentials(testSecret, ttl, bcrypt.MinCost)
	require.NoError(t, err)
	return credentials
}

// Setup opens a fresh store for one test: TEST_DB_POSTGRES when set,
// otherwise a private in-memory sqlite database.
func Setup(t *testing.T, populate bool) *graph.DataSource {
	cfg := graph.Config
	cfg.Logger = os.Getenv("LOGGER") != ""
	cfg.Populate = populate
	if dsn := os.Getenv("TEST_DB_POSTGRES"); dsn != "" {
		cfg.PostgresDSN = dsn
		db, err := graph.OpenPostgres(cfg)
		require.NoError(t, err)
		require.NoError(t, db.Migrator().DropTable(graph.Models...))
		sqlDB, _ := db.DB()
		sqlDB.Close()
	} else {
		cfg.SQLitePath = fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), dbSeq.Add(1))
		cfg.SQLitePath = strings.ReplaceAll(cfg.SQLitePath, "/", "_")
	}

	store, err := graph.Setup(context.Background(), cfg)
	require.NoError(t, err)
	ds := graph.NewDataSource(store, testCredentials(t, 0))
	t.Cleanup(func() {
		ds.Close(context.Background())
	})
	return ds
}

// SetupMock runs a GormStore against sqlmock with the postgres dialect.
func SetupMock(t *testing.T) (*graph.GormStore, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: graph.GormLogger(os.Getenv("LOGGER") != "")})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB.Close()
	})
	return graph.NewGormStore(db), mock
}

func NewClient(t *testing.T, ds *graph.DataSource) *client.Client {
	schema, err := graph.NewSchema()
	require.NoError(t, err)
	return client.New(graph.NewHandler(ds, schema))
}

func Bearer(token string) client.Option {
	return client.AddHeader("Authorization", "Bearer "+token)
}

type gqlError struct {
	Message    string                 `json:"message"`
	Path       []interface{}          `json:"path"`
	Extensions map[string]interface{} `json:"extensions"`
}

// PostErrors runs query and returns the data and errors of the response
// without failing on GraphQL errors.
func PostErrors(t *testing.T, c *client.Client, query string, options ...client.Option) (map[string]interface{}, []gqlError) {
	resp, err := c.RawPost(query, options...)
	require.NoError(t, err)
	var errs []gqlError
	if len(resp.Errors) > 0 {
		require.NoError(t, json.Unmarshal(resp.Errors, &errs))
	}
	data, _ := resp.Data.(map[string]interface{})
	return data, errs
}

// CreateUserAndLogin registers a user and returns a bearer token for it.
func CreateUserAndLogin(t *testing.T, c *client.Client, username string, password string) string {
	var created struct {
		CreateUser struct {
			ID string
		}
	}
	var resp struct {
		Login struct {
			Value string
		}
	}
	c.MustPost(`mutation($u: String!, $p: String!) {
		createUser(username: $u, password: $p, favoriteGenre: "fantasy") { id }
	}`, &created, client.Var("u", username), client.Var("p", password))
	require.NotEmpty(t, created.CreateUser.ID)
	c.MustPost(`mutation($u: String!, $p: String!) {
		login(username: $u, password: $p) { value }
	}`, &resp, client.Var("u", username), client.Var("p", password))
	require.NotEmpty(t, resp.Login.Value)
	return resp.Login.Value
}

// QLTest executes queries straight through graphql.Do with ctx. The first
// function matches the whole result against str, the second expects exactly
// one error containing str.
func QLTest(t *testing.T, schema graphql.Schema, ctx context.Context) (func(query string, str string) *graphql.Result, func(query string, str string) *graphql.Result) {
	return func(query string, str string) *graphql.Result {
			params := graphql.Params{
				Schema:        schema,
				RequestString: query,
				RootObject:    make(map[string]interface{}),
				Context:       ctx,
			}
			r := graphql.Do(params)

			rJSON, _ := json.MarshalIndent(r, "", "\t")

			v := make(map[string]interface{})
			json.Unmarshal([]byte(str), &v)
			eJSON, _ := json.MarshalIndent(v, "", "\t")

			assert.Equal(t, string(eJSON), string(rJSON))

			return r
		}, func(query string, str string) *graphql.Result {
			params := graphql.Params{
				Schema:        schema,
				RequestString: query,
				RootObject:    make(map[string]interface{}),
				Context:       ctx,
			}
			r := graphql.Do(params)

			if assert.Equal(t, 1, len(r.Errors)) {
				assert.ErrorContains(t, r.Errors[0], str)
			}

			return r
		}
}

// RequestContext builds the context a request with the given Authorization
// header would see.
func RequestContext(ds *graph.DataSource, authorization string) context.Context {
	return ds.WithRequest(context.Background(), authorization)
}
