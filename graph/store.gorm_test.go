package graph_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/senomas/librarygql/graph"
	"github.com/senomas/librarygql/graph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormStoreMock(t *testing.T) {
	ctx := context.Background()

	t.Run("count books", func(t *testing.T) {
		store, mock := SetupMock(t)
		mock.ExpectQuery(QuoteMeta(`SELECT count(*) FROM "books"`)).WithArgs(NoArgs...).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		count, err := store.CountBooks(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("count books by author", func(t *testing.T) {
		store, mock := SetupMock(t)
		mock.ExpectQuery(QuoteMeta(`SELECT count(*) FROM "books" WHERE author_id = $1`)).WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		count, err := store.CountBooksByAuthor(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		count, err = store.CountBooksByAuthor(ctx, "64b7f0c2e4b0a1a2b3c4d5e6")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("find or create author inserts", func(t *testing.T) {
		store, mock := SetupMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "authors" .* ON CONFLICT \("name"\) DO NOTHING RETURNING "id"`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectCommit()

		author, err := store.FindOrCreateAuthor(ctx, "Robert Martin")
		require.NoError(t, err)
		JsonMatch(t, &model.Author{ID: "7", Name: "Robert Martin"}, author)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("find or create author reads existing", func(t *testing.T) {
		store, mock := SetupMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "authors" .* ON CONFLICT \("name"\) DO NOTHING RETURNING "id"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectCommit()
		mock.ExpectQuery(`SELECT \* FROM "authors" WHERE name = \$1`).WillReturnRows(sqlmock.NewRows([]string{"id", "name", "born"}).AddRow(5, "Robert Martin", 1952))

		author, err := store.FindOrCreateAuthor(ctx, "Robert Martin")
		require.NoError(t, err)
		JsonMatch(t, &model.Author{ID: "5", Name: "Robert Martin", Born: graph.Of(1952)}, author)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set born of unknown author", func(t *testing.T) {
		store, mock := SetupMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "authors" SET "born"=\$1 WHERE name = \$2`).WithArgs(1965, "Nobody").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		_, err := store.SetAuthorBorn(ctx, "Nobody", 1965)
		assert.ErrorIs(t, err, graph.ErrRecordNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate username", func(t *testing.T) {
		store, mock := SetupMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "users"`).WillReturnError(&pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "idx_users_username"`})
		mock.ExpectRollback()

		err := store.CreateUser(ctx, &model.User{Username: "mluukkai", PasswordHash: "x", FavoriteGenre: "crime"})
		assert.ErrorIs(t, err, graph.ErrDuplicateKey)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("store failure is internal", func(t *testing.T) {
		store, mock := SetupMock(t)
		mock.ExpectQuery(QuoteMeta(`SELECT count(*) FROM "authors"`)).WillReturnError(errors.New("connection reset by peer"))

		ds := graph.NewDataSource(store, testCredentials(t, 0))
		_, err := ds.AuthorCount(ctx)
		var gerr *graph.Error
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, graph.KindInternal, gerr.Kind)
		assert.Equal(t, "internal error", gerr.Message)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
