package graph

import (
	"context"

	"github.com/senomas/librarygql/graph/model"
)

type ContextID string

func (c ContextID) String() string {
	return "github.com/senomas/librarygql:" + string(c)
}

const Context_DataSource = ContextID("DataSource")
const Context_Request = ContextID("Request")

// Store is the persistence contract shared by the gorm and mongo backends.
// Lookups that match nothing return ErrRecordNotFound; inserts that violate a
// unique index return an error wrapping ErrDuplicateKey.
type Store interface {
	CountBooks(ctx context.Context) (int, error)
	CountAuthors(ctx context.Context) (int, error)
	CountBooksByAuthor(ctx context.Context, authorID string) (int, error)
	// FindBooks returns books in store order with Author populated.
	FindBooks(ctx context.Context, filter model.BookFilter) ([]*model.Book, error)
	FindAuthors(ctx context.Context) ([]*model.Author, error)
	// FindOrCreateAuthor is atomic: concurrent callers with the same name get
	// the same record.
	FindOrCreateAuthor(ctx context.Context, name string) (*model.Author, error)
	CreateBook(ctx context.Context, book *model.Book) error
	SetAuthorBorn(ctx context.Context, name string, born int) (*model.Author, error)
	CreateUser(ctx context.Context, user *model.User) error
	FindUserByUsername(ctx context.Context, username string) (*model.User, error)
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	Close(ctx context.Context) error
}

type DataSource struct {
	Store       Store
	Credentials *Credentials
	BookAdded   *Broker
}

func NewDataSource(store Store, credentials *Credentials) *DataSource {
	return &DataSource{Store: store, Credentials: credentials, BookAdded: NewBroker()}
}

func DataSourceFrom(ctx context.Context) *DataSource {
	return ctx.Value(Context_DataSource).(*DataSource)
}

func (ds *DataSource) Close(ctx context.Context) error {
	ds.BookAdded.Close()
	return ds.Store.Close(ctx)
}
