package graph

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/senomas/librarygql/graph/model"
)

func (ds *DataSource) BookCount(ctx context.Context) (int, error) {
	count, err := ds.Store.CountBooks(ctx)
	if err != nil {
		return 0, ErrInternal(ctx, "count books", err)
	}
	return count, nil
}

// Books ignores filter.Author; only a non-empty genre narrows the result.
func (ds *DataSource) Books(ctx context.Context, filter model.BookFilter) ([]*model.Book, error) {
	if filter.Author != nil {
		zerolog.Ctx(ctx).Debug().Str("author", *filter.Author).Msg("allBooks author filter ignored")
	}
	var query model.BookFilter
	if filter.Genre != nil && *filter.Genre != "" {
		query.Genre = filter.Genre
	}
	books, err := ds.Store.FindBooks(ctx, query)
	if err != nil {
		return nil, ErrInternal(ctx, "find books", err)
	}
	return books, nil
}

func (ds *DataSource) AddBook(ctx context.Context, input model.NewBook) (*model.Book, error) {
	if CurrentUser(ctx) == nil {
		return nil, ErrNotAuthenticated()
	}
	if verr := ValidateNewBook(&input); verr != nil {
		return nil, verr
	}
	author, err := ds.Store.FindOrCreateAuthor(ctx, input.Author)
	if err != nil {
		if !errors.Is(err, ErrDuplicateKey) {
			zerolog.Ctx(ctx).Error().Err(err).Str("author", input.Author).Msg("saving author failed")
		}
		return nil, ErrInvalid("Saving author failed", input.Author, err)
	}
	genres := input.Genres
	if genres == nil {
		genres = []string{}
	}
	book := &model.Book{
		Title:     input.Title,
		Published: input.Published,
		AuthorID:  author.ID,
		Author:    author,
		Genres:    genres,
	}
	if err := ds.Store.CreateBook(ctx, book); err != nil {
		if !errors.Is(err, ErrDuplicateKey) {
			zerolog.Ctx(ctx).Error().Err(err).Str("title", input.Title).Msg("saving book failed")
		}
		return nil, ErrInvalid("Saving book failed", input.Title, err)
	}
	ds.BookAdded.Publish(book)
	return book, nil
}
