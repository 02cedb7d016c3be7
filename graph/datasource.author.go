package graph

import (
	"context"

	"github.com/pkg/errors"
	"github.com/senomas/librarygql/graph/model"
)

func (ds *DataSource) AuthorCount(ctx context.Context) (int, error) {
	count, err := ds.Store.CountAuthors(ctx)
	if err != nil {
		return 0, ErrInternal(ctx, "count authors", err)
	}
	return count, nil
}

func (ds *DataSource) AuthorBookCount(ctx context.Context, obj *model.Author) (int, error) {
	count, err := ds.Store.CountBooksByAuthor(ctx, obj.ID)
	if err != nil {
		return 0, ErrInternal(ctx, "count author books", err)
	}
	return count, nil
}

func (ds *DataSource) Authors(ctx context.Context) ([]*model.Author, error) {
	authors, err := ds.Store.FindAuthors(ctx)
	if err != nil {
		return nil, ErrInternal(ctx, "find authors", err)
	}
	return authors, nil
}

// EditAuthor returns nil without error when no author has the given name.
func (ds *DataSource) EditAuthor(ctx context.Context, input model.EditAuthor) (*model.Author, error) {
	if CurrentUser(ctx) == nil {
		return nil, ErrNotAuthenticated()
	}
	author, err := ds.Store.SetAuthorBorn(ctx, input.Name, input.SetBornTo)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, ErrInternal(ctx, "update author", err)
	}
	return author, nil
}
