package graph

import (
	"github.com/graphql-go/graphql"
	"github.com/pkg/errors"
	"github.com/senomas/librarygql/graph/model"
)

func decodeInput(p graphql.ResolveParams, out interface{}) error {
	if err := DecodeArgs(p.Args, out); err != nil {
		return ErrInvalid("invalid arguments", nil, err)
	}
	return nil
}

func AuthorBookCountResolver(p graphql.ResolveParams) (interface{}, error) {
	author, ok := p.Source.(*model.Author)
	if !ok {
		return nil, errors.Errorf("unexpected author source %T", p.Source)
	}
	return DataSourceFrom(p.Context).AuthorBookCount(p.Context, author)
}

func BookCountResolver(p graphql.ResolveParams) (interface{}, error) {
	return DataSourceFrom(p.Context).BookCount(p.Context)
}

func AuthorCountResolver(p graphql.ResolveParams) (interface{}, error) {
	return DataSourceFrom(p.Context).AuthorCount(p.Context)
}

func AllBooksResolver(p graphql.ResolveParams) (interface{}, error) {
	var filter model.BookFilter
	if err := decodeInput(p, &filter); err != nil {
		return nil, err
	}
	return DataSourceFrom(p.Context).Books(p.Context, filter)
}

func AllAuthorsResolver(p graphql.ResolveParams) (interface{}, error) {
	return DataSourceFrom(p.Context).Authors(p.Context)
}

func MeResolver(p graphql.ResolveParams) (interface{}, error) {
	if user := DataSourceFrom(p.Context).Me(p.Context); user != nil {
		return user, nil
	}
	return nil, nil
}

func AddBookResolver(p graphql.ResolveParams) (interface{}, error) {
	var input model.NewBook
	if err := decodeInput(p, &input); err != nil {
		return nil, err
	}
	book, err := DataSourceFrom(p.Context).AddBook(p.Context, input)
	if err != nil {
		return nil, err
	}
	return book, nil
}

func EditAuthorResolver(p graphql.ResolveParams) (interface{}, error) {
	var input model.EditAuthor
	if err := decodeInput(p, &input); err != nil {
		return nil, err
	}
	author, err := DataSourceFrom(p.Context).EditAuthor(p.Context, input)
	if err != nil || author == nil {
		return nil, err
	}
	return author, nil
}

func CreateUserResolver(p graphql.ResolveParams) (interface{}, error) {
	var input model.NewUser
	if err := decodeInput(p, &input); err != nil {
		return nil, err
	}
	user, err := DataSourceFrom(p.Context).CreateUser(p.Context, input)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func LoginResolver(p graphql.ResolveParams) (interface{}, error) {
	var input model.Login
	if err := decodeInput(p, &input); err != nil {
		return nil, err
	}
	token, err := DataSourceFrom(p.Context).Login(p.Context, input)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// BookAddedSubscribe hands graphql-go a channel it ranges over until the
// subscription context ends.
func BookAddedSubscribe(p graphql.ResolveParams) (interface{}, error) {
	return DataSourceFrom(p.Context).BookAdded.Subscribe(p.Context), nil
}

func BookAddedResolver(p graphql.ResolveParams) (interface{}, error) {
	return p.Source, nil
}
