package graph

import (
	"github.com/graphql-go/graphql"
)

var AuthorType = graphql.NewObject(
	graphql.ObjectConfig{
		Name: "Author",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type: graphql.NewNonNull(graphql.ID),
			},
			"name": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
			"born": &graphql.Field{
				Type: graphql.Int,
			},
			"bookCount": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.Int),
				Resolve: AuthorBookCountResolver,
			},
		},
	},
)

var BookType = graphql.NewObject(
	graphql.ObjectConfig{
		Name: "Book",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type: graphql.NewNonNull(graphql.ID),
			},
			"title": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
			"published": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
			},
			"author": &graphql.Field{
				Type: graphql.NewNonNull(AuthorType),
			},
			"genres": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.String))),
			},
		},
	},
)

var UserType = graphql.NewObject(
	graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type: graphql.NewNonNull(graphql.ID),
			},
			"username": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
			"favoriteGenre": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
		},
	},
)

var TokenType = graphql.NewObject(
	graphql.ObjectConfig{
		Name: "Token",
		Fields: graphql.Fields{
			"value": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
		},
	},
)

func nonNullString() *graphql.ArgumentConfig {
	return &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}
}

func BookQueries(fields graphql.Fields) graphql.Fields {
	fields["bookCount"] = &graphql.Field{
		Type:    graphql.NewNonNull(graphql.Int),
		Resolve: BookCountResolver,
	}
	fields["allBooks"] = &graphql.Field{
		Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(BookType))),
		Description: "books, optionally narrowed to one genre",
		Args: graphql.FieldConfigArgument{
			"author": &graphql.ArgumentConfig{
				Type:        graphql.String,
				Description: "accepted for compatibility, not applied",
			},
			"genre": &graphql.ArgumentConfig{
				Type: graphql.String,
			},
		},
		Resolve: AllBooksResolver,
	}
	return fields
}

func AuthorQueries(fields graphql.Fields) graphql.Fields {
	fields["authorCount"] = &graphql.Field{
		Type:    graphql.NewNonNull(graphql.Int),
		Resolve: AuthorCountResolver,
	}
	fields["allAuthors"] = &graphql.Field{
		Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(AuthorType))),
		Resolve: AllAuthorsResolver,
	}
	return fields
}

func UserQueries(fields graphql.Fields) graphql.Fields {
	fields["me"] = &graphql.Field{
		Type:        UserType,
		Description: "the logged-in user, null when anonymous",
		Resolve:     MeResolver,
	}
	return fields
}

func BookMutations(fields graphql.Fields) graphql.Fields {
	fields["addBook"] = &graphql.Field{
		Type:        BookType,
		Description: "add a book, creating its author when the name is new",
		Args: graphql.FieldConfigArgument{
			"title":  nonNullString(),
			"author": nonNullString(),
			"published": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.Int),
			},
			"genres": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.String))),
			},
		},
		Resolve: AddBookResolver,
	}
	return fields
}

func AuthorMutations(fields graphql.Fields) graphql.Fields {
	fields["editAuthor"] = &graphql.Field{
		Type:        AuthorType,
		Description: "set the birth year of an author",
		Args: graphql.FieldConfigArgument{
			"name": nonNullString(),
			"setBornTo": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.Int),
			},
		},
		Resolve: EditAuthorResolver,
	}
	return fields
}

func UserMutations(fields graphql.Fields) graphql.Fields {
	fields["createUser"] = &graphql.Field{
		Type: UserType,
		Args: graphql.FieldConfigArgument{
			"username":      nonNullString(),
			"password":      nonNullString(),
			"favoriteGenre": nonNullString(),
		},
		Resolve: CreateUserResolver,
	}
	fields["login"] = &graphql.Field{
		Type: TokenType,
		Args: graphql.FieldConfigArgument{
			"username": nonNullString(),
			"password": nonNullString(),
		},
		Resolve: LoginResolver,
	}
	return fields
}

func BookSubscriptions(fields graphql.Fields) graphql.Fields {
	fields["bookAdded"] = &graphql.Field{
		Type:      graphql.NewNonNull(BookType),
		Subscribe: BookAddedSubscribe,
		Resolve:   BookAddedResolver,
	}
	return fields
}

func CreateFields(fns ...func(fields graphql.Fields) graphql.Fields) graphql.Fields {
	fields := graphql.Fields{}
	for _, fn := range fns {
		fields = fn(fields)
	}
	return fields
}

func NewSchema() (graphql.Schema, error) {
	return graphql.NewSchema(graphql.SchemaConfig{
		Query:        graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: CreateFields(BookQueries, AuthorQueries, UserQueries)}),
		Mutation:     graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: CreateFields(BookMutations, AuthorMutations, UserMutations)}),
		Subscription: graphql.NewObject(graphql.ObjectConfig{Name: "Subscription", Fields: CreateFields(BookSubscriptions)}),
	})
}
