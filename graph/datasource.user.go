package graph

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/senomas/librarygql/graph/model"
)

func (ds *DataSource) CreateUser(ctx context.Context, input model.NewUser) (*model.User, error) {
	if verr := ValidateNewUser(&input); verr != nil {
		return nil, verr
	}
	hash, err := ds.Credentials.HashPassword(input.Password)
	if err != nil {
		return nil, ErrInvalid("Error creating user", input.Username, err)
	}
	user := &model.User{
		Username:      input.Username,
		PasswordHash:  hash,
		FavoriteGenre: input.FavoriteGenre,
	}
	if err := ds.Store.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, ErrDuplicateKey) {
			zerolog.Ctx(ctx).Error().Err(err).Str("username", input.Username).Msg("creating user failed")
		}
		return nil, ErrInvalid("Error creating user", input.Username, err)
	}
	return user, nil
}

// Login answers unknown usernames and wrong passwords with the same error.
func (ds *DataSource) Login(ctx context.Context, input model.Login) (*model.Token, error) {
	user, err := ds.Store.FindUserByUsername(ctx, input.Username)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, ErrInternal(ctx, "find user", err)
	}
	if !ds.Credentials.VerifyPassword(user, input.Password) {
		return nil, ErrWrongCredentials()
	}
	value, err := ds.Credentials.IssueToken(user)
	if err != nil {
		return nil, ErrInternal(ctx, "sign token", err)
	}
	return &model.Token{Value: value}, nil
}

func (ds *DataSource) Me(ctx context.Context) *model.User {
	return CurrentUser(ctx)
}
