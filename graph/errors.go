package graph

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnauthenticated
	KindValidation
	KindCredentials
	KindNotFound
)

func (k ErrorKind) Code() string {
	switch k {
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindValidation, KindCredentials:
		return "BAD_USER_INPUT"
	case KindNotFound:
		return "NOT_FOUND"
	}
	return "INTERNAL_SERVER_ERROR"
}

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key")
)

// Error is the caller-facing error returned by resolvers. graphql-go copies
// Extensions() into the "extensions" member of the response error.
type Error struct {
	Kind        ErrorKind
	Message     string
	InvalidArgs interface{}
	cause       error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": e.Kind.Code()}
	if e.InvalidArgs != nil {
		ext["invalidArgs"] = e.InvalidArgs
	}
	return ext
}

func ErrNotAuthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Message: "Not authenticated"}
}

func ErrWrongCredentials() *Error {
	return &Error{Kind: KindCredentials, Message: "Wrong credentials"}
}

func ErrInvalid(message string, invalidArgs interface{}, cause error) *Error {
	return &Error{Kind: KindValidation, Message: message, InvalidArgs: invalidArgs, cause: cause}
}

// ErrInternal logs the cause against the request and hides it from the caller.
func ErrInternal(ctx context.Context, op string, cause error) *Error {
	zerolog.Ctx(ctx).Error().Err(cause).Str("op", op).Msg("store failure")
	return &Error{Kind: KindInternal, Message: "internal error", cause: errors.Wrap(cause, op)}
}
