package graph

import (
	"strings"
	"unicode/utf8"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/senomas/librarygql/graph/model"
)

const MinUsernameLength = 3

// DecodeArgs copies a resolver argument map into a typed input. Keys that do
// not map to a field of out are rejected.
func DecodeArgs(args map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(args); err != nil {
		return errors.Wrap(err, "decode arguments")
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ValidateNewBook trims the author name in place, so the stored name is the
// validated one.
func ValidateNewBook(input *model.NewBook) *Error {
	input.Author = strings.TrimSpace(input.Author)
	if input.Author == "" {
		return ErrInvalid("Saving author failed", input.Author, errors.New("author name is required"))
	}
	if blank(input.Title) {
		return ErrInvalid("Saving book failed", input.Title, errors.New("title is required"))
	}
	for _, g := range input.Genres {
		if blank(g) {
			return ErrInvalid("Saving book failed", input.Title, errors.New("genres must not be blank"))
		}
	}
	return nil
}

// ValidateNewUser trims the username in place before checking it.
func ValidateNewUser(input *model.NewUser) *Error {
	input.Username = strings.TrimSpace(input.Username)
	if utf8.RuneCountInString(input.Username) < MinUsernameLength {
		return ErrInvalid("Error creating user", input.Username, errors.Errorf("username must have at least %d characters", MinUsernameLength))
	}
	if input.Password == "" {
		return ErrInvalid("Error creating user", input.Username, errors.New("password is required"))
	}
	if blank(input.FavoriteGenre) {
		return ErrInvalid("Error creating user", input.Username, errors.New("favoriteGenre is required"))
	}
	return nil
}
