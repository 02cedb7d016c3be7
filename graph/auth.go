package graph

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/senomas/librarygql/graph/model"
	"golang.org/x/crypto/bcrypt"
)

const BearerPrefix = "Bearer "

// TokenClaims is the payload of an issued token.
type TokenClaims struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Credentials struct {
	secret     []byte
	ttl        time.Duration
	bcryptCost int
	// compared against when the username is unknown so both login failures cost the same
	decoyHash []byte
}

func NewCredentials(secret string, ttl time.Duration, bcryptCost int) (*Credentials, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	decoy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcryptCost)
	if err != nil {
		return nil, errors.Wrap(err, "generate decoy hash")
	}
	return &Credentials{secret: []byte(secret), ttl: ttl, bcryptCost: bcryptCost, decoyHash: decoy}, nil
}

func (c *Credentials) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. A nil user still
// burns one comparison.
func (c *Credentials) VerifyPassword(user *model.User, password string) bool {
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(c.decoyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

func (c *Credentials) IssueToken(user *model.User) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *Credentials) ParseToken(value string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuedAt())
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}

// BearerToken returns the token of an "Authorization: Bearer <token>" value,
// or "" when the scheme is missing.
func BearerToken(authorization string) string {
	if len(authorization) > len(BearerPrefix) && strings.EqualFold(authorization[:len(BearerPrefix)], BearerPrefix) {
		return strings.TrimSpace(authorization[len(BearerPrefix):])
	}
	return ""
}

// RequestContext is built once per request and never shared between requests.
type RequestContext struct {
	RequestID   string
	CurrentUser *model.User
}

func RequestContextFrom(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(Context_Request).(*RequestContext); ok {
		return rc
	}
	return &RequestContext{}
}

func CurrentUser(ctx context.Context) *model.User {
	return RequestContextFrom(ctx).CurrentUser
}

// Authenticate resolves an Authorization header value into a request context.
// Every token that fails verification leaves the request anonymous.
func (ds *DataSource) Authenticate(ctx context.Context, authorization string) *RequestContext {
	rc := &RequestContext{}
	token := BearerToken(authorization)
	if token == "" {
		return rc
	}
	logger := zerolog.Ctx(ctx)
	claims, err := ds.Credentials.ParseToken(token)
	if err != nil {
		logger.Warn().Err(err).Msg("rejected bearer token")
		return rc
	}
	user, err := ds.Store.FindUserByID(ctx, claims.UserID)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", claims.UserID).Msg("bearer token user not loaded")
		return rc
	}
	rc.CurrentUser = user
	return rc
}
