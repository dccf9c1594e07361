package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
)

const tokenSize = 32 // bytes

var (
	// errors
	ErrTokenNotFound = core.NewNotFoundError("remember token")
	ErrBadCookie     = errors.New("malformed remember cookie")
)

// RememberToken is a persistent login series. Only the digest of the current token value is stored.
type RememberToken struct {
	Username  string
	Series    string
	TokenHash []byte
	CreatedAt time.Time // UTC
	UpdatedAt time.Time // UTC
}

// Matches compares a presented token value against the stored digest in constant time.
func (t RememberToken) Matches(value string) bool {
	return subtle.ConstantTimeCompare(t.TokenHash, digest(value)) == 1
}

type TokenRepository interface {
	CreateToken(ctx context.Context, tok RememberToken, exec ...core.DBExecutor) error
	// GetToken returns ErrTokenNotFound when no series matches.
	GetToken(ctx context.Context, username, series string, exec ...core.DBExecutor) (RememberToken, error)
	UpdateToken(ctx context.Context, tok RememberToken, exec ...core.DBExecutor) error
	DeleteToken(ctx context.Context, username, series string, exec ...core.DBExecutor) error
	DeleteUserTokens(ctx context.Context, username string, exec ...core.DBExecutor) (int, error)
}

// RememberCookie is the client-held remember-me credential.
type RememberCookie struct {
	Username string `json:"username"`
	Series   string `json:"series"`
	Token    string `json:"token"`
}

// Encode returns the cookie value: the base64url encoded JSON object.
func (c RememberCookie) Encode() string {
	data, _ := json.Marshal(c) // never fails
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeRememberCookie parses a cookie value produced by RememberCookie.Encode.
func DecodeRememberCookie(value string) (RememberCookie, error) {
	var c RememberCookie
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return c, ErrBadCookie
	}
	if err = json.Unmarshal(data, &c); err != nil {
		return c, ErrBadCookie
	}
	if c.Username == "" || c.Series == "" || c.Token == "" {
		return c, ErrBadCookie
	}
	return c, nil
}

var randRead = rand.Read // mockable

// newTokenValue returns a fresh random value, base64url encoded.
func newTokenValue() (string, error) {
	b := make([]byte, tokenSize)
	if _, err := randRead(b); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func digest(value string) []byte {
	sum := sha256.Sum256([]byte(value))
	return sum[:]
}
