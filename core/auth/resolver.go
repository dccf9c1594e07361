package auth

import (
	"context"
	"time"

	"github.com/kat-co/vala"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/user"
)

// TamperedMsg is flashed when a remember-me cookie fails verification.
const TamperedMsg = "Your login token was used elsewhere. For your safety, please log in again."

// Source tells how a Principal was resolved.
type Source string

const (
	SourceSession  Source = "session"
	SourceCookie   Source = "cookie"
	SourceGuest    Source = "guest"
	SourceTampered Source = "tampered"
)

// UserFinder is the part of user.Service the Resolver needs.
type UserFinder interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByUsername(ctx context.Context, uname string) (user.User, error)
}

// Resolution is the outcome of resolving a request's identity.
type Resolution struct {
	Principal Principal
	Source    Source
	// SetCookie is the rotated remember-me cookie to send back, if any.
	SetCookie *RememberCookie
	// ClearCookie asks for the remember-me cookie to be deleted.
	ClearCookie bool
}

type Resolver struct {
	users  UserFinder
	tokens TokenRepository
	logger core.Logger
}

func NewResolver(users UserFinder, tokens TokenRepository, logger core.Logger) *Resolver {
	vala.BeginValidation().Validate(
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(tokens, "tokens"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Resolver{users: users, tokens: tokens, logger: logger}
}

// Resolve determines the principal of a request from its session and remember-me cookie value.
// It always yields a Principal: store failures are logged and degrade to the Guest.
// sess is updated in place (binding, ForceLogin, flashes); the caller persists it.
func (r *Resolver) Resolve(ctx context.Context, sess *Session, cookieValue string) Resolution {
	if sess.UserID != "" {
		usr, err := r.users.GetByID(ctx, sess.UserID)
		if err == nil && usr.IsActive {
			return Resolution{Principal: Authenticated(usr), Source: SourceSession}
		}
		if err != nil && !core.IsNotFound(err) {
			r.logger.Error("auth.Resolve: loading session user", err)
		}
		sess.Unbind()
	}

	if cookieValue == "" {
		return Resolution{Principal: Guest, Source: SourceGuest}
	}
	guest := Resolution{Principal: Guest, Source: SourceGuest, ClearCookie: true}

	cookie, err := DecodeRememberCookie(cookieValue)
	if err != nil {
		return guest
	}

	tok, err := r.tokens.GetToken(ctx, cookie.Username, cookie.Series)
	if err != nil {
		if !core.IsNotFound(err) {
			r.logger.Error("auth.Resolve: loading remember token", err)
		}
		return guest
	}

	if !tok.Matches(cookie.Token) {
		// a known series with the wrong value: the cookie was stolen or replayed
		if _, err = r.tokens.DeleteUserTokens(ctx, cookie.Username); err != nil {
			r.logger.Error("auth.Resolve: purging remember tokens", err)
		}
		sess.ForceLogin = true
		sess.AddFlash(core.FlashError, TamperedMsg)
		r.logger.Warn("auth.Resolve: remember token mismatch", map[string]interface{}{
			"username": cookie.Username,
			"series":   cookie.Series,
		})
		return Resolution{Principal: Guest, Source: SourceTampered, ClearCookie: true}
	}

	usr, err := r.users.GetByUsername(ctx, cookie.Username)
	if err != nil || !usr.IsActive {
		if err != nil && !core.IsNotFound(err) {
			r.logger.Error("auth.Resolve: loading cookie user", err)
			return guest
		}
		if err = r.tokens.DeleteToken(ctx, cookie.Username, cookie.Series); err != nil {
			r.logger.Error("auth.Resolve: deleting remember token", err)
		}
		return guest
	}

	value, err := newTokenValue()
	if err != nil {
		r.logger.Error("auth.Resolve: rotating remember token", err)
		return guest
	}
	tok.TokenHash = digest(value)
	tok.UpdatedAt = time.Now().UTC()
	if err = r.tokens.UpdateToken(ctx, tok); err != nil {
		r.logger.Error("auth.Resolve: saving remember token", err)
		return guest
	}

	sess.Bind(usr.ID)
	return Resolution{
		Principal: Authenticated(usr),
		Source:    SourceCookie,
		SetCookie: &RememberCookie{Username: usr.Username, Series: tok.Series, Token: value},
	}
}
