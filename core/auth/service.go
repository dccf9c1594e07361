package auth

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/user"
)

var (
	// errors
	ErrAuthenticationFailed = errors.New("invalid username or password")
	ErrAccountDeactivated   = errors.New("this account is deactivated")
)

type (
	Service interface {
		// Authenticate checks the credentials and records the login time.
		Authenticate(ctx context.Context, usernameOrEmail, password string) (user.User, error)
		// Login binds sess to usr. With remember, a new token series is created and its cookie returned.
		Login(ctx context.Context, sess *Session, usr user.User, remember bool) (*RememberCookie, error)
		// Logout unbinds sess and revokes the series of the presented remember-me cookie, if any.
		Logout(ctx context.Context, sess *Session, cookieValue string) error
	}

	service struct {
		users  user.Service
		tokens TokenRepository
	}
)

var _ Service = (*service)(nil)

func NewService(users user.Service, tokens TokenRepository) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(tokens, "tokens"),
	).CheckAndPanic()

	return &service{users: users, tokens: tokens}
}

func (svc *service) Authenticate(ctx context.Context, usernameOrEmail, password string) (user.User, error) {
	usr, err := svc.users.GetByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, ErrAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user")
	}
	if err = usr.CheckPassword(password); err != nil {
		return user.User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return user.User{}, ErrAccountDeactivated
	}
	usr, err = svc.users.SetLastLogin(ctx, usr)
	return usr, errors.Wrap(err, "setting last login")
}

func (svc *service) Login(ctx context.Context, sess *Session, usr user.User, remember bool) (*RememberCookie, error) {
	sess.Bind(usr.ID)
	sess.ForceLogin = false
	if !remember {
		return nil, nil
	}

	series, err := newTokenValue()
	if err != nil {
		return nil, err
	}
	value, err := newTokenValue()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	tok := RememberToken{
		Username:  usr.Username,
		Series:    series,
		TokenHash: digest(value),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = svc.tokens.CreateToken(ctx, tok); err != nil {
		return nil, errors.Wrap(err, "creating remember token")
	}
	return &RememberCookie{Username: usr.Username, Series: series, Token: value}, nil
}

func (svc *service) Logout(ctx context.Context, sess *Session, cookieValue string) error {
	sess.Unbind()
	if cookieValue == "" {
		return nil
	}
	cookie, err := DecodeRememberCookie(cookieValue)
	if err != nil {
		return nil
	}
	if err = svc.tokens.DeleteToken(ctx, cookie.Username, cookie.Series); err != nil && !core.IsNotFound(err) {
		return errors.Wrap(err, "deleting remember token")
	}
	return nil
}
