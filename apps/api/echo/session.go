package echoapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core/auth"
)

const (
	principalKey = "principal"
	sessionKey   = "session"
)

// principalOf returns the principal memoized by sessionMiddleware, the Guest by default.
func principalOf(ctx echo.Context) auth.Principal {
	if p, ok := ctx.Get(principalKey).(auth.Principal); ok {
		return p
	}
	return auth.Guest
}

func sessionOf(ctx echo.Context) *auth.Session {
	sess, _ := ctx.Get(sessionKey).(*auth.Session)
	return sess
}

// sessionMiddleware loads the session, resolves the principal and saves the session once the request is served.
// Handler errors go through the error handler here, so that their flashes are saved too.
// Empty sessions are neither stored nor given a cookie.
func (s *server) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		reqCtx := ctx.Request().Context()
		sess, stored := s.loadSession(ctx)

		var cookieValue string
		if c, err := ctx.Cookie(s.Conf.Session.RememberCookieName); err == nil {
			cookieValue = c.Value
		}
		res := s.Resolver.Resolve(reqCtx, sess, cookieValue)
		s.Metrics.Resolved(string(res.Source))
		switch {
		case res.SetCookie != nil:
			s.setRememberCookie(ctx, *res.SetCookie)
		case res.ClearCookie:
			s.clearRememberCookie(ctx)
		}
		// a session id known before authentication must not carry the identity
		if res.Source == auth.SourceCookie {
			s.rotateSession(ctx, sess)
		}

		ctx.Set(sessionKey, sess)
		ctx.Set(principalKey, res.Principal)
		// the session id may be rotated by the handler
		ctx.Response().Before(func() {
			switch {
			case !sess.IsEmpty():
				setCookie(ctx, s.sessionCookie(sess.ID))
			case stored:
				setCookie(ctx, s.sessionCookie(""))
			}
		})

		if err := next(ctx); err != nil {
			ctx.Error(err)
		}
		s.persistSession(reqCtx, sess, stored, res.Principal)
		return nil
	}
}

// persistSession saves sess, or forgets it once it is empty.
func (s *server) persistSession(ctx context.Context, sess *auth.Session, stored bool, p auth.Principal) {
	switch {
	case !sess.IsEmpty():
		if err := s.Sessions.SaveSession(ctx, sess); err != nil {
			s.Logger.Error("echoapi.persistSession: saving session", err, userArg(p))
		}
	case stored:
		if err := s.Sessions.DeleteSession(ctx, sess.ID); err != nil {
			s.Logger.Error("echoapi.persistSession: deleting session", err, userArg(p))
		}
	}
}

// loadSession returns the stored session of the request, or a new one and false.
func (s *server) loadSession(ctx echo.Context) (*auth.Session, bool) {
	c, err := ctx.Cookie(s.Conf.Session.CookieName)
	if err != nil || c.Value == "" {
		return auth.NewSession(), false
	}
	if _, err = uuid.Parse(c.Value); err != nil {
		return auth.NewSession(), false
	}
	sess, err := s.Sessions.GetSession(ctx.Request().Context(), c.Value)
	if err != nil {
		if errors.Cause(err) != auth.ErrSessionNotFound {
			s.Logger.Error("echoapi.loadSession: loading session", err)
		}
		return auth.NewSession(), false
	}
	return sess, true
}

// rotateSession moves sess to a new id. Called on login, logout and remember-me authentication.
func (s *server) rotateSession(ctx echo.Context, sess *auth.Session) {
	if err := s.Sessions.DeleteSession(ctx.Request().Context(), sess.ID); err != nil {
		s.Logger.Error("echoapi.rotateSession: deleting session", err)
	}
	sess.ID = uuid.New().String()
	sess.CreatedAt = time.Now().UTC()
}

// sessionCookie carries id, or expires the cookie when id is empty.
func (s *server) sessionCookie(id string) *http.Cookie {
	maxAge := int(s.Conf.Session.TTL.Seconds())
	if id == "" {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     s.Conf.Session.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.Conf.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *server) setRememberCookie(ctx echo.Context, rc auth.RememberCookie) {
	setCookie(ctx, &http.Cookie{
		Name:     s.Conf.Session.RememberCookieName,
		Value:    rc.Encode(),
		Path:     "/",
		MaxAge:   int(s.Conf.Session.RememberTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.Conf.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *server) clearRememberCookie(ctx echo.Context) {
	setCookie(ctx, &http.Cookie{
		Name:     s.Conf.Session.RememberCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Conf.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// setCookie replaces any cookie of the same name already set on the response.
func setCookie(ctx echo.Context, c *http.Cookie) {
	h := ctx.Response().Header()
	var kept []string
	for _, v := range h.Values(echo.HeaderSetCookie) {
		if !strings.HasPrefix(v, c.Name+"=") {
			kept = append(kept, v)
		}
	}
	h.Del(echo.HeaderSetCookie)
	for _, v := range kept {
		h.Add(echo.HeaderSetCookie, v)
	}
	ctx.SetCookie(c)
}
