package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/auth"
	"github.com/cs61as/coursesite/core/user"
)

type (
	loginForm struct {
		Username string `form:"username" validate:"required"`
		Password string `form:"password" validate:"required"`
		Remember bool   `form:"remember"`
	}

	passwordResetForm struct {
		Email string `form:"email" validate:"required,email"`
	}

	homeData struct {
		ForceLogin bool
	}

	resetConfirmData struct {
		UID   string
		Token string
	}
)

const msgResetSent = "If an account uses this email address, a password reset link was sent to it."

func (s *server) registerAuthRoutes(g *echo.Group, rateLimit echo.MiddlewareFunc) {
	g.GET("/home", s.home)
	g.POST("/login", s.login, rateLimit)
	g.GET("/logout", s.logout)
	g.POST("/logout", s.logout)
	g.GET("/password-reset", s.passwordResetPage)
	g.POST("/password-reset", s.requestPasswordReset, rateLimit)
	g.GET("/password-reset/confirm", s.passwordResetConfirmPage)
	g.POST("/password-reset/confirm", s.confirmPasswordReset)
}

func (s *server) home(ctx echo.Context) error {
	var data homeData
	if sess := sessionOf(ctx); sess != nil {
		data.ForceLogin = sess.ForceLogin
	}
	return s.render(ctx, "home", "Welcome", data)
}

func (s *server) login(ctx echo.Context) error {
	setBack(ctx, "/home")

	var form loginForm
	if err := ctx.Bind(&form); err != nil {
		return err
	}
	form.Username = core.CleanString(form.Username, true /* lower */)
	if err := s.Validate.Struct(&form); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, err := s.AuthSvc.Authenticate(reqCtx, form.Username, form.Password)
	if err != nil {
		switch errors.Cause(err) {
		case auth.ErrAuthenticationFailed:
			s.Metrics.Login("failure")
		case auth.ErrAccountDeactivated:
			s.Metrics.Login("deactivated")
		default:
			s.Metrics.Login("error")
		}
		return err
	}

	sess := sessionOf(ctx)
	s.rotateSession(ctx, sess)
	rc, err := s.AuthSvc.Login(reqCtx, sess, usr, form.Remember)
	if err != nil {
		return errors.Wrap(err, "logging in")
	}
	if rc != nil {
		s.setRememberCookie(ctx, *rc)
	}
	s.Metrics.Login("success")
	return redirect(ctx, landingPath(auth.Authenticated(usr)), "Welcome back, "+usr.DisplayName()+"!")
}

func (s *server) logout(ctx echo.Context) error {
	var cookieValue string
	if c, err := ctx.Cookie(s.Conf.Session.RememberCookieName); err == nil {
		cookieValue = c.Value
	}
	sess := sessionOf(ctx)
	if err := s.AuthSvc.Logout(ctx.Request().Context(), sess, cookieValue); err != nil {
		return errors.Wrap(err, "logging out")
	}
	s.rotateSession(ctx, sess)
	s.clearRememberCookie(ctx)
	return redirect(ctx, "/home", "You have been logged out.")
}

func (s *server) passwordResetPage(ctx echo.Context) error {
	return s.render(ctx, "password_reset", "Reset your password", nil)
}

func (s *server) requestPasswordReset(ctx echo.Context) error {
	setBack(ctx, "/password-reset")

	var form passwordResetForm
	if err := ctx.Bind(&form); err != nil {
		return err
	}
	form.Email = core.CleanString(form.Email, true /* lower */)
	if err := s.Validate.Struct(&form); err != nil {
		return err
	}
	// unknown addresses get the same answer
	if err := s.UserSvc.RequestPasswordReset(ctx.Request().Context(), form.Email); err != nil && !core.IsNotFound(err) {
		return errors.Wrap(err, "requesting password reset")
	}
	return redirect(ctx, "/home", msgResetSent)
}

func (s *server) passwordResetConfirmPage(ctx echo.Context) error {
	return s.render(ctx, "password_reset_confirm", "Choose a new password", resetConfirmData{
		UID:   ctx.QueryParam("uid"),
		Token: ctx.QueryParam("token"),
	})
}

func (s *server) confirmPasswordReset(ctx echo.Context) error {
	setBack(ctx, "/password-reset")

	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(s.Validate); err != nil {
		return err
	}
	if _, err := s.UserSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return err
	}
	return redirect(ctx, "/home", "Your password has been reset. You may now log in.")
}
