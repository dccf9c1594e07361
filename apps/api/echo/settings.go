package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/feedback"
	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/user"
)

var errNoEmail = errors.New("add an email address to your account first")

type settingsData struct {
	User     user.User
	CanEdit  bool
	CanReset bool
}

func (s *server) registerSettingsRoutes(g *echo.Group) {
	g.GET("", s.settingsPage, requireCapability(perm.ReadUserInfo))
	g.POST("", s.updateSettings, requireCapability(perm.WriteUserInfo))
	g.POST("/password", s.changePassword, requireCapability(perm.WritePassword))
	g.POST("/password-reset", s.selfPasswordReset, requireCapability(perm.ResetPassword))
}

// currentUser returns the authenticated user; the guard has already turned the Guest away.
func currentUser(ctx echo.Context) (user.User, error) {
	usr, ok := principalOf(ctx).User()
	if !ok {
		return user.User{}, errPermissionDenied
	}
	return usr, nil
}

func (s *server) settingsPage(ctx echo.Context) error {
	usr, err := currentUser(ctx)
	if err != nil {
		return err
	}
	return s.render(ctx, "settings", "Settings", settingsData{
		User:     usr,
		CanEdit:  usr.Can(perm.WriteUserInfo),
		CanReset: usr.Can(perm.ResetPassword) && usr.Email != "",
	})
}

func (s *server) updateSettings(ctx echo.Context) error {
	setBack(ctx, "/settings")
	usr, err := currentUser(ctx)
	if err != nil {
		return err
	}
	var st user.Settings
	if err = ctx.Bind(&st); err != nil {
		return err
	}
	if err = st.Validate(usr, s.Validate, s.UserSvc); err != nil {
		return err
	}
	if _, err = s.UserSvc.UpdateSettings(ctx.Request().Context(), usr, st); err != nil {
		return err
	}
	return redirect(ctx, "/settings", "Your settings have been saved.")
}

func (s *server) changePassword(ctx echo.Context) error {
	setBack(ctx, "/settings")
	usr, err := currentUser(ctx)
	if err != nil {
		return err
	}
	var pc user.PasswordChange
	if err = ctx.Bind(&pc); err != nil {
		return err
	}
	if err = pc.Validate(usr, s.Validate); err != nil {
		return err
	}
	if _, err = s.UserSvc.ChangePassword(ctx.Request().Context(), usr, pc); err != nil {
		return err
	}
	return redirect(ctx, "/settings", "Your password has been changed.")
}

func (s *server) selfPasswordReset(ctx echo.Context) error {
	setBack(ctx, "/settings")
	usr, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if usr.Email == "" {
		return core.NewValidationError(errNoEmail, core.FieldError{Field: "email", Error: errNoEmail.Error()})
	}
	if err = s.UserSvc.RequestPasswordReset(ctx.Request().Context(), usr.Email); err != nil {
		return errors.Wrap(err, "requesting password reset")
	}
	return redirect(ctx, "/settings", "A password reset link was sent to "+usr.Email+".")
}

func (s *server) submitFeedback(ctx echo.Context) error {
	setBack(ctx, "/dashboard")
	usr, err := currentUser(ctx)
	if err != nil {
		return err
	}
	var in feedback.Input
	if err = ctx.Bind(&in); err != nil {
		return err
	}
	if err = in.Validate(s.Validate); err != nil {
		return err
	}
	if _, err = s.FeedbackSvc.Submit(ctx.Request().Context(), usr, in); err != nil {
		return err
	}
	return redirect(ctx, refererPath(ctx), "Thanks for your feedback!")
}
