package echoapi

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/course"
	"github.com/cs61as/coursesite/core/feedback"
	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/user"
)

var (
	// errors
	errRoleForbidden  = errors.New("you may not grant permissions")
	errSelfLockout    = errors.New("you may not remove your own permission management")
	errSelfDelete     = errors.New("you may not delete your own account")
	errUserHasNoEmail = errors.New("this user has no email address")
)

type (
	adminIndexData struct {
		Users       int
		Lessons     int
		OpenTickets int
	}

	adminUsersData struct {
		Users      []user.User
		Filter     user.QueryFilter
		Ordering   string
		Roles      []string
		CanCreate  bool
		CanSetRole bool
	}

	adminUserData struct {
		User        user.User
		Grader      user.User
		Roles       []string
		Units       []unitSummary
		CanEdit     bool
		CanSetRole  bool
		CanPassword bool
		CanReset    bool
	}

	capabilityView struct {
		Name string
		Held bool
	}

	adminPermissionData struct {
		User         user.User
		Role         string
		Capabilities []capabilityView
		Roles        []string
		CanEdit      bool
	}

	// adminLessonsData edits the lesson EditNumber, or creates one when it is 0.
	adminLessonsData struct {
		Units      []course.Unit
		Lessons    []course.Lesson
		Form       course.LessonInput
		EditNumber int
	}

	adminFeedbackData struct {
		Tickets []feedback.Ticket
		All     bool
	}

	// adminUserForm is the admin user edit form; an empty Role keeps the permission mask.
	adminUserForm struct {
		user.UpdateUser
		Role string `form:"role"`
	}

	permissionForm struct {
		Role         string   `form:"role"`
		Capabilities []string `form:"capabilities"`
	}
)

func (s *server) registerAdminRoutes(g *echo.Group) {
	g.GET("", s.adminIndex, requireCapability(perm.AccessAdminPanel))

	g.GET("/users", s.adminUsers, requireCapability(perm.ReadUserInfoEveryone))
	g.POST("/users", s.adminCreateUser, requireCapability(perm.WriteUserInfoEveryone))
	g.GET("/users/:username", s.adminUser, requireCapability(perm.ReadUserInfoEveryone))
	g.POST("/users/:username", s.adminUpdateUser, requireCapability(perm.WriteUserInfoEveryone))
	g.GET("/users/:username/permission", s.adminPermission, requireCapability(perm.ReadPermissionEveryone))
	g.POST("/users/:username/permission", s.adminSetPermission, requireCapability(perm.WritePermissionEveryone))
	g.POST("/users/:username/password", s.adminSetPassword, requireCapability(perm.WritePasswordEveryone))
	g.POST("/users/:username/password-reset", s.adminPasswordReset, requireCapability(perm.ResetPasswordEveryone))
	g.POST("/users/:username/delete", s.adminDeleteUser, requireCapability(perm.WriteUserInfoEveryone))

	g.GET("/lessons", s.adminLessons, requireCapability(perm.WriteLesson))
	g.POST("/lessons", s.adminCreateLesson, requireCapability(perm.WriteLesson))
	g.POST("/lessons/:number", s.adminUpdateLesson, requireCapability(perm.WriteLesson))
	g.POST("/lessons/:number/delete", s.adminDeleteLesson, requireCapability(perm.WriteLesson))
	g.POST("/units", s.adminSaveUnit, requireCapability(perm.WriteLesson))

	g.GET("/feedback", s.adminFeedback, requireCapability(perm.AccessAdminPanel))
	g.POST("/feedback/:id/resolve", s.adminResolveFeedback, requireCapability(perm.AccessAdminPanel))
}

func adminUserPath(uname string) string {
	return "/admin/users/" + url.PathEscape(uname)
}

func roleNames() []string {
	roles := perm.Roles()
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if r != perm.RoleGuest {
			names = append(names, r.String())
		}
	}
	return names
}

func (s *server) adminIndex(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	users, err := s.UserSvc.QueryUsers(reqCtx, nil, nil)
	if err != nil {
		return err
	}
	lessons, err := s.CourseSvc.Lessons(reqCtx)
	if err != nil {
		return err
	}
	tickets, err := s.FeedbackSvc.Query(reqCtx, true /* onlyOpen */)
	if err != nil {
		return err
	}
	return s.render(ctx, "admin", "Admin", adminIndexData{
		Users:       len(users),
		Lessons:     len(lessons),
		OpenTickets: len(tickets),
	})
}

func (s *server) adminUsers(ctx echo.Context) error {
	setBack(ctx, "/admin")
	filter, err := bindUserFilter(ctx)
	if err != nil {
		return err
	}
	var ord Ordering
	ord.Bind(ctx)

	var qf *user.QueryFilter
	if !filter.IsEmpty() {
		qf = &filter
	}
	users, err := s.UserSvc.QueryUsers(ctx.Request().Context(), qf, ord.Orderings)
	if err != nil {
		return err
	}
	p := principalOf(ctx)
	return s.render(ctx, "admin_users", "Users", adminUsersData{
		Users:      users,
		Filter:     filter,
		Ordering:   ctx.QueryParam(orderingParam),
		Roles:      roleNames(),
		CanCreate:  p.Can(perm.WriteUserInfoEveryone),
		CanSetRole: p.Can(perm.WritePermissionEveryone),
	})
}

func (s *server) adminCreateUser(ctx echo.Context) error {
	setBack(ctx, "/admin/users")
	var nu user.NewUser
	if err := ctx.Bind(&nu); err != nil {
		return err
	}
	if err := nu.Validate(s.Validate, s.UserSvc); err != nil {
		return err
	}
	if nu.Permission != perm.Student && !principalOf(ctx).Can(perm.WritePermissionEveryone) {
		return core.NewValidationError(errRoleForbidden, core.FieldError{Field: "role", Error: errRoleForbidden.Error()})
	}
	usr, err := s.UserSvc.Create(ctx.Request().Context(), nu)
	if err != nil {
		return err
	}
	return redirect(ctx, adminUserPath(usr.Username), "User "+usr.Username+" created.")
}

func (s *server) adminUser(ctx echo.Context) error {
	setBack(ctx, "/admin/users")
	usr, err := s.ownerOf(ctx)
	if err != nil {
		return err
	}
	p := principalOf(ctx)
	data := adminUserData{
		User:        usr,
		Roles:       roleNames(),
		CanEdit:     p.Can(perm.WriteUserInfoEveryone),
		CanSetRole:  p.Can(perm.WritePermissionEveryone),
		CanPassword: p.Can(perm.WritePasswordEveryone),
		CanReset:    p.Can(perm.ResetPasswordEveryone) && usr.Email != "",
	}
	if grader, err := s.UserSvc.Grader(ctx.Request().Context(), usr); err == nil {
		data.Grader = grader
	} else if !core.IsNotFound(err) {
		return errors.Wrap(err, "getting grader")
	}
	if p.Can(perm.ReadProgressEveryone) {
		if data.Units, err = s.progressSummary(ctx, usr); err != nil {
			return err
		}
	}
	return s.render(ctx, "admin_user", usr.DisplayName(), data)
}

func (s *server) adminUpdateUser(ctx echo.Context) error {
	setBack(ctx, "/admin/users")
	usr, err := s.ownerOf(ctx)
	if err != nil {
		return err
	}
	setBack(ctx, adminUserPath(usr.Username))

	var form adminUserForm
	if err = ctx.Bind(&form); err != nil {
		return err
	}
	if err = form.UpdateUser.Validate(usr, s.Validate, s.UserSvc); err != nil {
		return err
	}

	mask := usr.Permission
	if role := core.CleanString(form.Role, true /* lower */); role != "" {
		r, err := perm.ParseRole(role)
		if err != nil || r == perm.RoleGuest {
			return core.NewValidationError(perm.ErrUnknownRole, core.FieldError{Field: "role", Error: perm.ErrUnknownRole.Error()})
		}
		mask = r.Mask()
	}
	if mask != usr.Permission {
		if err = s.checkPermissionChange(ctx, usr, mask); err != nil {
			return err
		}
	}

	reqCtx := ctx.Request().Context()
	if usr, err = s.UserSvc.Update(reqCtx, usr, form.UpdateUser); err != nil {
		return err
	}
	if mask != usr.Permission {
		if usr, err = s.UserSvc.SetPermission(reqCtx, usr, mask); err != nil {
			return err
		}
	}
	return redirect(ctx, adminUserPath(usr.Username), "User "+usr.Username+" updated.")
}

// checkPermissionChange refuses mask changes to principals without write-permission-everyone,
// and a principal removing their own.
func (s *server) checkPermissionChange(ctx echo.Context, usr user.User, mask perm.Mask) error {
	p := principalOf(ctx)
	if !p.Can(perm.WritePermissionEveryone) {
		return core.NewValidationError(errRoleForbidden, core.FieldError{Field: "role", Error: errRoleForbidden.Error()})
	}
	if p.Is(usr.ID) && !mask.Has(perm.WritePermissionEveryone) {
		return core.NewValidationError(errSelfLockout, core.FieldError{Field: "role", Error: errSelfLockout.Error()})
	}
	return nil
}

func (s *server) adminPermission(ctx echo.Context) error {
	setBack(ctx, "/admin/users")
	usr, err := s.ownerOf(ctx)
	if err != nil {
		return err
	}
	caps := perm.Capabilities()
	views := make([]capabilityView, 0, len(caps))
	for _, c := range caps {
		views = append(views, capabilityView{Name: c.String(), Held: usr.Permission.Has(c)})
	}
	return s.render(ctx, "admin_permission", "Permissions of "+usr.DisplayName(), adminPermissionData{
		User:         usr,
		Role:         usr.RoleName(),
		Capabilities: views,
		Roles:        roleNames(),
		CanEdit:      principalOf(ctx).Can(perm.WritePermissionEveryone),
	})
}

func (s *server) adminSetPermission(ctx echo.Context) error {
	setBack(ctx, "/admin/users")
	usr, err := s.ownerOf(ctx)
	if err != nil {
		return err
	}
	setBack(ctx, adminUserPath(usr.Username)+"/permission")

	var form permissionForm
	if err = ctx.Bind(&form); err != nil {
		return err
	}
	var mask perm.Mask
	if role := core.CleanString(form.Role, true /* lower */); role != "" {
		r, err := perm.ParseRole(role)
		if err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "role", Error: perm.ErrUnknownRole.Error()})
		}
		mask = r.Mask()
	} else if mask, err = perm.ParseMask(form.Capabilities); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "capabilities", Error: err.Error()})
	}
	if err = s.checkPermissionChange(ctx, usr, mask); err != nil {
		return err
	}
	if _, err = s.UserSvc.SetPermission(ctx.Request().Context(), usr, mask); err != nil {
		return err
	}
	return redirect(ctx, adminUserPath(usr.Username)+"/permission", "Permissions of "+usr.Username+" updated.")
}

func (s *server) adminSetPassword(ctx echo.Context) error {
	setBack(ctx, "/admin/users")
	usr, err := s.ownerOf(ctx)
	if err != nil {
		return err
	}
	setBack(ctx, adminUserPath(usr.Username))

	var sp user.SetUserPassword
	if err = ctx.Bind(&sp); err != nil {
		return err
	}
	if err = sp.Validate(usr, s.Validate); err != nil {
		return err
	}
	if _, err = s.UserSvc.SetPassword(ctx.Request().Context(), usr, sp.Password); err != nil {
		return err
	}
	return redirect(ctx, adminUserPath(usr.Username), "Password of "+usr.Username+" changed.")
}

func (s *server) adminPasswordReset(ctx echo.Context) error {
	setBack(ctx, "/admin/users")
	usr, err := s.ownerOf(ctx)
	if err != nil {
		return err
	}
	setBack(ctx, adminUserPath(usr.Username))
	if usr.Email == "" {
		return core.NewValidationError(errUserHasNoEmail, core.FieldError{Field: "email", Error: errUserHasNoEmail.Error()})
	}
	if err = s.UserSvc.RequestPasswordReset(ctx.Request().Context(), usr.Email); err != nil {
		return errors.Wrap(err, "requesting password reset")
	}
	return redirect(ctx, adminUserPath(usr.Username), "A password reset link was sent to "+usr.Email+".")
}

func (s *server) adminDeleteUser(ctx echo.Context) error {
	setBack(ctx, "/admin/users")
	usr, err := s.ownerOf(ctx)
	if err != nil {
		return err
	}
	if principalOf(ctx).Is(usr.ID) {
		return core.NewValidationError(errSelfDelete)
	}
	if _, err = s.UserSvc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return err
	}
	return redirect(ctx, "/admin/users", "User "+usr.Username+" deleted.")
}

func (s *server) adminLessons(ctx echo.Context) error {
	setBack(ctx, "/admin")
	reqCtx := ctx.Request().Context()
	units, err := s.CourseSvc.Units(reqCtx)
	if err != nil {
		return err
	}
	lessons, err := s.CourseSvc.Lessons(reqCtx)
	if err != nil {
		return err
	}
	data := adminLessonsData{Units: units, Lessons: lessons}
	data.Form.Number = 1
	if n := len(lessons); n > 0 {
		data.Form.Number = lessons[n-1].Number + 1
	}
	if edit := ctx.QueryParam("edit"); edit != "" {
		setBack(ctx, "/admin/lessons")
		number, err := strconv.Atoi(edit)
		if err != nil {
			return course.ErrNotFound
		}
		l, err := s.CourseSvc.GetLesson(reqCtx, number)
		if err != nil {
			return err
		}
		data.Form, data.EditNumber = course.NewLessonInput(l), number
	}
	return s.render(ctx, "admin_lessons", "Lessons", data)
}

func (s *server) adminCreateLesson(ctx echo.Context) error {
	setBack(ctx, "/admin/lessons")
	var li course.LessonInput
	if err := ctx.Bind(&li); err != nil {
		return err
	}
	if err := li.Validate(s.Validate); err != nil {
		return err
	}
	l, err := s.CourseSvc.CreateLesson(ctx.Request().Context(), li)
	if err != nil {
		return err
	}
	return redirect(ctx, "/admin/lessons", fmt.Sprintf("Lesson %d created.", l.Number))
}

func (s *server) adminUpdateLesson(ctx echo.Context) error {
	setBack(ctx, "/admin/lessons")
	number, err := strconv.Atoi(ctx.Param("number"))
	if err != nil {
		return course.ErrNotFound
	}
	var li course.LessonInput
	if err = ctx.Bind(&li); err != nil {
		return err
	}
	if err = li.Validate(s.Validate); err != nil {
		return err
	}
	l, err := s.CourseSvc.UpdateLesson(ctx.Request().Context(), number, li)
	if err != nil {
		return err
	}
	return redirect(ctx, "/admin/lessons", fmt.Sprintf("Lesson %d updated.", l.Number))
}

func (s *server) adminDeleteLesson(ctx echo.Context) error {
	setBack(ctx, "/admin/lessons")
	number, err := strconv.Atoi(ctx.Param("number"))
	if err != nil {
		return course.ErrNotFound
	}
	if err = s.CourseSvc.DeleteLesson(ctx.Request().Context(), number); err != nil {
		return err
	}
	return redirect(ctx, "/admin/lessons", fmt.Sprintf("Lesson %d deleted.", number))
}

func (s *server) adminSaveUnit(ctx echo.Context) error {
	setBack(ctx, "/admin/lessons")
	var ui course.UnitInput
	if err := ctx.Bind(&ui); err != nil {
		return err
	}
	if err := ui.Validate(s.Validate); err != nil {
		return err
	}
	u, err := s.CourseSvc.SaveUnit(ctx.Request().Context(), ui)
	if err != nil {
		return err
	}
	return redirect(ctx, "/admin/lessons", fmt.Sprintf("Unit %d saved.", u.Number))
}

func (s *server) adminFeedback(ctx echo.Context) error {
	setBack(ctx, "/admin")
	all := ctx.QueryParam("all") == "true"
	tickets, err := s.FeedbackSvc.Query(ctx.Request().Context(), !all)
	if err != nil {
		return err
	}
	return s.render(ctx, "admin_feedback", "Feedback", adminFeedbackData{Tickets: tickets, All: all})
}

func (s *server) adminResolveFeedback(ctx echo.Context) error {
	setBack(ctx, "/admin/feedback")
	if _, err := s.FeedbackSvc.Resolve(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return redirect(ctx, "/admin/feedback", "Ticket resolved.")
}
