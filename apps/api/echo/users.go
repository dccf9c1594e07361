package echoapi

import (
	"fmt"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/progress"
	"github.com/cs61as/coursesite/core/user"
)

type gradesData struct {
	Owner   user.User
	Grades  []user.Grade
	CanEdit bool
}

func (s *server) registerUserRoutes(g *echo.Group) {
	g.GET("/progress/:number", s.userProgress,
		requireCapability(perm.ReadProgressEveryone, ownerFallback(perm.ReadProgress)))
	g.POST("/progress/:number", s.updateUserProgress,
		requireCapability(perm.WriteProgressEveryone, ownerFallback(perm.WriteProgress)))
	g.GET("/grades", s.userGrades,
		requireCapability(perm.ReadGradeEveryone, ownerFallback(perm.ReadGrade)))
	g.POST("/grades", s.addGrade, requireCapability(perm.WriteGradeEveryone))
	g.POST("/grades/:order", s.editGrade, requireCapability(perm.WriteGradeEveryone))
}

func userProgressPath(uname string, number int) string {
	return fmt.Sprintf("/users/%s/progress/%d", url.PathEscape(uname), number)
}

func userGradesPath(uname string) string {
	return "/users/" + url.PathEscape(uname) + "/grades"
}

func (s *server) userProgress(ctx echo.Context) error {
	p := principalOf(ctx)
	setBack(ctx, staffBack(p))
	owner, err := s.ownerOf(ctx)
	if err != nil {
		return err
	}
	l, err := s.lessonParam(ctx)
	if err != nil {
		return err
	}
	h, err := s.Tracker.LoadFor(ctx.Request().Context(), p, owner, l)
	if err != nil {
		return err
	}
	data := newLessonData(h, progress.CanWrite(p, owner.ID), userProgressPath(owner.Username, l.Number))
	data.Self = p.Is(owner.ID)
	return s.render(ctx, "lesson", owner.DisplayName()+": "+l.Name, data)
}

func (s *server) updateUserProgress(ctx echo.Context) error {
	p := principalOf(ctx)
	setBack(ctx, staffBack(p))
	owner, err := s.ownerOf(ctx)
	if err != nil {
		return err
	}
	l, err := s.lessonParam(ctx)
	if err != nil {
		return err
	}
	h, err := s.Tracker.LoadFor(ctx.Request().Context(), p, owner, l)
	if err != nil {
		return err
	}
	return s.setCompleted(ctx, h, userProgressPath(owner.Username, l.Number))
}

func (s *server) userGrades(ctx echo.Context) error {
	p := principalOf(ctx)
	setBack(ctx, staffBack(p))
	owner, err := s.ownerOf(ctx)
	if err != nil {
		return err
	}
	return s.render(ctx, "grades", "Grades of "+owner.DisplayName(), gradesData{
		Owner:   owner,
		Grades:  owner.Grades,
		CanEdit: p.Can(perm.WriteGradeEveryone),
	})
}

func (s *server) addGrade(ctx echo.Context) error {
	setBack(ctx, staffBack(principalOf(ctx)))
	owner, err := s.ownerOf(ctx)
	if err != nil {
		return err
	}
	var gi user.GradeInput
	if err = ctx.Bind(&gi); err != nil {
		return err
	}
	if err = gi.Validate(s.Validate); err != nil {
		return err
	}
	if _, err = s.UserSvc.AddGrade(ctx.Request().Context(), owner, gi); err != nil {
		return err
	}
	return redirect(ctx, userGradesPath(owner.Username), "Grade added.")
}

func (s *server) editGrade(ctx echo.Context) error {
	setBack(ctx, staffBack(principalOf(ctx)))
	owner, err := s.ownerOf(ctx)
	if err != nil {
		return err
	}
	setBack(ctx, userGradesPath(owner.Username))

	// the route param fills Order when the form leaves it out
	var gi user.GradeInput
	if err = ctx.Bind(&gi); err != nil {
		return err
	}
	if err = gi.Validate(s.Validate); err != nil {
		return err
	}
	if _, err = s.UserSvc.EditGrade(ctx.Request().Context(), owner, ctx.Param("order"), gi); err != nil {
		return err
	}
	return redirect(ctx, userGradesPath(owner.Username), "Grade updated.")
}
