package echoapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/auth"
	"github.com/cs61as/coursesite/core/course"
	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/progress"
	"github.com/cs61as/coursesite/core/user"
)

const msgNotifyFailed = "Your submission was recorded, but your grader could not be notified. Please let them know."

type (
	progressForm struct {
		Kind      string `form:"kind"`
		Index     int    `form:"index"`
		Completed bool   `form:"completed"`
	}

	itemView struct {
		Kind        progress.Kind
		Index       int
		Name        string
		URL         string
		SICP        bool
		Completed   bool
		Submittable bool
	}

	sectionView struct {
		Title string
		Items []itemView
	}

	lessonData struct {
		Lesson    course.Lesson
		Owner     user.User
		Self      bool
		CanWrite  bool
		Persisted bool
		// Action toggles an item; SubmitAction, when set, turns it in.
		Action       string
		SubmitAction string
		Sections     []sectionView
		Done         int
		Total        int
	}

	lessonSummary struct {
		Lesson course.Lesson
		Done   int
		Total  int
	}

	unitSummary struct {
		Unit    course.Unit
		Lessons []lessonSummary
	}

	dashboardData struct {
		User  user.User
		Units []unitSummary
	}
)

func (s *server) registerLessonRoutes(g *echo.Group) {
	g.GET("/dashboard", s.dashboard, requireCapability(perm.AccessDashboard))
	g.GET("/lessons", s.lessons, requireCapability(perm.ReadLesson))
	g.GET("/lessons/:number", s.lesson, requireCapability(perm.ReadLesson))
	g.POST("/lessons/:number/progress", s.updateOwnProgress, requireCapability(perm.WriteProgress))
	g.POST("/lessons/:number/submit", s.submitOwnItem, requireCapability(perm.WriteProgress))
}

func (s *server) dashboard(ctx echo.Context) error {
	usr, ok := principalOf(ctx).User()
	if !ok {
		return errPermissionDenied
	}
	units, err := s.progressSummary(ctx, usr)
	if err != nil {
		return err
	}
	return s.render(ctx, "dashboard", "Dashboard", dashboardData{User: usr, Units: units})
}

// progressSummary counts the completed items of usr per lesson, grouped by unit.
func (s *server) progressSummary(ctx echo.Context, usr user.User) ([]unitSummary, error) {
	reqCtx := ctx.Request().Context()
	syllabus, err := s.CourseSvc.Syllabus(reqCtx)
	if err != nil {
		return nil, err
	}
	recs, err := s.Tracker.Overview(reqCtx, usr)
	if err != nil {
		return nil, err
	}
	byLesson := make(map[int]progress.Record, len(recs))
	for _, rec := range recs {
		byLesson[rec.LessonNumber] = rec
	}

	units := make([]unitSummary, 0, len(syllabus))
	for _, ul := range syllabus {
		us := unitSummary{Unit: ul.Unit, Lessons: make([]lessonSummary, 0, len(ul.Lessons))}
		for _, l := range ul.Lessons {
			rec, ok := byLesson[l.Number]
			if !ok {
				rec = progress.NewRecord(usr.ID, l)
			}
			done, total := rec.Done()
			us.Lessons = append(us.Lessons, lessonSummary{Lesson: l, Done: done, Total: total})
		}
		units = append(units, us)
	}
	return units, nil
}

func (s *server) lessons(ctx echo.Context) error {
	syllabus, err := s.CourseSvc.Syllabus(ctx.Request().Context())
	if err != nil {
		return err
	}
	return s.render(ctx, "lessons", "Lessons", syllabus)
}

func (s *server) lesson(ctx echo.Context) error {
	setBack(ctx, "/lessons")
	l, err := s.lessonParam(ctx)
	if err != nil {
		return err
	}
	p := principalOf(ctx)
	h, err := s.Tracker.Load(ctx.Request().Context(), p, l)
	if err != nil {
		return err
	}
	owner, _ := p.User()
	base := fmt.Sprintf("/lessons/%d", l.Number)
	data := newLessonData(h, owner.ID != "" && progress.CanWrite(p, owner.ID), base+"/progress")
	data.SubmitAction = base + "/submit"
	data.Self = true
	return s.render(ctx, "lesson", l.Name, data)
}

func (s *server) updateOwnProgress(ctx echo.Context) error {
	setBack(ctx, "/lessons")
	l, err := s.lessonParam(ctx)
	if err != nil {
		return err
	}
	h, err := s.Tracker.Load(ctx.Request().Context(), principalOf(ctx), l)
	if err != nil {
		return err
	}
	return s.setCompleted(ctx, h, fmt.Sprintf("/lessons/%d", l.Number))
}

func (s *server) submitOwnItem(ctx echo.Context) error {
	setBack(ctx, "/lessons")
	l, err := s.lessonParam(ctx)
	if err != nil {
		return err
	}
	h, err := s.Tracker.Load(ctx.Request().Context(), principalOf(ctx), l)
	if err != nil {
		return err
	}
	var form progressForm
	if err = ctx.Bind(&form); err != nil {
		return err
	}
	kind, err := progress.ParseKind(form.Kind)
	if err != nil {
		return err
	}

	back := fmt.Sprintf("/lessons/%d", l.Number)
	err = h.ConfirmSubmission(ctx.Request().Context(), principalOf(ctx), kind, form.Index)
	switch {
	case core.IsNotification(err):
		s.Metrics.ProgressUpdated("submission")
		s.Metrics.NotificationFailed()
		sessionOf(ctx).AddFlash(core.FlashError, msgNotifyFailed)
		return ctx.Redirect(http.StatusFound, back)
	case err != nil:
		return err
	}
	s.Metrics.ProgressUpdated("submission")
	return redirect(ctx, back, "Submission recorded. Your grader has been notified.")
}

// setCompleted applies the progress form to h, answering XHR requests with JSON.
func (s *server) setCompleted(ctx echo.Context, h *progress.Handle, back string) error {
	var form progressForm
	if err := ctx.Bind(&form); err != nil {
		return err
	}
	kind, err := progress.ParseKind(form.Kind)
	if err != nil {
		return err
	}
	if err = h.SetCompleted(ctx.Request().Context(), principalOf(ctx), kind, form.Index, form.Completed); err != nil {
		return err
	}
	s.Metrics.ProgressUpdated(string(kind))

	if ctx.Request().Header.Get(echo.HeaderXRequestedWith) == "XMLHttpRequest" {
		completed, _ := h.Completed(kind, form.Index)
		return ctx.JSON(http.StatusOK, echo.Map{"kind": kind, "index": form.Index, "completed": completed})
	}
	return ctx.Redirect(http.StatusFound, back)
}

func (s *server) lessonParam(ctx echo.Context) (course.Lesson, error) {
	number, err := strconv.Atoi(ctx.Param("number"))
	if err != nil || number < 1 {
		return course.Lesson{}, course.ErrNotFound
	}
	l, err := s.CourseSvc.GetLesson(ctx.Request().Context(), number)
	if err != nil && !core.IsNotFound(err) {
		return course.Lesson{}, errors.Wrap(err, "getting lesson")
	}
	return l, err
}

func newLessonData(h *progress.Handle, canWrite bool, action string) lessonData {
	l, rec := h.Lesson(), h.Record()
	done, total := rec.Done()
	data := lessonData{
		Lesson:    l,
		Owner:     h.Owner(),
		CanWrite:  canWrite,
		Persisted: h.Persisted(),
		Action:    action,
		Done:      done,
		Total:     total,
	}

	item := func(k progress.Kind, i int, name, url string) itemView {
		completed, _ := h.Completed(k, i)
		return itemView{Kind: k, Index: i, Name: name, URL: url, Completed: completed, Submittable: k.Submittable()}
	}

	videos := sectionView{Title: "Videos"}
	for i, v := range l.Videos {
		videos.Items = append(videos.Items, item(progress.KindVideo, i, v.Name, v.URL))
	}
	readings := sectionView{Title: "Readings"}
	for i, r := range l.Readings {
		iv := item(progress.KindReading, i, r.Name, r.URL)
		iv.SICP = r.SICP
		readings.Items = append(readings.Items, iv)
	}
	extras := sectionView{Title: "Extras"}
	for i, e := range l.Extras {
		extras.Items = append(extras.Items, item(progress.KindExtra, i, e.Name, e.URL))
	}
	hwName := l.Homework.Name
	if hwName == "" {
		hwName = fmt.Sprintf("Homework %d", l.Number)
	}
	homework := sectionView{Title: "Homework", Items: []itemView{item(progress.KindHomework, 0, hwName, l.Homework.URL)}}
	project := sectionView{Title: "Project"}
	for i := 0; i < l.ProjectLen(); i++ {
		project.Items = append(project.Items, item(progress.KindProject, i, l.ProjectPartName(i), l.Project.URL))
	}

	for _, sec := range []sectionView{videos, readings, extras, homework, project} {
		if len(sec.Items) > 0 {
			data.Sections = append(data.Sections, sec)
		}
	}
	return data
}

// ownerOf returns the user named by the `:username` route param.
func (s *server) ownerOf(ctx echo.Context) (user.User, error) {
	usr, err := s.UserSvc.GetByUsername(ctx.Request().Context(), ctx.Param("username"))
	if err != nil && !core.IsNotFound(err) {
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return usr, err
}

// staffBack is the listing page a staff member falls back to.
func staffBack(p auth.Principal) string {
	if p.Can(perm.ReadUserInfoEveryone) {
		return "/admin/users"
	}
	return landingPath(p)
}
