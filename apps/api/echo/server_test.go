package echoapi_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	echoapi "github.com/cs61as/coursesite/apps/api/echo"
	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/auth"
	"github.com/cs61as/coursesite/core/course"
	"github.com/cs61as/coursesite/core/feedback"
	"github.com/cs61as/coursesite/core/mocks"
	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/progress"
	"github.com/cs61as/coursesite/core/user"
	emailsvc "github.com/cs61as/coursesite/services/email"
	logsvc "github.com/cs61as/coursesite/services/logger"
	metricsvc "github.com/cs61as/coursesite/services/metrics"
	inmemdb "github.com/cs61as/coursesite/storage/database/inmem"
	sessionstore "github.com/cs61as/coursesite/storage/session"
	"github.com/cs61as/coursesite/testutil"
)

var baseConf = core.NewTestConfig()

func TestMain(m *testing.M) {
	logger := logsvc.NewTestLogger()
	core.ParseEmailTemplates(baseConf, logger)
	user.LoadCommonPasswords(logger)
	os.Exit(m.Run())
}

type fixture struct {
	conf       *core.Config
	app        echoapi.Server
	logger     *logsvc.TestLogger
	mailSvc    *emailsvc.ConsoleServiceMock
	metrics    *metricsvc.Metrics
	sessions   *sessionstore.MemoryStore
	userRepo   user.Repository
	courseRepo course.Repository
	progress   progress.Repository
	tokens     auth.TokenRepository
	feedback   feedback.Repository
	users      user.Service

	lesson                                  course.Lesson
	student, grader, instructor, superadmin user.User
}

// option tweaks the fixture before the server is built.
type option func(f *fixture, deps *echoapi.ServerDeps)

func withConf(fn func(conf *core.Config)) option {
	return func(f *fixture, _ *echoapi.ServerDeps) { fn(f.conf) }
}

func setup(t *testing.T, opts ...option) *fixture {
	t.Helper()
	conf := *baseConf
	db := inmemdb.Open()
	f := &fixture{
		conf:       &conf,
		logger:     logsvc.NewTestLogger(),
		metrics:    metricsvc.New(conf.Build),
		sessions:   sessionstore.NewMemoryStore(conf.Session.TTL),
		userRepo:   inmemdb.NewUserRepository(db),
		courseRepo: inmemdb.NewCourseRepository(db),
		progress:   inmemdb.NewProgressRepository(db),
		tokens:     inmemdb.NewTokenRepository(db),
		feedback:   inmemdb.NewFeedbackRepository(db),
	}
	f.mailSvc = emailsvc.NewConsoleServiceMock(f.conf, f.logger)
	f.users = user.NewServiceMock(f.userRepo, f.mailSvc, f.logger)

	validate, translator := testutil.NewValidator(f.conf)
	deps := echoapi.ServerDeps{
		Conf:        f.conf,
		Logger:      f.logger,
		Validate:    validate,
		Translator:  translator,
		Metrics:     f.metrics,
		Sessions:    f.sessions,
		Resolver:    auth.NewResolver(f.users, f.tokens, f.logger),
		AuthSvc:     auth.NewService(f.users, f.tokens),
		UserSvc:     f.users,
		CourseSvc:   course.NewService(nil, f.courseRepo),
		FeedbackSvc: feedback.NewService(f.feedback, f.mailSvc, f.conf),
	}
	for _, opt := range opts {
		opt(f, &deps)
	}
	if deps.Tracker == nil {
		deps.Tracker = progress.NewTracker(f.progress, f.users, f.mailSvc, f.conf, f.logger)
	}
	f.app = echoapi.NewServer(deps)

	f.lesson = testutil.CreateLesson(t, f.courseRepo, 1, 1, 2)
	pwd := testutil.DefaultPassword
	f.student = testutil.CreateUser(t, f.userRepo, "Alyssa", "alyssa", "alyssa@cs61as.test", pwd, perm.Student, true)
	f.grader = testutil.CreateUser(t, f.userRepo, "Ben", "ben", "ben@cs61as.test", pwd, perm.Grader, true)
	f.instructor = testutil.CreateUser(t, f.userRepo, "Eva", "eva", "eva@cs61as.test", pwd, perm.Instructor, true)
	f.superadmin = testutil.CreateUser(t, f.userRepo, "Prof", "prof", "prof@cs61as.test", pwd, perm.SuperAdmin, true)
	return f
}

// client plays a browser: it keeps the cookies the server sets.
type client struct {
	t       *testing.T
	app     http.Handler
	cookies map[string]*http.Cookie
}

func (f *fixture) newClient(t *testing.T) *client {
	return &client{t: t, app: f.app, cookies: make(map[string]*http.Cookie)}
}

// loggedIn returns a client logged in as usr, without remember-me.
func (f *fixture) loggedIn(t *testing.T, usr user.User) *client {
	t.Helper()
	c := f.newClient(t)
	c.login(usr.Username, testutil.DefaultPassword, false)
	return c
}

func (c *client) do(method, path string, form url.Values, headers ...string) *httptest.ResponseRecorder {
	c.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	for _, ck := range c.cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}

	rec := httptest.NewRecorder()
	c.app.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 || ck.Value == "" {
			delete(c.cookies, ck.Name)
		} else {
			c.cookies[ck.Name] = ck
		}
	}
	return rec
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	c.t.Helper()
	return c.do(http.MethodGet, path, nil)
}

func (c *client) post(path string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	return c.do(http.MethodPost, path, form)
}

// follow requests the redirect target of rec.
func (c *client) follow(rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	c.t.Helper()
	require.Equal(c.t, http.StatusFound, rec.Code, "not a redirect: %s", rec.Body.String())
	return c.get(rec.Header().Get(echo.HeaderLocation))
}

func (c *client) login(uname, pwd string, remember bool) *httptest.ResponseRecorder {
	c.t.Helper()
	form := url.Values{"username": {uname}, "password": {pwd}}
	if remember {
		form.Set("remember", "true")
	}
	return c.post("/login", form)
}

func (c *client) cookie(name string) string {
	if ck, ok := c.cookies[name]; ok {
		return ck.Value
	}
	return ""
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder, location string) {
	t.Helper()
	if assert.Equal(t, http.StatusFound, rec.Code, rec.Body.String()) {
		assert.Equal(t, location, rec.Header().Get(echo.HeaderLocation))
	}
}

// assertFlash follows rec and checks the page shows msg.
func (c *client) assertFlash(rec *httptest.ResponseRecorder, msg string) {
	c.t.Helper()
	page := c.follow(rec)
	assert.Equal(c.t, http.StatusOK, page.Code)
	assert.Contains(c.t, page.Body.String(), msg)
}

func TestServer_landing(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name string
		usr  *user.User
		want string
	}{
		{name: "guest", want: "/lessons"},
		{name: "student", usr: &f.student, want: "/dashboard"},
		{name: "grader", usr: &f.grader, want: "/dashboard"},
		{name: "instructor", usr: &f.instructor, want: "/admin"},
		{name: "superadmin", usr: &f.superadmin, want: "/admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := f.newClient(t)
			if tt.usr != nil {
				c = f.loggedIn(t, *tt.usr)
			}
			assertRedirect(t, c.get("/"), tt.want)
		})
	}
}

func TestServer_routeGuard(t *testing.T) {
	f := setup(t)
	denied := "You do not have permission to view that page."

	tests := []struct {
		name     string
		usr      *user.User
		path     string
		wantCode int
		wantLoc  string
	}{
		{name: "guest reads lessons", path: "/lessons", wantCode: http.StatusOK},
		{name: "guest reads a lesson", path: "/lessons/1", wantCode: http.StatusOK},
		{name: "guest dashboard", path: "/dashboard", wantCode: http.StatusFound, wantLoc: "/lessons"},
		{name: "guest settings", path: "/settings", wantCode: http.StatusFound, wantLoc: "/lessons"},
		{name: "guest admin", path: "/admin", wantCode: http.StatusFound, wantLoc: "/lessons"},
		{name: "student dashboard", usr: &f.student, path: "/dashboard", wantCode: http.StatusOK},
		{name: "student settings", usr: &f.student, path: "/settings", wantCode: http.StatusOK},
		{name: "student admin", usr: &f.student, path: "/admin", wantCode: http.StatusFound, wantLoc: "/dashboard"},
		{name: "student users", usr: &f.student, path: "/admin/users", wantCode: http.StatusFound, wantLoc: "/dashboard"},
		{name: "grader users", usr: &f.grader, path: "/admin/users", wantCode: http.StatusOK},
		{name: "grader admin", usr: &f.grader, path: "/admin", wantCode: http.StatusFound, wantLoc: "/dashboard"},
		{name: "grader lessons admin", usr: &f.grader, path: "/admin/lessons", wantCode: http.StatusFound, wantLoc: "/dashboard"},
		{name: "instructor admin", usr: &f.instructor, path: "/admin", wantCode: http.StatusOK},
		{name: "instructor lessons admin", usr: &f.instructor, path: "/admin/lessons", wantCode: http.StatusOK},
		{name: "instructor permission page", usr: &f.instructor, path: "/admin/users/alyssa/permission", wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := f.newClient(t)
			if tt.usr != nil {
				c = f.loggedIn(t, *tt.usr)
				c.get("/") // consume the welcome flash
			}
			rec := c.get(tt.path)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantLoc != "" {
				assertRedirect(t, rec, tt.wantLoc)
				c.assertFlash(rec, denied)
			}
		})
	}
}

func TestServer_postGuard(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.instructor)

	// instructors lack write-permission-everyone
	rec := c.post("/admin/users/alyssa/permission", url.Values{"role": {"superadmin"}})
	assertRedirect(t, rec, "/admin")

	usr, err := f.users.GetByUsername(context.Background(), "alyssa")
	require.NoError(t, err)
	assert.Equal(t, perm.Student, usr.Permission)
}

func TestServer_notFound(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.student)
	c.get("/")

	rec := c.get("/nowhere")
	assertRedirect(t, rec, "/dashboard")
	c.assertFlash(rec, "Page not found.")

	rec = c.get("/lessons/42")
	assertRedirect(t, rec, "/lessons")
	c.assertFlash(rec, "Lesson not found.")

	rec = c.get("/lessons/abc")
	assertRedirect(t, rec, "/lessons")
}

func TestServer_unexpectedError(t *testing.T) {
	errDB := errors.New("database is down")
	brokenTracker := func(t *testing.T) option {
		return func(f *fixture, deps *echoapi.ServerDeps) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockRepository(ctrl)
			repo.EXPECT().GetProgress(gomock.Any(), gomock.Any(), gomock.Any()).Return(progress.Record{}, errDB).AnyTimes()
			repo.EXPECT().QueryUserProgress(gomock.Any(), gomock.Any()).Return(nil, errDB).AnyTimes()
			deps.Tracker = progress.NewTracker(repo, f.users, f.mailSvc, f.conf, f.logger)
		}
	}

	t.Run("flash", func(t *testing.T) {
		f := setup(t, brokenTracker(t))
		c := f.loggedIn(t, f.student)

		rec := c.get("/lessons/1")
		assertRedirect(t, rec, "/dashboard")
		assert.True(t, f.logger.Has("ERROR", "GET /lessons/1"))

		page := c.get("/lessons")
		assert.Contains(t, page.Body.String(), "Something went wrong. Please contact an administrator.")
	})

	t.Run("debug", func(t *testing.T) {
		f := setup(t, brokenTracker(t), withConf(func(conf *core.Config) { conf.Debug = true }))
		c := f.loggedIn(t, f.student)

		rec := c.get("/lessons/1")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), errDB.Error())
	})
}

func TestServer_shutdownError(t *testing.T) {
	f := setup(t, func(f *fixture, deps *echoapi.ServerDeps) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockRepository(ctrl)
		errSchema := errors.Wrap(core.NewShutdownError("database schema is out of date"), "selecting progress")
		repo.EXPECT().GetProgress(gomock.Any(), gomock.Any(), gomock.Any()).Return(progress.Record{}, errSchema).AnyTimes()
		deps.Tracker = progress.NewTracker(repo, f.users, f.mailSvc, f.conf, f.logger)
	})
	c := f.loggedIn(t, f.student)

	assertRedirect(t, c.get("/lessons/1"), "/dashboard")
	select {
	case <-f.app.ShutdownSignal():
	case <-time.After(time.Second):
		t.Fatal("a shutdown error must signal the server to stop")
	}
}

func TestServer_metrics(t *testing.T) {
	f := setup(t)
	c := f.newClient(t)
	c.get("/lessons")
	c.get("/lessons")
	c.get("/nowhere")
	c.login("alyssa", "wrong password", false)

	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `cs61as_http_requests_total{method="GET",route="/lessons",status="200"} 2`)
	assert.Contains(t, body, `route="unmatched"`)
	assert.Contains(t, body, `cs61as_logins_total{outcome="failure"} 1`)
	assert.Contains(t, body, `cs61as_principal_resolutions_total{source="guest"}`)
	assert.Contains(t, body, `cs61as_build_info{build="test"} 1`)
}

func TestServer_metricsUnknownRoutes(t *testing.T) {
	f := setup(t)
	c := f.newClient(t)
	for i := 0; i < 50; i++ {
		c.get(fmt.Sprintf("/random-%d", i))
	}
	c.get("/lessons/1")

	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, "/random-")
	assert.Contains(t, body, `route="/lessons/:number"`)

	var series int
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "cs61as_http_requests_total{") && strings.Contains(line, `route="unmatched"`) {
			series++
		}
	}
	assert.Equal(t, 1, series)
}
