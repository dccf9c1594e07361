package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/auth"
	"github.com/cs61as/coursesite/core/course"
	"github.com/cs61as/coursesite/core/feedback"
	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/progress"
	"github.com/cs61as/coursesite/core/user"
	metricsvc "github.com/cs61as/coursesite/services/metrics"
)

type (
	ServerDeps struct {
		Conf        *core.Config
		Logger      core.Logger
		Validate    *validator.Validate
		Translator  ut.Translator
		Metrics     *metricsvc.Metrics
		Sessions    auth.SessionStore
		Resolver    *auth.Resolver
		AuthSvc     auth.Service
		UserSvc     user.Service
		CourseSvc   course.Service
		Tracker     *progress.Tracker
		FeedbackSvc feedback.Service
	}

	Server interface {
		http.Handler
		// Start blocks until the server stops. Listener errors are sent to Errors.
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(context.Context) error
		Close() error
	}

	server struct {
		ServerDeps
		app      *echo.Echo
		renderer *renderer
		routes   map[string]struct{}
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
		vala.IsNotNil(deps.Metrics, "Metrics"),
		vala.IsNotNil(deps.Sessions, "Sessions"),
		vala.IsNotNil(deps.Resolver, "Resolver"),
		vala.IsNotNil(deps.AuthSvc, "AuthSvc"),
		vala.IsNotNil(deps.UserSvc, "UserSvc"),
		vala.IsNotNil(deps.CourseSvc, "CourseSvc"),
		vala.IsNotNil(deps.Tracker, "Tracker"),
		vala.IsNotNil(deps.FeedbackSvc, "FeedbackSvc"),
	).CheckAndPanic()

	s := &server{
		ServerDeps: deps,
		app:        echo.New(),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.Conf

	s.renderer = newRenderer(conf, s.Logger)
	s.app.Renderer = s.renderer
	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.Logger, s.Translator, s.signalShutdown)

	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(s.metricsMiddleware)
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	s.app.Use(s.sessionMiddleware)
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.GET("/", s.landing)

	loginLimit := newRateLimiter(conf.Server.LoginRateLimit).middleware
	s.registerAuthRoutes(s.app.Group(""), loginLimit)
	s.registerLessonRoutes(s.app.Group(""))
	s.registerUserRoutes(s.app.Group("/users/:username"))
	s.registerSettingsRoutes(s.app.Group("/settings"))
	s.app.POST("/feedback", s.submitFeedback, requireCapability(perm.AccessDashboard))
	s.registerAdminRoutes(s.app.Group("/admin"))

	s.routes = make(map[string]struct{})
	for _, r := range s.app.Routes() {
		s.routes[r.Path] = struct{}{}
	}
}

func (s *server) Start() {
	if err := s.app.Start(s.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

// signalShutdown asks Start's owner to shut the server down gracefully.
func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

// landing redirects to the first page the principal may see.
func (s *server) landing(ctx echo.Context) error {
	return ctx.Redirect(http.StatusFound, landingPath(principalOf(ctx)))
}
