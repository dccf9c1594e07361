package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	echoapi "github.com/cs61as/coursesite/apps/api/echo"
	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/auth"
	"github.com/cs61as/coursesite/core/course"
	"github.com/cs61as/coursesite/core/feedback"
	"github.com/cs61as/coursesite/core/progress"
	"github.com/cs61as/coursesite/core/user"
	emailsvc "github.com/cs61as/coursesite/services/email"
	logsvc "github.com/cs61as/coursesite/services/logger"
	metricsvc "github.com/cs61as/coursesite/services/metrics"
	"github.com/cs61as/coursesite/storage/database"
	sqlxrepos "github.com/cs61as/coursesite/storage/database/sqlx"
	sessionstore "github.com/cs61as/coursesite/storage/session"
)

// TODO:
// - tracing of slow DB queries
// - serve static files from a CDN in PROD
func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	ctx := context.Background()

	db, err := setUpDB(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	sessions, closeSessions, err := setUpSessions(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up sessions: %v", err), err)
	}
	defer closeSessions()

	metrics := metricsvc.New(conf.Build)
	mailSvc := emailsvc.NewService(conf, logger)
	tokens := sqlxrepos.NewTokenRepository(db)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : %s", conf))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator, conf.AllowedEmailDomains...)

	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		Metrics:     metrics,
		Sessions:    sessions,
		Resolver:    auth.NewResolver(usrSvc, tokens, logger),
		AuthSvc:     auth.NewService(usrSvc, tokens),
		UserSvc:     usrSvc,
		CourseSvc:   course.NewService(db, sqlxrepos.NewCourseRepository(db)),
		Tracker:     progress.NewTracker(sqlxrepos.NewProgressRepository(db), usrSvc, mailSvc, conf, logger),
		FeedbackSvc: feedback.NewService(sqlxrepos.NewFeedbackRepository(db), mailSvc, conf),
	})

	// =========================================================================
	// Start Debug Service
	//
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - prometheus scrape endpoint.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	debugMux := http.NewServeMux()
	debugMux.Handle("/debug/vars", expvar.Handler())
	debugMux.Handle("/metrics", metrics.Handler())
	debugServer := &http.Server{Addr: conf.Server.DebugHost, Handler: debugMux}

	// =========================================================================
	// Start API Service

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "debug server")
		}
		return nil
	})
	g.Go(func() error {
		server.Start()
		return nil
	})
	g.Go(func() error {
		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			_ = debugServer.Close()
			return errors.Wrap(err, "server error")

		case <-gctx.Done():
			_ = server.Close()
			return nil

		case sig := <-server.ShutdownSignal():
			logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			sctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			_ = debugServer.Shutdown(sctx)
			// asking listener to shutdown and shed load
			if err := server.Shutdown(sctx); err != nil {
				logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
				return errors.Wrap(server.Close(), "could not force stop server")
			}
			return nil
		}
	})

	if err = g.Wait(); err != nil {
		logger.Error(err.Error(), err)
	}
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// setUpSessions keeps sessions in redis when enabled, in memory otherwise.
func setUpSessions(ctx context.Context, conf *core.Config) (auth.SessionStore, func(), error) {
	if !conf.Redis.Enabled {
		return sessionstore.NewMemoryStore(conf.Session.TTL), func() {}, nil
	}
	client, err := sessionstore.NewRedisClient(ctx, conf.Redis)
	if err != nil {
		return nil, nil, err
	}
	return sessionstore.NewRedisStore(client, conf.Session.TTL), func() { _ = client.Close() }, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
