package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/course"
	"github.com/cs61as/coursesite/core/user"
	emailsvc "github.com/cs61as/coursesite/services/email"
	logsvc "github.com/cs61as/coursesite/services/logger"
	"github.com/cs61as/coursesite/storage/database"
	sqlxrepos "github.com/cs61as/coursesite/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator, conf.AllowedEmailDomains...)

	usrRepo := sqlxrepos.NewUserRepository(db)
	cli := commandLine{
		db:        db.DB,
		usrRepo:   usrRepo,
		usrSvc:    user.NewService(usrRepo, emailsvc.NewService(conf, logger), conf, logger),
		courseSvc: course.NewService(db, sqlxrepos.NewCourseRepository(db)),
		validate:  validate,
		out:       os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
