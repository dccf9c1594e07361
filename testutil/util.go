// Package testutil holds helpers shared by the package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/course"
	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/user"
)

// DefaultPassword satisfies the password policy.
const DefaultPassword = "Sicp-4-Ever!"

// NewValidator returns a validator with every custom validation registered.
func NewValidator(conf *core.Config) (*validator.Validate, ut.Translator) {
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator, conf.AllowedEmailDomains...)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	mask perm.Mask,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:       name,
		Username:   uname,
		Email:      email,
		Permission: mask,
		IsActive:   isActive,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// CreateLesson stores a lesson with n videos, readings and extras, a homework and a 2-part project.
func CreateLesson(t *testing.T, repo course.Repository, number, unit, n int) course.Lesson {
	t.Helper()
	l := course.Lesson{
		Number:   number,
		Name:     "Lesson",
		Unit:     unit,
		Homework: course.Homework{Name: "Homework", URL: "/homework"},
		Project:  &course.Project{Name: "Project", URL: "/project", Parts: []string{"Part 1", "Part 2"}},
	}
	for i := 0; i < n; i++ {
		l.Videos = append(l.Videos, course.Video{Name: "Video", URL: "https://youtu.be/sicp"})
		l.Readings = append(l.Readings, course.Reading{Name: "Reading", URL: "/reading"})
		l.Extras = append(l.Extras, course.Extra{Name: "Extra", URL: "/extra"})
	}
	l, err := repo.CreateLesson(context.Background(), l)
	if err != nil {
		t.Fatalf("createLesson() failed: %v", err)
	}
	return l
}
