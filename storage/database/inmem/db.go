package inmemdb

import (
	"sync"

	"github.com/cs61as/coursesite/core/auth"
	"github.com/cs61as/coursesite/core/course"
	"github.com/cs61as/coursesite/core/feedback"
	"github.com/cs61as/coursesite/core/progress"
	"github.com/cs61as/coursesite/core/user"
)

type (
	// DB is a process-local store for development and tests.
	DB struct {
		user     *userTable
		token    *tokenTable
		course   *courseTable
		progress *progressTable
		feedback *feedbackTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	tokenTable struct {
		mutex sync.RWMutex
		table map[tokenKey]*auth.RememberToken
	}

	tokenKey struct {
		username, series string
	}

	courseTable struct {
		mutex   sync.RWMutex
		units   map[int]*course.Unit
		lessons map[int]*course.Lesson
	}

	progressTable struct {
		mutex sync.RWMutex
		table map[progressKey]*progress.Record
	}

	progressKey struct {
		userID string
		lesson int
	}

	feedbackTable struct {
		mutex sync.RWMutex
		table map[string]*feedback.Ticket
	}
)

func Open() *DB {
	return &DB{
		user:     &userTable{table: make(map[string]*user.User)},
		token:    &tokenTable{table: make(map[tokenKey]*auth.RememberToken)},
		course:   &courseTable{units: make(map[int]*course.Unit), lessons: make(map[int]*course.Lesson)},
		progress: &progressTable{table: make(map[progressKey]*progress.Record)},
		feedback: &feedbackTable{table: make(map[string]*feedback.Ticket)},
	}
}
