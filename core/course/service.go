package course

import (
	"context"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("lesson")
	ErrLessonExists = errors.New("a lesson with this number already exists")
	ErrInvalidItem  = errors.New("each line must be `name | url` with an http(s) URL or a site path")
)

type (
	Repository interface {
		QueryUnits(ctx context.Context, exec ...core.DBExecutor) ([]Unit, error)
		UpsertUnit(ctx context.Context, u Unit, exec ...core.DBExecutor) (Unit, error)
		// QueryLessons returns all lessons ordered by number.
		QueryLessons(ctx context.Context, exec ...core.DBExecutor) ([]Lesson, error)
		GetLesson(ctx context.Context, number int, exec ...core.DBExecutor) (Lesson, error)
		CreateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		// UpdateLesson replaces the lesson stored under number, which may differ from l.Number.
		UpdateLesson(ctx context.Context, number int, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		UpsertLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		DeleteLesson(ctx context.Context, number int, exec ...core.DBExecutor) error
	}

	Service interface {
		Units(ctx context.Context) ([]Unit, error)
		SaveUnit(ctx context.Context, ui UnitInput) (Unit, error)
		Lessons(ctx context.Context) ([]Lesson, error)
		// Syllabus groups lessons by unit, in unit order.
		Syllabus(ctx context.Context) ([]UnitLessons, error)
		GetLesson(ctx context.Context, number int) (Lesson, error)
		CreateLesson(ctx context.Context, li LessonInput) (Lesson, error)
		UpdateLesson(ctx context.Context, number int, li LessonInput) (Lesson, error)
		DeleteLesson(ctx context.Context, number int) error
		// Import upserts a whole catalog, atomically when backed by a database.
		Import(ctx context.Context, cat Catalog) (int, error)
	}

	UnitLessons struct {
		Unit    Unit
		Lessons []Lesson
	}

	service struct {
		db   core.DB // optional
		repo Repository
	}
)

var _ Service = (*service)(nil)

// NewService returns the catalog service. db may be nil when the repository is not backed by a database.
func NewService(db core.DB, repo Repository) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &service{db: db, repo: repo}
}

func (svc *service) Units(ctx context.Context) ([]Unit, error) {
	units, err := svc.repo.QueryUnits(ctx)
	return units, errors.Wrap(err, "querying units")
}

func (svc *service) SaveUnit(ctx context.Context, ui UnitInput) (Unit, error) {
	u, err := svc.repo.UpsertUnit(ctx, Unit{Number: ui.Number, Name: ui.Name})
	return u, errors.Wrap(err, "saving unit")
}

func (svc *service) Lessons(ctx context.Context) ([]Lesson, error) {
	lessons, err := svc.repo.QueryLessons(ctx)
	return lessons, errors.Wrap(err, "querying lessons")
}

func (svc *service) Syllabus(ctx context.Context) ([]UnitLessons, error) {
	units, err := svc.Units(ctx)
	if err != nil {
		return nil, err
	}
	lessons, err := svc.Lessons(ctx)
	if err != nil {
		return nil, err
	}

	byUnit := make(map[int][]Lesson, len(units))
	for _, l := range lessons {
		byUnit[l.Unit] = append(byUnit[l.Unit], l)
	}
	syllabus := make([]UnitLessons, 0, len(units))
	known := make(map[int]bool, len(units))
	for _, u := range units {
		known[u.Number] = true
		syllabus = append(syllabus, UnitLessons{Unit: u, Lessons: byUnit[u.Number]})
	}
	// lessons of unknown units are listed last
	var orphans []int
	for n := range byUnit {
		if !known[n] {
			orphans = append(orphans, n)
		}
	}
	sort.Ints(orphans)
	for _, n := range orphans {
		syllabus = append(syllabus, UnitLessons{Unit: Unit{Number: n}, Lessons: byUnit[n]})
	}
	return syllabus, nil
}

func (svc *service) GetLesson(ctx context.Context, number int) (Lesson, error) {
	return svc.repo.GetLesson(ctx, number)
}

func (svc *service) CreateLesson(ctx context.Context, li LessonInput) (Lesson, error) {
	l := li.Lesson()
	if _, err := svc.repo.GetLesson(ctx, l.Number); err == nil {
		return Lesson{}, core.NewValidationError(ErrLessonExists, core.FieldError{Field: "number", Error: ErrLessonExists.Error()})
	} else if errors.Cause(err) != ErrNotFound {
		return Lesson{}, errors.Wrap(err, "checking lesson number")
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	l, err := svc.repo.CreateLesson(ctx, l)
	return l, errors.Wrap(err, "creating lesson")
}

func (svc *service) UpdateLesson(ctx context.Context, number int, li LessonInput) (Lesson, error) {
	orig, err := svc.repo.GetLesson(ctx, number)
	if err != nil {
		return Lesson{}, err
	}
	l := li.Lesson()
	if l.Number != number {
		if _, err = svc.repo.GetLesson(ctx, l.Number); err == nil {
			return Lesson{}, core.NewValidationError(ErrLessonExists, core.FieldError{Field: "number", Error: ErrLessonExists.Error()})
		} else if errors.Cause(err) != ErrNotFound {
			return Lesson{}, errors.Wrap(err, "checking lesson number")
		}
	}
	l.CreatedAt = orig.CreatedAt
	l.UpdatedAt = time.Now().UTC()
	l, err = svc.repo.UpdateLesson(ctx, number, l)
	if err != nil && errors.Cause(err) != ErrNotFound {
		return Lesson{}, errors.Wrap(err, "updating lesson")
	}
	return l, err
}

func (svc *service) DeleteLesson(ctx context.Context, number int) error {
	return svc.repo.DeleteLesson(ctx, number)
}

func (svc *service) Import(ctx context.Context, cat Catalog) (int, error) {
	var count int
	err := svc.inTx(ctx, func(exec ...core.DBExecutor) error {
		for _, u := range cat.Units {
			if _, err := svc.repo.UpsertUnit(ctx, u, exec...); err != nil {
				return errors.Wrapf(err, "saving unit %d", u.Number)
			}
		}
		now := time.Now().UTC()
		for _, l := range cat.Lessons {
			if l.Number < 1 {
				return errors.Errorf("invalid lesson number %d", l.Number)
			}
			if l.CreatedAt.IsZero() {
				l.CreatedAt = now
			}
			l.UpdatedAt = now
			if _, err := svc.repo.UpsertLesson(ctx, l, exec...); err != nil {
				return errors.Wrapf(err, "saving lesson %d", l.Number)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (svc *service) inTx(ctx context.Context, fn func(exec ...core.DBExecutor) error) error {
	if svc.db == nil {
		return fn()
	}
	return core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		return fn(tx)
	})
}
