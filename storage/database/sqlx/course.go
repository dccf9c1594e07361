package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/course"
)

const lessonColumns = "number, name, unit, content, created_at, updated_at"

type unitRow struct {
	Number int    `db:"number"`
	Name   string `db:"name"`
}

type lessonRow struct {
	Number    int            `db:"number"`
	Name      string         `db:"name"`
	Unit      int            `db:"unit"`
	Content   types.JSONText `db:"content"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// lessonContent is the JSON document stored in lessons.content.
type lessonContent struct {
	Videos   []course.Video   `json:"videos"`
	Readings []course.Reading `json:"readings"`
	Extras   []course.Extra   `json:"extras"`
	Homework course.Homework  `json:"homework"`
	Project  *course.Project  `json:"project,omitempty"`
}

type courseRepository struct {
	base
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(exec core.DBExecutor) course.Repository {
	return &courseRepository{base{exec: exec}}
}

func (repo courseRepository) toRow(l course.Lesson) (lessonRow, error) {
	content, err := json.Marshal(lessonContent{
		Videos:   l.Videos,
		Readings: l.Readings,
		Extras:   l.Extras,
		Homework: l.Homework,
		Project:  l.Project,
	})
	if err != nil {
		return lessonRow{}, errors.Wrap(err, "marshalling lesson content")
	}
	return lessonRow{
		Number:    l.Number,
		Name:      l.Name,
		Unit:      l.Unit,
		Content:   content,
		CreatedAt: l.CreatedAt.UTC(),
		UpdatedAt: l.UpdatedAt.UTC(),
	}, nil
}

func (repo courseRepository) fromRow(row lessonRow) (course.Lesson, error) {
	var content lessonContent
	if err := row.Content.Unmarshal(&content); err != nil {
		return course.Lesson{}, errors.Wrap(err, "unmarshalling lesson content")
	}
	return course.Lesson{
		Number:    row.Number,
		Name:      row.Name,
		Unit:      row.Unit,
		Videos:    content.Videos,
		Readings:  content.Readings,
		Extras:    content.Extras,
		Homework:  content.Homework,
		Project:   content.Project,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func (repo courseRepository) QueryUnits(ctx context.Context, exec ...core.DBExecutor) ([]course.Unit, error) {
	rows, err := selectRows[unitRow](ctx, repo.getExec(exec), "SELECT number, name FROM units ORDER BY number")
	if err != nil {
		return nil, errors.Wrap(err, "selecting units")
	}
	units := make([]course.Unit, 0, len(rows))
	for _, r := range rows {
		units = append(units, course.Unit{Number: r.Number, Name: r.Name})
	}
	return units, nil
}

func (repo courseRepository) UpsertUnit(ctx context.Context, u course.Unit, exec ...core.DBExecutor) (course.Unit, error) {
	_, err := repo.getExec(exec).ExecContext(ctx,
		"INSERT INTO units (number, name) VALUES ($1, $2) ON CONFLICT (number) DO UPDATE SET name = EXCLUDED.name",
		u.Number, u.Name,
	)
	if err != nil {
		return course.Unit{}, errors.Wrap(err, "upserting unit")
	}
	return u, nil
}

func (repo courseRepository) QueryLessons(ctx context.Context, exec ...core.DBExecutor) ([]course.Lesson, error) {
	rows, err := selectRows[lessonRow](ctx, repo.getExec(exec), "SELECT "+lessonColumns+" FROM lessons ORDER BY number")
	if err != nil {
		return nil, errors.Wrap(err, "selecting lessons")
	}
	lessons := make([]course.Lesson, 0, len(rows))
	for _, row := range rows {
		l, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, l)
	}
	return lessons, nil
}

func (repo courseRepository) GetLesson(ctx context.Context, number int, exec ...core.DBExecutor) (course.Lesson, error) {
	row, err := selectOne[lessonRow](ctx, repo.getExec(exec), course.ErrNotFound,
		"SELECT "+lessonColumns+" FROM lessons WHERE number = $1", number)
	if err != nil {
		return course.Lesson{}, trapNotFound(err, course.ErrNotFound, "selecting lesson")
	}
	return repo.fromRow(row)
}

func (repo courseRepository) CreateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	row, err := repo.toRow(l)
	if err != nil {
		return course.Lesson{}, err
	}
	_, err = repo.getExec(exec).ExecContext(ctx,
		"INSERT INTO lessons ("+lessonColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
		row.Number, row.Name, row.Unit, row.Content, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return course.Lesson{}, course.ErrLessonExists
		}
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return l, nil
}

func (repo courseRepository) UpdateLesson(ctx context.Context, number int, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	row, err := repo.toRow(l)
	if err != nil {
		return course.Lesson{}, err
	}
	res, err := repo.getExec(exec).ExecContext(ctx,
		"UPDATE lessons SET number = $2, name = $3, unit = $4, content = $5, updated_at = $6 WHERE number = $1",
		number, row.Number, row.Name, row.Unit, row.Content, row.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return course.Lesson{}, course.ErrLessonExists
		}
		return course.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if _, err = affected(res, course.ErrNotFound); err != nil {
		return course.Lesson{}, trapNotFound(err, course.ErrNotFound, "updating lesson")
	}
	return l, nil
}

func (repo courseRepository) UpsertLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	row, err := repo.toRow(l)
	if err != nil {
		return course.Lesson{}, err
	}
	err = repo.getExec(exec).QueryRowContext(ctx,
		`INSERT INTO lessons (`+lessonColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (number) DO UPDATE SET name = EXCLUDED.name, unit = EXCLUDED.unit,
		content = EXCLUDED.content, updated_at = EXCLUDED.updated_at
		RETURNING created_at`,
		row.Number, row.Name, row.Unit, row.Content, row.CreatedAt, row.UpdatedAt,
	).Scan(&l.CreatedAt)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "upserting lesson")
	}
	l.CreatedAt = l.CreatedAt.UTC()
	return l, nil
}

func (repo courseRepository) DeleteLesson(ctx context.Context, number int, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM lessons WHERE number = $1", number)
	if err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	_, err = affected(res, course.ErrNotFound)
	return err
}
