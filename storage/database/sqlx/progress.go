package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/progress"
)

const progressColumns = "id, user_id, lesson_number, videos, readings, extras, homework, project, created_at, updated_at"

type progressRow struct {
	ID           string       `db:"id"`
	UserID       string       `db:"user_id"`
	LessonNumber int          `db:"lesson_number"`
	Videos       pq.BoolArray `db:"videos"`
	Readings     pq.BoolArray `db:"readings"`
	Extras       pq.BoolArray `db:"extras"`
	Homework     bool         `db:"homework"`
	Project      pq.BoolArray `db:"project"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

type progressRepository struct {
	base
}

var _ progress.Repository = (*progressRepository)(nil)

func NewProgressRepository(exec core.DBExecutor) progress.Repository {
	return &progressRepository{base{exec: exec}}
}

// boolArray never yields NULL: the flag columns are NOT NULL.
func boolArray(flags []bool) pq.BoolArray {
	if flags == nil {
		return pq.BoolArray{}
	}
	return flags
}

func (repo progressRepository) fromRow(row progressRow) progress.Record {
	flags := func(a pq.BoolArray) []bool {
		if a == nil {
			return []bool{}
		}
		return a
	}
	return progress.Record{
		ID:           row.ID,
		UserID:       row.UserID,
		LessonNumber: row.LessonNumber,
		Videos:       flags(row.Videos),
		Readings:     flags(row.Readings),
		Extras:       flags(row.Extras),
		Homework:     row.Homework,
		Project:      flags(row.Project),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

func (repo progressRepository) GetProgress(ctx context.Context, userID string, lessonNumber int, exec ...core.DBExecutor) (progress.Record, error) {
	row, err := selectOne[progressRow](ctx, repo.getExec(exec), progress.ErrNotFound,
		"SELECT "+progressColumns+" FROM progress WHERE user_id = $1 AND lesson_number = $2",
		userID, lessonNumber,
	)
	if err != nil {
		return progress.Record{}, trapNotFound(err, progress.ErrNotFound, "selecting progress")
	}
	return repo.fromRow(row), nil
}

// UpsertProgress writes the whole record. Concurrent first writes of the same (user, lesson) collapse into one row.
func (repo progressRepository) UpsertProgress(ctx context.Context, rec progress.Record, exec ...core.DBExecutor) (progress.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	err := repo.getExec(exec).QueryRowContext(ctx,
		`INSERT INTO progress (`+progressColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, lesson_number) DO UPDATE SET videos = EXCLUDED.videos, readings = EXCLUDED.readings,
		extras = EXCLUDED.extras, homework = EXCLUDED.homework, project = EXCLUDED.project, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`,
		rec.ID, rec.UserID, rec.LessonNumber, boolArray(rec.Videos), boolArray(rec.Readings), boolArray(rec.Extras),
		rec.Homework, boolArray(rec.Project), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return progress.Record{}, errors.Wrap(err, "upserting progress")
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func (repo progressRepository) QueryUserProgress(ctx context.Context, userID string, exec ...core.DBExecutor) ([]progress.Record, error) {
	rows, err := selectRows[progressRow](ctx, repo.getExec(exec),
		"SELECT "+progressColumns+" FROM progress WHERE user_id = $1 ORDER BY lesson_number", userID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting progress")
	}
	recs := make([]progress.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, repo.fromRow(row))
	}
	return recs, nil
}
