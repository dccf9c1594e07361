package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/progress"
)

type progressRepository struct {
	db *progressTable
}

var _ progress.Repository = (*progressRepository)(nil)

func NewProgressRepository(db *DB) progress.Repository {
	return &progressRepository{db: db.progress}
}

func copyRecord(rec progress.Record) progress.Record {
	flags := func(f []bool) []bool {
		c := make([]bool, len(f))
		copy(c, f)
		return c
	}
	rec.Videos = flags(rec.Videos)
	rec.Readings = flags(rec.Readings)
	rec.Extras = flags(rec.Extras)
	rec.Project = flags(rec.Project)
	return rec
}

func (repo *progressRepository) GetProgress(_ context.Context, userID string, lessonNumber int, _ ...core.DBExecutor) (progress.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rec, ok := repo.db.table[progressKey{userID, lessonNumber}]; ok {
		return copyRecord(*rec), nil
	}
	return progress.Record{}, progress.ErrNotFound
}

func (repo *progressRepository) UpsertProgress(_ context.Context, rec progress.Record, _ ...core.DBExecutor) (progress.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := progressKey{rec.UserID, rec.LessonNumber}
	if orig, ok := repo.db.table[key]; ok {
		rec.ID = orig.ID
		rec.CreatedAt = orig.CreatedAt
	} else if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	stored := copyRecord(rec)
	repo.db.table[key] = &stored
	return copyRecord(rec), nil
}

func (repo *progressRepository) QueryUserProgress(_ context.Context, userID string, _ ...core.DBExecutor) ([]progress.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var recs []progress.Record
	for key, rec := range repo.db.table {
		if key.userID == userID {
			recs = append(recs, copyRecord(*rec))
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].LessonNumber < recs[j].LessonNumber })
	return recs, nil
}
