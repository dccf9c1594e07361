package inmemdb

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db.course}
}

// copyLesson deep copies l through its JSON form, the way it is stored in the database.
func copyLesson(l course.Lesson) course.Lesson {
	data, _ := json.Marshal(l) // never fails
	var c course.Lesson
	_ = json.Unmarshal(data, &c)
	return c
}

func (repo *courseRepository) QueryUnits(_ context.Context, _ ...core.DBExecutor) ([]course.Unit, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	units := make([]course.Unit, 0, len(repo.db.units))
	for _, u := range repo.db.units {
		units = append(units, *u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Number < units[j].Number })
	return units, nil
}

func (repo *courseRepository) UpsertUnit(_ context.Context, u course.Unit, _ ...core.DBExecutor) (course.Unit, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := u
	repo.db.units[u.Number] = &stored
	return u, nil
}

func (repo *courseRepository) QueryLessons(_ context.Context, _ ...core.DBExecutor) ([]course.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	lessons := make([]course.Lesson, 0, len(repo.db.lessons))
	for _, l := range repo.db.lessons {
		lessons = append(lessons, copyLesson(*l))
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Number < lessons[j].Number })
	return lessons, nil
}

func (repo *courseRepository) GetLesson(_ context.Context, number int, _ ...core.DBExecutor) (course.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if l, ok := repo.db.lessons[number]; ok {
		return copyLesson(*l), nil
	}
	return course.Lesson{}, course.ErrNotFound
}

func (repo *courseRepository) CreateLesson(_ context.Context, l course.Lesson, _ ...core.DBExecutor) (course.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.lessons[l.Number]; ok {
		return course.Lesson{}, course.ErrLessonExists
	}
	stored := copyLesson(l)
	repo.db.lessons[l.Number] = &stored
	return copyLesson(l), nil
}

func (repo *courseRepository) UpdateLesson(_ context.Context, number int, l course.Lesson, _ ...core.DBExecutor) (course.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.lessons[number]; !ok {
		return course.Lesson{}, course.ErrNotFound
	}
	if _, ok := repo.db.lessons[l.Number]; ok && l.Number != number {
		return course.Lesson{}, course.ErrLessonExists
	}
	delete(repo.db.lessons, number)
	stored := copyLesson(l)
	repo.db.lessons[l.Number] = &stored
	return copyLesson(l), nil
}

func (repo *courseRepository) UpsertLesson(_ context.Context, l course.Lesson, _ ...core.DBExecutor) (course.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if orig, ok := repo.db.lessons[l.Number]; ok {
		l.CreatedAt = orig.CreatedAt
	}
	stored := copyLesson(l)
	repo.db.lessons[l.Number] = &stored
	return copyLesson(l), nil
}

func (repo *courseRepository) DeleteLesson(_ context.Context, number int, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.lessons[number]; !ok {
		return course.ErrNotFound
	}
	delete(repo.db.lessons, number)
	return nil
}
