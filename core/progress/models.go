package progress

import (
	"time"

	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core/course"
)

// Kind is a kind of trackable lesson item.
type Kind string

const (
	KindVideo    Kind = "video"
	KindReading  Kind = "reading"
	KindExtra    Kind = "extra"
	KindHomework Kind = "homework"
	KindProject  Kind = "project"
)

var ErrUnknownKind = errors.New("unknown item kind")

// Kinds lists item kinds in display order.
func Kinds() []Kind {
	return []Kind{KindVideo, KindReading, KindExtra, KindHomework, KindProject}
}

func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == name {
			return k, nil
		}
	}
	return "", ErrUnknownKind
}

// Submittable kinds are turned in to a grader.
func (k Kind) Submittable() bool {
	return k == KindHomework || k == KindProject
}

// Record holds the completion flags of one user for one lesson.
// Flag slices are sized to the lesson when the record is created and never resized.
type Record struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	LessonNumber int       `json:"lesson_number"`
	Videos       []bool    `json:"videos"`
	Readings     []bool    `json:"readings"`
	Extras       []bool    `json:"extras"`
	Homework     bool      `json:"homework"`
	Project      []bool    `json:"project"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// NewRecord returns an all-false record sized to the lesson.
func NewRecord(userID string, l course.Lesson) Record {
	return Record{
		UserID:       userID,
		LessonNumber: l.Number,
		Videos:       make([]bool, len(l.Videos)),
		Readings:     make([]bool, len(l.Readings)),
		Extras:       make([]bool, len(l.Extras)),
		Project:      make([]bool, l.ProjectLen()),
	}
}

func (r *Record) flags(k Kind) ([]bool, error) {
	switch k {
	case KindVideo:
		return r.Videos, nil
	case KindReading:
		return r.Readings, nil
	case KindExtra:
		return r.Extras, nil
	case KindProject:
		return r.Project, nil
	}
	return nil, ErrUnknownKind
}

func (r *Record) Len(k Kind) int {
	if k == KindHomework {
		return 1
	}
	flags, _ := r.flags(k)
	return len(flags)
}

func (r *Record) Completed(k Kind, i int) (bool, error) {
	if k == KindHomework {
		if i != 0 {
			return false, ErrIndexOutOfRange
		}
		return r.Homework, nil
	}
	flags, err := r.flags(k)
	if err != nil {
		return false, err
	}
	if i < 0 || i >= len(flags) {
		return false, ErrIndexOutOfRange
	}
	return flags[i], nil
}

func (r *Record) set(k Kind, i int, v bool) error {
	if k == KindHomework {
		if i != 0 {
			return ErrIndexOutOfRange
		}
		r.Homework = v
		return nil
	}
	flags, err := r.flags(k)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(flags) {
		return ErrIndexOutOfRange
	}
	flags[i] = v
	return nil
}

// Done counts the completed items of the record.
func (r *Record) Done() (done, total int) {
	for _, flags := range [][]bool{r.Videos, r.Readings, r.Extras, r.Project, {r.Homework}} {
		for _, f := range flags {
			total++
			if f {
				done++
			}
		}
	}
	return done, total
}

func (r Record) clone() Record {
	c := r
	c.Videos = copyFlags(r.Videos)
	c.Readings = copyFlags(r.Readings)
	c.Extras = copyFlags(r.Extras)
	c.Project = copyFlags(r.Project)
	return c
}

func copyFlags(flags []bool) []bool {
	c := make([]bool, len(flags))
	copy(c, flags)
	return c
}
