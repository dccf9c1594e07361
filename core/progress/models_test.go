package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs61as/coursesite/core/course"
)

func lesson() course.Lesson {
	return course.Lesson{
		Number:   3,
		Videos:   []course.Video{{Name: "v1"}, {Name: "v2"}},
		Readings: []course.Reading{{Name: "r1"}},
		Project:  &course.Project{Name: "Adventure"},
	}
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord("u1", lesson())
	assert.Equal(t, 3, rec.LessonNumber)
	assert.Equal(t, 2, rec.Len(KindVideo))
	assert.Equal(t, 1, rec.Len(KindReading))
	assert.Equal(t, 0, rec.Len(KindExtra))
	assert.NotNil(t, rec.Extras)
	assert.Equal(t, 1, rec.Len(KindHomework))
	assert.Equal(t, 1, rec.Len(KindProject))

	done, total := rec.Done()
	assert.Equal(t, 0, done)
	assert.Equal(t, 5, total)

	noProject := lesson()
	noProject.Project = nil
	noProjectRec := NewRecord("u1", noProject)
	assert.Equal(t, 0, noProjectRec.Len(KindProject))
}

func TestRecord_Completed(t *testing.T) {
	rec := NewRecord("u1", lesson())
	require.NoError(t, rec.set(KindVideo, 1, true))
	require.NoError(t, rec.set(KindHomework, 0, true))

	tests := []struct {
		kind Kind
		i    int
		want bool
		err  error
	}{
		{KindVideo, 0, false, nil},
		{KindVideo, 1, true, nil},
		{KindVideo, 2, false, ErrIndexOutOfRange},
		{KindVideo, -1, false, ErrIndexOutOfRange},
		{KindExtra, 0, false, ErrIndexOutOfRange},
		{KindHomework, 0, true, nil},
		{KindHomework, 1, false, ErrIndexOutOfRange},
		{Kind("quiz"), 0, false, ErrUnknownKind},
	}
	for _, tc := range tests {
		got, err := rec.Completed(tc.kind, tc.i)
		assert.Equal(t, tc.err, err, "%s[%d]", tc.kind, tc.i)
		assert.Equal(t, tc.want, got, "%s[%d]", tc.kind, tc.i)
	}
	assert.Equal(t, ErrIndexOutOfRange, rec.set(KindReading, 5, true))

	done, total := rec.Done()
	assert.Equal(t, 2, done)
	assert.Equal(t, 5, total)
}

func TestRecord_Clone(t *testing.T) {
	rec := NewRecord("u1", lesson())
	c := rec.clone()
	require.NoError(t, c.set(KindVideo, 0, true))
	got, _ := rec.Completed(KindVideo, 0)
	assert.False(t, got)
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("Video")
	assert.Equal(t, ErrUnknownKind, err)

	assert.True(t, KindHomework.Submittable())
	assert.True(t, KindProject.Submittable())
	assert.False(t, KindVideo.Submittable())
}
