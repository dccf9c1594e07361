package echoapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs61as/coursesite/core/progress"
)

func progressForm(kind string, index int, completed bool) url.Values {
	return url.Values{
		"kind":      {kind},
		"index":     {strconv.Itoa(index)},
		"completed": {strconv.FormatBool(completed)},
	}
}

func (f *fixture) record(t *testing.T, userID string) progress.Record {
	t.Helper()
	rec, err := f.progress.GetProgress(context.Background(), userID, f.lesson.Number)
	require.NoError(t, err)
	return rec
}

func TestLessons_guest(t *testing.T) {
	f := setup(t)
	c := f.newClient(t)

	rec := c.get("/lessons")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/lessons/1"`)

	rec = c.get("/lessons/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Homework")
	assert.NotContains(t, rec.Body.String(), `name="completed"`)

	// the guest never writes progress
	rec = c.post("/lessons/1/progress", progressForm("video", 0, true))
	assertRedirect(t, rec, "/lessons")
	_, err := f.progress.GetProgress(context.Background(), "", 1)
	assert.Error(t, err)
}

func TestLessons_ownProgress(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.student)

	page := c.get("/lessons/1")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), `action="/lessons/1/progress"`)
	assert.Contains(t, page.Body.String(), `action="/lessons/1/submit"`)
	assert.Equal(t, progress.NewRecord(f.student.ID, f.lesson).Videos, f.record(t, f.student.ID).Videos)

	rec := c.post("/lessons/1/progress", progressForm("video", 1, true))
	assertRedirect(t, rec, "/lessons/1")
	r := f.record(t, f.student.ID)
	assert.Equal(t, []bool{false, true}, r.Videos)

	rec = c.post("/lessons/1/progress", progressForm("project", 1, true))
	assertRedirect(t, rec, "/lessons/1")
	rec = c.post("/lessons/1/progress", progressForm("video", 1, false))
	assertRedirect(t, rec, "/lessons/1")
	r = f.record(t, f.student.ID)
	assert.Equal(t, []bool{false, false}, r.Videos)
	assert.Equal(t, []bool{false, true}, r.Project)

	dash := c.get("/dashboard")
	require.Equal(t, http.StatusOK, dash.Code)
	assert.Contains(t, dash.Body.String(), "1/9")
}

func TestLessons_ownProgressXHR(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.student)

	form := progressForm("reading", 0, true)
	rec := c.do(http.MethodPost, "/lessons/1/progress", form, echo.HeaderXRequestedWith, "XMLHttpRequest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"kind": "reading", "index": 0, "completed": true}`, rec.Body.String())
	assert.Equal(t, []bool{true, false}, f.record(t, f.student.ID).Readings)
}

func TestLessons_badProgress(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.student)
	c.get("/")

	tests := []struct {
		name    string
		form    url.Values
		wantMsg string
	}{
		{name: "index out of range", form: progressForm("video", 2, true), wantMsg: "Item index out of range."},
		{name: "negative index", form: progressForm("extra", -1, true), wantMsg: "Item index out of range."},
		{name: "homework index", form: progressForm("homework", 1, true), wantMsg: "Item index out of range."},
		{name: "unknown kind", form: progressForm("quiz", 0, true), wantMsg: "Unknown item kind."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.do(http.MethodPost, "/lessons/1/progress", tt.form, "Referer", "http://example.com/lessons/1")
			assertRedirect(t, rec, "/lessons/1")
			c.assertFlash(rec, tt.wantMsg)
		})
	}
	assert.Equal(t, progress.NewRecord(f.student.ID, f.lesson), withoutMeta(f.record(t, f.student.ID)))
}

// withoutMeta drops the fields set by the repository.
func withoutMeta(r progress.Record) progress.Record {
	r.ID = ""
	r.CreatedAt, r.UpdatedAt = time.Time{}, time.Time{}
	return r
}

func TestLessons_submit(t *testing.T) {
	f := setup(t)
	admin := f.loggedIn(t, f.superadmin)
	rec := admin.post("/admin/users/alyssa", url.Values{"grader": {"ben"}})
	assertRedirect(t, rec, "/admin/users/alyssa")

	c := f.loggedIn(t, f.student)
	f.mailSvc.Reset()
	rec = c.post("/lessons/1/submit", url.Values{"kind": {"homework"}, "index": {"0"}})
	assertRedirect(t, rec, "/lessons/1")
	c.assertFlash(rec, "Submission recorded. Your grader has been notified.")

	assert.True(t, f.record(t, f.student.ID).Homework)
	msgs := f.mailSvc.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ben@cs61as.test", msgs[0].To[0].Address)
	assert.Contains(t, msgs[0].Subject, "Alyssa submitted")
}

func TestLessons_submitWithoutGrader(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.student)

	rec := c.post("/lessons/1/submit", url.Values{"kind": {"project"}, "index": {"1"}})
	assertRedirect(t, rec, "/lessons/1")

	msgs := f.mailSvc.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, f.conf.AdminEmail, msgs[0].To[0].Address)
	assert.Equal(t, []bool{false, true}, f.record(t, f.student.ID).Project)
}

func TestLessons_submitNotificationFailure(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.student)
	f.mailSvc.SetFailure(errors.New("smtp unavailable"))

	rec := c.post("/lessons/1/submit", url.Values{"kind": {"homework"}, "index": {"0"}})
	assertRedirect(t, rec, "/lessons/1")
	c.assertFlash(rec, "Your submission was recorded, but your grader could not be notified. Please let them know.")

	// the completion is kept
	assert.True(t, f.record(t, f.student.ID).Homework)

	scrape := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, scrape.Body.String(), "cs61as_notification_failures_total 1")
}

func TestLessons_submitNotSubmittable(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.student)
	c.get("/")

	rec := c.post("/lessons/1/submit", url.Values{"kind": {"video"}, "index": {"0"}})
	assertRedirect(t, rec, "/lessons")
	c.assertFlash(rec, "Only homework and projects can be submitted.")
	assert.Empty(t, f.mailSvc.SentMessages())
}
