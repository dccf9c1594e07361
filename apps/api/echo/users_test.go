package echoapi_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers_progressOwnerFallback(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.student)
	c.get("/")

	rec := c.get("/users/alyssa/progress/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/users/alyssa/progress/1"`)

	rec = c.post("/users/alyssa/progress/1", progressForm("extra", 0, true))
	assertRedirect(t, rec, "/users/alyssa/progress/1")
	assert.Equal(t, []bool{true, false}, f.record(t, f.student.ID).Extras)

	// someone else's progress
	rec = c.get("/users/ben/progress/1")
	assertRedirect(t, rec, "/dashboard")
	c.assertFlash(rec, "You do not have permission to view that page.")
	rec = c.post("/users/ben/progress/1", progressForm("extra", 0, true))
	assertRedirect(t, rec, "/dashboard")
}

func TestUsers_progressStaff(t *testing.T) {
	f := setup(t)
	grader := f.loggedIn(t, f.grader)
	grader.get("/")

	// graders read every student's progress but never write it
	rec := grader.get("/users/alyssa/progress/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Progress of <b>Alyssa</b>")
	assert.NotContains(t, rec.Body.String(), `name="completed"`)
	_, err := f.progress.GetProgress(context.Background(), f.student.ID, 1)
	assert.Error(t, err, "reading must not create the record")

	rec = grader.post("/users/alyssa/progress/1", progressForm("video", 0, true))
	assertRedirect(t, rec, "/dashboard")

	instructor := f.loggedIn(t, f.instructor)
	rec = instructor.post("/users/alyssa/progress/1", progressForm("video", 0, true))
	assertRedirect(t, rec, "/users/alyssa/progress/1")
	assert.Equal(t, []bool{true, false}, f.record(t, f.student.ID).Videos)

	rec = instructor.get("/users/nobody/progress/1")
	assertRedirect(t, rec, "/admin/users")
	instructor.assertFlash(rec, "User not found.")
}

func TestUsers_grades(t *testing.T) {
	f := setup(t)
	grader := f.loggedIn(t, f.grader)
	student := f.loggedIn(t, f.student)
	student.get("/")

	rec := grader.post("/users/alyssa/grades", url.Values{
		"order": {"1"}, "name": {"Homework 1"}, "score": {"10/10"}, "weight": {"0.5"},
	})
	assertRedirect(t, rec, "/users/alyssa/grades")
	grader.assertFlash(rec, "Grade added.")

	rec = grader.post("/users/alyssa/grades", url.Values{"order": {"2"}, "name": {"Project 1"}})
	assertRedirect(t, rec, "/users/alyssa/grades")

	rec = grader.post("/users/alyssa/grades/1", url.Values{"order": {"1"}, "name": {"Homework 1"}, "score": {"9/10"}})
	assertRedirect(t, rec, "/users/alyssa/grades")
	grader.assertFlash(rec, "Grade updated.")

	usr, err := f.users.GetByUsername(context.Background(), "alyssa")
	require.NoError(t, err)
	require.Len(t, usr.Grades, 2)
	assert.Equal(t, "9/10", usr.Grades[0].Score)
	assert.Equal(t, "--", usr.Grades[1].Score)

	// students see their own grades, read only
	page := student.get("/users/alyssa/grades")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "Homework 1")
	assert.NotContains(t, page.Body.String(), "Add a grade")

	assertRedirect(t, student.get("/users/ben/grades"), "/dashboard")
	assertRedirect(t, student.post("/users/alyssa/grades", url.Values{"order": {"3"}, "name": {"Cheat"}}), "/dashboard")

	// invalid input
	rec = grader.do(http.MethodPost, "/users/alyssa/grades", url.Values{"name": {"No order"}},
		"Referer", "http://example.com/users/alyssa/grades")
	assertRedirect(t, rec, "/users/alyssa/grades")
	grader.assertFlash(rec, "order: ")
}

func TestSettings(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.student)

	page := c.get("/settings")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), `value="alyssa@cs61as.test"`)

	rec := c.post("/settings", url.Values{
		"name": {"Alyssa P. Hacker"}, "email": {"aph@cs61as.test"},
		"current_lesson": {"3"}, "current_unit": {"1"}, "units": {"4"},
	})
	assertRedirect(t, rec, "/settings")
	c.assertFlash(rec, "Your settings have been saved.")

	usr, err := f.users.GetByUsername(context.Background(), "alyssa")
	require.NoError(t, err)
	assert.Equal(t, "Alyssa P. Hacker", usr.Name)
	assert.Equal(t, "aph@cs61as.test", usr.Email)
	assert.Equal(t, 3, usr.CurrentLesson)
	assert.Equal(t, 4, usr.Units)

	// the email of another user is taken
	rec = c.post("/settings", url.Values{"email": {"ben@cs61as.test"}})
	assertRedirect(t, rec, "/settings")

	newPwd := "Metacircular-Evaluator-4"
	rec = c.post("/settings/password", url.Values{
		"old_password": {"wrong"}, "password": {newPwd}, "password_confirm": {newPwd},
	})
	assertRedirect(t, rec, "/settings")

	rec = c.post("/settings/password", url.Values{
		"old_password": {"Sicp-4-Ever!"}, "password": {newPwd}, "password_confirm": {newPwd},
	})
	assertRedirect(t, rec, "/settings")
	c.assertFlash(rec, "Your password has been changed.")
	assertRedirect(t, f.newClient(t).login("alyssa", newPwd, false), "/dashboard")

	f.mailSvc.Reset()
	rec = c.post("/settings/password-reset", nil)
	assertRedirect(t, rec, "/settings")
	require.Len(t, f.mailSvc.SentMessages(), 1)
	assert.Equal(t, "aph@cs61as.test", f.mailSvc.SentMessages()[0].To[0].Address)
}

func TestFeedback(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.student)

	rec := c.do(http.MethodPost, "/feedback", url.Values{"subject": {"Typo"}, "body": {"Lesson 1 says lamdba."}},
		"Referer", "http://example.com/lessons/1")
	assertRedirect(t, rec, "/lessons/1")
	c.assertFlash(rec, "Thanks for your feedback!")

	tickets, err := f.feedback.QueryTickets(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "alyssa", tickets[0].Username)

	rec = c.post("/feedback", url.Values{"subject": {"Empty"}})
	assertRedirect(t, rec, "/dashboard")

	guest := f.newClient(t)
	assertRedirect(t, guest.post("/feedback", url.Values{"subject": {"Spam"}, "body": {"Spam"}}), "/lessons")
}
