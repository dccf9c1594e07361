package echoapi_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/testutil"
)

func TestAdmin_index(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.instructor)

	rec := c.get("/admin")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<a href="/admin/users">Users</a> (4)`)
	assert.Contains(t, body, `<a href="/admin/lessons">Lessons</a> (1)`)
	assert.Contains(t, body, "(0 open)")
}

func TestAdmin_users(t *testing.T) {
	f := setup(t)
	testutil.CreateUser(t, f.userRepo, "Louis", "louis", "louis@cs61as.test", "", perm.Student, false)
	c := f.loggedIn(t, f.grader)

	tests := []struct {
		name    string
		query   string
		want    []string
		notWant []string
	}{
		{name: "all", want: []string{"alyssa", "ben", "eva", "prof", "louis"}},
		{name: "search", query: "search=ALY", want: []string{"alyssa"}, notWant: []string{"louis", "prof"}},
		{name: "inactive", query: "is_active=false", want: []string{"louis"}, notWant: []string{"alyssa"}},
		{name: "active", query: "is_active=true", want: []string{"alyssa", "prof"}, notWant: []string{"louis"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.get("/admin/users?" + tt.query)
			require.Equal(t, http.StatusOK, rec.Code)
			for _, uname := range tt.want {
				assert.Contains(t, rec.Body.String(), `href="/admin/users/`+uname+`"`)
			}
			for _, uname := range tt.notWant {
				assert.NotContains(t, rec.Body.String(), `href="/admin/users/`+uname+`"`)
			}
			// graders may not create users
			assert.NotContains(t, rec.Body.String(), `method="post" action="/admin/users"`)
		})
	}
}

func TestAdmin_createUser(t *testing.T) {
	f := setup(t)
	newUser := func(uname, role string) url.Values {
		return url.Values{
			"name": {"Cy D. Fect"}, "username": {uname}, "email": {uname + "@cs61as.test"},
			"password": {"Lambda-Calculus-7"}, "password_confirm": {"Lambda-Calculus-7"},
			"role": {role}, "grader": {"ben"}, "units": {"2"},
		}
	}

	instructor := f.loggedIn(t, f.instructor)
	rec := instructor.post("/admin/users", newUser("cyfect", ""))
	assertRedirect(t, rec, "/admin/users/cyfect")
	instructor.assertFlash(rec, "User cyfect created.")

	usr, err := f.users.GetByUsername(context.Background(), "cyfect")
	require.NoError(t, err)
	assert.Equal(t, perm.Student, usr.Permission)
	assert.Equal(t, f.grader.ID, usr.GraderID)
	assert.Equal(t, 2, usr.Units)

	// instructors may not grant roles
	rec = instructor.do(http.MethodPost, "/admin/users", newUser("cyfect2", "instructor"), "Referer", "http://example.com/admin/users")
	assertRedirect(t, rec, "/admin/users")
	instructor.assertFlash(rec, "role: you may not grant permissions")
	_, err = f.users.GetByUsername(context.Background(), "cyfect2")
	assert.Error(t, err)

	superadmin := f.loggedIn(t, f.superadmin)
	rec = superadmin.post("/admin/users", newUser("cyfect3", "grader"))
	assertRedirect(t, rec, "/admin/users/cyfect3")
	usr, err = f.users.GetByUsername(context.Background(), "cyfect3")
	require.NoError(t, err)
	assert.Equal(t, perm.Grader, usr.Permission)

	// duplicates
	rec = superadmin.post("/admin/users", newUser("cyfect", ""))
	assertRedirect(t, rec, "/admin/users")
	superadmin.assertFlash(rec, "username: ")
}

func TestAdmin_updateUser(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.superadmin)

	page := c.get("/admin/users/alyssa")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), `action="/admin/users/alyssa/password"`)

	rec := c.post("/admin/users/alyssa", url.Values{
		"name": {"Alyssa P. Hacker"}, "username": {"alyssa"}, "email": {"alyssa@cs61as.test"},
		"is_active": {"false"}, "grader": {"ben"}, "current_lesson": {"2"}, "current_unit": {"1"}, "units": {"3"},
		"role": {"grader"},
	})
	assertRedirect(t, rec, "/admin/users/alyssa")
	c.assertFlash(rec, "User alyssa updated.")

	usr, err := f.users.GetByUsername(context.Background(), "alyssa")
	require.NoError(t, err)
	assert.Equal(t, "Alyssa P. Hacker", usr.Name)
	assert.False(t, usr.IsActive)
	assert.Equal(t, f.grader.ID, usr.GraderID)
	assert.Equal(t, 2, usr.CurrentLesson)
	assert.Equal(t, perm.Grader, usr.Permission)

	// a deactivated user is logged out
	assertRedirect(t, f.newClient(t).login("alyssa", testutil.DefaultPassword, false), "/home")

	rec = c.get("/admin/users/nobody")
	assertRedirect(t, rec, "/admin/users")
	c.assertFlash(rec, "User not found.")
}

func TestAdmin_permission(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.superadmin)

	page := c.get("/admin/users/alyssa/permission")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), `value="write-progress" checked`)
	assert.Contains(t, page.Body.String(), "Current role: <b>student</b>")

	rec := c.post("/admin/users/alyssa/permission", url.Values{"capabilities": {"read-lesson", "read-grade"}})
	assertRedirect(t, rec, "/admin/users/alyssa/permission")
	c.assertFlash(rec, "Permissions of alyssa updated.")
	usr, err := f.users.GetByUsername(context.Background(), "alyssa")
	require.NoError(t, err)
	assert.Equal(t, perm.Mask(0).With(perm.ReadLesson, perm.ReadGrade), usr.Permission)

	// students logged in before the change lose access right away
	assertRedirect(t, c.post("/admin/users/alyssa/permission", url.Values{"role": {"student"}}), "/admin/users/alyssa/permission")
	student := f.loggedIn(t, f.student)
	assert.Equal(t, http.StatusOK, student.get("/dashboard").Code)
	assertRedirect(t, c.post("/admin/users/alyssa/permission", url.Values{"capabilities": {"read-lesson"}}), "/admin/users/alyssa/permission")
	assertRedirect(t, student.get("/dashboard"), "/lessons")

	rec = c.post("/admin/users/alyssa/permission", url.Values{"capabilities": {"fly"}})
	assertRedirect(t, rec, "/admin/users/alyssa/permission")
	c.assertFlash(rec, "capabilities: ")

	// no self lockout
	rec = c.post("/admin/users/prof/permission", url.Values{"role": {"instructor"}})
	assertRedirect(t, rec, "/admin/users/prof/permission")
	c.assertFlash(rec, "role: you may not remove your own permission management")
	usr, err = f.users.GetByUsername(context.Background(), "prof")
	require.NoError(t, err)
	assert.Equal(t, perm.SuperAdmin, usr.Permission)
}

func TestAdmin_passwords(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.superadmin)

	newPwd := "Streams-Are-Lazy-3"
	rec := c.post("/admin/users/alyssa/password", url.Values{"password": {newPwd}, "password_confirm": {newPwd}})
	assertRedirect(t, rec, "/admin/users/alyssa")
	c.assertFlash(rec, "Password of alyssa changed.")
	assertRedirect(t, f.newClient(t).login("alyssa", newPwd, false), "/dashboard")

	f.mailSvc.Reset()
	rec = c.post("/admin/users/alyssa/password-reset", nil)
	assertRedirect(t, rec, "/admin/users/alyssa")
	require.Len(t, f.mailSvc.SentMessages(), 1)

	// instructors send reset links but never set passwords
	instructor := f.loggedIn(t, f.instructor)
	assertRedirect(t, instructor.post("/admin/users/alyssa/password", url.Values{"password": {newPwd}, "password_confirm": {newPwd}}), "/admin")
	assertRedirect(t, instructor.post("/admin/users/alyssa/password-reset", nil), "/admin/users/alyssa")
}

func TestAdmin_deleteUser(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.instructor)

	rec := c.post("/admin/users/alyssa/delete", nil)
	assertRedirect(t, rec, "/admin/users")
	c.assertFlash(rec, "User alyssa deleted.")
	_, err := f.users.GetByUsername(context.Background(), "alyssa")
	assert.Error(t, err)

	rec = c.post("/admin/users/eva/delete", nil)
	assertRedirect(t, rec, "/admin/users")
	c.assertFlash(rec, "You may not delete your own account.")
}

func TestAdmin_lessons(t *testing.T) {
	f := setup(t)
	c := f.loggedIn(t, f.instructor)

	page := c.get("/admin/lessons")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), `name="number" value="2"`)

	rec := c.post("/admin/units", url.Values{"number": {"1"}, "name": {"Functional Programming"}})
	assertRedirect(t, rec, "/admin/lessons")
	c.assertFlash(rec, "Unit 1 saved.")

	rec = c.post("/admin/lessons", url.Values{
		"number": {"2"}, "name": {"Higher-Order Procedures"}, "unit": {"1"},
		"videos":        {"Lecture 2 | https://youtu.be/lecture2"},
		"readings":      {"SICP 1.3 | https://sarabander.github.io/sicp/1.3 | sicp\nNotes | https://cs61as.org/notes/2"},
		"homework_name": {"Homework 2"}, "homework_url": {"https://cs61as.org/hw/2"},
	})
	assertRedirect(t, rec, "/admin/lessons")
	c.assertFlash(rec, "Lesson 2 created.")

	l, err := f.courseRepo.GetLesson(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Higher-Order Procedures", l.Name)
	require.Len(t, l.Readings, 2)
	assert.True(t, l.Readings[0].SICP)
	assert.Nil(t, l.Project)

	edit := c.get("/admin/lessons?edit=2")
	require.Equal(t, http.StatusOK, edit.Code)
	assert.Contains(t, edit.Body.String(), `action="/admin/lessons/2"`)
	assert.Contains(t, edit.Body.String(), "Higher-Order Procedures")

	rec = c.post("/admin/lessons/2", url.Values{
		"number": {"2"}, "name": {"Higher-Order Functions"}, "unit": {"1"},
		"project_name": {"Hog"}, "project_parts": {"Phase 1, Phase 2"},
	})
	assertRedirect(t, rec, "/admin/lessons")
	l, err = f.courseRepo.GetLesson(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Higher-Order Functions", l.Name)
	require.NotNil(t, l.Project)
	assert.Equal(t, []string{"Phase 1", "Phase 2"}, l.Project.Parts)

	rec = c.post("/admin/lessons", url.Values{"number": {"3"}, "name": {"Bad"}, "videos": {"Lecture | not a url"}})
	assertRedirect(t, rec, "/admin/lessons")
	_, err = f.courseRepo.GetLesson(context.Background(), 3)
	assert.Error(t, err)

	rec = c.post("/admin/lessons/2/delete", nil)
	assertRedirect(t, rec, "/admin/lessons")
	c.assertFlash(rec, "Lesson 2 deleted.")
	assertRedirect(t, c.get("/lessons/2"), "/lessons")
}

func TestAdmin_feedback(t *testing.T) {
	f := setup(t)
	student := f.loggedIn(t, f.student)
	assertRedirect(t, student.post("/feedback", url.Values{"subject": {"Broken link"}, "body": {"Homework 1 is a 404."}}), "/dashboard")

	c := f.loggedIn(t, f.instructor)
	page := c.get("/admin/feedback")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "Broken link")

	tickets, err := f.feedback.QueryTickets(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, tickets, 1)

	rec := c.post("/admin/feedback/"+tickets[0].ID+"/resolve", nil)
	assertRedirect(t, rec, "/admin/feedback")
	c.assertFlash(rec, "Ticket resolved.")

	assert.NotContains(t, c.get("/admin/feedback").Body.String(), "Broken link")
	assert.Contains(t, c.get("/admin/feedback?all=true").Body.String(), "Broken link")

	rec = c.post("/admin/feedback/unknown/resolve", nil)
	assertRedirect(t, rec, "/admin/feedback")
	c.assertFlash(rec, "Feedback ticket not found.")
}
