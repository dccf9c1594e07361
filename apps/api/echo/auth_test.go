package echoapi_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/auth"
	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/user"
	"github.com/cs61as/coursesite/testutil"
)

func TestAuth_login(t *testing.T) {
	f := setup(t)
	sessionName := f.conf.Session.CookieName

	c := f.newClient(t)
	home := c.get("/home")
	require.Equal(t, http.StatusOK, home.Code)
	assert.Contains(t, home.Body.String(), `action="/login"`)
	assert.Empty(t, c.cookie(sessionName), "an empty session gets no cookie")

	// a failed attempt leaves a flash, hence a session
	assertRedirect(t, c.login("alyssa", "not-my-password", false), "/home")
	before := c.cookie(sessionName)
	require.NotEmpty(t, before)

	rec := c.login("ALYSSA", testutil.DefaultPassword, false)
	assertRedirect(t, rec, "/dashboard")
	assert.NotEqual(t, before, c.cookie(sessionName), "session id must change on login")
	assert.Empty(t, c.cookie(f.conf.Session.RememberCookieName))
	c.assertFlash(rec, "Welcome back, Alyssa!")

	usr, err := f.users.GetByUsername(context.Background(), "alyssa")
	require.NoError(t, err)
	assert.False(t, usr.LastLogin.IsZero())

	// login by email too
	c = f.newClient(t)
	assertRedirect(t, c.login("ben@cs61as.test", testutil.DefaultPassword, false), "/dashboard")
}

func TestAuth_loginFailures(t *testing.T) {
	f := setup(t)
	testutil.CreateUser(t, f.userRepo, "Louis", "louis", "louis@cs61as.test", testutil.DefaultPassword, perm.Student, false)

	tests := []struct {
		name    string
		uname   string
		pwd     string
		wantMsg string
	}{
		{name: "wrong password", uname: "alyssa", pwd: "not-my-password", wantMsg: "Invalid username or password."},
		{name: "unknown user", uname: "nobody", pwd: testutil.DefaultPassword, wantMsg: "Invalid username or password."},
		{name: "deactivated", uname: "louis", pwd: testutil.DefaultPassword, wantMsg: "This account is deactivated."},
		{name: "missing password", uname: "alyssa", pwd: "", wantMsg: "password: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := f.newClient(t)
			rec := c.login(tt.uname, tt.pwd, false)
			assertRedirect(t, rec, "/home")
			c.assertFlash(rec, tt.wantMsg)
			assertRedirect(t, c.get("/dashboard"), "/lessons")
		})
	}
}

func TestAuth_logout(t *testing.T) {
	f := setup(t)
	c := f.newClient(t)
	c.login("alyssa", testutil.DefaultPassword, true)
	require.NotEmpty(t, c.cookie(f.conf.Session.RememberCookieName))
	before := c.cookie(f.conf.Session.CookieName)

	rec := c.post("/logout", nil)
	assertRedirect(t, rec, "/home")
	assert.NotEqual(t, before, c.cookie(f.conf.Session.CookieName))
	assert.Empty(t, c.cookie(f.conf.Session.RememberCookieName))
	c.assertFlash(rec, "You have been logged out.")

	assertRedirect(t, c.get("/dashboard"), "/lessons")

	n, err := f.tokens.DeleteUserTokens(context.Background(), "alyssa")
	require.NoError(t, err)
	assert.Zero(t, n, "logout must forget the remember-me token")
}

// A remembered user comes back after their session expired; the cookie rotates on every use.
func TestAuth_rememberMe(t *testing.T) {
	f := setup(t)
	rememberName := f.conf.Session.RememberCookieName

	first := f.newClient(t)
	first.login("alyssa", testutil.DefaultPassword, true)
	cookie1 := first.cookie(rememberName)
	require.NotEmpty(t, cookie1)

	// new browser session: only the remember-me cookie survives
	second := f.newClient(t)
	second.cookies[rememberName] = &http.Cookie{Name: rememberName, Value: cookie1}
	rec := second.get("/dashboard")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hi Alyssa!")
	cookie2 := second.cookie(rememberName)
	require.NotEmpty(t, cookie2)
	assert.NotEqual(t, cookie1, cookie2, "the token must rotate")

	// the session now carries the identity: no further rotation
	assert.Equal(t, http.StatusOK, second.get("/dashboard").Code)
	assert.Equal(t, cookie2, second.cookie(rememberName))
}

// A session id planted before a remember-me login is never promoted to the user's session.
func TestAuth_rememberMeRotatesSession(t *testing.T) {
	f := setup(t)
	sessionName := f.conf.Session.CookieName
	rememberName := f.conf.Session.RememberCookieName

	victim := f.newClient(t)
	victim.login("alyssa", testutil.DefaultPassword, true)
	remember := victim.cookie(rememberName)
	require.NotEmpty(t, remember)

	attacker := f.newClient(t)
	attacker.login("alyssa", "not-my-password", false)
	planted := attacker.cookie(sessionName)
	require.NotEmpty(t, planted)

	browser := f.newClient(t)
	browser.cookies[sessionName] = &http.Cookie{Name: sessionName, Value: planted}
	browser.cookies[rememberName] = &http.Cookie{Name: rememberName, Value: remember}
	rec := browser.get("/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hi Alyssa!")
	assert.NotEqual(t, planted, browser.cookie(sessionName), "session id must change on remember-me login")

	_, err := f.sessions.GetSession(context.Background(), planted)
	assert.Equal(t, auth.ErrSessionNotFound, err)
	assertRedirect(t, attacker.get("/dashboard"), "/lessons")
}

func TestAuth_anonymousSessionsAreNotStored(t *testing.T) {
	f := setup(t)
	for i := 0; i < 50; i++ {
		rec := f.newClient(t).get("/home")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Values("Set-Cookie"))
	}
	assert.Zero(t, f.sessions.Len())

	// a flash is stored until it is shown, then the session is dropped
	c := f.newClient(t)
	rec := c.login("alyssa", "not-my-password", false)
	assert.Equal(t, 1, f.sessions.Len())
	c.assertFlash(rec, "Invalid username or password.")
	assert.Zero(t, f.sessions.Len())
	assert.Empty(t, c.cookie(f.conf.Session.CookieName))
}

// Replaying a rotated cookie reveals a theft: every token of the user is revoked.
func TestAuth_tamperedCookie(t *testing.T) {
	f := setup(t)
	rememberName := f.conf.Session.RememberCookieName

	victim := f.newClient(t)
	victim.login("alyssa", testutil.DefaultPassword, true)
	stolen := victim.cookie(rememberName)

	// the victim comes back and the token rotates
	victim2 := f.newClient(t)
	victim2.cookies[rememberName] = &http.Cookie{Name: rememberName, Value: stolen}
	require.Equal(t, http.StatusOK, victim2.get("/dashboard").Code)
	rotated := victim2.cookie(rememberName)

	// the thief replays the old value
	thief := f.newClient(t)
	thief.cookies[rememberName] = &http.Cookie{Name: rememberName, Value: stolen}
	rec := thief.get("/home")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), auth.TamperedMsg)
	assert.Contains(t, rec.Body.String(), "Please log in again.")
	assert.Empty(t, thief.cookie(rememberName), "the cookie must be cleared")
	assert.True(t, f.logger.Has("WARN", "remember token mismatch"))

	// the rotated token is gone as well
	later := f.newClient(t)
	later.cookies[rememberName] = &http.Cookie{Name: rememberName, Value: rotated}
	assertRedirect(t, later.get("/dashboard"), "/lessons")
	assert.Empty(t, later.cookie(rememberName))
}

func TestAuth_malformedCookie(t *testing.T) {
	f := setup(t)
	rememberName := f.conf.Session.RememberCookieName

	c := f.newClient(t)
	c.cookies[rememberName] = &http.Cookie{Name: rememberName, Value: "garbage"}
	rec := c.get("/home")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), auth.TamperedMsg)
	assert.Empty(t, c.cookie(rememberName))
}

func TestAuth_rateLimit(t *testing.T) {
	f := setup(t, withConf(func(conf *core.Config) { conf.Server.LoginRateLimit = 2 }))
	c := f.newClient(t)

	for i := 0; i < 2; i++ {
		assertRedirect(t, c.login("alyssa", "nope", false), "/home")
	}
	rec := c.login("alyssa", testutil.DefaultPassword, false)
	assertRedirect(t, rec, "/lessons")
	c.assertFlash(rec, "Too many attempts. Please wait a minute and try again.")

	// other routes are not limited
	assert.Equal(t, http.StatusOK, c.get("/lessons").Code)
}

func TestAuth_passwordReset(t *testing.T) {
	f := setup(t)
	c := f.newClient(t)

	assert.Equal(t, http.StatusOK, c.get("/password-reset").Code)

	// unknown addresses get the same answer
	rec := c.post("/password-reset", url.Values{"email": {"nobody@cs61as.test"}})
	assertRedirect(t, rec, "/home")
	c.assertFlash(rec, "If an account uses this email address, a password reset link was sent to it.")
	assert.Empty(t, f.mailSvc.SentMessages())

	rec = c.post("/password-reset", url.Values{"email": {"Alyssa@CS61AS.test"}})
	assertRedirect(t, rec, "/home")
	require.Len(t, f.mailSvc.SentMessages(), 1)
	assert.Equal(t, "alyssa@cs61as.test", f.mailSvc.SentMessages()[0].To[0].Address)

	uid, token := user.ResetLinkFor(f.users, f.student)
	confirm := c.get("/password-reset/confirm?" + url.Values{"uid": {uid}, "token": {token}}.Encode())
	require.Equal(t, http.StatusOK, confirm.Code)
	assert.Contains(t, confirm.Body.String(), token)

	newPwd := "Structure-And-Interpretation-1985"
	rec = c.post("/password-reset/confirm", url.Values{
		"uid": {uid}, "token": {token}, "password": {newPwd}, "password_confirm": {newPwd},
	})
	assertRedirect(t, rec, "/home")
	c.assertFlash(rec, "Your password has been reset. You may now log in.")

	assertRedirect(t, c.login("alyssa", testutil.DefaultPassword, false), "/home")
	assertRedirect(t, c.login("alyssa", newPwd, false), "/dashboard")

	// the link is single use
	other := f.newClient(t)
	rec = other.post("/password-reset/confirm", url.Values{
		"uid": {uid}, "token": {token}, "password": {newPwd + "!"}, "password_confirm": {newPwd + "!"},
	})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/password-reset"))
}
