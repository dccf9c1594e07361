package sqlxrepos

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/user"
)

var userRowCols = []string{
	"id", "name", "username", "email", "is_active", "permission", "password_hash",
	"current_lesson", "current_unit", "units", "grades", "grader_id", "created_at", "updated_at", "last_login",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return db, mock
}

func TestUserRepository_GetUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	now := time.Date(2020, 9, 1, 10, 0, 0, 0, time.UTC)
	id := "7b0e9a3e-1d1f-4c52-9f0c-1c1b5f3e9d11"

	mock.ExpectQuery("SELECT .* FROM users WHERE username = \\$1 LIMIT 1").
		WithArgs("alyssa").
		WillReturnRows(sqlmock.NewRows(userRowCols).AddRow(
			id, "Alyssa P. Hacker", "alyssa", "alyssa@berkeley.edu", true, int64(perm.Student), []byte("hash"),
			3, 1, 4, []byte(`[{"order":"1","name":"Homework 1","score":"--","weight":1}]`), nil, now, now, nil,
		))
	mock.ExpectQuery("SELECT .* FROM users WHERE username = \\$1 LIMIT 1").
		WithArgs("ben").
		WillReturnRows(sqlmock.NewRows(userRowCols))

	usr, err := repo.GetUser(ctx, user.GetFilter{Username: "alyssa"})
	require.NoError(t, err)
	assert.Equal(t, id, usr.ID)
	assert.Equal(t, "alyssa@berkeley.edu", usr.Email)
	assert.Equal(t, perm.Student, usr.Permission)
	assert.Equal(t, 3, usr.CurrentLesson)
	assert.Equal(t, []user.Grade{{Order: "1", Name: "Homework 1", Score: user.DefaultScore, Weight: 1}}, usr.Grades)
	assert.Empty(t, usr.GraderID)
	assert.True(t, usr.LastLogin.IsZero())

	_, err = repo.GetUser(ctx, user.GetFilter{Username: "ben"})
	assert.Equal(t, user.ErrNotFound, err)

	// malformed IDs never reach the database
	_, err = repo.GetUser(ctx, user.GetFilter{ID: "lol"})
	assert.Equal(t, user.ErrNotFound, err)
}

func TestUserRepository_GetUser_SchemaOutOfDate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT .* FROM users WHERE username = \\$1 LIMIT 1").
		WithArgs("alyssa").
		WillReturnError(&pq.Error{Code: "42703", Message: `column "units" does not exist`})
	mock.ExpectQuery("SELECT .* FROM users WHERE username = \\$1 LIMIT 1").
		WithArgs("ben").
		WillReturnError(&pq.Error{Code: "57014", Message: "canceling statement due to user request"})

	_, err := repo.GetUser(ctx, user.GetFilter{Username: "alyssa"})
	require.Error(t, err)
	assert.True(t, core.IsShutdown(err))
	assert.Contains(t, err.Error(), "database schema is out of date")

	_, err = repo.GetUser(ctx, user.GetFilter{Username: "ben"})
	require.Error(t, err)
	assert.False(t, core.IsShutdown(err))
}

func TestUserRepository_CheckUsernameUniqueness(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	excl := []user.User{{ID: "a"}, {ID: "b"}}

	q := regexp.QuoteMeta("SELECT username FROM users WHERE (username = $1 OR email = $2) AND id NOT IN ($3, $4) LIMIT 1")
	mock.ExpectQuery(q).WithArgs("alyssa", "a@b.c", "a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"username"}).AddRow("alyssa"))
	mock.ExpectQuery(q).WithArgs("ben", "a@b.c", "a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"username"}).AddRow("alyssa"))
	mock.ExpectQuery(q).WithArgs("eva", "e@b.c", "a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"username"}))

	tests := []struct {
		name    string
		uname   string
		email   string
		wantErr error
	}{
		{name: "username taken", uname: "alyssa", email: "a@b.c", wantErr: user.ErrUsernameExists},
		{name: "email taken", uname: "ben", email: "a@b.c", wantErr: user.ErrEmailExists},
		{name: "available", uname: "eva", email: "e@b.c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.CheckUsernameUniqueness(ctx, tt.uname, tt.email, excl); err != tt.wantErr {
				t.Errorf("CheckUsernameUniqueness() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUserRepository_CreateUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	usr := user.User{Username: "alyssa", IsActive: true, Permission: perm.Student, PasswordHash: []byte("hash"), CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "", "alyssa", nil, true, int64(perm.Student), []byte("hash"),
			0, 0, 0, []byte("[]"), nil, now, now, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505"})

	created, err := repo.CreateUser(ctx, usr)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = repo.CreateUser(ctx, usr)
	assert.Equal(t, user.ErrUserExists, err)
}

func TestUserRepository_UpdateUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	mock.ExpectExec("UPDATE users SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.UpdateUser(ctx, user.User{ID: "a", Username: "alyssa"})
	require.NoError(t, err)

	_, err = repo.UpdateUser(ctx, user.User{ID: "b", Username: "ben"})
	assert.Equal(t, user.ErrNotFound, err)
}

func TestUserRepository_QueryUsers(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	active := true

	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM users WHERE (name ILIKE $1 OR username ILIKE $2 OR email ILIKE $3) AND is_active = $4 ORDER BY created_at DESC, name ASC")).
		WithArgs("%aly%", "%aly%", "%aly%", true).
		WillReturnRows(sqlmock.NewRows(userRowCols))

	users, err := repo.QueryUsers(ctx,
		&user.QueryFilter{Search: "aly", IsActive: &active},
		[]core.DBOrdering{{Field: "created_at"}, {Field: "password_hash"}, {Field: "name", Ascending: true}},
	)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestUserRepository_DeleteUsersByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id IN ($1, $2)")).
		WithArgs("a", "b").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteUsersByID(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.DeleteUsersByID(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
