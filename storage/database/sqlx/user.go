package sqlxrepos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/user"
)

const userColumns = `id, name, username, email, is_active, permission, password_hash,
	current_lesson, current_unit, units, grades, grader_id, created_at, updated_at, last_login`

// sortable user columns
var userOrderFields = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Username      string         `db:"username"`
	Email         null.String    `db:"email"`
	IsActive      bool           `db:"is_active"`
	Permission    int64          `db:"permission"`
	PasswordHash  []byte         `db:"password_hash"`
	CurrentLesson int            `db:"current_lesson"`
	CurrentUnit   int            `db:"current_unit"`
	Units         int            `db:"units"`
	Grades        types.JSONText `db:"grades"`
	GraderID      null.String    `db:"grader_id"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	LastLogin     null.Time      `db:"last_login"`
}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{base{exec: exec}}
}

func (repo userRepository) toRow(usr user.User) (userRow, error) {
	grades := usr.Grades
	if grades == nil {
		grades = []user.Grade{}
	}
	gradesJSON, err := json.Marshal(grades)
	if err != nil {
		return userRow{}, errors.Wrap(err, "marshalling grades")
	}
	return userRow{
		ID:            usr.ID,
		Name:          usr.Name,
		Username:      usr.Username,
		Email:         null.NewString(usr.Email, usr.Email != ""),
		IsActive:      usr.IsActive,
		Permission:    int64(usr.Permission),
		PasswordHash:  usr.PasswordHash,
		CurrentLesson: usr.CurrentLesson,
		CurrentUnit:   usr.CurrentUnit,
		Units:         usr.Units,
		Grades:        gradesJSON,
		GraderID:      null.NewString(usr.GraderID, usr.GraderID != ""),
		CreatedAt:     usr.CreatedAt.UTC(),
		UpdatedAt:     usr.UpdatedAt.UTC(),
		LastLogin:     null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}, nil
}

func (repo userRepository) fromRow(row userRow) (user.User, error) {
	var grades []user.Grade
	if len(row.Grades) > 0 {
		if err := row.Grades.Unmarshal(&grades); err != nil {
			return user.User{}, errors.Wrap(err, "unmarshalling grades")
		}
	}
	return user.User{
		ID:            row.ID,
		Name:          row.Name,
		Username:      row.Username,
		Email:         row.Email.String,
		IsActive:      row.IsActive,
		Permission:    perm.Mask(row.Permission),
		PasswordHash:  row.PasswordHash,
		CurrentLesson: row.CurrentLesson,
		CurrentUnit:   row.CurrentUnit,
		Units:         row.Units,
		Grades:        grades,
		GraderID:      row.GraderID.String,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
		LastLogin:     row.LastLogin.Time.UTC(),
	}, nil
}

func (repo userRepository) fromRows(rows []userRow) ([]user.User, error) {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		usr, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		users = append(users, usr)
	}
	return users, nil
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	q := "SELECT username FROM users WHERE (username = ? OR email = ?)"
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q += " AND id NOT IN (?)"
		args = append(args, ids)
	}
	q += " LIMIT 1"

	q, args, err := in(q, args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}
	var found string
	err = repo.getExec(exec).QueryRowContext(ctx, q, args...).Scan(&found)
	switch {
	case errors.Cause(err) == errNoRows:
		return nil
	case err != nil:
		return errors.Wrap(err, "checking user uniqueness")
	case found == username:
		return user.ErrUsernameExists
	default:
		return user.ErrEmailExists
	}
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	row, err := repo.toRow(usr)
	if err != nil {
		return user.User{}, err
	}
	_, err = repo.getExec(exec).ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.Permission, row.PasswordHash,
		row.CurrentLesson, row.CurrentUnit, row.Units, row.Grades, row.GraderID, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			where = append(where, "(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)")
			args = append(args, val, val, val)
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
		if filter.GraderID != "" {
			where = append(where, "grader_id = ?")
			args = append(args, filter.GraderID)
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, "created_at >= ?")
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, "created_at <= ?")
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + orderBy(ordering, userOrderFields, "username ASC")

	q, args, err := in(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building users query")
	}
	rows, err := selectRows[userRow](ctx, repo.getExec(exec), q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	return repo.fromRows(rows)
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var (
		cond string
		args []interface{}
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		cond, args = "id = $1", []interface{}{filter.ID}
	case filter.Username != "":
		cond, args = "username = $1", []interface{}{filter.Username}
	case filter.Email != "":
		cond, args = "email = $1", []interface{}{filter.Email}
	case len(filter.UsernameOrEmail) == 2:
		cond, args = "(username = $1 OR email = $2)", []interface{}{filter.UsernameOrEmail[0], filter.UsernameOrEmail[1]}
	default:
		return user.User{}, user.ErrNotFound
	}

	row, err := selectOne[userRow](ctx, repo.getExec(exec), user.ErrNotFound,
		"SELECT "+userColumns+" FROM users WHERE "+cond+" LIMIT 1", args...)
	if err != nil {
		return user.User{}, trapNotFound(err, user.ErrNotFound, "selecting user")
	}
	return repo.fromRow(row)
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row, err := repo.toRow(usr)
	if err != nil {
		return user.User{}, err
	}
	res, err := repo.getExec(exec).ExecContext(ctx,
		`UPDATE users SET name = $2, username = $3, email = $4, is_active = $5, permission = $6, password_hash = $7,
		current_lesson = $8, current_unit = $9, units = $10, grades = $11, grader_id = $12, updated_at = $13, last_login = $14
		WHERE id = $1`,
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.Permission, row.PasswordHash,
		row.CurrentLesson, row.CurrentUnit, row.Units, row.Grades, row.GraderID, row.UpdatedAt, row.LastLogin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if _, err = affected(res, user.ErrNotFound); err != nil {
		return user.User{}, trapNotFound(err, user.ErrNotFound, "updating user")
	}
	return usr, nil
}

// UpdateOrCreateUser upserts on the username.
func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	row, err := repo.toRow(usr)
	if err != nil {
		return user.User{}, err
	}
	err = repo.getExec(exec).QueryRowContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (username) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, is_active = EXCLUDED.is_active,
		permission = EXCLUDED.permission, password_hash = EXCLUDED.password_hash, units = EXCLUDED.units,
		grader_id = EXCLUDED.grader_id, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`,
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.Permission, row.PasswordHash,
		row.CurrentLesson, row.CurrentUnit, row.Units, row.Grades, row.GraderID, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	).Scan(&usr.ID, &usr.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "upserting user")
	}
	usr.CreatedAt = usr.CreatedAt.UTC()
	return usr, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := in("DELETE FROM users WHERE id IN (?)", ids)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return affected(res, nil)
}
