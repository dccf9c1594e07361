package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/perm"
)

// DefaultScore is the score of a grade that has not been graded yet.
const DefaultScore = "--"

type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	IsActive      bool      `json:"is_active"`
	Permission    perm.Mask `json:"permission"`
	PasswordHash  []byte    `json:"-"`
	CurrentLesson int       `json:"current_lesson"`
	CurrentUnit   int       `json:"current_unit"`
	Units         int       `json:"units"`
	Grades        []Grade   `json:"grades"`
	GraderID      string    `json:"grader_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
	LastLogin     time.Time `json:"last_login"` // UTC
}

// SetPassword hashes pwd with bcrypt. Each hash embeds its own random salt.
func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) Can(c perm.Capability) bool {
	return u.Permission.Has(c)
}

// RoleName names the user's permission mask when it matches a preset role.
func (u *User) RoleName() string {
	return perm.RoleName(u.Permission)
}

func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Grade returns the grade with the given order.
func (u *User) Grade(order string) (Grade, bool) {
	for _, g := range u.Grades {
		if g.Order == order {
			return g, true
		}
	}
	return Grade{}, false
}

type Grade struct {
	Order  string  `json:"order"`
	Name   string  `json:"name"`
	Score  string  `json:"score"`
	Weight float64 `json:"weight"`
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" form:"name"`
	Username        string `json:"username" form:"username" validate:"required,username"`
	Email           string `json:"email" form:"email" validate:"omitempty,email,emaildomain"`
	Password        string `json:"password" form:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" form:"role" validate:"omitempty,role"`
	GraderUsername  string `json:"grader" form:"grader"`
	Units           int    `json:"units" form:"units" validate:"gte=0,lte=10"`

	// Permission is resolved from Role by Validate (Student by default).
	Permission perm.Mask `json:"-" form:"-"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.GraderUsername = core.CleanString(nu.GraderUsername, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	nu.Permission = perm.Student
	if nu.Role != "" {
		role, _ := perm.ParseRole(nu.Role)
		nu.Permission = role.Mask()
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided by an admin to modify an existing User.
type UpdateUser struct {
	Name           string `json:"name" form:"name"`
	Username       string `json:"username" form:"username" validate:"omitempty,username"`
	Email          string `json:"email" form:"email" validate:"omitempty,email,emaildomain"`
	IsActive       *bool  `json:"is_active" form:"is_active"`
	GraderUsername string `json:"grader" form:"grader"`
	CurrentLesson  *int   `json:"current_lesson" form:"current_lesson" validate:"omitempty,gte=0"`
	CurrentUnit    *int   `json:"current_unit" form:"current_unit" validate:"omitempty,gte=0"`
	Units          *int   `json:"units" form:"units" validate:"omitempty,gte=0,lte=10"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	uname := core.CleanString(uu.Username, true /* lower */)
	if uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	uu.GraderUsername = core.CleanString(uu.GraderUsername, true /* lower */)

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Username, uu.Email, origUsr)
}

// Settings defines what a User may change about themselves.
type Settings struct {
	Name          string `json:"name" form:"name"`
	Email         string `json:"email" form:"email" validate:"omitempty,email,emaildomain"`
	CurrentLesson int    `json:"current_lesson" form:"current_lesson" validate:"gte=0"`
	CurrentUnit   int    `json:"current_unit" form:"current_unit" validate:"gte=0"`
	Units         int    `json:"units" form:"units" validate:"gte=0,lte=10"`
}

func (s *Settings) Validate(origUsr User, validate *validator.Validate, svc Service) error {
	s.Name = core.CleanString(s.Name)
	s.Email = core.CleanString(s.Email, true /* lower */)
	if err := validate.Struct(s); err != nil {
		return err
	}
	return svc.CheckUniqueness(origUsr.Username, s.Email, origUsr)
}

// PasswordChange is used by a User to change their own password.
type PasswordChange struct {
	OldPassword     string `json:"old_password" form:"old_password" validate:"required"`
	Password        string `json:"password" form:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm" validate:"required,eqfield=Password"`

	// user attributes for the similarity check, set by Validate
	name, username, email string
}

func (pc *PasswordChange) Validate(usr User, validate *validator.Validate) error {
	pc.name, pc.username, pc.email = usr.Name, usr.Username, usr.Email
	return validate.Struct(pc)
}

// SetUserPassword is used by admins to set the password of any User.
type SetUserPassword struct {
	Password        string `json:"password" form:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm" validate:"required,eqfield=Password"`

	name, username, email string
}

func (sp *SetUserPassword) Validate(usr User, validate *validator.Validate) error {
	sp.name, sp.username, sp.email = usr.Name, usr.Username, usr.Email
	return validate.Struct(sp)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" form:"token" validate:"required"`
	UID             string `json:"uid,omitempty" form:"uid" validate:"required"`
	Password        string `json:"password,omitempty" form:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" form:"password_confirm" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	rp.Token = core.CleanString(rp.Token)
	rp.UID = core.CleanString(rp.UID)
	return validate.Struct(rp)
}

// GradeInput appends or edits a Grade.
type GradeInput struct {
	Order  string  `json:"order" form:"order" validate:"required,max=32"`
	Name   string  `json:"name" form:"name" validate:"required,max=128"`
	Score  string  `json:"score" form:"score" validate:"max=32"`
	Weight float64 `json:"weight" form:"weight" validate:"gte=0"`
}

func (gi *GradeInput) Validate(validate *validator.Validate) error {
	gi.Order = core.CleanString(gi.Order)
	gi.Name = core.CleanString(gi.Name)
	gi.Score = core.CleanString(gi.Score)
	if gi.Score == "" {
		gi.Score = DefaultScore
	}
	return validate.Struct(gi)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	IsActive    *bool     `query:"is_active"`
	GraderID    string    `query:"grader"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.IsActive == nil && qf.GraderID == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single User: the first non-empty field wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail []string // [username, email]: matches on either
}
