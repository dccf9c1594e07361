package perm

import (
	"strings"

	"github.com/pkg/errors"
)

// Role is a named preset Mask. Users may hold arbitrary masks: never compare masks to roles to check access.
type Role int

const (
	RoleGuest Role = iota
	RoleStudent
	RoleGrader
	RoleInstructor
	RoleSuperAdmin
)

var (
	ErrUnknownRole = errors.New("unknown role")

	selfCapabilities = []Capability{ResetPassword, WritePassword, ReadUserInfo, WriteUserInfo, ReadGrade, ReadProgress, WriteProgress}

	Guest   = Mask(0).With(ReadLesson)
	Student = Mask(0).With(AccessDashboard, ReadLesson).With(selfCapabilities...)
	Grader  = Student.With(
		ReadUserInfoEveryone,
		ReadGradeEveryone, WriteGradeEveryone,
		ReadProgressEveryone,
	)
	SuperAdmin = Mask(0).With(Capabilities()...)
	Instructor = SuperAdmin.Without(WritePermissionEveryone, WritePasswordEveryone)

	roles = []struct {
		role Role
		name string
		mask Mask
	}{
		{RoleGuest, "guest", Guest},
		{RoleStudent, "student", Student},
		{RoleGrader, "grader", Grader},
		{RoleInstructor, "instructor", Instructor},
		{RoleSuperAdmin, "superadmin", SuperAdmin},
	}
)

// Roles returns every preset role, least privileged first.
func Roles() []Role {
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.role)
	}
	return out
}

func (r Role) Mask() Mask {
	for _, rr := range roles {
		if rr.role == r {
			return rr.mask
		}
	}
	return 0
}

func (r Role) String() string {
	for _, rr := range roles {
		if rr.role == r {
			return rr.name
		}
	}
	return "custom"
}

func ParseRole(name string) (Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, rr := range roles {
		if rr.name == name {
			return rr.role, nil
		}
	}
	return 0, errors.Wrap(ErrUnknownRole, name)
}

// RoleName names m when it equals a preset and returns "custom" otherwise. For display only.
func RoleName(m Mask) string {
	for _, rr := range roles {
		if rr.mask == m {
			return rr.name
		}
	}
	return "custom"
}
