package auth

import (
	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/user"
)

// Principal is the acting identity of a request: an authenticated User or the Guest.
type Principal struct {
	usr   user.User
	guest bool
}

// Guest is the unauthenticated principal. It holds perm.Guest.
var Guest = Principal{guest: true}

func Authenticated(usr user.User) Principal {
	return Principal{usr: usr}
}

func (p Principal) IsGuest() bool {
	return p.guest
}

// User returns the authenticated user; ok is false for the Guest.
func (p Principal) User() (usr user.User, ok bool) {
	if p.guest {
		return user.User{}, false
	}
	return p.usr, true
}

// Mask is the permission mask the principal acts with.
func (p Principal) Mask() perm.Mask {
	if p.guest {
		return perm.Guest
	}
	return p.usr.Permission
}

func (p Principal) Can(c perm.Capability) bool {
	return perm.HasCapability(p.Mask(), c)
}

// Is reports whether the principal is the authenticated user with the given ID.
func (p Principal) Is(userID string) bool {
	return !p.guest && userID != "" && p.usr.ID == userID
}

func (p Principal) Username() string {
	if p.guest {
		return ""
	}
	return p.usr.Username
}
