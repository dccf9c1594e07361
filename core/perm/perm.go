// Package perm evaluates capability bits of a role mask.
//
// Every capability owns exactly one bit of a Mask. Bit positions are persisted with
// users and must never be reordered: append new capabilities at the end.
package perm

import (
	"strings"

	"github.com/pkg/errors"
)

type (
	Capability uint
	Mask       uint32
)

const (
	AccessAdminPanel Capability = iota
	AccessDashboard
	ReadLesson
	WriteLesson
	ReadPermissionEveryone
	WritePermissionEveryone
	ResetPasswordEveryone
	WritePasswordEveryone
	ReadUserInfoEveryone
	WriteUserInfoEveryone
	ReadGradeEveryone
	WriteGradeEveryone
	ReadProgressEveryone
	WriteProgressEveryone
	ResetPassword
	WritePassword
	ReadUserInfo
	WriteUserInfo
	ReadGrade
	ReadProgress
	WriteProgress

	numCapabilities
)

var (
	ErrUnknownCapability = errors.New("unknown capability")

	capabilityNames = [numCapabilities]string{
		AccessAdminPanel:        "access-admin-panel",
		AccessDashboard:         "access-dashboard",
		ReadLesson:              "read-lesson",
		WriteLesson:             "write-lesson",
		ReadPermissionEveryone:  "read-permission-everyone",
		WritePermissionEveryone: "write-permission-everyone",
		ResetPasswordEveryone:   "reset-password-everyone",
		WritePasswordEveryone:   "write-password-everyone",
		ReadUserInfoEveryone:    "read-userinfo-everyone",
		WriteUserInfoEveryone:   "write-userinfo-everyone",
		ReadGradeEveryone:       "read-grade-everyone",
		WriteGradeEveryone:      "write-grade-everyone",
		ReadProgressEveryone:    "read-progress-everyone",
		WriteProgressEveryone:   "write-progress-everyone",
		ResetPassword:           "reset-password",
		WritePassword:           "write-password",
		ReadUserInfo:            "read-userinfo",
		WriteUserInfo:           "write-userinfo",
		ReadGrade:               "read-grade",
		ReadProgress:            "read-progress",
		WriteProgress:           "write-progress",
	}
)

// Capabilities returns every defined capability, in bit order.
func Capabilities() []Capability {
	caps := make([]Capability, 0, numCapabilities)
	for c := Capability(0); c < numCapabilities; c++ {
		caps = append(caps, c)
	}
	return caps
}

func (c Capability) Valid() bool { return c < numCapabilities }

func (c Capability) String() string {
	if !c.Valid() {
		return "unknown"
	}
	return capabilityNames[c]
}

func (c Capability) bit() Mask {
	if !c.Valid() {
		return 0
	}
	return 1 << c
}

func ParseCapability(name string) (Capability, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range capabilityNames {
		if n == name {
			return Capability(c), nil
		}
	}
	return 0, errors.Wrap(ErrUnknownCapability, name)
}

// HasCapability reports whether bit c is set in m. Undefined capabilities are never held.
func HasCapability(m Mask, c Capability) bool {
	return m&c.bit() != 0
}

func (m Mask) Has(c Capability) bool { return HasCapability(m, c) }

func (m Mask) With(caps ...Capability) Mask {
	for _, c := range caps {
		m |= c.bit()
	}
	return m
}

func (m Mask) Without(caps ...Capability) Mask {
	for _, c := range caps {
		m &^= c.bit()
	}
	return m
}

// Capabilities lists the defined capabilities held by m.
func (m Mask) Capabilities() []Capability {
	var caps []Capability
	for _, c := range Capabilities() {
		if m.Has(c) {
			caps = append(caps, c)
		}
	}
	return caps
}

// Names lists the names of the defined capabilities held by m.
func (m Mask) Names() []string {
	caps := m.Capabilities()
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, c.String())
	}
	return names
}

// ParseMask builds a Mask out of capability names.
func ParseMask(names []string) (Mask, error) {
	var m Mask
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		c, err := ParseCapability(name)
		if err != nil {
			return 0, err
		}
		m = m.With(c)
	}
	return m, nil
}
