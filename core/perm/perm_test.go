package perm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCapability(t *testing.T) {
	masks := []Mask{0, 1, 0xFFFFFFFF, SuperAdmin, Instructor, Grader, Student, Guest, 0x155555, 0x0AAAAA, 1 << 20, 1 << 31}

	require.Len(t, Capabilities(), 21)
	for _, m := range masks {
		for _, c := range Capabilities() {
			want := (m>>uint(c))&1 == 1
			assert.Equalf(t, want, HasCapability(m, c), "mask %#x, capability %s", uint32(m), c)
			assert.Equal(t, want, m.Has(c))
		}
	}
}

func TestHasCapability_undefined(t *testing.T) {
	all := Mask(0xFFFFFFFF)
	assert.False(t, all.Has(numCapabilities))
	assert.False(t, all.Has(Capability(31)))
	assert.False(t, all.Has(Capability(1000)))
}

func TestCapabilityBits(t *testing.T) {
	tests := []struct {
		name string
		cap  Capability
		bit  uint
	}{
		{name: "access-admin-panel", cap: AccessAdminPanel, bit: 0},
		{name: "access-dashboard", cap: AccessDashboard, bit: 1},
		{name: "read-lesson", cap: ReadLesson, bit: 2},
		{name: "write-lesson", cap: WriteLesson, bit: 3},
		{name: "read-permission-everyone", cap: ReadPermissionEveryone, bit: 4},
		{name: "write-permission-everyone", cap: WritePermissionEveryone, bit: 5},
		{name: "reset-password-everyone", cap: ResetPasswordEveryone, bit: 6},
		{name: "write-password-everyone", cap: WritePasswordEveryone, bit: 7},
		{name: "read-userinfo-everyone", cap: ReadUserInfoEveryone, bit: 8},
		{name: "write-userinfo-everyone", cap: WriteUserInfoEveryone, bit: 9},
		{name: "read-grade-everyone", cap: ReadGradeEveryone, bit: 10},
		{name: "write-grade-everyone", cap: WriteGradeEveryone, bit: 11},
		{name: "read-progress-everyone", cap: ReadProgressEveryone, bit: 12},
		{name: "write-progress-everyone", cap: WriteProgressEveryone, bit: 13},
		{name: "reset-password", cap: ResetPassword, bit: 14},
		{name: "write-password", cap: WritePassword, bit: 15},
		{name: "read-userinfo", cap: ReadUserInfo, bit: 16},
		{name: "write-userinfo", cap: WriteUserInfo, bit: 17},
		{name: "read-grade", cap: ReadGrade, bit: 18},
		{name: "read-progress", cap: ReadProgress, bit: 19},
		{name: "write-progress", cap: WriteProgress, bit: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.cap.String())
			assert.Equal(t, Mask(1)<<tt.bit, Mask(0).With(tt.cap))

			parsed, err := ParseCapability(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.cap, parsed)
		})
	}
}

func TestParseCapability_unknown(t *testing.T) {
	_, err := ParseCapability("fly")
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestMask(t *testing.T) {
	m := Mask(0).With(ReadLesson, WriteProgress)
	assert.True(t, m.Has(ReadLesson))
	assert.True(t, m.Has(WriteProgress))
	assert.False(t, m.Has(WriteLesson))
	assert.Equal(t, []string{"read-lesson", "write-progress"}, m.Names())

	m = m.Without(ReadLesson)
	assert.False(t, m.Has(ReadLesson))
	assert.Equal(t, []Capability{WriteProgress}, m.Capabilities())

	parsed, err := ParseMask([]string{"read-lesson", " write-progress ", ""})
	require.NoError(t, err)
	assert.Equal(t, Mask(0).With(ReadLesson, WriteProgress), parsed)

	_, err = ParseMask([]string{"read-lesson", "lol"})
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestRoles(t *testing.T) {
	assert.Equal(t, Mask(0x1FFFFF), SuperAdmin)

	assert.True(t, Guest.Has(ReadLesson))
	assert.False(t, Guest.Has(AccessDashboard))
	assert.False(t, Guest.Has(WriteProgress))
	assert.False(t, Guest.Has(WriteProgressEveryone))

	assert.True(t, Student.Has(WriteProgress))
	assert.False(t, Student.Has(WriteProgressEveryone))
	assert.False(t, Student.Has(AccessAdminPanel))

	assert.True(t, Grader.Has(WriteGradeEveryone))
	assert.True(t, Grader.Has(ReadProgressEveryone))
	assert.False(t, Grader.Has(WriteProgressEveryone))

	assert.True(t, Instructor.Has(AccessAdminPanel))
	assert.True(t, Instructor.Has(WriteLesson))
	assert.False(t, Instructor.Has(WritePermissionEveryone))

	for _, r := range Roles() {
		assert.Equal(t, r.String(), RoleName(r.Mask()))
		parsed, err := ParseRole(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
	assert.Equal(t, "custom", RoleName(Student.With(ReadGradeEveryone)))

	_, err := ParseRole("wizard")
	assert.ErrorIs(t, err, ErrUnknownRole)
}
