package user

import (
	"github.com/cs61as/coursesite/core"
)

// NewServiceMock returns a Service configured like production, for tests.
func NewServiceMock(repo Repository, mailSvc core.EmailService, logger core.Logger) Service {
	return NewService(repo, mailSvc, core.NewTestConfig(), logger)
}

// ResetLinkFor returns the uid and token a password reset email would carry for usr.
func ResetLinkFor(svc Service, usr User) (uid, token string) {
	s, ok := svc.(*service)
	if !ok {
		return "", ""
	}
	return encodeUID(usr), s.tokenGen.makeToken(usr)
}
