// Package emailsvc implements core.EmailService.
package emailsvc

import (
	"context"
	"log"
	"os"

	"github.com/cs61as/coursesite/core"
)

// NewService picks the email backend from the config:
// disabled when emails are off, sendgrid when an API key is set, the console otherwise.
func NewService(conf *core.Config, logger core.Logger) core.EmailService {
	switch {
	case !conf.Email.Enabled:
		return &disabledService{}
	case conf.Email.SendgridApiKey != "":
		return NewSendgridService(conf, logger)
	default:
		return NewConsoleService(conf, logger, log.New(os.Stdout, "EMAIL : ", 0))
	}
}

type disabledService struct{}

var _ core.EmailService = (*disabledService)(nil)

func (disabledService) Send(context.Context, *core.EmailMessage) error { return nil }
func (disabledService) SendMessages(...*core.EmailMessage)              {}
