package feedback

import (
	"context"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/user"
)

var ErrNotFound = core.NewNotFoundError("feedback ticket")

type Ticket struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Resolved   bool      `json:"resolved"`
	CreatedAt  time.Time `json:"created_at"`  // UTC
	ResolvedAt time.Time `json:"resolved_at"` // UTC
}

type Input struct {
	Subject string `json:"subject" form:"subject" validate:"required,max=200"`
	Body    string `json:"body" form:"body" validate:"required,max=5000"`
}

func (in *Input) Validate(validate *validator.Validate) error {
	in.Subject = core.CleanString(in.Subject)
	in.Body = core.CleanString(in.Body)
	return validate.Struct(in)
}

type (
	Repository interface {
		CreateTicket(ctx context.Context, t Ticket, exec ...core.DBExecutor) (Ticket, error)
		// QueryTickets returns tickets newest first.
		QueryTickets(ctx context.Context, onlyOpen bool, exec ...core.DBExecutor) ([]Ticket, error)
		GetTicket(ctx context.Context, id string, exec ...core.DBExecutor) (Ticket, error)
		UpdateTicket(ctx context.Context, t Ticket, exec ...core.DBExecutor) (Ticket, error)
	}

	Service interface {
		// Submit stores a ticket and emails the staff address, if any.
		Submit(ctx context.Context, author user.User, in Input) (Ticket, error)
		Query(ctx context.Context, onlyOpen bool) ([]Ticket, error)
		Resolve(ctx context.Context, id string) (Ticket, error)
	}

	service struct {
		repo       Repository
		mailSvc    core.EmailService
		adminEmail string
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{repo: repo, mailSvc: mailSvc, adminEmail: conf.AdminEmail}
}

func (svc *service) Submit(ctx context.Context, author user.User, in Input) (Ticket, error) {
	t := Ticket{
		ID:        uuid.New().String(),
		Username:  author.Username,
		Subject:   in.Subject,
		Body:      in.Body,
		CreatedAt: time.Now().UTC(),
	}
	t, err := svc.repo.CreateTicket(ctx, t)
	if err != nil {
		return Ticket{}, errors.Wrap(err, "creating ticket")
	}

	if svc.adminEmail != "" {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: "Staff", Address: svc.adminEmail}},
			Subject:      "Feedback: " + t.Subject,
			TemplateName: "feedback",
			TemplateData: map[string]interface{}{
				"Username": t.Username,
				"Subject":  t.Subject,
				"Body":     t.Body,
			},
		})
	}
	return t, nil
}

func (svc *service) Query(ctx context.Context, onlyOpen bool) ([]Ticket, error) {
	tickets, err := svc.repo.QueryTickets(ctx, onlyOpen)
	return tickets, errors.Wrap(err, "querying tickets")
}

func (svc *service) Resolve(ctx context.Context, id string) (Ticket, error) {
	t, err := svc.repo.GetTicket(ctx, id)
	if err != nil {
		return Ticket{}, err
	}
	if t.Resolved {
		return t, nil
	}
	t.Resolved = true
	t.ResolvedAt = time.Now().UTC()
	t, err = svc.repo.UpdateTicket(ctx, t)
	if err != nil && !core.IsNotFound(err) {
		return Ticket{}, errors.Wrap(err, "resolving ticket")
	}
	return t, err
}
