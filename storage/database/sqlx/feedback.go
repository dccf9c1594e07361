package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/feedback"
)

const ticketColumns = "id, username, subject, body, resolved, created_at, resolved_at"

type ticketRow struct {
	ID         string    `db:"id"`
	Username   string    `db:"username"`
	Subject    string    `db:"subject"`
	Body       string    `db:"body"`
	Resolved   bool      `db:"resolved"`
	CreatedAt  time.Time `db:"created_at"`
	ResolvedAt null.Time `db:"resolved_at"`
}

func (row ticketRow) ticket() feedback.Ticket {
	return feedback.Ticket{
		ID:         row.ID,
		Username:   row.Username,
		Subject:    row.Subject,
		Body:       row.Body,
		Resolved:   row.Resolved,
		CreatedAt:  row.CreatedAt.UTC(),
		ResolvedAt: row.ResolvedAt.Time.UTC(),
	}
}

type feedbackRepository struct {
	base
}

var _ feedback.Repository = (*feedbackRepository)(nil)

func NewFeedbackRepository(exec core.DBExecutor) feedback.Repository {
	return &feedbackRepository{base{exec: exec}}
}

func (repo feedbackRepository) CreateTicket(ctx context.Context, t feedback.Ticket, exec ...core.DBExecutor) (feedback.Ticket, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := repo.getExec(exec).ExecContext(ctx,
		"INSERT INTO feedback_tickets ("+ticketColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		t.ID, t.Username, t.Subject, t.Body, t.Resolved, t.CreatedAt.UTC(), null.NewTime(t.ResolvedAt.UTC(), !t.ResolvedAt.IsZero()),
	)
	if err != nil {
		return feedback.Ticket{}, errors.Wrap(err, "inserting ticket")
	}
	return t, nil
}

func (repo feedbackRepository) QueryTickets(ctx context.Context, onlyOpen bool, exec ...core.DBExecutor) ([]feedback.Ticket, error) {
	q := "SELECT " + ticketColumns + " FROM feedback_tickets"
	if onlyOpen {
		q += " WHERE NOT resolved"
	}
	q += " ORDER BY created_at DESC"

	rows, err := selectRows[ticketRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return nil, errors.Wrap(err, "selecting tickets")
	}
	tickets := make([]feedback.Ticket, 0, len(rows))
	for _, row := range rows {
		tickets = append(tickets, row.ticket())
	}
	return tickets, nil
}

func (repo feedbackRepository) GetTicket(ctx context.Context, id string, exec ...core.DBExecutor) (feedback.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return feedback.Ticket{}, feedback.ErrNotFound
	}
	row, err := selectOne[ticketRow](ctx, repo.getExec(exec), feedback.ErrNotFound,
		"SELECT "+ticketColumns+" FROM feedback_tickets WHERE id = $1", id)
	if err != nil {
		return feedback.Ticket{}, trapNotFound(err, feedback.ErrNotFound, "selecting ticket")
	}
	return row.ticket(), nil
}

func (repo feedbackRepository) UpdateTicket(ctx context.Context, t feedback.Ticket, exec ...core.DBExecutor) (feedback.Ticket, error) {
	res, err := repo.getExec(exec).ExecContext(ctx,
		"UPDATE feedback_tickets SET subject = $2, body = $3, resolved = $4, resolved_at = $5 WHERE id = $1",
		t.ID, t.Subject, t.Body, t.Resolved, null.NewTime(t.ResolvedAt.UTC(), !t.ResolvedAt.IsZero()),
	)
	if err != nil {
		return feedback.Ticket{}, errors.Wrap(err, "updating ticket")
	}
	if _, err = affected(res, feedback.ErrNotFound); err != nil {
		return feedback.Ticket{}, trapNotFound(err, feedback.ErrNotFound, "updating ticket")
	}
	return t, nil
}
