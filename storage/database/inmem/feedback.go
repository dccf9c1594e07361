package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/feedback"
)

type feedbackRepository struct {
	db *feedbackTable
}

var _ feedback.Repository = (*feedbackRepository)(nil)

func NewFeedbackRepository(db *DB) feedback.Repository {
	return &feedbackRepository{db: db.feedback}
}

func (repo *feedbackRepository) CreateTicket(_ context.Context, t feedback.Ticket, _ ...core.DBExecutor) (feedback.Ticket, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	stored := t
	repo.db.table[t.ID] = &stored
	return t, nil
}

func (repo *feedbackRepository) QueryTickets(_ context.Context, onlyOpen bool, _ ...core.DBExecutor) ([]feedback.Ticket, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tickets := make([]feedback.Ticket, 0, len(repo.db.table))
	for _, t := range repo.db.table {
		if onlyOpen && t.Resolved {
			continue
		}
		tickets = append(tickets, *t)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].CreatedAt.After(tickets[j].CreatedAt) })
	return tickets, nil
}

func (repo *feedbackRepository) GetTicket(_ context.Context, id string, _ ...core.DBExecutor) (feedback.Ticket, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.table[id]; ok {
		return *t, nil
	}
	return feedback.Ticket{}, feedback.ErrNotFound
}

func (repo *feedbackRepository) UpdateTicket(_ context.Context, t feedback.Ticket, _ ...core.DBExecutor) (feedback.Ticket, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[t.ID]; !ok {
		return feedback.Ticket{}, feedback.ErrNotFound
	}
	stored := t
	repo.db.table[t.ID] = &stored
	return t, nil
}
