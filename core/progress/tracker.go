package progress

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/auth"
	"github.com/cs61as/coursesite/core/course"
	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/user"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("progress")
	ErrIndexOutOfRange = errors.New("item index out of range")
	ErrNotSubmittable  = errors.New("only homework and projects can be submitted")
	ErrNoGrader        = errors.New("no grader to notify")
)

type (
	Repository interface {
		// GetProgress returns ErrNotFound when the user has no record for the lesson.
		GetProgress(ctx context.Context, userID string, lessonNumber int, exec ...core.DBExecutor) (Record, error)
		// UpsertProgress inserts or replaces the record of (UserID, LessonNumber).
		UpsertProgress(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		QueryUserProgress(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Record, error)
	}

	// GraderFinder is the part of user.Service the Tracker needs.
	GraderFinder interface {
		Grader(ctx context.Context, usr user.User) (user.User, error)
	}

	Tracker struct {
		repo       Repository
		graders    GraderFinder
		mailSvc    core.EmailService
		logger     core.Logger
		adminEmail string
	}
)

func NewTracker(repo Repository, graders GraderFinder, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Tracker {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(graders, "graders"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Tracker{
		repo:       repo,
		graders:    graders,
		mailSvc:    mailSvc,
		logger:     logger,
		adminEmail: conf.AdminEmail,
	}
}

// CanWrite reports whether actor may change the progress of the user ownerID.
func CanWrite(actor auth.Principal, ownerID string) bool {
	if actor.IsGuest() {
		return false
	}
	return actor.Can(perm.WriteProgressEveryone) || (actor.Is(ownerID) && actor.Can(perm.WriteProgress))
}

// CanRead reports whether actor may see the progress of the user ownerID.
func CanRead(actor auth.Principal, ownerID string) bool {
	if actor.IsGuest() {
		return false
	}
	return actor.Can(perm.ReadProgressEveryone) || (actor.Is(ownerID) && actor.Can(perm.ReadProgress))
}

// Load returns the principal's own progress on the lesson.
// The Guest gets an unsaved all-false record.
func (t *Tracker) Load(ctx context.Context, principal auth.Principal, l course.Lesson) (*Handle, error) {
	owner, ok := principal.User()
	if !ok {
		return &Handle{tracker: t, lesson: l, rec: NewRecord("", l)}, nil
	}
	return t.LoadFor(ctx, principal, owner, l)
}

// LoadFor returns the progress of owner on the lesson, as seen by actor.
// A missing record is created, and persisted only when actor may write it.
func (t *Tracker) LoadFor(ctx context.Context, actor auth.Principal, owner user.User, l course.Lesson) (*Handle, error) {
	h := &Handle{tracker: t, lesson: l, owner: owner}

	rec, err := t.repo.GetProgress(ctx, owner.ID, l.Number)
	switch {
	case err == nil:
		h.rec, h.persisted = rec, true
		return h, nil
	case errors.Cause(err) != ErrNotFound:
		return nil, errors.Wrap(err, "loading progress")
	}

	h.rec = NewRecord(owner.ID, l)
	if CanWrite(actor, owner.ID) {
		if err = h.save(ctx); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Overview lists the stored progress records of owner, by lesson number.
func (t *Tracker) Overview(ctx context.Context, owner user.User) ([]Record, error) {
	recs, err := t.repo.QueryUserProgress(ctx, owner.ID)
	return recs, errors.Wrap(err, "querying progress")
}

// Handle is the progress of one user on one lesson.
type Handle struct {
	tracker   *Tracker
	lesson    course.Lesson
	owner     user.User
	rec       Record
	persisted bool
}

func (h *Handle) Record() Record {
	return h.rec.clone()
}

func (h *Handle) Lesson() course.Lesson {
	return h.lesson
}

func (h *Handle) Owner() user.User {
	return h.owner
}

// Persisted reports whether the record is stored.
func (h *Handle) Persisted() bool {
	return h.persisted
}

func (h *Handle) Len(k Kind) int {
	return h.rec.Len(k)
}

func (h *Handle) Completed(k Kind, i int) (bool, error) {
	return h.rec.Completed(k, i)
}

// SetCompleted sets a completion flag and saves the record right away.
// Without write permission it is a no-op.
func (h *Handle) SetCompleted(ctx context.Context, actor auth.Principal, k Kind, i int, v bool) error {
	if h.owner.ID == "" || !CanWrite(actor, h.owner.ID) {
		return nil
	}
	// validate before mutating
	if _, err := h.rec.Completed(k, i); err != nil {
		return err
	}
	prev := h.rec.clone()
	_ = h.rec.set(k, i, v)
	if err := h.save(ctx); err != nil {
		h.rec = prev
		return err
	}
	return nil
}

// ConfirmSubmission marks a homework or project part as turned in and notifies the owner's grader.
// The completion is kept when the notification fails: a *core.NotificationError is returned.
func (h *Handle) ConfirmSubmission(ctx context.Context, actor auth.Principal, k Kind, i int) error {
	if !k.Submittable() {
		return ErrNotSubmittable
	}
	if h.owner.ID == "" || !CanWrite(actor, h.owner.ID) {
		return nil
	}
	if err := h.SetCompleted(ctx, actor, k, i, true); err != nil {
		return err
	}
	return h.tracker.notifyGrader(ctx, h.owner, h.lesson, k, i)
}

func (h *Handle) save(ctx context.Context) error {
	now := time.Now().UTC()
	if h.rec.CreatedAt.IsZero() {
		h.rec.CreatedAt = now
	}
	h.rec.UpdatedAt = now
	rec, err := h.tracker.repo.UpsertProgress(ctx, h.rec)
	if err != nil {
		return errors.Wrap(err, "saving progress")
	}
	h.rec, h.persisted = rec, true
	return nil
}

func (t *Tracker) notifyGrader(ctx context.Context, owner user.User, l course.Lesson, k Kind, i int) error {
	to, name := t.adminEmail, "Staff"
	grader, err := t.graders.Grader(ctx, owner)
	switch {
	case err == nil && grader.Email != "":
		to, name = grader.Email, grader.DisplayName()
	case err != nil && !core.IsNotFound(err):
		t.logger.Error("progress.notifyGrader: finding grader", err, owner)
	}
	if to == "" {
		return &core.NotificationError{To: "grader", Err: ErrNoGrader}
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: name, Address: to}},
		Subject:      fmt.Sprintf("%s submitted %s", owner.DisplayName(), itemName(l, k, i)),
		TemplateName: "submission",
		TemplateData: map[string]interface{}{
			"GraderName":      name,
			"StudentName":     owner.DisplayName(),
			"StudentUsername": owner.Username,
			"Kind":            string(k),
			"ItemName":        itemName(l, k, i),
			"LessonNumber":    l.Number,
			"LessonName":      l.Name,
		},
	}
	if err = t.mailSvc.Send(ctx, msg); err != nil {
		t.logger.Warn("progress.notifyGrader: sending email", err, owner)
		return &core.NotificationError{To: to, Err: err}
	}
	return nil
}

func itemName(l course.Lesson, k Kind, i int) string {
	switch k {
	case KindHomework:
		if l.Homework.Name != "" {
			return l.Homework.Name
		}
		return fmt.Sprintf("Homework %d", l.Number)
	case KindProject:
		return l.ProjectPartName(i)
	}
	return string(k)
}
