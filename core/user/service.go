package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/perm"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user")
	ErrUserExists     = errors.New("a user with this username or email already exists")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrInvalidGrader  = errors.New("grader must be an active user allowed to grade everyone")
	ErrGradeExists    = errors.New("a grade with this order already exists")
	ErrGradeNotFound  = core.NewNotFoundError("grade")
	ErrWrongPassword  = errors.New("current password is incorrect")
	ErrInvalidReset   = errors.New("the password reset link is invalid or has expired")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		CheckUniqueness(uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsername(ctx context.Context, uname string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		SetPermission(ctx context.Context, usr User, mask perm.Mask) (User, error)
		UpdateSettings(ctx context.Context, usr User, s Settings) (User, error)
		ChangePassword(ctx context.Context, usr User, pc PasswordChange) (User, error)
		SetPassword(ctx context.Context, usr User, pwd string) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		Delete(ctx context.Context, ids ...string) (int, error)
		AddGrade(ctx context.Context, usr User, gi GradeInput) (User, error)
		EditGrade(ctx context.Context, usr User, order string, gi GradeInput) (User, error)
		Grader(ctx context.Context, usr User) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) (User, error)
	}

	service struct {
		repo     Repository
		mailSvc  core.EmailService
		tokenGen resetTokenGenerator
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config, logger core.Logger) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		tokenGen: resetTokenGenerator{
			secretKey: []byte(conf.SecretKey),
			timeout:   conf.PasswordResetTimeoutDelta,
		},
		logger: logger,
	}
}

func (svc *service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists, ErrUserExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:       nu.Name,
		Username:   nu.Username,
		Email:      nu.Email,
		IsActive:   true,
		Permission: nu.Permission,
		Units:      nu.Units,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if nu.GraderUsername != "" {
		grader, err := svc.validGrader(ctx, nu.GraderUsername)
		if err != nil {
			return User{}, err
		}
		usr.GraderID = grader.ID
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

func (svc *service) QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	users, err := svc.repo.QueryUsers(ctx, filter, ordering)
	return users, errors.Wrap(err, "querying users")
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Username: core.CleanString(uname, true /* lower */)})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: []string{uname, uname}})
}

func (svc *service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.CurrentLesson != nil {
		usr.CurrentLesson = *uu.CurrentLesson
	}
	if uu.CurrentUnit != nil {
		usr.CurrentUnit = *uu.CurrentUnit
	}
	if uu.Units != nil {
		usr.Units = *uu.Units
	}
	if uu.GraderUsername != "" {
		grader, err := svc.validGrader(ctx, uu.GraderUsername)
		if err != nil {
			return User{}, err
		}
		if grader.ID == usr.ID {
			return User{}, core.NewValidationError(ErrInvalidGrader, core.FieldError{Field: "grader", Error: ErrInvalidGrader.Error()})
		}
		usr.GraderID = grader.ID
	}
	return svc.save(ctx, usr, "updating user")
}

func (svc *service) SetPermission(ctx context.Context, usr User, mask perm.Mask) (User, error) {
	usr.Permission = mask
	return svc.save(ctx, usr, "setting permission")
}

func (svc *service) UpdateSettings(ctx context.Context, usr User, s Settings) (User, error) {
	if s.Name != "" {
		usr.Name = s.Name
	}
	usr.Email = s.Email
	usr.CurrentLesson = s.CurrentLesson
	usr.CurrentUnit = s.CurrentUnit
	usr.Units = s.Units
	return svc.save(ctx, usr, "updating settings")
}

func (svc *service) ChangePassword(ctx context.Context, usr User, pc PasswordChange) (User, error) {
	if err := usr.CheckPassword(pc.OldPassword); err != nil {
		return User{}, core.NewValidationError(ErrWrongPassword, core.FieldError{Field: "old_password", Error: ErrWrongPassword.Error()})
	}
	return svc.SetPassword(ctx, usr, pc.Password)
}

func (svc *service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.save(ctx, usr, "saving password")
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.save(ctx, usr, "setting last login")
}

func (svc *service) Delete(ctx context.Context, ids ...string) (int, error) {
	cnt, err := svc.repo.DeleteUsersByID(ctx, ids)
	return cnt, errors.Wrap(err, "deleting users")
}

func (svc *service) AddGrade(ctx context.Context, usr User, gi GradeInput) (User, error) {
	if _, ok := usr.Grade(gi.Order); ok {
		return User{}, core.NewValidationError(ErrGradeExists, core.FieldError{Field: "order", Error: ErrGradeExists.Error()})
	}
	grades := make([]Grade, 0, len(usr.Grades)+1)
	grades = append(grades, usr.Grades...)
	usr.Grades = append(grades, Grade{Order: gi.Order, Name: gi.Name, Score: gi.Score, Weight: gi.Weight})
	return svc.save(ctx, usr, "adding grade")
}

func (svc *service) EditGrade(ctx context.Context, usr User, order string, gi GradeInput) (User, error) {
	idx := -1
	for i, g := range usr.Grades {
		if g.Order == order {
			idx = i
			break
		}
	}
	if idx < 0 {
		return User{}, ErrGradeNotFound
	}
	if gi.Order != order {
		if _, ok := usr.Grade(gi.Order); ok {
			return User{}, core.NewValidationError(ErrGradeExists, core.FieldError{Field: "order", Error: ErrGradeExists.Error()})
		}
	}
	grades := make([]Grade, len(usr.Grades))
	copy(grades, usr.Grades)
	grades[idx] = Grade{Order: gi.Order, Name: gi.Name, Score: gi.Score, Weight: gi.Weight}
	usr.Grades = grades
	return svc.save(ctx, usr, "editing grade")
}

// Grader returns the grading supervisor of usr, or ErrNotFound when none is assigned.
func (svc *service) Grader(ctx context.Context, usr User) (User, error) {
	if usr.GraderID == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{ID: usr.GraderID})
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	svc.mailSvc.SendMessages(svc.passwordResetMessage(usr))
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) (User, error) {
	uid, err := decodeUID(data.UID)
	if err != nil {
		return User{}, core.NewValidationError(ErrInvalidReset)
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, core.NewValidationError(ErrInvalidReset)
		}
		return User{}, errors.Wrap(err, "finding user")
	}
	if err = svc.tokenGen.verifyToken(usr, data.Token); err != nil {
		return User{}, core.NewValidationError(ErrInvalidReset)
	}
	return svc.SetPassword(ctx, usr, data.Password)
}

func (svc *service) passwordResetMessage(usr User) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: usr.DisplayName(), Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":     usr.DisplayName(),
			"Username": usr.Username,
			"UID":      encodeUID(usr),
			"Token":    svc.tokenGen.makeToken(usr),
		},
	}
}

func (svc *service) validGrader(ctx context.Context, uname string) (User, error) {
	grader, err := svc.GetByUsername(ctx, uname)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, core.NewValidationError(ErrInvalidGrader, core.FieldError{Field: "grader", Error: ErrInvalidGrader.Error()})
		}
		return User{}, errors.Wrap(err, "finding grader")
	}
	if !grader.IsActive || !grader.Can(perm.WriteGradeEveryone) {
		return User{}, core.NewValidationError(ErrInvalidGrader, core.FieldError{Field: "grader", Error: ErrInvalidGrader.Error()})
	}
	return grader, nil
}

func (svc *service) save(ctx context.Context, usr User, action string) (User, error) {
	usr.UpdatedAt = time.Now().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, err
		}
		return User{}, errors.Wrap(err, action)
	}
	return usr, nil
}
