package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	pkgerrors "github.com/pkg/errors"

	"github.com/edukit/gradebook/core"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrEmailExists        = errors.New("Email already in use")
	ErrInvalidCredentials = errors.New("Invalid credentials")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id int) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// GetUserByEmailAndRole returns ErrNotFound when no user holds both the email and the role.
		GetUserByEmailAndRole(ctx context.Context, email, role string) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service interface {
		Register(ctx context.Context, nu NewUser) (User, error)
		Authenticate(ctx context.Context, email, pwd string) (User, error)
		GetByID(ctx context.Context, id int) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, token, newPassword string) error
		ChangeEmail(ctx context.Context, email, newEmail string) (User, error)
		ChangeImage(ctx context.Context, email, image string) (User, error)
	}

	service struct {
		repo            Repository
		mailSvc         core.EmailService
		frontendBaseURL string
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	initTokenGen(conf.SecretKey, conf.Server.PasswordResetTimeoutDelta)
	return &service{
		repo:            repo,
		mailSvc:         mailSvc,
		frontendBaseURL: conf.FrontendBaseURL,
	}
}

// Register creates a Student account. The role is fixed here and never changes.
func (svc *service) Register(ctx context.Context, nu NewUser) (User, error) {
	if _, err := svc.repo.GetUserByEmail(ctx, nu.Email); err == nil {
		return User{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	} else if pkgerrors.Cause(err) != ErrNotFound {
		return User{}, pkgerrors.Wrap(err, "checking email uniqueness")
	}

	usr := User{
		Email:     nu.Email,
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		Role:      RoleStudent,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, pkgerrors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if pkgerrors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, pkgerrors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return usr, nil
}

func (svc *service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

// RequestPasswordReset emails a reset link to the account. Callers surface
// ErrNotFound for unknown emails; this mirrors the original API contract even
// though it reveals whether an account exists.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/reset-password?token=%s", svc.frontendBaseURL, makeToken(usr.Email))
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.FirstName + " " + usr.LastName, Address: usr.Email}},
		Subject: "Reset password",
		Body:    fmt.Sprintf("Hi, \nTo reset your password, click here: %s", url),
	})
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, token, newPassword string) error {
	email, err := verifyToken(token)
	if err != nil {
		if err == errTokenExpired {
			return core.NewValidationError(errors.New("Email confirmation token expired"))
		}
		return core.NewValidationError(errors.New("Bad confirmation token"))
	}

	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if pkgerrors.Cause(err) == ErrNotFound {
			return core.NewNotFoundError(fmt.Sprintf("No user found for email: %s", email))
		}
		return pkgerrors.Wrap(err, "finding user by email")
	}
	if err = usr.SetPassword(newPassword); err != nil {
		return pkgerrors.Wrap(err, "hashing password")
	}
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *service) ChangeEmail(ctx context.Context, email, newEmail string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	newEmail = core.CleanString(newEmail, true /* lower */)

	if email == newEmail {
		return User{}, core.NewValidationError(errors.New("The new email must be different from the current email."))
	}
	if _, err := svc.repo.GetUserByEmail(ctx, newEmail); err == nil {
		return User{}, core.NewValidationError(fmt.Errorf("There is already a user with the email: %s", newEmail))
	} else if pkgerrors.Cause(err) != ErrNotFound {
		return User{}, pkgerrors.Wrap(err, "checking email uniqueness")
	}

	usr, err := svc.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if pkgerrors.Cause(err) == ErrNotFound {
			return User{}, core.NewNotFoundError(fmt.Sprintf("No user found for email: %s", email))
		}
		return User{}, pkgerrors.Wrap(err, "finding user by email")
	}

	usr.Email = newEmail
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) ChangeImage(ctx context.Context, email, image string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	usr.Image = image
	return svc.repo.UpdateUser(ctx, usr)
}
