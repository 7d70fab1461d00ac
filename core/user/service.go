package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("user")
	ErrUsernameExists       = errors.New("a user with this username already exists")
	ErrAuthenticationFailed = errors.New("invalid username or password")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id int) (User, error)
		GetUserByUsername(ctx context.Context, username string) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields, ordered by username.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter QueryFilter) ([]User, error)
		// UpdateUser saves every mutable field of usr: Name, Email, GuardianEmail, PasswordHash, UpdatedAt and LastLogin.
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	// Authorizer decides who may create and update users.
	Authorizer interface {
		AuthorizeUserCreate(actor User) error
		AuthorizeUserUpdate(actor, usr User) error
	}

	Service struct {
		repo     Repository
		hasher   PasswordHasher
		validate *validator.Validate
		auth     Authorizer
	}
)

func NewService(repo Repository, hasher PasswordHasher, validate *validator.Validate, auth Authorizer) *Service {
	return &Service{repo: repo, hasher: hasher, validate: validate, auth: auth}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, exclUsers...); err != nil {
		if err == ErrUsernameExists {
			return core.NewValidationError(err, core.FieldError{Field: "username", Error: err.Error()})
		}
		return errors.Wrap(err, "checking username uniqueness")
	}
	return nil
}

// Create validates nu and stores the new User. nu.Classrooms is left to the classroom assignment.
func (svc *Service) Create(ctx context.Context, actor User, nu NewUser) (User, error) {
	if err := svc.auth.AuthorizeUserCreate(actor); err != nil {
		return User{}, err
	}
	if err := nu.Validate(svc.validate); err != nil {
		return User{}, err
	}
	if err := svc.checkUniqueness(ctx, nu.Username); err != nil {
		return User{}, err
	}

	hash, err := svc.hasher.Hash(nu.Password)
	if err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	now := NowFunc().UTC()
	usr := User{
		Name:          nu.Name,
		Username:      nu.Username,
		Email:         nu.Email,
		Role:          nu.Role,
		GuardianEmail: nu.GuardianEmail,
		PasswordHash:  hash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsername(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]User, error) {
	filter.Clean()
	return svc.repo.QueryUsers(ctx, filter)
}

// Update applies uu to usr; users update themselves, admins update anyone.
func (svc *Service) Update(ctx context.Context, actor, usr User, uu UpdateUser) (User, error) {
	if err := svc.auth.AuthorizeUserUpdate(actor, usr); err != nil {
		return User{}, err
	}
	if err := uu.Validate(svc.validate, usr); err != nil {
		return User{}, err
	}
	usr.Name = uu.Name
	usr.Email = uu.Email
	if uu.Password != "" {
		hash, err := svc.hasher.Hash(uu.Password)
		if err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
		usr.PasswordHash = hash
	}
	usr.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetGuardianEmail sets (or clears, when email is empty) the guardian contact of a student.
func (svc *Service) SetGuardianEmail(ctx context.Context, usr User, email string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	if !usr.IsStudent() {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "guardian_email", Error: guardianEmailText})
	}
	if email != "" {
		if err := svc.validate.Var(email, "email"); err != nil {
			return User{}, core.NewValidationError(nil, core.FieldError{Field: "guardian_email", Error: "must be a valid email address"})
		}
	}
	usr.GuardianEmail = email
	usr.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetPassword replaces the password of usr without applying the password policy.
func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	hash, err := svc.hasher.Hash(pwd)
	if err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.PasswordHash = hash
	usr.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// Authenticate verifies the credentials and records the login time.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.GetByUsername(ctx, uname)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by username")
	}
	if !svc.hasher.Verify(usr.PasswordHash, pwd) {
		return User{}, ErrAuthenticationFailed
	}

	now := NowFunc().UTC()
	usr.LastLogin = &now
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}
