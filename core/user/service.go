package user

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDeactivated = errors.New("account deactivated")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		FilterUsers(ctx context.Context, filter QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (svc *Service) CheckUniqueness(email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, exclUsers...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return errors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:             uuid.New().String(),
		Name:           nu.Name,
		Email:          nu.Email,
		Role:           nu.Role,
		Department:     nu.Department,
		CoordinatorFor: nu.CoordinatorFor,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if usr.CoordinatorFor != "" {
		usr.AssignedSubjects = []AssignedSubject{{SubjectCode: usr.CoordinatorFor, IsCoordinator: true}}
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]User, error) {
	return svc.repo.FilterUsers(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// Names returns the names of the given users keyed by ID. Unknown IDs are omitted.
func (svc *Service) Names(ctx context.Context, ids ...string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	users, err := svc.repo.FilterUsers(ctx, QueryFilter{IDs: ids})
	if err != nil {
		return nil, errors.Wrap(err, "filtering users by ID")
	}
	for _, usr := range users {
		names[usr.ID] = usr.Name
	}
	return names, nil
}

// Authenticate checks the credentials and records the login.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	usr.LastLogin = time.Now().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Department = uu.Department
	usr.Role = uu.Role
	usr.CoordinatorFor = uu.CoordinatorFor
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// AssignSubject adds the subject to the User's assigned subjects if missing.
// When isCoordinator is set, the coordinator flag (and CoordinatorFor) is updated accordingly.
func (svc *Service) AssignSubject(ctx context.Context, id, subjectCode string, isCoordinator *bool) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, errors.Wrap(err, "finding user by ID")
	}

	found := false
	for i, s := range usr.AssignedSubjects {
		if s.SubjectCode == subjectCode {
			found = true
			if isCoordinator != nil {
				usr.AssignedSubjects[i].IsCoordinator = *isCoordinator
			}
		}
	}
	if !found {
		usr.AssignedSubjects = append(usr.AssignedSubjects, AssignedSubject{
			SubjectCode:   subjectCode,
			IsCoordinator: isCoordinator != nil && *isCoordinator,
		})
	}
	if isCoordinator != nil {
		if *isCoordinator {
			usr.CoordinatorFor = subjectCode
		} else if usr.CoordinatorFor == subjectCode {
			usr.CoordinatorFor = ""
		}
	}

	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// UnassignSubject removes every reference to a (deleted) subject from all users.
func (svc *Service) UnassignSubject(ctx context.Context, subjectCode string) error {
	users, err := svc.repo.FilterUsers(ctx, QueryFilter{})
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	for _, usr := range users {
		changed := false
		if usr.CoordinatorFor == subjectCode {
			usr.CoordinatorFor = ""
			changed = true
		}
		kept := usr.AssignedSubjects[:0]
		for _, s := range usr.AssignedSubjects {
			if s.SubjectCode == subjectCode {
				changed = true
				continue
			}
			kept = append(kept, s)
		}
		if !changed {
			continue
		}
		usr.AssignedSubjects = kept
		usr.UpdatedAt = time.Now().UTC()
		if _, err = svc.repo.UpdateUser(ctx, usr); err != nil {
			return errors.Wrapf(err, "unassigning subject %s from user %s", subjectCode, usr.ID)
		}
	}
	return nil
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}
