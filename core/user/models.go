package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/clotrack/core"
)

var (
	AllRoles = []string{core.RoleAdmin, core.RoleInstructor}

	Roles = []Role{
		{Name: "Instructor", Value: core.RoleInstructor},
		{Name: "Admin", Value: core.RoleAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AssignedSubject records a subject the User teaches.
type AssignedSubject struct {
	SubjectCode   string `json:"subject_code" bson:"subjectCode"`
	IsCoordinator bool   `json:"is_coordinator" bson:"isCoordinator"`
}

type User struct {
	ID               string            `json:"id" bson:"_id"`
	Name             string            `json:"name" bson:"name"`
	Email            string            `json:"email" bson:"email"`
	Role             string            `json:"role" bson:"role"`
	Department       string            `json:"department" bson:"department"`
	CoordinatorFor   string            `json:"coordinator_for" bson:"coordinatorFor"` // subject code
	AssignedSubjects []AssignedSubject `json:"assigned_subjects" bson:"assignedSubjects"`
	IsActive         bool              `json:"is_active" bson:"isActive"`
	PasswordHash     []byte            `json:"-" bson:"passwordHash"`
	CreatedAt        time.Time         `json:"created_at" bson:"createdAt"` // UTC
	UpdatedAt        time.Time         `json:"updated_at" bson:"updatedAt"` // UTC
	LastLogin        time.Time         `json:"last_login" bson:"lastLogin"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool {
	return u.Role == core.RoleAdmin
}

func (u *User) IsInstructor() bool {
	return u.Role == core.RoleInstructor
}

// TeachesSubject reports whether the subject is in the User's assigned subjects.
func (u *User) TeachesSubject(code string) bool {
	for _, s := range u.AssignedSubjects {
		if s.SubjectCode == code {
			return true
		}
	}
	return false
}

// Identity returns the core.Identity the User acts as.
func (u *User) Identity() core.Identity {
	return core.Identity{
		UserID:         u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Role:           u.Role,
		CoordinatorFor: u.CoordinatorFor,
	}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Role            string `json:"role" validate:"omitempty,role"`
	Department      string `json:"department"`
	CoordinatorFor  string `json:"coordinator_for"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.Department = core.CleanString(nu.Department)
	nu.CoordinatorFor = core.CleanString(nu.CoordinatorFor)
	if nu.Role == "" {
		nu.Role = core.RoleInstructor
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Empty fields keep their current value; CoordinatorFor is cleared when omitted, as the admin screen always sends it.
type UpdateUser struct {
	Name            string `json:"name"`
	Department      string `json:"department"`
	Role            string `json:"role" validate:"omitempty,role"`
	CoordinatorFor  string `json:"coordinator_for"`
	IsActive        *bool  `json:"is_active"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if dept := core.CleanString(uu.Department); dept != "" {
		uu.Department = dept
	} else {
		uu.Department = origUsr.Department
	}
	if role := core.CleanString(uu.Role, true /* lower */); role != "" {
		uu.Role = role
	} else {
		uu.Role = origUsr.Role
	}
	uu.CoordinatorFor = core.CleanString(uu.CoordinatorFor)

	return validate.Struct(uu)
}

type GetFilter struct {
	ID    string
	Email string
}

type QueryFilter struct {
	Search     string   `query:"search"`
	Role       string   `query:"role"`
	Department string   `query:"department"`
	IDs        []string `query:"id"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.Department == "" && len(qf.IDs) == 0
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
	qf.Department = core.CleanString(qf.Department)
}
