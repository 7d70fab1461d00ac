package user

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

// Role is the closed set of user roles. It is fixed when the User is created.
type Role int

const (
	RoleStudent Role = iota + 1
	RoleTeacher
	RoleAdmin
)

var (
	roleNames = map[Role]string{
		RoleStudent: "student",
		RoleTeacher: "teacher",
		RoleAdmin:   "admin",
	}

	Roles = []Role{RoleStudent, RoleTeacher, RoleAdmin}

	errInvalidRole = errors.New("invalid role")
)

func ParseRole(s string) (Role, error) {
	s = core.CleanString(s, true /* lower */)
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return 0, errors.Wrapf(errInvalidRole, "%q", s)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, errInvalidRole
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Scan implements sql.Scanner; roles are stored by name.
func (r *Role) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return errors.Errorf("cannot scan %T into user.Role", src)
	}
}

func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, errInvalidRole
	}
	return r.String(), nil
}

type User struct {
	ID            int        `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Username      string     `json:"username" db:"username"`
	Email         string     `json:"email" db:"email"`
	Role          Role       `json:"role" db:"role"`
	GuardianEmail string     `json:"guardian_email" db:"guardian_email"`
	PasswordHash  []byte     `json:"-" db:"password_hash"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"` // UTC
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"` // UTC
	LastLogin     *time.Time `json:"last_login" db:"last_login"` // UTC

	// Classrooms lists the classrooms the User is a member of, in assignment order.
	// The first one is the primary classroom.
	Classrooms []int `json:"classrooms" db:"-"`
}

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

// PrimaryClassroomID returns the first assigned classroom, if any.
func (u User) PrimaryClassroomID() *int {
	if len(u.Classrooms) == 0 {
		return nil
	}
	id := u.Classrooms[0]
	return &id
}

func (u User) IsMemberOf(classroomID int) bool {
	return core.IntsContain(u.Classrooms, classroomID)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Username        string `json:"username" validate:"required,min=3,alphanum_"`
	Email           string `json:"email" validate:"omitempty,email"`
	Role            Role   `json:"role" validate:"required"`
	GuardianEmail   string `json:"guardian_email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Classrooms      []int  `json:"classrooms"`
}

// UpdateUser defines what information may be provided to modify an existing User.
// The role of a User cannot be changed.
type UpdateUser struct {
	Name            string `json:"name"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

type QueryFilter struct {
	Search string `query:"search"`
	Roles  []Role `query:"role"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && len(qf.Roles) == 0
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search, true /* lower */)
}
