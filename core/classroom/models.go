package classroom

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

type Classroom struct {
	ID          int       `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	TeacherID   *int      `json:"teacher_id" db:"teacher_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// PrimaryTeacherID returns the primary teacher of the classroom, 0 if none.
func (c Classroom) PrimaryTeacherID() int {
	if c.TeacherID == nil {
		return 0
	}
	return *c.TeacherID
}

// Membership joins a User to a Classroom. Position is the rank of the classroom in the
// user's last assignment; position 0 is the user's primary classroom.
type Membership struct {
	UserID      int `db:"user_id"`
	ClassroomID int `db:"classroom_id"`
	Position    int `db:"position"`
}

type NewClassroom struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
	TeacherID   *int   `json:"teacher_id"`
}

func (nc *NewClassroom) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

// UpdateClassroom replaces the name, description and primary teacher of a Classroom.
type UpdateClassroom struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
	TeacherID   *int   `json:"teacher_id"`
}

func (uc *UpdateClassroom) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)
	uc.Description = core.CleanString(uc.Description)
	return validate.Struct(uc)
}
