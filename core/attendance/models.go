package attendance

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
)

var errInvalidStatus = errors.New("status must be one of: present, absent, late")

func ParseStatus(s string) (Status, error) {
	switch st := Status(core.CleanString(s, true /* lower */)); st {
	case StatusPresent, StatusAbsent, StatusLate:
		return st, nil
	}
	return "", core.NewValidationError(nil, core.FieldError{Field: "status", Error: errInvalidStatus.Error()})
}

// Attendance is the record of a student in a classroom for one calendar day.
// Day is midnight UTC of that calendar date.
type Attendance struct {
	ID          int       `json:"id" db:"id"`
	UserID      int       `json:"user_id" db:"user_id"`
	ClassroomID int       `json:"classroom_id" db:"classroom_id"`
	Day         time.Time `json:"day" db:"day"`
	Status      Status    `json:"status" db:"status"`
	MarkedByID  int       `json:"marked_by_id" db:"marked_by_id"`
	MarkedAt    time.Time `json:"marked_at" db:"marked_at"`   // UTC, first mark of the day
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"` // UTC
}

type QueryFilter struct {
	UserID      int
	ClassroomID int
	Day         time.Time // zero: any day
}

// NotificationWarranted reports whether the guardian of student should hear about att.
func NotificationWarranted(att Attendance, student user.User) bool {
	return (att.Status == StatusAbsent || att.Status == StatusLate) && student.GuardianEmail != ""
}

// MarkRequest is the payload of an attendance mark; Date defaults to today.
type MarkRequest struct {
	Status string `json:"status" validate:"required"`
	Date   string `json:"date" validate:"omitempty,date"`
}

// NotifyRequest optionally overrides the default notification subject and body.
type NotifyRequest struct {
	Date    string `json:"date" validate:"omitempty,date"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
