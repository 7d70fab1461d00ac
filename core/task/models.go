package task

import (
	"io"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

type Category string

const (
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
	CategoryOther    Category = "other"
)

// ClassroomTask is an assignment authored by a teacher (or an admin) for a classroom.
type ClassroomTask struct {
	ID          int        `json:"id" db:"id"`
	ClassroomID int        `json:"classroom_id" db:"classroom_id"`
	AuthorID    int        `json:"author_id" db:"author_id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	DueDate     *time.Time `json:"due_date" db:"due_date"`     // midnight UTC
	CreatedAt   time.Time  `json:"created_at" db:"created_at"` // UTC
}

// Submission is the response of a student, to a ClassroomTask or free-standing (nil ClassroomTaskID).
type Submission struct {
	ID              int       `json:"id" db:"id"`
	UserID          int       `json:"user_id" db:"user_id"`
	ClassroomTaskID *int      `json:"classroom_task_id" db:"classroom_task_id"`
	Content         string    `json:"content" db:"content"`
	FilePath        *string   `json:"file_path" db:"file_path"`
	FileCategory    *Category `json:"file_category" db:"file_category"`
	FileName        *string   `json:"file_name" db:"file_name"` // sanitized original name
	SubmittedAt     time.Time `json:"submitted_at" db:"submitted_at"` // UTC
}

type SubmissionFilter struct {
	UserID          int
	ClassroomTaskID int
}

// Attachment is a file sent along a submission.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

type NewClassroomTask struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"required"`
	DueDate     string `json:"due_date" validate:"omitempty,date"` // YYYY-MM-DD
}

func (nt *NewClassroomTask) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	nt.DueDate = core.CleanString(nt.DueDate)
	return validate.Struct(nt)
}
