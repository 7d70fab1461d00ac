package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/task"
)

const (
	classroomTaskColumns = `id, classroom_id, author_id, title, description, due_date, created_at`
	submissionColumns    = `id, user_id, classroom_task_id, content, file_path, file_category, file_name, submitted_at`
)

type taskRepository struct {
	db *sqlx.DB
}

var _ task.Repository = (*taskRepository)(nil)

func NewTaskRepository(db *sqlx.DB) task.Repository {
	return &taskRepository{db: db}
}

func normalizeDueDate(t *task.ClassroomTask) {
	if t.DueDate != nil {
		due := core.DayOf(*t.DueDate, t.DueDate.Location())
		t.DueDate = &due
	}
}

func (repo *taskRepository) CreateClassroomTask(ctx context.Context, t task.ClassroomTask) (task.ClassroomTask, error) {
	var due *string
	if t.DueDate != nil {
		d := t.DueDate.Format(core.DateLayout)
		due = &d
	}
	q := `
		INSERT INTO classroom_tasks (classroom_id, author_id, title, description, due_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := sqlx.GetContext(ctx, conn(ctx, repo.db), &t.ID, q, t.ClassroomID, t.AuthorID, t.Title, t.Description, due, t.CreatedAt)
	if err != nil {
		return task.ClassroomTask{}, mapError(errors.Wrap(err, "inserting classroom task"), "invalid classroom task")
	}
	return t, nil
}

func (repo *taskRepository) GetClassroomTaskByID(ctx context.Context, id int) (task.ClassroomTask, error) {
	var t task.ClassroomTask
	q := `SELECT ` + classroomTaskColumns + ` FROM classroom_tasks WHERE id = $1`
	if err := sqlx.GetContext(ctx, conn(ctx, repo.db), &t, q, id); err != nil {
		if err == sql.ErrNoRows {
			return task.ClassroomTask{}, task.ErrNotFound
		}
		return task.ClassroomTask{}, errors.Wrap(err, "selecting classroom task")
	}
	normalizeDueDate(&t)
	return t, nil
}

func (repo *taskRepository) QueryClassroomTasks(ctx context.Context, classroomID int) ([]task.ClassroomTask, error) {
	tasks := make([]task.ClassroomTask, 0)
	q := `SELECT ` + classroomTaskColumns + ` FROM classroom_tasks WHERE classroom_id = $1 ORDER BY created_at DESC, id DESC`
	if err := sqlx.SelectContext(ctx, conn(ctx, repo.db), &tasks, q, classroomID); err != nil {
		return nil, errors.Wrap(err, "selecting classroom tasks")
	}
	for i := range tasks {
		normalizeDueDate(&tasks[i])
	}
	return tasks, nil
}

func (repo *taskRepository) CreateSubmission(ctx context.Context, s task.Submission) (task.Submission, error) {
	q := `
		INSERT INTO tasks (user_id, classroom_task_id, content, file_path, file_category, file_name, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := sqlx.GetContext(
		ctx, conn(ctx, repo.db), &s.ID, q,
		s.UserID, s.ClassroomTaskID, s.Content, s.FilePath, s.FileCategory, s.FileName, s.SubmittedAt,
	)
	if err != nil {
		return task.Submission{}, mapError(errors.Wrap(err, "inserting submission"), "invalid submission")
	}
	return s, nil
}

func (repo *taskRepository) UpsertSubmission(ctx context.Context, s task.Submission) (task.Submission, error) {
	q := `
		INSERT INTO tasks (user_id, classroom_task_id, content, file_path, file_category, file_name, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, classroom_task_id) WHERE classroom_task_id IS NOT NULL DO UPDATE
		SET content = EXCLUDED.content,
			file_path = COALESCE(EXCLUDED.file_path, tasks.file_path),
			file_category = CASE WHEN EXCLUDED.file_path IS NULL THEN tasks.file_category ELSE EXCLUDED.file_category END,
			file_name = CASE WHEN EXCLUDED.file_path IS NULL THEN tasks.file_name ELSE EXCLUDED.file_name END,
			submitted_at = EXCLUDED.submitted_at
		RETURNING ` + submissionColumns
	var saved task.Submission
	err := sqlx.GetContext(
		ctx, conn(ctx, repo.db), &saved, q,
		s.UserID, s.ClassroomTaskID, s.Content, s.FilePath, s.FileCategory, s.FileName, s.SubmittedAt,
	)
	if err != nil {
		return task.Submission{}, mapError(errors.Wrap(err, "upserting submission"), "invalid submission")
	}
	return saved, nil
}

func (repo *taskRepository) QuerySubmissions(ctx context.Context, filter task.SubmissionFilter) ([]task.Submission, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(col string, v interface{}) {
		args = append(args, v)
		conds = append(conds, col+" = $"+strconv.Itoa(len(args)))
	}
	if filter.UserID != 0 {
		add("user_id", filter.UserID)
	}
	if filter.ClassroomTaskID != 0 {
		add("classroom_task_id", filter.ClassroomTaskID)
	}

	q := `SELECT ` + submissionColumns + ` FROM tasks`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY submitted_at DESC, id DESC`

	subs := make([]task.Submission, 0)
	if err := sqlx.SelectContext(ctx, conn(ctx, repo.db), &subs, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting submissions")
	}
	return subs, nil
}

func (repo *taskRepository) GetSubmissionByFilePath(ctx context.Context, path string) (task.Submission, error) {
	var s task.Submission
	q := `SELECT ` + submissionColumns + ` FROM tasks WHERE file_path = $1`
	if err := sqlx.GetContext(ctx, conn(ctx, repo.db), &s, q, path); err != nil {
		if err == sql.ErrNoRows {
			return task.Submission{}, task.ErrSubmissionNotFound
		}
		return task.Submission{}, errors.Wrap(err, "selecting submission")
	}
	return s, nil
}
