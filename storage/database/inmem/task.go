package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/task"
)

type taskRepository struct {
	db *DB
}

var _ task.Repository = (*taskRepository)(nil)

func NewTaskRepository(db *DB) task.Repository {
	return &taskRepository{db: db}
}

func cloneSubmission(s task.Submission) task.Submission {
	s.ClassroomTaskID = cloneInt(s.ClassroomTaskID)
	s.FilePath = cloneString(s.FilePath)
	s.FileName = cloneString(s.FileName)
	if s.FileCategory != nil {
		c := *s.FileCategory
		s.FileCategory = &c
	}
	return s
}

func (repo *taskRepository) CreateClassroomTask(ctx context.Context, t task.ClassroomTask) (task.ClassroomTask, error) {
	defer repo.db.lockWrite(ctx)()

	if _, ok := repo.db.t.classrooms[t.ClassroomID]; !ok {
		return task.ClassroomTask{}, core.NewConflictError("invalid classroom task", nil)
	}
	t.ID = repo.db.nextID("classroom_tasks")
	if t.DueDate != nil {
		due := *t.DueDate
		t.DueDate = &due
	}
	repo.db.t.tasks[t.ID] = t
	return t, nil
}

func (repo *taskRepository) GetClassroomTaskByID(_ context.Context, id int) (task.ClassroomTask, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.t.tasks[id]; ok {
		return t, nil
	}
	return task.ClassroomTask{}, task.ErrNotFound
}

func (repo *taskRepository) QueryClassroomTasks(_ context.Context, classroomID int) ([]task.ClassroomTask, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tasks := make([]task.ClassroomTask, 0)
	for _, t := range repo.db.t.tasks {
		if t.ClassroomID == classroomID {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
	return tasks, nil
}

// checkSubmission mimics the foreign keys and the unique file path of tasks. The caller holds db.mu.
func (repo *taskRepository) checkSubmission(s task.Submission, selfID int) error {
	if _, ok := repo.db.t.users[s.UserID]; !ok {
		return core.NewConflictError("invalid submission", nil)
	}
	if s.ClassroomTaskID != nil {
		if _, ok := repo.db.t.tasks[*s.ClassroomTaskID]; !ok {
			return core.NewConflictError("invalid submission", nil)
		}
	}
	if s.FilePath != nil {
		for id, other := range repo.db.t.submissions {
			if id != selfID && other.FilePath != nil && *other.FilePath == *s.FilePath {
				return core.NewConflictError("invalid submission", nil)
			}
		}
	}
	return nil
}

func (repo *taskRepository) CreateSubmission(ctx context.Context, s task.Submission) (task.Submission, error) {
	defer repo.db.lockWrite(ctx)()

	if err := repo.checkSubmission(s, 0); err != nil {
		return task.Submission{}, err
	}
	s = cloneSubmission(s)
	s.ID = repo.db.nextID("tasks")
	repo.db.t.submissions[s.ID] = s
	return s, nil
}

// UpsertSubmission looks up and writes under a single lock, so concurrent submissions of the same
// student to the same task always end up in one record.
func (repo *taskRepository) UpsertSubmission(ctx context.Context, s task.Submission) (task.Submission, error) {
	if s.ClassroomTaskID == nil {
		return repo.CreateSubmission(ctx, s)
	}

	defer repo.db.lockWrite(ctx)()

	for id, existing := range repo.db.t.submissions {
		if existing.UserID != s.UserID || existing.ClassroomTaskID == nil || *existing.ClassroomTaskID != *s.ClassroomTaskID {
			continue
		}
		if err := repo.checkSubmission(s, id); err != nil {
			return task.Submission{}, err
		}
		existing.Content = s.Content
		existing.SubmittedAt = s.SubmittedAt
		if s.FilePath != nil {
			existing.FilePath = s.FilePath
			existing.FileCategory = s.FileCategory
			existing.FileName = s.FileName
		}
		existing = cloneSubmission(existing)
		repo.db.t.submissions[id] = existing
		return existing, nil
	}

	if err := repo.checkSubmission(s, 0); err != nil {
		return task.Submission{}, err
	}
	s = cloneSubmission(s)
	s.ID = repo.db.nextID("tasks")
	repo.db.t.submissions[s.ID] = s
	return s, nil
}

func (repo *taskRepository) QuerySubmissions(_ context.Context, filter task.SubmissionFilter) ([]task.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]task.Submission, 0)
	for _, s := range repo.db.t.submissions {
		if filter.UserID != 0 && s.UserID != filter.UserID {
			continue
		}
		if filter.ClassroomTaskID != 0 && (s.ClassroomTaskID == nil || *s.ClassroomTaskID != filter.ClassroomTaskID) {
			continue
		}
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
		}
		return subs[i].ID > subs[j].ID
	})
	return subs, nil
}

func (repo *taskRepository) GetSubmissionByFilePath(_ context.Context, path string) (task.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, s := range repo.db.t.submissions {
		if s.FilePath != nil && *s.FilePath == path {
			return s, nil
		}
	}
	return task.Submission{}, task.ErrSubmissionNotFound
}
