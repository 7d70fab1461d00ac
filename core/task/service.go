package task

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/classroom"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("classroom task")
	ErrSubmissionNotFound = core.NewNotFoundError("submission")

	errEmptySubmission = errors.New("content or attachment is required")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateClassroomTask(ctx context.Context, t ClassroomTask) (ClassroomTask, error)
		GetClassroomTaskByID(ctx context.Context, id int) (ClassroomTask, error)
		// QueryClassroomTasks returns the tasks of a classroom, newest first.
		QueryClassroomTasks(ctx context.Context, classroomID int) ([]ClassroomTask, error)

		// CreateSubmission always inserts s.
		CreateSubmission(ctx context.Context, s Submission) (Submission, error)
		// UpsertSubmission inserts s or, when the (user, classroom task) pair already has a submission,
		// replaces its content and submission time, and its file when s carries one.
		UpsertSubmission(ctx context.Context, s Submission) (Submission, error)
		// QuerySubmissions returns the submissions matching filter, latest first.
		QuerySubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
		GetSubmissionByFilePath(ctx context.Context, path string) (Submission, error)
	}

	Options struct {
		MaxUploadBytes         int64
		AllowUnknownExtensions bool
	}

	Service struct {
		repo     Repository
		classSvc *classroom.Service
		tx       core.Transactor
		files    FileStore
		validate *validator.Validate
		logger   core.Logger
		opts     Options
	}
)

func NewService(
	repo Repository,
	classSvc *classroom.Service,
	tx core.Transactor,
	files FileStore,
	validate *validator.Validate,
	logger core.Logger,
	opts Options,
) *Service {
	return &Service{
		repo:     repo,
		classSvc: classSvc,
		tx:       tx,
		files:    files,
		validate: validate,
		logger:   logger,
		opts:     opts,
	}
}

func (svc *Service) CreateClassroomTask(ctx context.Context, actor user.User, classroomID int, nt NewClassroomTask) (ClassroomTask, error) {
	c, err := svc.classSvc.GetByID(ctx, classroomID)
	if err != nil {
		return ClassroomTask{}, err
	}
	if err = svc.classSvc.Authorize(ctx, actor, policy.CreateClassroomTask, classroom.Target(c)); err != nil {
		return ClassroomTask{}, err
	}
	if err = nt.Validate(svc.validate); err != nil {
		return ClassroomTask{}, err
	}

	t := ClassroomTask{
		ClassroomID: c.ID,
		AuthorID:    actor.ID,
		Title:       nt.Title,
		Description: nt.Description,
		CreatedAt:   NowFunc().UTC(),
	}
	if nt.DueDate != "" {
		due, err := core.ParseDate(nt.DueDate)
		if err != nil {
			return ClassroomTask{}, core.NewValidationError(nil, core.FieldError{Field: "due_date", Error: err.Error()})
		}
		t.DueDate = &due
	}

	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err = svc.repo.CreateClassroomTask(ctx, t)
		return errors.Wrap(err, "creating classroom task")
	})
	return t, err
}

func (svc *Service) ListClassroomTasks(ctx context.Context, actor user.User, classroomID int) ([]ClassroomTask, error) {
	c, err := svc.classSvc.GetByID(ctx, classroomID)
	if err != nil {
		return nil, err
	}
	if err = svc.classSvc.Authorize(ctx, actor, policy.ViewClassroom, classroom.Target(c)); err != nil {
		return nil, err
	}
	return svc.repo.QueryClassroomTasks(ctx, classroomID)
}

// taskTarget returns the policy.Target of a classroom task: its classroom and its author.
func (svc *Service) taskTarget(ctx context.Context, t ClassroomTask) (policy.Target, error) {
	c, err := svc.classSvc.GetByID(ctx, t.ClassroomID)
	if err != nil {
		return policy.Target{}, errors.Wrap(err, "finding task classroom")
	}
	target := classroom.Target(c)
	target.TaskAuthorID = t.AuthorID
	return target, nil
}

// ListSubmissions returns the submissions of a classroom task to its author or an admin.
func (svc *Service) ListSubmissions(ctx context.Context, actor user.User, classroomTaskID int) ([]Submission, error) {
	t, err := svc.repo.GetClassroomTaskByID(ctx, classroomTaskID)
	if err != nil {
		return nil, err
	}
	target, err := svc.taskTarget(ctx, t)
	if err != nil {
		return nil, err
	}
	if err = svc.classSvc.Authorize(ctx, actor, policy.ViewSubmissions, target); err != nil {
		return nil, err
	}
	return svc.repo.QuerySubmissions(ctx, SubmissionFilter{ClassroomTaskID: classroomTaskID})
}

// OwnSubmissions returns the submissions of a student.
func (svc *Service) OwnSubmissions(ctx context.Context, actor user.User) ([]Submission, error) {
	if err := svc.classSvc.Authorize(ctx, actor, policy.ViewOwnSubmission, policy.Target{OwnerID: actor.ID}); err != nil {
		return nil, err
	}
	return svc.repo.QuerySubmissions(ctx, SubmissionFilter{UserID: actor.ID})
}

// Submit records the response of a student. Free-standing submissions (nil classroomTaskID) are always
// inserted; a student has at most one submission per classroom task, updated on every resubmission.
func (svc *Service) Submit(ctx context.Context, actor user.User, classroomTaskID *int, content string, att *Attachment) (Submission, error) {
	content = core.CleanString(content)
	if content == "" && att == nil {
		return Submission{}, core.NewValidationError(errEmptySubmission, core.FieldError{Field: "content", Error: errEmptySubmission.Error()})
	}

	var target policy.Target
	if classroomTaskID != nil {
		t, err := svc.repo.GetClassroomTaskByID(ctx, *classroomTaskID)
		if err != nil {
			return Submission{}, err
		}
		if target, err = svc.taskTarget(ctx, t); err != nil {
			return Submission{}, err
		}
	}
	if err := svc.classSvc.Authorize(ctx, actor, policy.SubmitTask, target); err != nil {
		return Submission{}, err
	}

	now := NowFunc().UTC()
	sub := Submission{
		UserID:          actor.ID,
		ClassroomTaskID: classroomTaskID,
		Content:         content,
		SubmittedAt:     now,
	}
	if att != nil {
		if err := svc.storeAttachment(ctx, &sub, att, now); err != nil {
			return Submission{}, err
		}
	}

	stored := sub.FilePath
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if classroomTaskID == nil {
			sub, err = svc.repo.CreateSubmission(ctx, sub)
			return errors.Wrap(err, "creating submission")
		}
		if stored != nil {
			svc.logSupersededFile(ctx, actor, *classroomTaskID)
		}
		sub, err = svc.repo.UpsertSubmission(ctx, sub)
		return errors.Wrap(err, "upserting submission")
	})
	if err != nil {
		if stored != nil {
			svc.logger.Warn("attachment stored for a failed submission", map[string]interface{}{"file": *stored}, actor)
		}
		return Submission{}, err
	}
	return sub, nil
}

func (svc *Service) storeAttachment(ctx context.Context, sub *Submission, att *Attachment, now time.Time) error {
	fileErr := func(msg string) error {
		return core.NewValidationError(nil, core.FieldError{Field: "file", Error: msg})
	}

	name := SanitizeFilename(att.Filename)
	ext := Extension(name)
	category, ok := CategoryOf(ext)
	if !ok && !svc.opts.AllowUnknownExtensions {
		return fileErr(fmt.Sprintf("file type %q is not allowed", ext))
	}
	if svc.opts.MaxUploadBytes > 0 && att.Size > svc.opts.MaxUploadBytes {
		return fileErr(fmt.Sprintf("file must not exceed %d bytes", svc.opts.MaxUploadBytes))
	}

	ref, err := svc.files.Save(ctx, StoredName(sub.UserID, sub.ClassroomTaskID, ext, now), att.Content, att.ContentType)
	if err != nil {
		return errors.Wrap(err, "storing attachment")
	}
	sub.FilePath = &ref
	sub.FileCategory = &category
	sub.FileName = &name
	return nil
}

// logSupersededFile notes the previous file of a resubmission; it is left in the store.
func (svc *Service) logSupersededFile(ctx context.Context, actor user.User, classroomTaskID int) {
	prev, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{UserID: actor.ID, ClassroomTaskID: classroomTaskID})
	if err != nil || len(prev) == 0 || prev[0].FilePath == nil {
		return
	}
	svc.logger.Debug("superseded attachment kept", map[string]interface{}{"file": *prev[0].FilePath}, actor)
}

// OpenFile opens the attachment stored under ref for its owner, the task author or an admin.
func (svc *Service) OpenFile(ctx context.Context, actor user.User, ref string) (io.ReadCloser, Submission, error) {
	sub, err := svc.repo.GetSubmissionByFilePath(ctx, ref)
	if err != nil {
		return nil, Submission{}, err
	}

	target := policy.Target{OwnerID: sub.UserID}
	if sub.ClassroomTaskID != nil {
		t, err := svc.repo.GetClassroomTaskByID(ctx, *sub.ClassroomTaskID)
		if err != nil {
			return nil, Submission{}, err
		}
		target.ClassroomID = t.ClassroomID
		target.TaskAuthorID = t.AuthorID
	}
	if err = svc.classSvc.Authorize(ctx, actor, policy.ViewSubmissionFile, target); err != nil {
		return nil, Submission{}, err
	}

	rc, err := svc.files.Open(ctx, ref)
	if err != nil {
		return nil, Submission{}, errors.Wrap(err, "opening attachment")
	}
	return rc, sub, nil
}
