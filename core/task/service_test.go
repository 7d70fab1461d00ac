package task_test

import (
	"context"
	"io/ioutil"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/task"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

type fixture struct {
	env                   *testutil.Env
	admin, teacher, other user.User
	student, stranger     user.User
	classroomID           int
	classTask             task.ClassroomTask
}

func setup(t *testing.T, configure ...func(conf *core.Config)) fixture {
	env := testutil.NewEnv(t, configure...)
	f := fixture{env: env}
	f.admin = testutil.CreateUser(t, env, user.RoleAdmin, "admin")
	f.teacher = testutil.CreateUser(t, env, user.RoleTeacher, "teacher")
	f.other = testutil.CreateUser(t, env, user.RoleTeacher, "other")
	f.classroomID = testutil.CreateClassroom(t, env, "1A", f.teacher.ID).ID
	f.student = testutil.AddMembership(t, env, testutil.CreateUser(t, env, user.RoleStudent, "student"), f.classroomID)
	f.stranger = testutil.CreateUser(t, env, user.RoleStudent, "stranger")

	var err error
	f.classTask, err = env.TaskSvc.CreateClassroomTask(context.Background(), f.teacher, f.classroomID, task.NewClassroomTask{
		Title:       "Homework",
		Description: "Exercises 1 to 5",
		DueDate:     "2021-03-20",
	})
	require.NoError(t, err)
	return f
}

func attachment(name, content string) *task.Attachment {
	return &task.Attachment{Filename: name, Size: int64(len(content)), Content: strings.NewReader(content)}
}

func TestService_CreateClassroomTask(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	assert.Equal(t, f.teacher.ID, f.classTask.AuthorID)
	if assert.NotNil(t, f.classTask.DueDate) {
		assert.Equal(t, time.Date(2021, 3, 20, 0, 0, 0, 0, time.UTC), *f.classTask.DueDate)
	}

	tests := []struct {
		name    string
		actor   user.User
		data    task.NewClassroomTask
		wantErr func(error) bool
	}{
		{name: "admin", actor: f.admin, data: task.NewClassroomTask{Title: "Read", Description: "Chapter 2"}},
		{
			name: "teacher of another classroom", actor: f.other, data: task.NewClassroomTask{Title: "Read", Description: "Chapter 2"},
			wantErr: func(err error) bool { return errors.Cause(err) == core.ErrPermissionDenied },
		},
		{
			name: "student", actor: f.student, data: task.NewClassroomTask{Title: "Read", Description: "Chapter 2"},
			wantErr: func(err error) bool { return errors.Cause(err) == core.ErrPermissionDenied },
		},
		{
			name: "bad due date", actor: f.teacher, data: task.NewClassroomTask{Title: "Read", Description: "Chapter 2", DueDate: "20/03/2021"},
			wantErr: func(err error) bool { return err != nil },
		},
		{
			name: "title required", actor: f.teacher, data: task.NewClassroomTask{Description: "Chapter 2"},
			wantErr: func(err error) bool { return err != nil },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.env.TaskSvc.CreateClassroomTask(ctx, tt.actor, f.classroomID, tt.data)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}

	tasks, err := f.env.TaskSvc.ListClassroomTasks(ctx, f.student, f.classroomID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	_, err = f.env.TaskSvc.ListClassroomTasks(ctx, f.stranger, f.classroomID)
	assert.Equal(t, core.ErrPermissionDenied, errors.Cause(err))
}

func TestService_Submit_Upsert(t *testing.T) {
	f := setup(t)
	svc := f.env.TaskSvc
	ctx := context.Background()
	taskID := f.classTask.ID

	first, err := svc.Submit(ctx, f.student, &taskID, "my answer", attachment("../../answer.PDF", "%PDF-1.4"))
	require.NoError(t, err)
	require.NotNil(t, first.FilePath)
	assert.Equal(t, task.CategoryDocument, *first.FileCategory)
	assert.Equal(t, "answer.PDF", *first.FileName)

	// resubmitting without a file keeps the previous one
	second, err := svc.Submit(ctx, f.student, &taskID, "my better answer", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "my better answer", second.Content)
	if assert.NotNil(t, second.FilePath) {
		assert.Equal(t, *first.FilePath, *second.FilePath)
	}

	// a new file replaces it
	third, err := svc.Submit(ctx, f.student, &taskID, "", attachment("photo.png", "png"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
	assert.Equal(t, task.CategoryImage, *third.FileCategory)
	assert.NotEqual(t, *first.FilePath, *third.FilePath)

	subs, err := svc.ListSubmissions(ctx, f.teacher, taskID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	own, err := svc.OwnSubmissions(ctx, f.student)
	require.NoError(t, err)
	assert.Len(t, own, 1)
}

func TestService_Submit_Concurrent(t *testing.T) {
	f := setup(t)
	svc := f.env.TaskSvc
	ctx := context.Background()
	taskID := f.classTask.ID

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var att *task.Attachment
			if i%2 == 0 {
				att = attachment("answer.txt", "draft "+strconv.Itoa(i))
			}
			_, err := svc.Submit(ctx, f.student, &taskID, "draft "+strconv.Itoa(i), att)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	subs, err := f.env.TaskRepo.QuerySubmissions(ctx, task.SubmissionFilter{UserID: f.student.ID, ClassroomTaskID: taskID})
	require.NoError(t, err)
	if assert.Len(t, subs, 1) {
		assert.NotNil(t, subs[0].FilePath)
	}
}

func TestService_Submit_UnknownExtension(t *testing.T) {
	ctx := context.Background()

	strict := setup(t)
	taskID := strict.classTask.ID
	_, err := strict.env.TaskSvc.Submit(ctx, strict.student, &taskID, "", attachment("notes.xyz", "data"))
	_, ok := errors.Cause(err).(*core.ValidationError)
	assert.True(t, ok, "unexpected error: %v", err)

	lax := setup(t, func(conf *core.Config) { conf.Uploads.AllowUnknownExtensions = true })
	taskID = lax.classTask.ID
	sub, err := lax.env.TaskSvc.Submit(ctx, lax.student, &taskID, "", attachment("notes.xyz", "data"))
	require.NoError(t, err)
	if assert.NotNil(t, sub.FileCategory) {
		assert.Equal(t, task.CategoryOther, *sub.FileCategory)
	}
	assert.Equal(t, "notes.xyz", *sub.FileName)
	assert.True(t, strings.HasSuffix(*sub.FilePath, ".xyz"), *sub.FilePath)
}

func TestService_Submit_FreeStanding(t *testing.T) {
	f := setup(t)
	svc := f.env.TaskSvc
	ctx := context.Background()

	s1, err := svc.Submit(ctx, f.stranger, nil, "a poem", nil)
	require.NoError(t, err)
	s2, err := svc.Submit(ctx, f.stranger, nil, "a poem", nil)
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Nil(t, s2.ClassroomTaskID)

	own, err := svc.OwnSubmissions(ctx, f.stranger)
	require.NoError(t, err)
	assert.Len(t, own, 2)
}

func TestService_Submit_Errors(t *testing.T) {
	f := setup(t, func(conf *core.Config) { conf.Uploads.MaxBytes = 16 })
	svc := f.env.TaskSvc
	ctx := context.Background()
	taskID := f.classTask.ID
	unknownID := 999

	isValidationErr := func(err error) bool { _, ok := errors.Cause(err).(*core.ValidationError); return ok }

	tests := []struct {
		name    string
		actor   user.User
		taskID  *int
		content string
		att     *task.Attachment
		wantErr func(error) bool
	}{
		{name: "empty", actor: f.student, taskID: &taskID, content: "   ", wantErr: isValidationErr},
		{name: "disallowed extension", actor: f.student, taskID: &taskID, att: attachment("virus.exe", "MZ"), wantErr: isValidationErr},
		{name: "too large", actor: f.student, taskID: &taskID, att: attachment("essay.txt", strings.Repeat("a", 17)), wantErr: isValidationErr},
		{name: "unknown task", actor: f.student, taskID: &unknownID, content: "answer", wantErr: core.IsNotFound},
		{
			name: "teachers do not submit", actor: f.teacher, taskID: &taskID, content: "answer",
			wantErr: func(err error) bool { return errors.Cause(err) == core.ErrPermissionDenied },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.actor, tt.taskID, tt.content, tt.att)
			assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
		})
	}
}

func TestService_Submit_RequireMembership(t *testing.T) {
	ctx := context.Background()

	open := setup(t)
	taskID := open.classTask.ID
	_, err := open.env.TaskSvc.Submit(ctx, open.stranger, &taskID, "answer", nil)
	assert.NoError(t, err)

	strict := setup(t, func(conf *core.Config) { conf.Tasks.RequireMembership = true })
	taskID = strict.classTask.ID
	_, err = strict.env.TaskSvc.Submit(ctx, strict.stranger, &taskID, "answer", nil)
	assert.Equal(t, core.ErrPermissionDenied, errors.Cause(err))
	_, err = strict.env.TaskSvc.Submit(ctx, strict.student, &taskID, "answer", nil)
	assert.NoError(t, err)
}

func TestService_OpenFile(t *testing.T) {
	f := setup(t)
	svc := f.env.TaskSvc
	ctx := context.Background()
	taskID := f.classTask.ID

	sub, err := svc.Submit(ctx, f.student, &taskID, "", attachment("notes.txt", "hello"))
	require.NoError(t, err)
	ref := *sub.FilePath

	tests := []struct {
		name    string
		actor   user.User
		wantErr error
	}{
		{name: "owner", actor: f.student},
		{name: "task author", actor: f.teacher},
		{name: "admin", actor: f.admin},
		{name: "other teacher", actor: f.other, wantErr: core.ErrPermissionDenied},
		{name: "other student", actor: f.stranger, wantErr: core.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, got, err := svc.OpenFile(ctx, tt.actor, ref)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			defer rc.Close()
			content, err := ioutil.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, "hello", string(content))
			assert.Equal(t, sub.ID, got.ID)
		})
	}

	_, _, err = svc.OpenFile(ctx, f.admin, "unknown.txt")
	assert.Equal(t, task.ErrSubmissionNotFound, errors.Cause(err))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "report.pdf", want: "report.pdf"},
		{name: "../../etc/passwd", want: "passwd"},
		{name: `C:\Users\me\My Essay (final).docx`, want: "My_Essay_final_.docx"},
		{name: ".hidden", want: "hidden"},
		{name: "", want: "file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, task.SanitizeFilename(tt.name))
		})
	}
}

func TestStoredName(t *testing.T) {
	taskID := 7
	now := time.Unix(1616000000, 0)

	name := task.StoredName(3, &taskID, "pdf", now)
	assert.Regexp(t, `^3_7_1616000000_[0-9a-f]{8}\.pdf$`, name)
	assert.Regexp(t, `^3_free_1616000000_[0-9a-f]{8}$`, task.StoredName(3, nil, "", now))
	assert.NotEqual(t, name, task.StoredName(3, &taskID, "pdf", now))
}
