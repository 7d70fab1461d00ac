// Package testutil wires the services on top of the in-memory database for the package tests.
package testutil

import (
	"context"
	"io/ioutil"
	"log"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/classroom"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/task"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
	filestore "github.com/trezcool/darasa/storage/files"
)

// Password is the password of every user created by CreateUser.
const Password = "Pa$$w0rd!42"

var hasher = user.NewBcryptHasher(bcrypt.MinCost)

type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	DB         *inmemdb.DB
	Mail       *emailsvc.ConsoleServiceMock
	Files      *filestore.LocalStore
	Validate   *validator.Validate
	Translator ut.Translator

	UsrRepo   user.Repository
	ClassRepo classroom.Repository
	AttRepo   attendance.Repository
	TaskRepo  task.Repository

	UserSvc       *user.Service
	ClassroomSvc  *classroom.Service
	AttendanceSvc *attendance.Service
	TaskSvc       *task.Service
}

// NewEnv returns fresh services backed by an empty database. configure may adjust the test configuration first.
func NewEnv(t *testing.T, configure ...func(conf *core.Config)) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	for _, fn := range configure {
		fn(conf)
	}

	files, err := filestore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewEnv() failed: %v", err)
	}

	env := &Env{
		Conf:   conf,
		Logger: logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf),
		DB:     inmemdb.Open(),
		Files:  files,
	}
	env.Mail = emailsvc.NewConsoleServiceMock(conf, env.Logger)
	env.Validate, env.Translator = core.NewValidator()
	user.InitValidators(env.Validate, env.Translator)

	env.UsrRepo = inmemdb.NewUserRepository(env.DB)
	env.ClassRepo = inmemdb.NewClassroomRepository(env.DB)
	env.AttRepo = inmemdb.NewAttendanceRepository(env.DB)
	env.TaskRepo = inmemdb.NewTaskRepository(env.DB)

	pol := policy.New(policy.Options{RequireSubmissionMembership: conf.Tasks.RequireMembership})
	env.UserSvc = user.NewService(env.UsrRepo, hasher, env.Validate, pol)
	env.ClassroomSvc = classroom.NewService(
		env.ClassRepo, env.UsrRepo, env.DB, pol, env.Validate,
		classroom.Options{SymmetricTeacherUnassign: conf.Classrooms.SymmetricTeacherUnassign},
	)
	env.AttendanceSvc = attendance.NewService(env.AttRepo, env.ClassroomSvc, env.UserSvc, env.DB, env.Mail, conf.Location)
	env.TaskSvc = task.NewService(
		env.TaskRepo, env.ClassroomSvc, env.DB, files, env.Validate, env.Logger,
		task.Options{MaxUploadBytes: conf.Uploads.MaxBytes, AllowUnknownExtensions: conf.Uploads.AllowUnknownExtensions},
	)
	return env
}

// CreateUser stores a user with Password, bypassing the password policy.
func CreateUser(t *testing.T, env *Env, role user.Role, uname string, guardianEmail ...string) user.User {
	t.Helper()

	hash, err := hasher.Hash(Password)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	now := user.NowFunc().UTC()
	usr := user.User{
		Name:         uname,
		Username:     uname,
		Email:        uname + "@test.cd",
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if len(guardianEmail) > 0 {
		usr.GuardianEmail = guardianEmail[0]
	}
	usr, err = env.UsrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateClassroom(t *testing.T, env *Env, name string, teacherID ...int) classroom.Classroom {
	t.Helper()

	now := classroom.NowFunc().UTC()
	c := classroom.Classroom{Name: name, CreatedAt: now, UpdatedAt: now}
	if len(teacherID) > 0 {
		c.TeacherID = &teacherID[0]
	}
	c, err := env.ClassRepo.CreateClassroom(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateClassroom() failed: %v", err)
	}
	return c
}

// AddMembership appends classroomID to the classrooms of usr and returns the reloaded user.
func AddMembership(t *testing.T, env *Env, usr user.User, classroomID int) user.User {
	t.Helper()

	ctx := context.Background()
	existing, err := env.ClassRepo.QueryMemberships(ctx, usr.ID)
	if err != nil {
		t.Fatalf("AddMembership() failed: %v", err)
	}
	m := classroom.Membership{UserID: usr.ID, ClassroomID: classroomID, Position: len(existing)}
	if err = env.ClassRepo.SaveMembership(ctx, m); err != nil {
		t.Fatalf("AddMembership() failed: %v", err)
	}
	if usr, err = env.UsrRepo.GetUserByID(ctx, usr.ID); err != nil {
		t.Fatalf("AddMembership() failed: %v", err)
	}
	return usr
}
