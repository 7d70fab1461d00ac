package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/classroom"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/task"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/storage/database"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
	sqlxrepos "github.com/trezcool/darasa/storage/database/sqlx"
	filestore "github.com/trezcool/darasa/storage/files"
)

type repositories struct {
	tx          core.Transactor
	users       user.Repository
	classrooms  classroom.Repository
	attendances attendance.Repository
	tasks       task.Repository
	close       func() error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	repos, err := setUpRepositories(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = repos.close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up files
	files, err := setUpFileStore(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file store: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	pol := policy.New(policy.Options{RequireSubmissionMembership: conf.Tasks.RequireMembership})
	usrSvc := user.NewService(repos.users, user.NewBcryptHasher(0), validate, pol)
	classSvc := classroom.NewService(
		repos.classrooms, repos.users, repos.tx, pol, validate,
		classroom.Options{SymmetricTeacherUnassign: conf.Classrooms.SymmetricTeacherUnassign},
	)
	attSvc := attendance.NewService(repos.attendances, classSvc, usrSvc, repos.tx, mailSvc, conf.Location)
	taskSvc := task.NewService(
		repos.tasks, classSvc, repos.tx, files, validate, logger,
		task.Options{MaxUploadBytes: conf.Uploads.MaxBytes, AllowUnknownExtensions: conf.Uploads.AllowUnknownExtensions},
	)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("database").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			Tx:            repos.tx,
			UserSvc:       usrSvc,
			ClassroomSvc:  classSvc,
			AttendanceSvc: attSvc,
			TaskSvc:       taskSvc,
			Validate:      validate,
			Translator:    translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpRepositories opens the configured database engine: postgres (created and migrated on start) or memory.
func setUpRepositories(conf *core.Config) (repositories, error) {
	switch conf.Database.Engine {
	case "memory":
		db := inmemdb.Open()
		return repositories{
			tx:          db,
			users:       inmemdb.NewUserRepository(db),
			classrooms:  inmemdb.NewClassroomRepository(db),
			attendances: inmemdb.NewAttendanceRepository(db),
			tasks:       inmemdb.NewTaskRepository(db),
			close:       func() error { return nil },
		}, nil

	case "postgres":
		if err := database.CreateIfNotExist(conf); err != nil {
			return repositories{}, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return repositories{}, err
		}
		if err = database.Migrate(db.DB); err != nil {
			_ = db.Close()
			return repositories{}, err
		}
		return repositories{
			tx:          sqlxrepos.NewTransactor(db),
			users:       sqlxrepos.NewUserRepository(db),
			classrooms:  sqlxrepos.NewClassroomRepository(db),
			attendances: sqlxrepos.NewAttendanceRepository(db),
			tasks:       sqlxrepos.NewTaskRepository(db),
			close:       db.Close,
		}, nil
	}
	return repositories{}, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}

func setUpFileStore(conf *core.Config) (task.FileStore, error) {
	switch conf.Uploads.Backend {
	case "local":
		return filestore.NewLocalStore(conf.Uploads.Dir)
	case "supabase":
		return filestore.NewSupabaseStore(conf)
	}
	return nil, errors.Errorf("unknown uploads backend %q", conf.Uploads.Backend)
}
