package main

import (
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/classroom"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/user"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/storage/database"
	sqlxrepos "github.com/trezcool/darasa/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	if conf.Database.Engine != "postgres" {
		err := errors.Errorf("the admin CLI needs a postgres database, got %q", conf.Database.Engine)
		logger.Fatal(err.Error(), err)
	}

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	// set up services
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	usrRepo := sqlxrepos.NewUserRepository(db)
	tx := sqlxrepos.NewTransactor(db)
	pol := policy.New(policy.Options{RequireSubmissionMembership: conf.Tasks.RequireMembership})

	// start CLI
	cli := commandLine{
		db:     db.DB,
		tx:     tx,
		usrSvc: user.NewService(usrRepo, user.NewBcryptHasher(0), validate, pol),
		classSvc: classroom.NewService(
			sqlxrepos.NewClassroomRepository(db), usrRepo, tx, pol, validate,
			classroom.Options{SymmetricTeacherUnassign: conf.Classrooms.SymmetricTeacherUnassign},
		),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		logger.Close()
		os.Exit(1)
	}
}
