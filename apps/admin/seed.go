package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/classroom"
	"github.com/trezcool/darasa/core/user"
)

const (
	defaultAdminUsername        = "admin"
	defaultClassroomName        = "Default Classroom"
	defaultClassroomDescription = "Default classroom for all students"
)

// seed creates the admin account and the default classroom when they do not exist yet.
// askPassword is only called when the admin has to be created.
func (cli *commandLine) seed(uname string, askPassword func() (string, error)) error {
	return cli.tx.WithinTx(context.Background(), func(ctx context.Context) error {
		admin, err := cli.usrSvc.GetByUsername(ctx, uname)
		switch {
		case err == nil:
			if !admin.IsAdmin() {
				return errors.Errorf("%q exists and is not an admin", admin.Username)
			}
		case errors.Cause(err) == user.ErrNotFound:
			pwd, err := askPassword()
			if err != nil {
				return err
			}
			admin, err = cli.usrSvc.Create(ctx, operator, user.NewUser{
				Name:            "Administrator",
				Username:        uname,
				Role:            user.RoleAdmin,
				Password:        pwd,
				PasswordConfirm: pwd,
			})
			if err != nil {
				return errors.Wrap(err, "creating admin")
			}
			fmt.Printf("Admin %q created.\n", admin.Username)
		default:
			return errors.Wrap(err, "finding admin")
		}

		classrooms, err := cli.classSvc.QueryVisible(ctx, admin)
		if err != nil {
			return errors.Wrap(err, "querying classrooms")
		}
		for _, c := range classrooms {
			if c.Name == defaultClassroomName {
				return nil
			}
		}
		if _, err = cli.classSvc.Create(ctx, admin, classroom.NewClassroom{
			Name:        defaultClassroomName,
			Description: defaultClassroomDescription,
		}); err != nil {
			return errors.Wrap(err, "creating default classroom")
		}
		fmt.Printf("%s created.\n", defaultClassroomName)
		return nil
	})
}
