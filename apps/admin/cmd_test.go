package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

func setup(t *testing.T) (*testutil.Env, *commandLine) {
	env := testutil.NewEnv(t)
	return env, &commandLine{
		tx:       env.DB,
		usrSvc:   env.UserSvc,
		classSvc: env.ClassroomSvc,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	_, cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "grades", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_adduser(t *testing.T) {
	env, cli := setup(t)
	testutil.CreateUser(t, env, user.RoleTeacher, "taken")

	tests := []struct {
		name     string
		args     []string
		pwd      string
		wantErr  bool
		wantRole user.Role
	}{
		{name: "no args", args: []string{"adduser"}, wantErr: true},
		{name: "name required", args: []string{"adduser", "-username", "boss"}, pwd: "Sup3r$ecret", wantErr: true},
		{name: "no password", args: []string{"adduser", "-username", "boss", "-name", "Boss"}, wantErr: true},
		{name: "unknown role", args: []string{"adduser", "-username", "boss", "-name", "Boss", "-role", "principal"}, pwd: "Sup3r$ecret", wantErr: true},
		{name: "weak password", args: []string{"adduser", "-username", "boss", "-name", "Boss"}, pwd: "boss", wantErr: true},
		{name: "username taken", args: []string{"adduser", "-username", "taken", "-name", "Taken"}, pwd: "Sup3r$ecret", wantErr: true},
		{name: "admin by default", args: []string{"adduser", "-username", "boss", "-name", "Boss", "-email", "boss@test.cd"}, pwd: "Sup3r$ecret", wantRole: user.RoleAdmin},
		{name: "teacher", args: []string{"adduser", "-username", "prof", "-name", "Prof", "-role", "teacher"}, pwd: "Sup3r$ecret", wantRole: user.RoleTeacher},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(tt.pwd)
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			usr, err := env.UserSvc.Authenticate(context.Background(), tt.args[2], tt.pwd)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, usr.Role)
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	env, cli := setup(t)
	usr := testutil.CreateUser(t, env, user.RoleStudent, "awe")

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-username", usr.Username}, extra: "lol"},
		{name: "reset: username is case insensitive", args: []string{"resetpassword", "-username", "AWE"}, extra: "lmao"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)

		t.Run(tt.name, func(t *testing.T) {
			mockPassword(pwd)
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)

			refreshed, err := env.UserSvc.GetByID(context.Background(), usr.ID)
			require.NoError(t, err)
			assert.False(t, bytes.Equal(refreshed.PasswordHash, usr.PasswordHash), "failed to update new password")
			_, err = env.UserSvc.Authenticate(context.Background(), usr.Username, pwd)
			assert.NoError(t, err)
		})
	}
}

func Test_commandLine_seed(t *testing.T) {
	env, cli := setup(t)
	ctx := context.Background()

	countDefault := func(t *testing.T) int {
		admin, err := env.UserSvc.GetByUsername(ctx, defaultAdminUsername)
		require.NoError(t, err)
		classrooms, err := env.ClassroomSvc.QueryVisible(ctx, admin)
		require.NoError(t, err)
		n := 0
		for _, c := range classrooms {
			if c.Name == defaultClassroomName {
				assert.Equal(t, defaultClassroomDescription, c.Description)
				n++
			}
		}
		return n
	}

	mockPassword("")
	assert.Equal(t, errHelp, cli.run([]string{"admin", "seed"}), "the admin password is required")
	_, err := env.UserSvc.GetByUsername(ctx, defaultAdminUsername)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	mockPassword("Sup3r$ecret")
	require.NoError(t, cli.run([]string{"admin", "seed"}))
	assert.Equal(t, 1, countDefault(t))

	// seeding again changes nothing and does not prompt
	readPasswordFunc = func(fd int) ([]byte, error) {
		t.Error("password prompted for an existing admin")
		return nil, nil
	}
	require.NoError(t, cli.run([]string{"admin", "seed"}))
	assert.Equal(t, 1, countDefault(t))

	t.Run("not an admin", func(t *testing.T) {
		testutil.CreateUser(t, env, user.RoleTeacher, "prof")
		err := cli.run([]string{"admin", "seed", "-username", "prof"})
		assert.EqualError(t, err, `"prof" exists and is not an admin`)
	})
}
