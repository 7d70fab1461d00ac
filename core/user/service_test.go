package user_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, env, user.RoleAdmin, "admin")
	teacher := testutil.CreateUser(t, env, user.RoleTeacher, "taken")

	valid := func() user.NewUser {
		return user.NewUser{
			Name:            "Jane Doe",
			Username:        " JaneD ",
			Email:           "jane@test.cd",
			Role:            user.RoleStudent,
			GuardianEmail:   "parent@test.cd",
			Password:        "Sup3r$ecret",
			PasswordConfirm: "Sup3r$ecret",
		}
	}
	fieldErr := func(field string) func(error) bool {
		return func(err error) bool {
			var vErrs validator.ValidationErrors
			if !errors.As(err, &vErrs) {
				return false
			}
			for _, fe := range vErrs {
				if fe.Field() == field {
					return true
				}
			}
			return false
		}
	}

	tests := []struct {
		name    string
		modify  func(nu *user.NewUser)
		wantErr func(error) bool
	}{
		{name: "valid", modify: func(nu *user.NewUser) {}},
		{name: "username taken", modify: func(nu *user.NewUser) { nu.Username = "TAKEN" }, wantErr: func(err error) bool {
			_, ok := errors.Cause(err).(*core.ValidationError)
			return ok
		}},
		{name: "invalid username", modify: func(nu *user.NewUser) { nu.Username = "jane-doe" }, wantErr: fieldErr("username")},
		{name: "role required", modify: func(nu *user.NewUser) { nu.Role = 0 }, wantErr: fieldErr("role")},
		{name: "passwords differ", modify: func(nu *user.NewUser) { nu.PasswordConfirm = "Other$3cret" }, wantErr: fieldErr("password_confirm")},
		{name: "password too short", modify: func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "S$3c", "S$3c" }, wantErr: fieldErr("password")},
		{name: "password too simple", modify: func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "secretsecret", "secretsecret" }, wantErr: fieldErr("password")},
		{name: "password similar to username", modify: func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "Janed$12", "Janed$12" }, wantErr: fieldErr("password")},
		{name: "guardian of a teacher", modify: func(nu *user.NewUser) { nu.Role = user.RoleTeacher }, wantErr: fieldErr("guardian_email")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := valid()
			tt.modify(&nu)
			usr, err := env.UserSvc.Create(ctx, admin, nu)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, usr.ID)
			assert.Equal(t, "janed", usr.Username)
			assert.Equal(t, "parent@test.cd", usr.GuardianEmail)
			assert.NotEqual(t, []byte(nu.Password), usr.PasswordHash)
		})
	}

	t.Run("only admins create users", func(t *testing.T) {
		for _, actor := range []user.User{teacher, {}} {
			nu := valid()
			nu.Username = "johnd"
			_, err := env.UserSvc.Create(ctx, actor, nu)
			assert.Equal(t, core.ErrPermissionDenied, errors.Cause(err))
		}
		_, err := env.UserSvc.GetByUsername(ctx, "johnd")
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})
}

func TestService_Authenticate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env, user.RoleStudent, "student")
	assert.Nil(t, usr.LastLogin)

	got, err := env.UserSvc.Authenticate(ctx, " STUDENT ", testutil.Password)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)
	assert.NotNil(t, got.LastLogin)

	_, err = env.UserSvc.Authenticate(ctx, "student", "wrong")
	assert.Equal(t, user.ErrAuthenticationFailed, err)
	_, err = env.UserSvc.Authenticate(ctx, "nobody", testutil.Password)
	assert.Equal(t, user.ErrAuthenticationFailed, err)
}

func TestService_Update(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env, user.RoleTeacher, "teacher")
	admin := testutil.CreateUser(t, env, user.RoleAdmin, "admin")
	student := testutil.CreateUser(t, env, user.RoleStudent, "student")

	got, err := env.UserSvc.Update(ctx, usr, usr, user.UpdateUser{Name: " Mr Teacher "})
	require.NoError(t, err)
	assert.Equal(t, "Mr Teacher", got.Name)
	assert.Equal(t, usr.Email, got.Email)
	assert.Equal(t, usr.Role, got.Role)

	_, err = env.UserSvc.Update(ctx, got, got, user.UpdateUser{Password: "N3w$ecret!", PasswordConfirm: "mismatch"})
	assert.Error(t, err)

	got, err = env.UserSvc.Update(ctx, got, got, user.UpdateUser{Password: "N3w$ecret!", PasswordConfirm: "N3w$ecret!"})
	require.NoError(t, err)
	_, err = env.UserSvc.Authenticate(ctx, "teacher", "N3w$ecret!")
	assert.NoError(t, err)

	got, err = env.UserSvc.Update(ctx, admin, got, user.UpdateUser{Name: "Teacher"})
	require.NoError(t, err)
	assert.Equal(t, "Teacher", got.Name)

	_, err = env.UserSvc.Update(ctx, student, got, user.UpdateUser{Name: "Hacked"})
	assert.Equal(t, core.ErrPermissionDenied, errors.Cause(err))
	refreshed, err := env.UserSvc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, "Teacher", refreshed.Name)
}

func TestService_Query(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, env, user.RoleAdmin, "admin")
	teacher := testutil.CreateUser(t, env, user.RoleTeacher, "teacher")
	student := testutil.CreateUser(t, env, user.RoleStudent, "student")

	tests := []struct {
		name   string
		filter user.QueryFilter
		want   []int
	}{
		{name: "all", want: []int{admin.ID, student.ID, teacher.ID}},
		{name: "search", filter: user.QueryFilter{Search: "EACH"}, want: []int{teacher.ID}},
		{name: "roles", filter: user.QueryFilter{Roles: []user.Role{user.RoleStudent, user.RoleTeacher}}, want: []int{student.ID, teacher.ID}},
		{name: "no match", filter: user.QueryFilter{Search: "lol"}, want: []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := env.UserSvc.Query(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]int, 0, len(users))
			for _, u := range users {
				ids = append(ids, u.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestRole(t *testing.T) {
	for _, r := range user.Roles {
		parsed, err := user.ParseRole(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
	_, err := user.ParseRole("principal")
	assert.Error(t, err)

	_, err = user.Role(42).MarshalText()
	assert.Error(t, err)
}
