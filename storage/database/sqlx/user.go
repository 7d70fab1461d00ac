package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/user"
)

const userColumns = `id, name, username, email, role, guardian_email, password_hash, created_at, updated_at, last_login`

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username string, excludedUsers ...user.User) error {
	ids := make([]int, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		ids = append(ids, u.ID)
	}

	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 AND id <> ALL($2))`
	if err := sqlx.GetContext(ctx, conn(ctx, repo.db), &exists, q, username, int64s(ids)); err != nil {
		return errors.Wrap(err, "checking username")
	}
	if exists {
		return user.ErrUsernameExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `
		INSERT INTO users (name, username, email, role, guardian_email, password_hash, created_at, updated_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err := sqlx.GetContext(
		ctx, conn(ctx, repo.db), &usr.ID, q,
		usr.Name, usr.Username, usr.Email, usr.Role, usr.GuardianEmail, usr.PasswordHash,
		usr.CreatedAt, usr.UpdatedAt, usr.LastLogin,
	)
	if err != nil {
		return user.User{}, mapError(errors.Wrap(err, "inserting user"), user.ErrUsernameExists.Error())
	}
	usr.Classrooms = []int{}
	return usr, nil
}

func (repo *userRepository) getUser(ctx context.Context, where string, arg interface{}) (user.User, error) {
	var usr user.User
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	if err := sqlx.GetContext(ctx, conn(ctx, repo.db), &usr, q, arg); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	users := []user.User{usr}
	if err := loadUserClassrooms(ctx, conn(ctx, repo.db), users); err != nil {
		return user.User{}, err
	}
	return users[0], nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	return repo.getUser(ctx, "id = $1", id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, "username = $1", username)
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conds = append(conds, "(name ILIKE "+p+" OR username ILIKE "+p+" OR email ILIKE "+p+")")
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, r := range filter.Roles {
			roles = append(roles, r.String())
		}
		conds = append(conds, "role = ANY("+arg(pq.StringArray(roles))+")")
	}

	q := `SELECT ` + userColumns + ` FROM users`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY username`

	users := make([]user.User, 0)
	if err := sqlx.SelectContext(ctx, conn(ctx, repo.db), &users, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	if err := loadUserClassrooms(ctx, conn(ctx, repo.db), users); err != nil {
		return nil, err
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `
		UPDATE users
		SET name = $2, email = $3, guardian_email = $4, password_hash = $5, updated_at = $6, last_login = $7
		WHERE id = $1`
	res, err := conn(ctx, repo.db).ExecContext(
		ctx, q,
		usr.ID, usr.Name, usr.Email, usr.GuardianEmail, usr.PasswordHash, usr.UpdatedAt, usr.LastLogin,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	} else if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID)
}

// loadUserClassrooms fills the Classrooms of users, in membership position order.
func loadUserClassrooms(ctx context.Context, q sqlx.QueryerContext, users []user.User) error {
	if len(users) == 0 {
		return nil
	}
	ids := make([]int, 0, len(users))
	idx := make(map[int]int, len(users))
	for i := range users {
		users[i].Classrooms = []int{}
		ids = append(ids, users[i].ID)
		idx[users[i].ID] = i
	}

	var rows []struct {
		UserID      int `db:"user_id"`
		ClassroomID int `db:"classroom_id"`
	}
	err := sqlx.SelectContext(
		ctx, q, &rows,
		`SELECT user_id, classroom_id FROM classroom_memberships WHERE user_id = ANY($1) ORDER BY user_id, position`,
		int64s(ids),
	)
	if err != nil {
		return errors.Wrap(err, "selecting memberships")
	}
	for _, r := range rows {
		i := idx[r.UserID]
		users[i].Classrooms = append(users[i].Classrooms, r.ClassroomID)
	}
	return nil
}
