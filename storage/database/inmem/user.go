package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

// withClassrooms returns usr with its memberships, in position order. The caller holds db.mu.
func (db *DB) withClassrooms(usr user.User) user.User {
	type membership struct{ classroomID, position int }
	ms := make([]membership, 0)
	for k, pos := range db.t.memberships {
		if k.userID == usr.ID {
			ms = append(ms, membership{k.classroomID, pos})
		}
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].position < ms[j].position })

	usr.Classrooms = make([]int, 0, len(ms))
	for _, m := range ms {
		usr.Classrooms = append(usr.Classrooms, m.classroomID)
	}
	return usr
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username string, excludedUsers ...user.User) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.t.users {
		if usr.Username == username && !isExcluded(usr, excludedUsers) {
			return user.ErrUsernameExists
		}
	}
	return nil
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, u := range excludedUsers {
		if u.ID == usr.ID {
			return true
		}
	}
	return false
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	defer repo.db.lockWrite(ctx)()

	for _, u := range repo.db.t.users {
		if u.Username == usr.Username {
			return user.User{}, core.NewConflictError(user.ErrUsernameExists.Error(), nil)
		}
	}
	usr.ID = repo.db.nextID("users")
	usr.Classrooms = nil
	repo.db.t.users[usr.ID] = usr
	return repo.db.withClassrooms(usr), nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id int) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if usr, ok := repo.db.t.users[id]; ok {
		return repo.db.withClassrooms(usr), nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.t.users {
		if usr.Username == username {
			return repo.db.withClassrooms(usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0)
	for _, usr := range repo.db.t.users {
		if filter.Search != "" && !(strings.Contains(strings.ToLower(usr.Name), filter.Search) ||
			strings.Contains(strings.ToLower(usr.Username), filter.Search) ||
			strings.Contains(strings.ToLower(usr.Email), filter.Search)) {
			continue
		}
		if len(filter.Roles) > 0 && !hasRole(filter.Roles, usr.Role) {
			continue
		}
		users = append(users, repo.db.withClassrooms(usr))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func hasRole(roles []user.Role, r user.Role) bool {
	for _, role := range roles {
		if role == r {
			return true
		}
	}
	return false
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	defer repo.db.lockWrite(ctx)()

	orig, ok := repo.db.t.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	orig.Name = usr.Name
	orig.Email = usr.Email
	orig.GuardianEmail = usr.GuardianEmail
	orig.PasswordHash = usr.PasswordHash
	orig.UpdatedAt = usr.UpdatedAt
	if usr.LastLogin != nil {
		ll := *usr.LastLogin
		orig.LastLogin = &ll
	} else {
		orig.LastLogin = nil
	}
	repo.db.t.users[orig.ID] = orig
	return repo.db.withClassrooms(orig), nil
}
