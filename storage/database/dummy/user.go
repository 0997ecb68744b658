package dummydb

import (
	"context"
	"sort"

	"github.com/tchoudhury/pathshala/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excluded ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, u := range repo.db.users {
		if isExcludedUser(*u, excluded) {
			continue
		}
		if u.Username == username {
			return user.ErrUsernameExists
		}
		if u.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.users[usr.ID] = &usr
	repo.db.track(usr.ID)
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(_ context.Context) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return repo.db.ord[users[i].ID] < repo.db.ord[users[j].ID] })
	return users, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if u, ok := repo.db.users[id]; ok {
		return *u, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsernameOrEmail(_ context.Context, username string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, u := range repo.db.users {
		if (u.Username == username) || (u.Email == username) {
			return *u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) SetLastLogin(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	orig.LastLogin = usr.LastLogin
	return *orig, nil
}

func (repo *userRepository) DeleteUser(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.users, id)
	return nil
}

func isExcludedUser(u user.User, excluded []user.User) bool {
	for _, ex := range excluded {
		if ex.ID == u.ID {
			return true
		}
	}
	return false
}
