package pgrepos

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/tchoudhury/pathshala/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excluded ...user.User) error {
	build := func(ex goqu.Ex) (string, []interface{}, error) {
		stmt := pg.From("users").Select(goqu.COUNT("*")).Where(ex)
		if len(excluded) > 0 {
			ids := make([]string, 0, len(excluded))
			for _, u := range excluded {
				ids = append(ids, u.ID)
			}
			stmt = stmt.Where(goqu.C("id").NotIn(ids))
		}
		return stmt.ToSQL()
	}

	var count int
	query, args, err := build(goqu.Ex{"username": username})
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if err = repo.db.GetContext(ctx, &count, query, args...); err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	if count > 0 {
		return user.ErrUsernameExists
	}

	query, args, err = build(goqu.Ex{"email": email})
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if err = repo.db.GetContext(ctx, &count, query, args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	rec := goqu.Record{
		"id":            usr.ID,
		"name":          usr.Name,
		"username":      usr.Username,
		"email":         usr.Email,
		"role":          usr.Role,
		"is_active":     usr.IsActive,
		"password_hash": usr.PasswordHash,
		"last_login":    null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
		"created_at":    usr.CreatedAt,
		"updated_at":    usr.UpdatedAt,
	}
	query, args, err := pg.Insert("users").Rows(rec).ToSQL()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	query, args, err := pg.From("users").Order(goqu.I("created_at").Asc()).ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []userRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, goqu.Ex{"id": id})
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, goqu.ExOr{"username": username, "email": username})
}

func (repo *userRepository) getUser(ctx context.Context, ex goqu.Expression) (user.User, error) {
	query, args, err := pg.From("users").Where(ex).Limit(1).ToSQL()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}

	var row userRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNoRows(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) SetLastLogin(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE users SET last_login = $1 WHERE id = $2`, usr.LastLogin, usr.ID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting last login")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string) error {
	query, args, err := pg.Delete("users").Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return nil
}

type userRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	Role         string    `db:"role"`
	IsActive     bool      `db:"is_active"`
	PasswordHash []byte    `db:"password_hash"`
	LastLogin    null.Time `db:"last_login"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (row userRow) toUser() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username,
		Email:        row.Email,
		Role:         row.Role,
		IsActive:     row.IsActive,
		PasswordHash: row.PasswordHash,
		LastLogin:    row.LastLogin.Time,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}
