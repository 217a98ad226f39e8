package pgdb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/clotrack/core/user"
)

type userRow struct {
	ID               string      `db:"id"`
	Name             string      `db:"name"`
	Email            string      `db:"email"`
	Role             string      `db:"role"`
	Department       string      `db:"department"`
	CoordinatorFor   null.String `db:"coordinator_for"`
	AssignedSubjects null.JSON   `db:"assigned_subjects"`
	IsActive         bool        `db:"is_active"`
	PasswordHash     []byte      `db:"password_hash"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
	LastLogin        null.Time   `db:"last_login"`
}

func toUserRow(usr user.User) (userRow, error) {
	row := userRow{
		ID:             usr.ID,
		Name:           usr.Name,
		Email:          usr.Email,
		Role:           usr.Role,
		Department:     usr.Department,
		CoordinatorFor: null.NewString(usr.CoordinatorFor, usr.CoordinatorFor != ""),
		IsActive:       usr.IsActive,
		PasswordHash:   usr.PasswordHash,
		CreatedAt:      usr.CreatedAt.UTC(),
		UpdatedAt:      usr.UpdatedAt.UTC(),
		LastLogin:      null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
	subjects := usr.AssignedSubjects
	if subjects == nil {
		subjects = []user.AssignedSubject{}
	}
	if err := row.AssignedSubjects.Marshal(subjects); err != nil {
		return userRow{}, errors.Wrap(err, "encoding assigned subjects")
	}
	return row, nil
}

func (row userRow) user() (user.User, error) {
	usr := user.User{
		ID:             row.ID,
		Name:           row.Name,
		Email:          row.Email,
		Role:           row.Role,
		Department:     row.Department,
		CoordinatorFor: row.CoordinatorFor.String,
		IsActive:       row.IsActive,
		PasswordHash:   row.PasswordHash,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	if row.AssignedSubjects.Valid {
		if err := row.AssignedSubjects.Unmarshal(&usr.AssignedSubjects); err != nil {
			return user.User{}, errors.Wrap(err, "decoding assigned subjects")
		}
	}
	return usr, nil
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	q := `SELECT COUNT(*) FROM users WHERE email = ?`
	args := []interface{}{email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q += ` AND id NOT IN (?)`
		args = append(args, ids)
	}
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return errors.Wrap(err, "building query")
	}

	var n int
	if err = repo.db.GetContext(ctx, &n, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "counting users")
	}
	if n > 0 {
		return user.ErrEmailExists
	}
	return nil
}

const insertUser = `
INSERT INTO users (id, name, email, role, department, coordinator_for, assigned_subjects,
                   is_active, password_hash, created_at, updated_at, last_login)
VALUES (:id, :name, :email, :role, :department, :coordinator_for, :assigned_subjects,
        :is_active, :password_hash, :created_at, :updated_at, :last_login)`

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	row, err := toUserRow(usr)
	if err != nil {
		return user.User{}, err
	}
	if _, err = repo.db.NamedExecContext(ctx, insertUser, row); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		q   string
		arg string
	)
	switch {
	case filter.ID != "":
		q, arg = `SELECT * FROM users WHERE id = $1`, filter.ID
	case filter.Email != "":
		q, arg = `SELECT * FROM users WHERE email = $1`, filter.Email
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "finding user")
	}
	return row.user()
}

// likePattern returns a pattern matching values containing s.
func likePattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}

// userQuery builds the query of FilterUsers, with `?` placeholders.
func userQuery(filter user.QueryFilter) (string, []interface{}, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Search != "" {
		p := likePattern(filter.Search)
		where = append(where, `(name ILIKE ? OR email ILIKE ?)`)
		args = append(args, p, p)
	}
	if filter.Role != "" {
		where = append(where, `role = ?`)
		args = append(args, filter.Role)
	}
	if filter.Department != "" {
		where = append(where, `department = ?`)
		args = append(args, filter.Department)
	}
	if len(filter.IDs) > 0 {
		where = append(where, `id IN (?)`)
		args = append(args, filter.IDs)
	}

	q := `SELECT * FROM users`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY name`
	return sqlx.In(q, args...)
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	q, args, err := userQuery(filter)
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []userRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		usr, err := row.user()
		if err != nil {
			return nil, err
		}
		users = append(users, usr)
	}
	return users, nil
}

const updateUser = `
UPDATE users
SET name = :name, email = :email, role = :role, department = :department,
    coordinator_for = :coordinator_for, assigned_subjects = :assigned_subjects, is_active = :is_active,
    password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
WHERE id = :id`

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row, err := toUserRow(usr)
	if err != nil {
		return user.User{}, err
	}
	res, err := repo.db.NamedExecContext(ctx, updateUser, row)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	_, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	return errors.Wrap(err, "deleting users")
}
