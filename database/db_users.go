package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"userdeck/common"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

type UserRow struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	HashedPassword string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	IsSuperuser    bool      `json:"is_superuser"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserFilter narrows ListUsers. String fields match as literal
// case-insensitive substrings (LIKE metacharacters are escaped); nil
// booleans mean "don't care".
type UserFilter struct {
	Email       string
	FullName    string
	IsActive    *bool
	IsSuperuser *bool
}

type ListParams struct {
	Ordering string // column name, "-" prefix for descending
	Offset   int
	Limit    int
}

const userColumns = `id, email, full_name, hashed_password, is_active, is_superuser, created_at, updated_at`

// Columns ListUsers may order by. Anything else falls back to email.
var orderColumns = map[string]bool{
	"email":        true,
	"full_name":    true,
	"is_active":    true,
	"is_superuser": true,
	"created_at":   true,
	"updated_at":   true,
}

// OrderClause maps an ordering param ("email", "-created_at") onto a safe
// ORDER BY clause. Unknown columns fall back to ascending email.
func OrderClause(ordering string) string {
	dir := "ASC"
	col := strings.TrimSpace(ordering)
	if strings.HasPrefix(col, "-") {
		dir = "DESC"
		col = col[1:]
	}
	if !orderColumns[col] {
		return "email ASC"
	}
	return col + " " + dir
}

// escapeLike neutralizes LIKE metacharacters so filter values match
// literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func buildUserWhere(f UserFilter) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Email != "" {
		add(`email ILIKE '%%'||$%d||'%%'`, escapeLike(f.Email))
	}
	if f.FullName != "" {
		add(`full_name ILIKE '%%'||$%d||'%%'`, escapeLike(f.FullName))
	}
	if f.IsActive != nil {
		add(`is_active = $%d`, *f.IsActive)
	}
	if f.IsSuperuser != nil {
		add(`is_superuser = $%d`, *f.IsSuperuser)
	}
	return where, args
}

// BuildUserQuery assembles the ListUsers statement and its args. Split out of
// ListUsers so the SQL assembly is testable without a database.
func BuildUserQuery(f UserFilter, p ListParams) (string, []any) {
	where, args := buildUserWhere(f)

	q := `SELECT ` + userColumns + `, count(*) OVER() AS total FROM users`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY ` + OrderClause(p.Ordering)
	args = append(args, p.Offset)
	q += fmt.Sprintf(` OFFSET $%d`, len(args))
	args = append(args, p.Limit)
	q += fmt.Sprintf(` LIMIT $%d`, len(args))
	return q, args
}

// BuildUserCountQuery counts the rows BuildUserQuery would match before
// paging. Used when a page lands past the last row, where the windowed
// total is not observable.
func BuildUserCountQuery(f UserFilter) (string, []any) {
	where, args := buildUserWhere(f)
	q := `SELECT count(*) FROM users`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	return q, args
}

func scanUser(row pgx.Row) (*UserRow, error) {
	var u UserRow
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword,
		&u.IsActive, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser fetches a user by id
func GetUser(ctx context.Context, id uuid.UUID) (*UserRow, error) {
	return scanUser(common.DB.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

// GetUserByEmail fetches a user by email (case-insensitive)
func GetUserByEmail(ctx context.Context, email string) (*UserRow, error) {
	return scanUser(common.DB.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email=$1`, strings.ToLower(email)))
}

// ListUsers returns a page of users plus the unpaged total.
func ListUsers(ctx context.Context, f UserFilter, p ListParams) ([]UserRow, int64, error) {
	q, args := BuildUserQuery(f, p)
	rows, err := common.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []UserRow{}
	var total int64
	for rows.Next() {
		var u UserRow
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword,
			&u.IsActive, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	// An empty page past the last row carries no window rows, so the total
	// must come from a plain count or offset-overrun requests report 0.
	if len(out) == 0 {
		cq, cargs := BuildUserCountQuery(f)
		if err := common.DB.QueryRow(ctx, cq, cargs...).Scan(&total); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// CreateUser inserts a user. Email is stored lowercased; a duplicate yields
// ErrEmailTaken.
func CreateUser(ctx context.Context, email, fullName, hashedPassword string, active, superuser bool) (*UserRow, error) {
	u, err := scanUser(common.DB.QueryRow(ctx, `
		INSERT INTO users (id, email, full_name, hashed_password, is_active, is_superuser)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		uuid.New(), strings.ToLower(email), fullName, hashedPassword, active, superuser))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

// UserPatch carries partial updates; nil fields are left untouched.
type UserPatch struct {
	Email          *string
	FullName       *string
	HashedPassword *string
	IsActive       *bool
	IsSuperuser    *bool
}

// UpdateUser applies a patch and returns the updated row.
func UpdateUser(ctx context.Context, id uuid.UUID, p UserPatch) (*UserRow, error) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Email != nil {
		set("email", strings.ToLower(*p.Email))
	}
	if p.FullName != nil {
		set("full_name", *p.FullName)
	}
	if p.HashedPassword != nil {
		set("hashed_password", *p.HashedPassword)
	}
	if p.IsActive != nil {
		set("is_active", *p.IsActive)
	}
	if p.IsSuperuser != nil {
		set("is_superuser", *p.IsSuperuser)
	}
	if len(sets) == 0 {
		return GetUser(ctx, id)
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, id)
	q := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING `+userColumns,
		strings.Join(sets, ", "), len(args))

	u, err := scanUser(common.DB.QueryRow(ctx, q, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

// DeleteUser removes a user by id
func DeleteUser(ctx context.Context, id uuid.UUID) error {
	cmd, err := common.DB.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CountSuperusers counts active superusers
func CountSuperusers(ctx context.Context) (int64, error) {
	var n int64
	err := common.DB.QueryRow(ctx,
		`SELECT count(*) FROM users WHERE is_superuser AND is_active`).Scan(&n)
	return n, err
}

// UserStats summarizes the user table for the system endpoint.
type UserStats struct {
	Total      int64 `json:"total"`
	Active     int64 `json:"active"`
	Inactive   int64 `json:"inactive"`
	Superusers int64 `json:"superusers"`
}

func GetUserStats(ctx context.Context) (*UserStats, error) {
	var s UserStats
	err := common.DB.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE is_active),
		       count(*) FILTER (WHERE NOT is_active),
		       count(*) FILTER (WHERE is_superuser)
		FROM users
	`).Scan(&s.Total, &s.Active, &s.Inactive, &s.Superusers)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
