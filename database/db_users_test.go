package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderClause(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "email ASC"},
		{"email", "email ASC"},
		{"-email", "email DESC"},
		{"created_at", "created_at ASC"},
		{"-created_at", "created_at DESC"},
		{"is_superuser", "is_superuser ASC"},
		// unknown columns must not reach the SQL
		{"hashed_password", "email ASC"},
		{"email; DROP TABLE users", "email ASC"},
		{"-", "email ASC"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OrderClause(tt.in), "ordering %q", tt.in)
	}
}

func TestBuildUserQuery_NoFilters(t *testing.T) {
	q, args := BuildUserQuery(UserFilter{}, ListParams{Offset: 0, Limit: 50})

	assert.NotContains(t, q, "WHERE")
	assert.Contains(t, q, "count(*) OVER() AS total")
	assert.Contains(t, q, "ORDER BY email ASC")
	assert.Contains(t, q, "OFFSET $1")
	assert.Contains(t, q, "LIMIT $2")
	assert.Equal(t, []any{0, 50}, args)
}

func TestBuildUserQuery_AllFilters(t *testing.T) {
	active := true
	super := false
	f := UserFilter{
		Email:       "bob",
		FullName:    "builder",
		IsActive:    &active,
		IsSuperuser: &super,
	}
	q, args := BuildUserQuery(f, ListParams{Ordering: "-created_at", Offset: 20, Limit: 10})

	assert.Contains(t, q, `email ILIKE '%'||$1||'%'`)
	assert.Contains(t, q, `full_name ILIKE '%'||$2||'%'`)
	assert.Contains(t, q, "is_active = $3")
	assert.Contains(t, q, "is_superuser = $4")
	assert.Contains(t, q, "ORDER BY created_at DESC")
	assert.Contains(t, q, "OFFSET $5")
	assert.Contains(t, q, "LIMIT $6")
	assert.Equal(t, []any{"bob", "builder", true, false, 20, 10}, args)
}

func TestBuildUserQuery_EscapesLikeWildcards(t *testing.T) {
	// "%" or "_" in a filter value must match literally, not as wildcards
	f := UserFilter{Email: "50%_off", FullName: `back\slash`}
	_, args := BuildUserQuery(f, ListParams{Limit: 10})

	assert.Equal(t, `50\%\_off`, args[0])
	assert.Equal(t, `back\\slash`, args[1])
}

func TestBuildUserCountQuery(t *testing.T) {
	active := true
	q, args := BuildUserCountQuery(UserFilter{Email: "bob", IsActive: &active})

	assert.Contains(t, q, "SELECT count(*) FROM users")
	assert.Contains(t, q, `email ILIKE '%'||$1||'%'`)
	assert.Contains(t, q, "is_active = $2")
	assert.NotContains(t, q, "OFFSET")
	assert.NotContains(t, q, "LIMIT")
	assert.Equal(t, []any{"bob", true}, args)
}

func TestBuildUserCountQuery_NoFilters(t *testing.T) {
	q, args := BuildUserCountQuery(UserFilter{})
	assert.Equal(t, "SELECT count(*) FROM users", q)
	assert.Empty(t, args)
}

// The count statement must see exactly the rows the page statement saw, or
// the offset-overrun fallback reports a different total than the window.
func TestBuildUserCountQuery_MatchesListWhere(t *testing.T) {
	super := false
	f := UserFilter{Email: "a%b", FullName: "c_d", IsSuperuser: &super}

	listWhere, listArgs := buildUserWhere(f)
	countWhere, countArgs := buildUserWhere(f)
	assert.Equal(t, listWhere, countWhere)
	assert.Equal(t, listArgs, countArgs)
}

func TestBuildUserQuery_SingleBoolFilter(t *testing.T) {
	super := true
	q, args := BuildUserQuery(UserFilter{IsSuperuser: &super}, ListParams{Limit: 1})

	assert.Contains(t, q, "WHERE is_superuser = $1")
	assert.Equal(t, []any{true, 0, 1}, args)
}
