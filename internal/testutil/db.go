// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/emandor/medai_service/internal/db"
)

// NewDB returns an in-memory SQLite database with the full schema applied.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()
	// Connect caps SQLite at one connection; a second one would open a
	// fresh, empty in-memory database.
	x, err := db.Connect(string(db.SQLite), ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(x))
	t.Cleanup(func() { _ = x.Close() })
	return x
}

// CreateUser inserts a free-tier user and returns its id.
func CreateUser(t *testing.T, x *sqlx.DB, email string) int64 {
	t.Helper()
	now := time.Now().UTC()
	res, err := x.Exec(`INSERT INTO users (email, provider, subscription_type, created_at, updated_at)
		VALUES (?, 'credentials', 'free', ?, ?)`, email, now, now)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}
