package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/emandor/medai_service/internal/db"
	"github.com/emandor/medai_service/internal/model"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

const userColumns = `id, email, name, password_hash, provider, subscription_type,
	subscription_expires_at, created_at, updated_at`

type Repo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRepo(x *sqlx.DB) *Repo {
	return &Repo{db: x, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repo) ByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

func (r *Repo) ByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = ?`, NormalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// Create registers a credentials user on the free tier.
func (r *Repo) Create(ctx context.Context, email, name, passwordHash string) (*model.User, error) {
	email = NormalizeEmail(email)
	if _, err := r.ByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	now := r.now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (email, name, password_hash, provider, subscription_type, created_at, updated_at)
		VALUES (?, ?, ?, 'credentials', ?, ?, ?)`,
		email, nullIfEmpty(name), nullIfEmpty(passwordHash), model.SubscriptionFree, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.ByID(ctx, id)
}

// UpsertOAuth returns the user owning email, creating it for first-time provider logins.
func (r *Repo) UpsertOAuth(ctx context.Context, provider, email, name string) (*model.User, error) {
	email = NormalizeEmail(email)
	now := r.now()
	_, err := r.db.ExecContext(ctx, db.DialectOf(r.db).InsertIgnore()+` INTO users
		(email, name, provider, subscription_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		email, nullIfEmpty(name), provider, model.SubscriptionFree, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert oauth user: %w", err)
	}
	return r.ByEmail(ctx, email)
}

// EnsureDemo makes sure the reserved demo account exists.
func (r *Repo) EnsureDemo(ctx context.Context, demoEmail string) (*model.User, error) {
	return r.UpsertOAuth(ctx, "demo", demoEmail, "Demo")
}

func (r *Repo) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, r.now(), id)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return requireRow(res)
}

// SetSubscription changes the tier; a nil expiry with premium never counts as active.
func (r *Repo) SetSubscription(ctx context.Context, id int64, typ model.Subscription, expiresAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET subscription_type = ?, subscription_expires_at = ?, updated_at = ?
		WHERE id = ?`, typ, expiresAt, r.now(), id)
	if err != nil {
		return fmt.Errorf("set subscription: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
