package docs

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/emandor/medai_service/internal/model"
)

var ErrNotFound = errors.New("document not found")

const listColumns = `id, user_id, title, source, page_count, created_at`

type Repo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRepo(x *sqlx.DB) *Repo {
	return &Repo{db: x, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repo) Create(ctx context.Context, d *model.Doc) error {
	d.CreatedAt = r.now()
	res, err := r.db.ExecContext(ctx, `INSERT INTO docs (user_id, title, source, page_count, body_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, d.UserID, d.Title, d.Source, d.PageCount, d.BodyText, d.CreatedAt)
	if err != nil {
		return err
	}
	d.ID, err = res.LastInsertId()
	return err
}

// List omits body text.
func (r *Repo) List(ctx context.Context, userID int64) ([]model.Doc, error) {
	out := []model.Doc{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+listColumns+` FROM docs
		WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	return out, err
}

// Get only returns documents owned by userID.
func (r *Repo) Get(ctx context.Context, userID, id int64) (*model.Doc, error) {
	var d model.Doc
	err := r.db.GetContext(ctx, &d, `SELECT `+listColumns+`, body_text FROM docs
		WHERE id = ? AND user_id = ?`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
