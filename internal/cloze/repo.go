package cloze

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/emandor/medai_service/internal/model"
)

type Repo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRepo(x *sqlx.DB) *Repo {
	return &Repo{db: x, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores the answers as a JSON array.
func (r *Repo) Create(ctx context.Context, c *model.Cloze, answers []string) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	c.Answers = string(raw)
	c.CreatedAt = r.now()
	res, err := r.db.ExecContext(ctx, `INSERT INTO clozes (user_id, doc_id, source_text, masked_text, answers, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, c.UserID, c.DocID, c.SourceText, c.MaskedText, c.Answers, c.CreatedAt)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (r *Repo) List(ctx context.Context, userID int64) ([]model.Cloze, error) {
	out := []model.Cloze{}
	err := r.db.SelectContext(ctx, &out, `SELECT id, user_id, doc_id, source_text, masked_text, answers, created_at
		FROM clozes WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	return out, err
}
