package study

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/emandor/medai_service/internal/db"
	"github.com/emandor/medai_service/internal/model"
)

var (
	ErrNotFound  = errors.New("card set not found")
	ErrForbidden = errors.New("not the owner of this card set")
)

const setColumns = `cs.id, cs.public_id, cs.user_id, cs.title, cs.description, cs.is_public,
	cs.cover_path, cs.last_studied_at, cs.created_at, cs.updated_at,
	(SELECT COUNT(*) FROM card_set_likes l WHERE l.card_set_id = cs.id) AS likes`

type Repo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRepo(x *sqlx.DB) *Repo {
	return &Repo{db: x, now: func() time.Time { return time.Now().UTC() }}
}

// CreateSet stores a set with its initial cards in one transaction.
func (r *Repo) CreateSet(ctx context.Context, s *model.CardSet) error {
	pid, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("public id: %w", err)
	}
	now := r.now()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO card_sets
		(public_id, user_id, title, description, is_public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, pid, s.UserID, s.Title, s.Description, s.IsPublic, now, now)
	if err != nil {
		return fmt.Errorf("insert card set: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := insertCards(ctx, tx, id, 0, s.Cards); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.ID, s.PublicID, s.CreatedAt, s.UpdatedAt = id, pid, now, now
	return nil
}

func insertCards(ctx context.Context, tx *sqlx.Tx, setID int64, start int, cards []model.Card) error {
	for i := range cards {
		cards[i].CardSetID = setID
		cards[i].Position = start + i
		res, err := tx.ExecContext(ctx, `INSERT INTO cards (card_set_id, front, back, position) VALUES (?, ?, ?, ?)`,
			setID, cards[i].Front, cards[i].Back, cards[i].Position)
		if err != nil {
			return fmt.Errorf("insert card: %w", err)
		}
		if cards[i].ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

// AppendCards adds cards after the last position of an owned set.
func (r *Repo) AppendCards(ctx context.Context, ownerID, setID int64, cards []model.Card) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var owner int64
	if err := tx.GetContext(ctx, &owner, `SELECT user_id FROM card_sets WHERE id = ?`, setID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if owner != ownerID {
		return ErrForbidden
	}
	var next int
	if err := tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(position) + 1, 0) FROM cards WHERE card_set_id = ?`, setID); err != nil {
		return err
	}
	if err := insertCards(ctx, tx, setID, next, cards); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE card_sets SET updated_at = ? WHERE id = ?`, r.now(), setID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) ByPublicID(ctx context.Context, publicID string) (*model.CardSet, error) {
	var s model.CardSet
	err := r.db.GetContext(ctx, &s, `SELECT `+setColumns+` FROM card_sets cs WHERE cs.public_id = ?`, publicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get card set: %w", err)
	}
	return &s, nil
}

// Visible returns the set when viewer owns it or it is public. Private sets
// of other users look missing.
func (r *Repo) Visible(ctx context.Context, viewerID int64, publicID string) (*model.CardSet, error) {
	s, err := r.ByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if s.UserID != viewerID && !s.IsPublic {
		return nil, ErrNotFound
	}
	return s, nil
}

// CanViewCardSet reports whether viewerID may follow the set's realtime room.
func (r *Repo) CanViewCardSet(ctx context.Context, viewerID int64, publicID string) bool {
	_, err := r.Visible(ctx, viewerID, publicID)
	return err == nil
}

// Owned returns the set only when ownerID owns it.
func (r *Repo) Owned(ctx context.Context, ownerID int64, publicID string) (*model.CardSet, error) {
	s, err := r.Visible(ctx, ownerID, publicID)
	if err != nil {
		return nil, err
	}
	if s.UserID != ownerID {
		return nil, ErrForbidden
	}
	return s, nil
}

func (r *Repo) ListByOwner(ctx context.Context, ownerID int64) ([]model.CardSet, error) {
	sets := []model.CardSet{}
	err := r.db.SelectContext(ctx, &sets, `SELECT `+setColumns+` FROM card_sets cs
		WHERE cs.user_id = ? ORDER BY cs.updated_at DESC, cs.id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list card sets: %w", err)
	}
	return sets, nil
}

func (r *Repo) Cards(ctx context.Context, setID int64) ([]model.Card, error) {
	cards := []model.Card{}
	err := r.db.SelectContext(ctx, &cards, `SELECT id, card_set_id, front, back, position
		FROM cards WHERE card_set_id = ? ORDER BY position, id`, setID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

type SetPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"isPublic"`
}

func (r *Repo) UpdateSet(ctx context.Context, s *model.CardSet, p SetPatch) error {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.IsPublic != nil {
		s.IsPublic = *p.IsPublic
	}
	s.UpdatedAt = r.now()
	_, err := r.db.ExecContext(ctx, `UPDATE card_sets SET title = ?, description = ?, is_public = ?, updated_at = ?
		WHERE id = ?`, s.Title, s.Description, s.IsPublic, s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("update card set: %w", err)
	}
	return nil
}

func (r *Repo) DeleteSet(ctx context.Context, setID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM cards WHERE card_set_id = ?`,
		`DELETE FROM card_set_likes WHERE card_set_id = ?`,
		`DELETE FROM card_sets WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, setID); err != nil {
			return fmt.Errorf("delete card set: %w", err)
		}
	}
	return tx.Commit()
}

func (r *Repo) UpdateCard(ctx context.Context, setID, cardID int64, front, back string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE cards SET front = ?, back = ? WHERE id = ? AND card_set_id = ?`,
		front, back, cardID, setID)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	return requireRow(res)
}

func (r *Repo) DeleteCard(ctx context.Context, setID, cardID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ? AND card_set_id = ?`, cardID, setID)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return requireRow(res)
}

func (r *Repo) MarkStudied(ctx context.Context, setID int64) (time.Time, error) {
	now := r.now()
	_, err := r.db.ExecContext(ctx, `UPDATE card_sets SET last_studied_at = ? WHERE id = ?`, now, setID)
	return now, err
}

func (r *Repo) SetCover(ctx context.Context, setID int64, path string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE card_sets SET cover_path = ?, updated_at = ? WHERE id = ?`,
		path, r.now(), setID)
	return err
}

// ToggleLike flips the caller's like and reports the new state and count.
func (r *Repo) ToggleLike(ctx context.Context, userID, setID int64) (liked bool, count int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM card_set_likes WHERE user_id = ? AND card_set_id = ?`, userID, setID)
	if err != nil {
		return false, 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.ExecContext(ctx, db.DialectOf(r.db).InsertIgnore()+` INTO card_set_likes
			(user_id, card_set_id, created_at) VALUES (?, ?, ?)`, userID, setID, r.now()); err != nil {
			return false, 0, err
		}
		liked = true
	}
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM card_set_likes WHERE card_set_id = ?`, setID); err != nil {
		return false, 0, err
	}
	return liked, count, tx.Commit()
}

// SearchPublic returns public sets whose title or description contains q.
// Ordering is left to Rank.
func (r *Repo) SearchPublic(ctx context.Context, q string, limit int) ([]model.CardSet, error) {
	pattern := "%" + likeEscaper.Replace(q) + "%"
	sets := []model.CardSet{}
	err := r.db.SelectContext(ctx, &sets, `SELECT `+setColumns+` FROM card_sets cs
		WHERE cs.is_public = ? AND (cs.title LIKE ? ESCAPE '!' OR cs.description LIKE ? ESCAPE '!')
		ORDER BY cs.id DESC LIMIT ?`, true, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search card sets: %w", err)
	}
	return sets, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
