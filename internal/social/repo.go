package social

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/emandor/medai_service/internal/db"
	"github.com/emandor/medai_service/internal/model"
)

const inboxLimit = 100

type Repo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRepo(x *sqlx.DB) *Repo {
	return &Repo{db: x, now: func() time.Time { return time.Now().UTC() }}
}

// ToggleFollow follows or unfollows followee and reports the new state.
func (r *Repo) ToggleFollow(ctx context.Context, followerID, followeeID int64) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, db.DialectOf(r.db).InsertIgnore()+
		` INTO follows (follower_id, followee_id, created_at) VALUES (?, ?, ?)`, followerID, followeeID, r.now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	followed := n > 0
	if !followed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`,
			followerID, followeeID); err != nil {
			return false, err
		}
	}
	return followed, tx.Commit()
}

// Stats counts userID's followers and followees; Followed is viewer's edge.
func (r *Repo) Stats(ctx context.Context, viewerID, userID int64) (model.FollowStats, error) {
	var s model.FollowStats
	err := r.db.QueryRowxContext(ctx, `SELECT
		(SELECT COUNT(*) FROM follows WHERE followee_id = ?),
		(SELECT COUNT(*) FROM follows WHERE follower_id = ?),
		(SELECT COUNT(*) FROM follows WHERE follower_id = ? AND followee_id = ?)`,
		userID, userID, viewerID, userID).Scan(&s.Followers, &s.Following, &s.Followed)
	return s, err
}

func (r *Repo) SendMessage(ctx context.Context, m *model.Message) error {
	m.CreatedAt = r.now()
	res, err := r.db.ExecContext(ctx, `INSERT INTO messages (sender_id, recipient_id, body, created_at)
		VALUES (?, ?, ?, ?)`, m.SenderID, m.RecipientID, m.Body, m.CreatedAt)
	if err != nil {
		return err
	}
	m.ID, err = res.LastInsertId()
	return err
}

// Inbox returns the newest messages and marks the unread ones as read.
func (r *Repo) Inbox(ctx context.Context, userID int64) ([]model.Message, error) {
	out := []model.Message{}
	if err := r.db.SelectContext(ctx, &out, `SELECT id, sender_id, recipient_id, body, read_at, created_at
		FROM messages WHERE recipient_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, inboxLimit); err != nil {
		return nil, err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE messages SET read_at = ? WHERE recipient_id = ? AND read_at IS NULL`,
		r.now(), userID)
	return out, err
}
