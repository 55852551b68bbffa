package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/emandor/medai_service/internal/db"
)

// Limits are the per-record daily caps written when a record is first created.
type Limits struct {
	AIQuestions int
	CardSets    int
	PDFs        int
}

var DefaultLimits = Limits{AIQuestions: 5, CardSets: 2, PDFs: 1}

// Record is a user's usage for a single day. Limits live on the record so
// they can be raised per user.
type Record struct {
	UserID               int64     `db:"user_id" json:"userId"`
	Day                  string    `db:"usage_day" json:"date"`
	AIQuestionsGenerated int       `db:"ai_questions_generated" json:"aiQuestionsGenerated"`
	CardSetsStudied      int       `db:"card_sets_studied" json:"cardSetsStudied"`
	PDFsProcessed        int       `db:"pdfs_processed" json:"pdfsProcessed"`
	AIQuestionsLimit     int       `db:"ai_questions_limit" json:"aiQuestionsLimit"`
	CardSetsLimit        int       `db:"card_sets_limit" json:"cardSetsLimit"`
	PDFsLimit            int       `db:"pdfs_limit" json:"pdfsLimit"`
	UpdatedAt            time.Time `db:"updated_at" json:"updatedAt"`
}

// Usage returns the counter and cap for f.
func (r Record) Usage(f Feature) (used, limit int) {
	switch f {
	case AIQuestions:
		return r.AIQuestionsGenerated, r.AIQuestionsLimit
	case CardSets:
		return r.CardSetsStudied, r.CardSetsLimit
	case PDFs:
		return r.PDFsProcessed, r.PDFsLimit
	}
	return 0, 0
}

type Store interface {
	GetOrResetToday(ctx context.Context, userID int64) (Record, error)
	Increment(ctx context.Context, userID int64, f Feature) (Record, error)
	// TryIncrement adds one unit only while the counter is below its limit.
	TryIncrement(ctx context.Context, userID int64, f Feature) (Record, bool, error)
	// Release gives back a unit admitted on day. It is a no-op once the
	// record has rolled over to a later day.
	Release(ctx context.Context, userID int64, f Feature, day string) error
}

const recordColumns = `user_id, usage_day, ai_questions_generated, card_sets_studied, pdfs_processed,
	ai_questions_limit, card_sets_limit, pdfs_limit, updated_at`

// SQLStore keeps one daily_usage row per user. Every mutation is a single
// statement so concurrent requests never lose an update.
type SQLStore struct {
	db       *sqlx.DB
	dialect  db.Dialect
	clock    Clock
	defaults Limits
}

func NewSQLStore(x *sqlx.DB, clock Clock, defaults Limits) *SQLStore {
	return &SQLStore{db: x, dialect: db.DialectOf(x), clock: clock, defaults: defaults}
}

func (s *SQLStore) GetOrResetToday(ctx context.Context, userID int64) (Record, error) {
	day := s.clock.Today()
	if err := s.ensureDay(ctx, userID, day); err != nil {
		return Record{}, err
	}
	return s.get(ctx, userID)
}

func (s *SQLStore) Increment(ctx context.Context, userID int64, f Feature) (Record, error) {
	if !f.Valid() {
		return Record{}, ErrUnknownFeature
	}
	counter, _ := f.columns()
	q := `UPDATE daily_usage SET ` + counter + ` = ` + counter + ` + 1, updated_at = ?
		WHERE user_id = ? AND usage_day = ?`
	if _, err := s.apply(ctx, userID, q); err != nil {
		return Record{}, err
	}
	return s.get(ctx, userID)
}

func (s *SQLStore) TryIncrement(ctx context.Context, userID int64, f Feature) (Record, bool, error) {
	if !f.Valid() {
		return Record{}, false, ErrUnknownFeature
	}
	counter, limit := f.columns()
	q := `UPDATE daily_usage SET ` + counter + ` = ` + counter + ` + 1, updated_at = ?
		WHERE user_id = ? AND usage_day = ? AND ` + counter + ` < ` + limit
	n, err := s.apply(ctx, userID, q)
	if err != nil {
		return Record{}, false, err
	}
	rec, err := s.get(ctx, userID)
	return rec, n == 1, err
}

func (s *SQLStore) Release(ctx context.Context, userID int64, f Feature, day string) error {
	if !f.Valid() {
		return ErrUnknownFeature
	}
	counter, _ := f.columns()
	_, err := s.db.ExecContext(ctx, `UPDATE daily_usage SET `+counter+` = `+counter+` - 1, updated_at = ?
		WHERE user_id = ? AND usage_day = ? AND `+counter+` > 0`,
		time.Now().UTC(), userID, day)
	if err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}

// apply brings the row to today and runs q (args: updated_at, user_id, usage_day).
// It retries once when the day rolled over between the two statements.
func (s *SQLStore) apply(ctx context.Context, userID int64, q string) (int64, error) {
	for attempt := 0; ; attempt++ {
		day := s.clock.Today()
		if err := s.ensureDay(ctx, userID, day); err != nil {
			return 0, err
		}
		res, err := s.db.ExecContext(ctx, q, time.Now().UTC(), userID, day)
		if err != nil {
			return 0, fmt.Errorf("update usage: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if n == 1 || attempt == 1 || s.clock.Today() == day {
			return n, nil
		}
	}
}

// ensureDay creates the row when missing and zeroes the counters of a stale
// one. Custom limits on an existing row are left alone.
func (s *SQLStore) ensureDay(ctx context.Context, userID int64, day string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.dialect.InsertIgnore()+` INTO daily_usage
		(user_id, usage_day, ai_questions_generated, card_sets_studied, pdfs_processed,
		 ai_questions_limit, card_sets_limit, pdfs_limit, updated_at)
		VALUES (?, ?, 0, 0, 0, ?, ?, ?, ?)`,
		userID, day, s.defaults.AIQuestions, s.defaults.CardSets, s.defaults.PDFs, now)
	if err != nil {
		return fmt.Errorf("create usage record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE daily_usage
		SET usage_day = ?, ai_questions_generated = 0, card_sets_studied = 0, pdfs_processed = 0, updated_at = ?
		WHERE user_id = ? AND usage_day < ?`, day, now, userID, day)
	if err != nil {
		return fmt.Errorf("reset usage record: %w", err)
	}
	return nil
}

func (s *SQLStore) get(ctx context.Context, userID int64) (Record, error) {
	var rec Record
	if err := s.db.GetContext(ctx, &rec, `SELECT `+recordColumns+` FROM daily_usage WHERE user_id = ?`, userID); err != nil {
		return Record{}, fmt.Errorf("get usage record: %w", err)
	}
	return rec, nil
}
