package model

import "time"

type CardSet struct {
	ID            int64      `db:"id" json:"id"`
	PublicID      string     `db:"public_id" json:"public_id"`
	UserID        int64      `db:"user_id" json:"user_id"`
	Title         string     `db:"title" json:"title"`
	Description   string     `db:"description" json:"description"`
	IsPublic      bool       `db:"is_public" json:"is_public"`
	CoverPath     *string    `db:"cover_path" json:"cover_path,omitempty"`
	LastStudiedAt *time.Time `db:"last_studied_at" json:"last_studied_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	Likes int    `db:"likes" json:"likes"`
	Cards []Card `db:"-" json:"cards,omitempty"`
}

type Card struct {
	ID        int64  `db:"id" json:"id"`
	CardSetID int64  `db:"card_set_id" json:"card_set_id"`
	Front     string `db:"front" json:"front"`
	Back      string `db:"back" json:"back"`
	Position  int    `db:"position" json:"position"`
}
