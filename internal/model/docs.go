package model

import "time"

type DocSource string

const (
	DocSourcePDF   DocSource = "pdf"
	DocSourceImage DocSource = "image"
)

type Doc struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Source    DocSource `db:"source" json:"source"`
	PageCount int       `db:"page_count" json:"page_count"`
	BodyText  string    `db:"body_text" json:"body_text,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Cloze struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	DocID      *int64    `db:"doc_id" json:"doc_id,omitempty"`
	SourceText string    `db:"source_text" json:"source_text"`
	MaskedText string    `db:"masked_text" json:"masked_text"`
	Answers    string    `db:"answers" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
