package db

import "github.com/jmoiron/sqlx"

// sqliteSchema mirrors migrations/ for local development and tests.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  email TEXT NOT NULL UNIQUE,
  name TEXT NULL,
  password_hash TEXT NULL,
  provider TEXT NOT NULL DEFAULT 'credentials',
  subscription_type TEXT NOT NULL DEFAULT 'free',
  subscription_expires_at DATETIME NULL,
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS user_sessions (
  id TEXT PRIMARY KEY,
  user_id INTEGER NOT NULL,
  ip TEXT NOT NULL DEFAULT '',
  user_agent TEXT NOT NULL DEFAULT '',
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS daily_usage (
  user_id INTEGER PRIMARY KEY,
  usage_day TEXT NOT NULL,
  ai_questions_generated INTEGER NOT NULL DEFAULT 0,
  card_sets_studied INTEGER NOT NULL DEFAULT 0,
  pdfs_processed INTEGER NOT NULL DEFAULT 0,
  ai_questions_limit INTEGER NOT NULL DEFAULT 5,
  card_sets_limit INTEGER NOT NULL DEFAULT 2,
  pdfs_limit INTEGER NOT NULL DEFAULT 1,
  updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS card_sets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  public_id TEXT NOT NULL UNIQUE,
  user_id INTEGER NOT NULL,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  is_public BOOLEAN NOT NULL DEFAULT 0,
  cover_path TEXT NULL,
  last_studied_at DATETIME NULL,
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS cards (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  card_set_id INTEGER NOT NULL,
  front TEXT NOT NULL,
  back TEXT NOT NULL,
  position INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS card_set_likes (
  user_id INTEGER NOT NULL,
  card_set_id INTEGER NOT NULL,
  created_at DATETIME NOT NULL,
  PRIMARY KEY (user_id, card_set_id)
);
CREATE TABLE IF NOT EXISTS docs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL,
  title TEXT NOT NULL,
  source TEXT NOT NULL,
  page_count INTEGER NOT NULL DEFAULT 0,
  body_text TEXT NOT NULL,
  created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS clozes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL,
  doc_id INTEGER NULL,
  source_text TEXT NOT NULL,
  masked_text TEXT NOT NULL,
  answers TEXT NOT NULL,
  created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS follows (
  follower_id INTEGER NOT NULL,
  followee_id INTEGER NOT NULL,
  created_at DATETIME NOT NULL,
  PRIMARY KEY (follower_id, followee_id)
);
CREATE TABLE IF NOT EXISTS messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sender_id INTEGER NOT NULL,
  recipient_id INTEGER NOT NULL,
  body TEXT NOT NULL,
  read_at DATETIME NULL,
  created_at DATETIME NOT NULL
);
`

func ApplySQLiteSchema(db *sqlx.DB) error {
	_, err := db.Exec(sqliteSchema)
	return err
}
