package db

import (
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var fs embed.FS

// Dialect is the sqlx driver name; stores branch on it for the few
// statements MySQL and SQLite spell differently.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite3"
)

func DialectOf(x *sqlx.DB) Dialect { return Dialect(x.DriverName()) }

// InsertIgnore returns the insert-if-absent verb for the dialect.
func (d Dialect) InsertIgnore() string {
	if d == SQLite {
		return "INSERT OR IGNORE"
	}
	return "INSERT IGNORE"
}

// Connect opens and pings the database. MySQL DSNs need parseTime=true.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	if driver == "" {
		driver = string(MySQL)
	}
	x, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	switch Dialect(driver) {
	case SQLite:
		// single writer, otherwise concurrent requests see "database is locked"
		x.SetMaxOpenConns(1)
	default:
		x.SetMaxOpenConns(20)
		x.SetMaxIdleConns(10)
		x.SetConnMaxLifetime(30 * time.Minute)
	}
	return x, nil
}

// Migrate brings the schema up to date. MySQL runs the embedded
// golang-migrate files; SQLite gets the equivalent schema in one pass.
func Migrate(x *sqlx.DB) error {
	if DialectOf(x) == SQLite {
		return ApplySQLiteSchema(x)
	}
	drv, err := mysql.WithInstance(x.DB, &mysql.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	src, err := iofs.New(fs, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(MySQL), drv)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func MustConnect(driver, dsn string) *sqlx.DB {
	x, err := Connect(driver, dsn)
	if err != nil {
		log.Fatal(err)
	}
	return x
}

func MustMigrate(x *sqlx.DB) {
	if err := Migrate(x); err != nil {
		log.Fatal(err)
	}
}
