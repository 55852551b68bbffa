package telemetry

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log level, console format and the optional rotating
// file sink.
type Config struct {
	Level      string
	JSON       bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Nop until Init runs, so packages can log from tests without setup.
var log = zerolog.Nop()

// Init builds the process logger and installs it for L and For.
func Init(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	log = zerolog.New(cfg.writer()).
		Level(level).
		With().
		Timestamp().
		Str("service", "medai").
		Logger()
	return log
}

func (cfg Config) writer() io.Writer {
	var console io.Writer = os.Stdout
	if !cfg.JSON {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	if cfg.File == "" {
		return console
	}
	return zerolog.MultiLevelWriter(console, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, 10),
		MaxBackups: orDefault(cfg.MaxBackups, 3),
		MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		Compress:   cfg.Compress,
	})
}

func L() zerolog.Logger { return log }

// For returns a request-scoped logger. Empty ids are omitted.
func For(reqID string, userID int64) zerolog.Logger {
	ctx := log.With()
	if reqID != "" {
		ctx = ctx.Str("req_id", reqID)
	}
	if userID != 0 {
		ctx = ctx.Int64("user_id", userID)
	}
	return ctx.Logger()
}

// FromEnv reads the LOG_* settings.
func FromEnv(get func(string, string) string) Config {
	num := func(k, d string) int { n, _ := strconv.Atoi(get(k, d)); return n }
	flag := func(k, d string) bool { b, _ := strconv.ParseBool(get(k, d)); return b }
	return Config{
		Level:      get("LOG_LEVEL", "info"),
		JSON:       flag("LOG_JSON", "true"),
		File:       get("LOG_FILE", "medai.log"),
		MaxSizeMB:  num("LOG_MAX_SIZE_MB", "10"),
		MaxBackups: num("LOG_MAX_BACKUPS", "3"),
		MaxAgeDays: num("LOG_MAX_AGE_DAYS", "28"),
		Compress:   flag("LOG_COMPRESS", "true"),
	}
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}
