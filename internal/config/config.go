package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv, AppPort, BaseURL string
	WebDir, StorageDir       string
	DBDriver, DBDSN          string
	RedisAddr                string
	RedisDB                  int

	SessionCookieName   string
	SessionCookieSecret string
	SessionTTL          time.Duration
	CookieSecure        bool

	DemoEmail        string
	DemoSessionToken string

	GoogleClientID, GoogleClientSecret, GoogleRedirectURL string
	OAuthAllowedDomains                                   []string
	CORSOrigins                                           []string

	// usage quota
	UsageDayOffset   time.Duration
	QuotaAIQuestions int
	QuotaCardSets    int
	QuotaPDFs        int

	OpenAIKey, OpenAIModel       string
	AnthropicKey, AnthropicModel string
	GeminiKey, GeminiModel       string
	LLMTimeout                   time.Duration
	LLMRPS, LLMBurst             int
	QuestionCacheTTL             time.Duration

	OCROpenAIModel     string
	OCRImgMaxW         int
	OCRImgQuality      int
	OCRImgGrayscale    bool
	ProviderMaxRetries int

	PDFMaxPages        int
	AllowedMaxFileSize int
	AllowedImageExt    []string

	SMTPHost, SMTPPort, SMTPUser, SMTPPassword, SMTPFrom string
}

func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		AppEnv:              get("APP_ENV", "dev"),
		AppPort:             get("APP_PORT", "8080"),
		BaseURL:             get("APP_BASE_URL", "http://localhost:8080"),
		WebDir:              get("WEB_DIR", "./web"),
		StorageDir:          get("STORAGE_DIR", "./storage"),
		DBDriver:            get("DB_DRIVER", "mysql"),
		DBDSN:               must("DB_DSN"),
		RedisAddr:           get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisDB:             atoi(get("REDIS_DB", "0")),
		SessionCookieName:   get("SESSION_COOKIE_NAME", "session-token"),
		SessionCookieSecret: must("SESSION_COOKIE_SECRET"),
		SessionTTL:          mustDuration(get("SESSION_TTL", "168h")),
		CookieSecure:        parseBool(get("COOKIE_SECURE", "false")),
		DemoEmail:           strings.ToLower(get("DEMO_EMAIL", "demo@med.ai")),
		DemoSessionToken:    get("DEMO_SESSION_TOKEN", "demo-session"),
		CORSOrigins:         split(get("CORS_ORIGINS", "http://localhost:3000")),
		GoogleClientID:      get("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  get("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:   get("GOOGLE_REDIRECT_URL", ""),
		OAuthAllowedDomains: split(get("OAUTH_ALLOWED_DOMAINS", "")),
		UsageDayOffset:      mustDuration(get("USAGE_DAY_OFFSET", "9h")),
		QuotaAIQuestions:    GetEnvInt("QUOTA_AI_QUESTIONS", 5),
		QuotaCardSets:       GetEnvInt("QUOTA_CARD_SETS", 2),
		QuotaPDFs:           GetEnvInt("QUOTA_PDFS", 1),
		OpenAIKey:           get("OPENAI_API_KEY", ""),
		OpenAIModel:         get("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicKey:        get("ANTHROPIC_API_KEY", ""),
		AnthropicModel:      get("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
		GeminiKey:           get("GEMINI_API_KEY", ""),
		GeminiModel:         get("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMTimeout:          mustDuration(get("LLM_TIMEOUT", "30s")),
		LLMRPS:              atoi(get("LLM_RPS", "2")),
		LLMBurst:            atoi(get("LLM_BURST", "2")),
		QuestionCacheTTL:    mustDuration(get("QUESTION_CACHE_TTL", "24h")),
		OCROpenAIModel:      get("OCR_OPENAI_MODEL", "gpt-4o-mini"),
		OCRImgMaxW:          atoi(get("OCR_IMG_MAX_W", "1024")),
		OCRImgQuality:       atoi(get("OCR_IMG_QUALITY", "60")),
		OCRImgGrayscale:     parseBool(get("OCR_IMG_GRAYSCALE", "true")),
		ProviderMaxRetries:  atoi(get("PROVIDER_MAX_RETRIES", "3")),
		PDFMaxPages:         GetEnvInt("PDF_MAX_PAGES", 200),
		AllowedMaxFileSize:  GetEnvInt("ALLOWED_MAX_FILE_SIZE", 10),
		AllowedImageExt:     GetEnvList("ALLOWED_IMAGE_EXT", []string{".jpg", ".jpeg", ".png"}),
		SMTPHost:            get("SMTP_HOST", ""),
		SMTPPort:            get("SMTP_PORT", "587"),
		SMTPUser:            get("SMTP_USER", ""),
		SMTPPassword:        get("SMTP_PASSWORD", ""),
		SMTPFrom:            get("SMTP_FROM", "no-reply@med.ai"),
	}
	return c
}

// SecureCookieName is the production variant of the session cookie name.
func (c *Config) SecureCookieName() string { return "__Secure-" + c.SessionCookieName }

func GetEnvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return d
}

func GetEnvList(k string, d []string) []string {
	if v := os.Getenv(k); v != "" {
		return strings.Split(v, ",")
	}
	return d
}

func get(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing env %s", k)
	}
	return v
}
func atoi(s string) int       { i, _ := strconv.Atoi(s); return i }
func parseBool(s string) bool { b, _ := strconv.ParseBool(s); return b }
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("bad duration %q: %v", s, err)
	}
	return d
}
func split(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func GetEnv(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	return v
}
