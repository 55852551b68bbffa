package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emandor/medai_service/internal/account"
	"github.com/emandor/medai_service/internal/auth"
	"github.com/emandor/medai_service/internal/cache"
	"github.com/emandor/medai_service/internal/cloze"
	"github.com/emandor/medai_service/internal/config"
	"github.com/emandor/medai_service/internal/db"
	"github.com/emandor/medai_service/internal/docs"
	"github.com/emandor/medai_service/internal/guard"
	"github.com/emandor/medai_service/internal/mail"
	"github.com/emandor/medai_service/internal/middleware"
	"github.com/emandor/medai_service/internal/model"
	"github.com/emandor/medai_service/internal/ocr"
	"github.com/emandor/medai_service/internal/providers"
	"github.com/emandor/medai_service/internal/questions"
	"github.com/emandor/medai_service/internal/quota"
	"github.com/emandor/medai_service/internal/session"
	"github.com/emandor/medai_service/internal/social"
	"github.com/emandor/medai_service/internal/study"
	"github.com/emandor/medai_service/internal/telemetry"
	"github.com/emandor/medai_service/internal/ws"
)

func main() {
	doMigrate := flag.Bool("migrate", false, "run migrations and exit")
	grantPremium := flag.String("grant-premium", "", "give the user with this email a premium subscription and exit")
	days := flag.Int("days", 30, "premium length in days for -grant-premium; must be positive")
	flag.Parse()

	cfg := config.Load()
	tlog := telemetry.Init(telemetry.FromEnv(config.GetEnv))
	tlog.Info().Str("port", cfg.AppPort).Str("env", cfg.AppEnv).Msg("booting medai_service")

	sqlxDB := db.MustConnect(cfg.DBDriver, cfg.DBDSN)
	if *doMigrate {
		db.MustMigrate(sqlxDB)
		log.Println("migrations done")
		return
	}
	users := account.NewRepo(sqlxDB)
	if *grantPremium != "" {
		if err := grant(context.Background(), users, *grantPremium, *days, time.Now()); err != nil {
			log.Fatal(err)
		}
		log.Printf("premium granted to %s", *grantPremium)
		return
	}

	rdb := cache.MustConnect(cfg.RedisAddr, cfg.RedisDB)

	signer := session.NewSigner(cfg.SessionCookieSecret, cfg.SessionTTL)
	resolver := session.NewResolver(signer, cfg.DemoSessionToken, cfg.SecureCookieName(), cfg.SessionCookieName)
	sessions := session.NewManager(session.NewRedisStore(rdb), signer, cfg.SessionTTL, sqlxDB)
	authReg := auth.NewRegistry(cfg, users, resolver, sessions, auth.NewRedisResetTokens(rdb), mail.New(cfg))

	store := quota.NewSQLStore(sqlxDB, quota.Clock{Offset: cfg.UsageDayOffset}, quota.Limits{
		AIQuestions: cfg.QuotaAIQuestions,
		CardSets:    cfg.QuotaCardSets,
		PDFs:        cfg.QuotaPDFs,
	})
	policy := quota.NewPolicy(store, users, cfg.DemoEmail)

	clients, err := providers.Build(context.Background(), cfg)
	if err != nil {
		log.Fatal(err)
	}
	if len(clients) == 0 {
		tlog.Warn().Msg("no llm provider configured; question generation disabled")
	}
	qsvc := questions.NewService(clients, cache.NewJSON(rdb, "questions:"), cfg.QuestionCacheTTL, cfg.LLMTimeout)

	setRepo := study.NewRepo(sqlxDB)
	hub := ws.NewHub(setRepo)
	docRepo := docs.NewRepo(sqlxDB)

	usageH := quota.NewHandler(policy)
	studyH := study.NewHandler(setRepo, policy, hub, cfg.StorageDir)
	questionH := questions.NewHandler(qsvc, policy, setRepo)
	vision := ocr.NewOpenAIVision(cfg.OpenAIKey, cfg.OCROpenAIModel, cfg.LLMRPS, cfg.LLMBurst, cfg.ProviderMaxRetries)
	docH := docs.NewHandler(docRepo, policy, vision, hub, docs.Options{
		MaxPages:     cfg.PDFMaxPages,
		OCRMaxW:      cfg.OCRImgMaxW,
		OCRQuality:   cfg.OCRImgQuality,
		OCRGrayscale: cfg.OCRImgGrayscale,
	})
	clozeH := cloze.NewHandler(cloze.NewRepo(sqlxDB), docRepo)
	socialH := social.NewHandler(social.NewRepo(sqlxDB), users, hub)

	app := fiber.New(fiber.Config{BodyLimit: (cfg.AllowedMaxFileSize + 1) * 1024 * 1024})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLog())
	app.Use(middleware.SecureHeaders(cfg))
	app.Use(middleware.CORS(cfg))
	app.Use(guard.Middleware(guard.DefaultRoutes, resolver))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Static("/storage", cfg.StorageDir)

	authLimit := middleware.AuthRateLimiter(10, time.Minute)
	app.Post("/api/auth/signup", authLimit, authReg.Signup)
	app.Post("/api/auth/signin", authLimit, authReg.Signin)
	app.Post("/api/auth/demo", authReg.Demo)
	app.Post("/api/auth/password/forgot", authLimit, authReg.ForgotPassword)
	app.Post("/api/auth/password/reset", authLimit, authReg.ResetPassword)
	app.Get("/api/auth/google/login", authReg.GoogleLogin)
	app.Get("/api/auth/google/callback", authReg.GoogleCallback)
	app.Get("/api/search", studyH.Search)

	protected := app.Group("/api", middleware.AuthSession(authReg))

	protected.Post("/auth/signout", authReg.Signout)
	protected.Get("/me", authReg.Me)

	protected.Get("/usage", usageH.Summary)
	protected.Post("/usage/check", usageH.Check)
	protected.Post("/usage/record", usageH.Record)

	protected.Post("/cardsets", studyH.Create)
	protected.Get("/cardsets", studyH.List)
	protected.Get("/cardsets/:id", studyH.Get)
	protected.Put("/cardsets/:id", studyH.Update)
	protected.Delete("/cardsets/:id", studyH.Delete)
	protected.Post("/cardsets/:id/cards", studyH.AddCards)
	protected.Put("/cardsets/:id/cards/:cardId", studyH.UpdateCard)
	protected.Delete("/cardsets/:id/cards/:cardId", studyH.DeleteCard)
	protected.Post("/cardsets/:id/study", studyH.Study)
	protected.Post("/cardsets/:id/cover",
		middleware.FileUploadValidator(cfg.AllowedImageExt, cfg.AllowedMaxFileSize), studyH.UploadCover)
	protected.Post("/likes/:id", studyH.ToggleLike)

	protected.Post("/questions/generate", questionH.Generate)

	protected.Post("/docs/pdf",
		middleware.FileUploadValidator([]string{".pdf"}, cfg.AllowedMaxFileSize), docH.UploadPDF)
	protected.Post("/docs/image",
		middleware.FileUploadValidator(cfg.AllowedImageExt, cfg.AllowedMaxFileSize), docH.UploadImage)
	protected.Get("/docs", docH.List)
	protected.Get("/docs/:id", docH.Get)

	protected.Post("/clozes", clozeH.Create)
	protected.Post("/clozes/auto", clozeH.Auto)
	protected.Get("/clozes", clozeH.List)

	protected.Post("/follows/:userId", socialH.ToggleFollow)
	protected.Get("/follows/:userId", socialH.Stats)
	protected.Post("/messages", socialH.Send)
	protected.Get("/messages", socialH.Inbox)

	app.Get("/ws", middleware.WSUpgrade(cfg.CORSOrigins), middleware.AuthSession(authReg), websocket.New(hub.Handle))

	app.Static("/", cfg.WebDir)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		tlog.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			tlog.Error().Err(err).Msg("shutdown_failed")
		}
	}()

	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatal(err)
	}
	_ = rdb.Close()
	_ = sqlxDB.Close()
}

func grant(ctx context.Context, users *account.Repo, email string, days int, now time.Time) error {
	if days <= 0 {
		return fmt.Errorf("grant premium: days must be positive, got %d", days)
	}
	u, err := users.ByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		return err
	}
	expires := now.UTC().Add(time.Duration(days) * 24 * time.Hour)
	return users.SetSubscription(ctx, u.ID, model.SubscriptionPremium, &expires)
}
