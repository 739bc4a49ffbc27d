package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"go.uber.org/zap"

	"doc-scanner/api/internal/auth"
	"doc-scanner/api/internal/config"
	"doc-scanner/api/internal/detect"
	"doc-scanner/api/internal/detect/onnx"
	"doc-scanner/api/internal/handle"
	"doc-scanner/api/internal/httpserver"
	"doc-scanner/api/internal/logger"
	"doc-scanner/api/internal/ocr"
	"doc-scanner/api/internal/ocr/gemini"
	"doc-scanner/api/internal/ocr/remote"
	"doc-scanner/api/internal/ocr/tesseract"
	"doc-scanner/api/internal/ocr/yandex"
	"doc-scanner/api/internal/scan"
	"doc-scanner/api/internal/store"
	"doc-scanner/api/internal/telegram"
	"doc-scanner/api/internal/upload"
)

func main() {
	defer logger.Sync()
	log := logger.Named("scanbot")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("config", "err", err)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tokens auth.TokenSource
	if cfg.APIEmail != "" {
		tokens = auth.NewPasswordSource(cfg.APIBaseURL, cfg.APIEmail, cfg.APIPassword)
	}

	// --- документы ---
	var (
		docs store.Documents
		db   *sql.DB
	)
	switch cfg.DocumentBackend {
	case "api":
		docs = store.NewAPIClient(cfg.APIBaseURL, tokens)
		log.Infow("documents backend", "kind", "api", "url", cfg.APIBaseURL)
	default:
		db = openDB(ctx, log)
		defer db.Close()
		repo := store.NewDocumentRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalw("ensure schema", "err", err)
		}
		docs = repo
	}

	// --- загрузка изображений ---
	var uploader upload.Uploader
	switch cfg.UploadBackend {
	case "cos":
		cu, err := upload.NewCOSUploader(cfg.COSBucketURL, cfg.COSSecretID, cfg.COSSecretKey)
		if err != nil {
			log.Fatalw("cos uploader", "err", err)
		}
		uploader = cu
	default:
		uploader = upload.NewHTTPUploader(cfg.APIBaseURL, tokens)
	}

	// --- OCR ---
	engines := buildEngines(cfg, tokens, log)
	log.Infow("ocr engines", "default", engines.Get(0).Name(), "available", engines.Names())

	// --- детекция ---
	var (
		loader   *detect.Loader
		detector scan.Detector
	)
	if cfg.DetectionEnabled() {
		labels, err := detect.LoadLabels(cfg.DetectLabelsPath)
		if err != nil {
			log.Fatalw("load labels", "err", err)
		}
		loader = detect.NewLoader(onnx.Loader(onnx.Config{
			OnnxRuntimeLibPath: cfg.OnnxRuntimeLib,
			ModelPath:          cfg.DetectModelPath,
			InputName:          cfg.DetectInputName,
			OutputName:         cfg.DetectOutputName,
		}), logger.Named("detect"))
		defer func() { _ = loader.Close() }()
		loader.Initialize(ctx)
		go logModelStatus(loader, log)
		detector = detect.NewDetector(loader, labels, logger.Named("detect"))
	} else {
		log.Warnw("detection disabled: DETECT_MODEL_PATH/DETECT_LABELS_PATH not set")
	}

	sessions, err := scan.NewManager(func(owner int64) scan.Pipeline {
		return scan.Pipeline{Uploader: uploader, OCR: engines.ForChat(owner), Detector: detector}
	}, docs, cfg.BackgroundWorkers, logger.Named("scan"))
	if err != nil {
		log.Fatalw("scan manager", "err", err)
	}
	defer sessions.Close()

	// --- Telegram bot ---
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatalw("telegram", "err", err)
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:      bot,
		Sessions: sessions,
		Engines:  engines,
		Docs:     docs,
		Loader:   loader,
		Log:      logger.Named("telegram"),
	}

	// --- HTTP mux (DefaultServeMux) ---
	// ListenForWebhook регистрирует обработчик на DefaultServeMux.
	httpserver.Register(http.DefaultServeMux, healthChecks(db, loader)...)
	handle.New(detector, engines).Register(http.DefaultServeMux)
	addr := "0.0.0.0:" + cfg.Port

	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		startWebhookMode(ctx, addr, bot, r, webhookURL, log)
	} else {
		startPollingMode(ctx, addr, bot, r, log)
	}
	log.Infow("shutting down")
}

func buildEngines(cfg *config.Config, tokens auth.TokenSource, log *zap.SugaredLogger) *ocr.Manager {
	all := map[string]ocr.Engine{}
	if cfg.OCRBaseURL != "" {
		all["remote"] = remote.New(cfg.OCRBaseURL, tokens,
			remote.WithTimeout(cfg.OCRTimeout),
			remote.WithMaxBytes(cfg.OCRMaxBytes))
	}
	if cfg.GeminiAPIKey != "" {
		all["gemini"] = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	if cfg.YCOAuthToken != "" && cfg.YCFolderID != "" {
		all["yandex"] = yandex.New(cfg.YCOAuthToken, cfg.YCFolderID)
	}
	if te, err := tesseract.New(cfg.TesseractLangs...); err != nil {
		log.Warnw("tesseract unavailable", "err", err)
	} else {
		all["tesseract"] = te
	}

	def, ok := all[cfg.OCREngine]
	if !ok {
		log.Fatalw("default OCR engine is not available", "engine", cfg.OCREngine)
	}
	mgr := ocr.NewManager(def)
	for _, e := range all {
		mgr.Register(e)
	}
	return mgr
}

func healthChecks(db *sql.DB, loader *detect.Loader) []httpserver.NamedCheck {
	var checks []httpserver.NamedCheck
	if db != nil {
		checks = append(checks, httpserver.NamedCheck{Name: "db", Check: db.PingContext})
	}
	if loader != nil {
		checks = append(checks, httpserver.NamedCheck{Name: "model", Check: func(context.Context) error {
			if st := loader.Status(); st.State == detect.StateFailed {
				return errors.New(st.Err)
			}
			return nil
		}})
	}
	return checks
}

func logModelStatus(loader *detect.Loader, log *zap.SugaredLogger) {
	ch, unsubscribe := loader.Subscribe()
	defer unsubscribe()
	for st := range ch {
		log.Infow("detection model", "state", st.State.String(), "err", st.Err)
		if st.State.Terminal() {
			return
		}
	}
}

func openDB(ctx context.Context, log *zap.SugaredLogger) *sql.DB {
	dsn := resolveDSN()
	if dsn == "" {
		log.Fatalw("database DSN is empty: set DATABASE_URL or POSTGRES_* env vars")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalw("sql.Open", "err", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalw("db.Ping", "err", err)
	}
	log.Infow("db connected", "dsn", safeDSNSummary(dsn))
	return db
}

// ---------------- Modes -----------------

func startWebhookMode(ctx context.Context, addr string, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string, log *zap.SugaredLogger) {
	// секретный путь вебхука
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		log.Fatalw("webhook", "err", err)
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		log.Fatalw("set webhook", "err", err)
	}

	updates := bot.ListenForWebhook(path)
	go func() {
		for upd := range updates {
			r.HandleUpdate(ctx, upd)
		}
		log.Infow("webhook updates channel closed")
	}()

	log.Infow("webhook listening", "addr", addr, "path", path)
	serve(ctx, addr, log)
}

func startPollingMode(ctx context.Context, addr string, bot *tgbotapi.BotAPI, r *telegram.Router, log *zap.SugaredLogger) {
	go serve(ctx, addr, log)
	runPolling(ctx, bot, func(upd tgbotapi.Update) { r.HandleUpdate(ctx, upd) }, log)
}

// serve держит HTTP до отмены ctx.
func serve(ctx context.Context, addr string, log *zap.SugaredLogger) {
	errCh := make(chan error, 1)
	go func() { errCh <- httpserver.Start(addr, http.DefaultServeMux, log) }()
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("http server", "err", err)
		}
	}
}

// ---------------- Polling loop -----------------

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") { // HTTP 429 от Telegram
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, handle func(tgbotapi.Update), log *zap.SugaredLogger) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		select {
		case <-ctx.Done():
			log.Infow("polling: context cancelled")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30 // long polling, сек

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			log.Warnw("polling error", "err", err, "retry_in", d)
			sleep(ctx, d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}

		if len(updates) == 0 {
			sleep(ctx, 200*time.Millisecond)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ---------------- Helpers -----------------

func resolveDSN() string {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v
	}
	user := getenvDefault("POSTGRES_USER", "scanner")
	pass := os.Getenv("POSTGRES_PASSWORD")
	host := getenvDefault("PGHOST", "db")
	port := getenvDefault("PGPORT", "5432")
	db := getenvDefault("POSTGRES_DB", "scanner")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getenvDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// shortHash — FNV-1a, 16 hex; для пути вебхука.
func shortHash(s string) string {
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}

func safeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
