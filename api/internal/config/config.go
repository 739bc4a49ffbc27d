// Package config — настройки процесса из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port             string
	WebhookURL       string
	TelegramBotToken string
	LogLevel         string

	// DocumentBackend: "postgres" (своя таблица) или "api" (бэкенд /documents).
	DocumentBackend string
	APIBaseURL      string
	APIEmail        string
	APIPassword     string

	// OCREngine — движок по умолчанию: remote | gemini | yandex | tesseract.
	OCREngine      string
	OCRBaseURL     string
	OCRTimeout     time.Duration
	OCRMaxBytes    int64
	GeminiAPIKey   string
	GeminiModel    string
	YCOAuthToken   string
	YCFolderID     string
	TesseractLangs []string

	// UploadBackend: "api" (POST /upload-image) или "cos".
	UploadBackend string
	COSBucketURL  string
	COSSecretID   string
	COSSecretKey  string

	OnnxRuntimeLib   string
	DetectModelPath  string
	DetectLabelsPath string
	DetectInputName  string
	DetectOutputName string

	BackgroundWorkers int
}

type missing []string

func (m *missing) need(k string) string {
	v := getEnv(k, "")
	if v == "" {
		*m = append(*m, k)
	}
	return v
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := getEnv(k, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := getEnv(k, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' || r == ' ' })
}

// Load читает окружение и проверяет, что для выбранных бэкендов всё задано.
func Load() (*Config, error) {
	var miss missing
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: miss.need("TELEGRAM_BOT_TOKEN"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),

		DocumentBackend: strings.ToLower(getEnv("DOCUMENT_BACKEND", "postgres")),
		APIBaseURL:      getEnv("API_BASE_URL", ""),
		APIEmail:        getEnv("API_EMAIL", ""),
		APIPassword:     getEnv("API_PASSWORD", ""),

		OCREngine:      strings.ToLower(getEnv("OCR_ENGINE", "remote")),
		OCRBaseURL:     getEnv("OCR_BASE_URL", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		YCOAuthToken:   getEnv("YC_OAUTH_TOKEN", ""),
		YCFolderID:     getEnv("YC_FOLDER_ID", ""),
		TesseractLangs: splitList(getEnv("TESSERACT_LANGS", "eng")),

		UploadBackend: strings.ToLower(getEnv("UPLOAD_BACKEND", "api")),
		COSBucketURL:  getEnv("COS_BUCKET_URL", ""),
		COSSecretID:   getEnv("COS_SECRETID", ""),
		COSSecretKey:  getEnv("COS_SECRETKEY", ""),

		OnnxRuntimeLib:   getEnv("ONNXRUNTIME_LIB", ""),
		DetectModelPath:  getEnv("DETECT_MODEL_PATH", ""),
		DetectLabelsPath: getEnv("DETECT_LABELS_PATH", ""),
		DetectInputName:  getEnv("DETECT_INPUT_NAME", "input"),
		DetectOutputName: getEnv("DETECT_OUTPUT_NAME", "output"),
	}

	var errs []error
	var err error
	if cfg.OCRTimeout, err = getDuration("OCR_TIMEOUT", 30*time.Second); err != nil {
		errs = append(errs, err)
	}
	maxBytes, err := getInt("OCR_MAX_BYTES", 20<<20)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.OCRMaxBytes = int64(maxBytes)
	if cfg.BackgroundWorkers, err = getInt("BACKGROUND_WORKERS", 4); err != nil {
		errs = append(errs, err)
	}

	if cfg.OCRBaseURL == "" {
		cfg.OCRBaseURL = cfg.APIBaseURL
	}
	needAPI := cfg.DocumentBackend == "api" || cfg.UploadBackend == "api" || cfg.OCREngine == "remote"
	if needAPI {
		miss.need("API_BASE_URL")
	}

	switch cfg.DocumentBackend {
	case "postgres":
	case "api":
		miss.need("API_EMAIL")
		miss.need("API_PASSWORD")
	default:
		errs = append(errs, fmt.Errorf("DOCUMENT_BACKEND: unknown value %q", cfg.DocumentBackend))
	}

	switch cfg.UploadBackend {
	case "api":
	case "cos":
		miss.need("COS_BUCKET_URL")
		miss.need("COS_SECRETID")
		miss.need("COS_SECRETKEY")
	default:
		errs = append(errs, fmt.Errorf("UPLOAD_BACKEND: unknown value %q", cfg.UploadBackend))
	}

	switch cfg.OCREngine {
	case "remote", "tesseract":
	case "gemini":
		miss.need("GEMINI_API_KEY")
	case "yandex":
		miss.need("YC_OAUTH_TOKEN")
		miss.need("YC_FOLDER_ID")
	default:
		errs = append(errs, fmt.Errorf("OCR_ENGINE: unknown value %q", cfg.OCREngine))
	}

	if len(miss) > 0 {
		errs = append(errs, fmt.Errorf("missing required env %s", strings.Join(miss, ", ")))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// DetectionEnabled — модель и метки заданы.
func (c *Config) DetectionEnabled() bool {
	return c.DetectModelPath != "" && c.DetectLabelsPath != ""
}
