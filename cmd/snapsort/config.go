package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/snapsort/internal/records"
	"github.com/zombor/snapsort/internal/scanning"
)

type config struct {
	addr           string
	dbPath         string
	dbDriver       string
	uploadsPath    string
	provider       string
	openAIKey      string
	openAIURL      string
	openAIModel    string
	geminiKey      string
	geminiModel    string
	ollamaURL      string
	ollamaModel    string
	analyzeTimeout time.Duration
	authUser       string
	authPass       string
	showVersion    bool
}

// loadDotEnv reads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func parseConfig(args []string) (config, *ff.FlagSet, error) {
	fs := ff.NewFlagSet("snapsort")
	var (
		addr           = fs.StringLong("addr", "127.0.0.1:8080", "HTTP listen address")
		dbPath         = fs.StringLong("db", "db/records.db", "Database file path")
		dbDriver       = fs.StringLong("db-driver", "sqlite", "Database driver: 'sqlite' or 'bolt'")
		uploadsPath    = fs.StringLong("uploads", "uploads", "Directory holding copies of uploaded images")
		provider       = fs.StringLong("provider", "openai", "Vision model provider: 'openai', 'gemini' or 'ollama'")
		openAIKey      = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openAIURL      = fs.StringLong("openai-url", "https://api.openai.com/v1", "OpenAI API base URL")
		openAIModel    = fs.StringLong("openai-model", "gpt-4o", "OpenAI model name")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", scanning.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		analyzeTimeout = fs.DurationLong("analyze-timeout", 60*time.Second, "Maximum time to wait for one image analysis")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("SNAPSORT")); err != nil {
		return config{}, fs, err
	}

	cfg := config{
		addr:           *addr,
		dbPath:         *dbPath,
		dbDriver:       *dbDriver,
		uploadsPath:    *uploadsPath,
		provider:       *provider,
		openAIKey:      *openAIKey,
		openAIURL:      *openAIURL,
		openAIModel:    *openAIModel,
		geminiKey:      *geminiKey,
		geminiModel:    *geminiModel,
		ollamaURL:      *ollamaURL,
		ollamaModel:    *ollamaModel,
		analyzeTimeout: *analyzeTimeout,
		authUser:       *authUser,
		authPass:       *authPass,
		showVersion:    *showVersion,
	}
	if cfg.openAIKey == "" {
		cfg.openAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.geminiKey == "" {
		cfg.geminiKey = os.Getenv("GEMINI_API_KEY")
	}
	return cfg, fs, nil
}

// newExtractor builds the configured provider. A missing credential fails here,
// before the server starts, rather than on every analysis.
func newExtractor(cfg config, logger *slog.Logger) (scanning.Extractor, error) {
	var (
		extractor scanning.Extractor
		err       error
	)
	switch cfg.provider {
	case "openai":
		var openai *scanning.OpenAI
		openai, err = scanning.NewOpenAI(scanning.OpenAIConfig{
			APIKey:  cfg.openAIKey,
			BaseURL: cfg.openAIURL,
			Model:   cfg.openAIModel,
			Timeout: cfg.analyzeTimeout,
		}, logger)
		extractor = openai
	case "gemini":
		var gemini *scanning.Gemini
		gemini, err = scanning.NewGemini(cfg.geminiKey, cfg.geminiModel, cfg.analyzeTimeout, logger)
		extractor = gemini
	case "ollama":
		var ollama *scanning.Ollama
		ollama, err = scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel, cfg.analyzeTimeout, logger)
		extractor = ollama
	default:
		return nil, fmt.Errorf("invalid provider %q: want openai, gemini or ollama", cfg.provider)
	}
	if err != nil {
		return nil, err
	}
	return extractor, nil
}

func openStore(cfg config) (records.Store, error) {
	switch cfg.dbDriver {
	case "sqlite":
		db, err := records.NewSQLite(cfg.dbPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "bolt":
		db, err := records.NewBoltDB(cfg.dbPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("invalid database driver %q: want sqlite or bolt", cfg.dbDriver)
	}
}
