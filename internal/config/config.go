package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service settings. Values come from the environment,
// optionally seeded from a .env file.
type Config struct {
	Port        string
	Environment string

	SheetPath string
	SheetName string

	LLMGatewayURL string
	LLMAPIKey     string
	LLMModel      string
	UseMockLLM    bool

	FFmpegPath string
	WorkDir    string

	// LocalSourceDir enables file:// and plain-path sources under this
	// directory only. Empty disables local sources.
	LocalSourceDir string
	MaxAudioBytes  int64

	FetchTimeout    time.Duration
	AnalyzeTimeout  time.Duration
	DecisionTimeout time.Duration

	WebhookURL  string
	InboxSize   int
	InboxOwners int
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load() // loads .env
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:           envOr("PORT", "8080"),
		Environment:    envOr("ENVIRONMENT", "local"),
		SheetPath:      envOr("SHEET_PATH", "evaluations.xlsx"),
		SheetName:      envOr("SHEET_NAME", "Evaluations"),
		LLMGatewayURL:  os.Getenv("LLM_GATEWAY_URL"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMModel:       envOr("LLM_MODEL", "gpt-4o-audio-preview"),
		UseMockLLM:     os.Getenv("USE_MOCK_LLM") == "true",
		FFmpegPath:     envOr("FFMPEG_PATH", "ffmpeg"),
		WorkDir:        os.Getenv("WORK_DIR"),
		LocalSourceDir: os.Getenv("LOCAL_SOURCE_DIR"),
		WebhookURL:     os.Getenv("WEBHOOK_URL"),
	}

	var err error
	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.AnalyzeTimeout, err = durationEnv("ANALYZE_TIMEOUT", 90*time.Second); err != nil {
		return Config{}, err
	}
	// 0 keeps a suspended job waiting until a decision arrives.
	if cfg.DecisionTimeout, err = durationEnv("DECISION_TIMEOUT", 0); err != nil {
		return Config{}, err
	}
	if cfg.InboxSize, err = intEnv("INBOX_SIZE", 100); err != nil {
		return Config{}, err
	}
	if cfg.InboxOwners, err = intEnv("INBOX_OWNERS", 1000); err != nil {
		return Config{}, err
	}
	maxAudio, err := intEnv("MAX_AUDIO_BYTES", 50<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxAudioBytes = int64(maxAudio)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail on the first job.
func (c Config) Validate() error {
	if c.SheetPath == "" {
		return fmt.Errorf("SHEET_PATH must not be empty")
	}
	if c.SheetName == "" {
		return fmt.Errorf("SHEET_NAME must not be empty")
	}
	if !c.UseMockLLM && (c.LLMGatewayURL == "" || c.LLMAPIKey == "") {
		return fmt.Errorf("llm gateway not configured: set LLM_GATEWAY_URL and LLM_API_KEY or USE_MOCK_LLM=true")
	}
	if c.DecisionTimeout < 0 {
		return fmt.Errorf("DECISION_TIMEOUT must not be negative")
	}
	if c.InboxSize <= 0 {
		return fmt.Errorf("INBOX_SIZE must be positive")
	}
	if c.InboxOwners <= 0 {
		return fmt.Errorf("INBOX_OWNERS must be positive")
	}
	if c.MaxAudioBytes <= 0 {
		return fmt.Errorf("MAX_AUDIO_BYTES must be positive")
	}
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// bare numbers are seconds
		n, nerr := strconv.Atoi(v)
		if nerr != nil {
			return 0, fmt.Errorf("%s: invalid duration %q", k, v)
		}
		d = time.Duration(n) * time.Second
	}
	return d, nil
}

func intEnv(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", k, v)
	}
	return n, nil
}
