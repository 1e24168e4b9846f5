package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/earshot-ai/earshot/internal/llm"
	"github.com/earshot-ai/earshot/internal/session"
)

// EnvPrefix is the namespace prefix for all Earshot environment variables.
const EnvPrefix = "EARSHOT_"

// Config holds all application configuration. Secrets (API keys, bot
// tokens) are loaded exclusively from environment variables and never
// appear in the config file.
type Config struct {
	ListenAddr            string `yaml:"listen_addr"`
	DBPath                string `yaml:"db_path"`
	SynthesisModel        string `yaml:"synthesis_model"`
	DeltaModel            string `yaml:"delta_model"`
	TranscribeModel       string `yaml:"transcribe_model"`
	DeltaMode             string `yaml:"delta_mode"`
	Debounce              string `yaml:"debounce"`
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets — env vars only, never serialized to YAML.
	GeminiAPIKey     string `yaml:"-"`
	OpenAIAPIKey     string `yaml:"-"`
	AnthropicAPIKey  string `yaml:"-"`
	TelegramBotToken string `yaml:"-"`
	TelegramChatID   string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            ":8080",
		DBPath:                "data/earshot.db",
		SynthesisModel:        "gemini/gemini-2.0-flash",
		DeltaModel:            "gemini/gemini-2.0-flash",
		TranscribeModel:       "gemini/gemini-2.0-flash",
		DeltaMode:             "insights",
		Debounce:              "1s",
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedDebounce returns Debounce as a time.Duration, falling back to
// one second if the value is invalid.
func (c *Config) ParsedDebounce() time.Duration {
	d, err := time.ParseDuration(c.Debounce)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// APIKeyFor returns the secret matching an llm provider name, or "" when
// the provider is unknown or the key is not set.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "gemini":
		return c.GeminiAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	}
	return ""
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "SYNTHESIS_MODEL"); v != "" {
		cfg.SynthesisModel = v
	}
	if v := os.Getenv(EnvPrefix + "DELTA_MODEL"); v != "" {
		cfg.DeltaModel = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBE_MODEL"); v != "" {
		cfg.TranscribeModel = v
	}
	if v := os.Getenv(EnvPrefix + "DELTA_MODE"); v != "" {
		cfg.DeltaMode = v
	}
	if v := os.Getenv(EnvPrefix + "DEBOUNCE"); v != "" {
		cfg.Debounce = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.TelegramBotToken = os.Getenv(EnvPrefix + "TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = os.Getenv(EnvPrefix + "TELEGRAM_CHAT_ID")
}

func validate(cfg *Config) []string {
	var warnings []string

	for _, m := range []struct {
		name, value string
	}{
		{"synthesis_model", cfg.SynthesisModel},
		{"delta_model", cfg.DeltaModel},
		{"transcribe_model", cfg.TranscribeModel},
	} {
		provider, _, err := llm.ParseModel(m.value)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q — expected provider/model.", m.name, m.value))
			continue
		}
		if cfg.APIKeyFor(provider) == "" {
			warnings = append(warnings, fmt.Sprintf("No API key for %s provider %q — set %s%s_API_KEY.",
				m.name, provider, EnvPrefix, envKeySuffix(provider)))
		}
	}

	if _, err := session.ParseDeltaMode(cfg.DeltaMode); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid delta_mode %q — using default \"insights\".", cfg.DeltaMode))
	}
	if _, err := time.ParseDuration(cfg.Debounce); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid debounce %q — using default 1s.", cfg.Debounce))
	}
	if (cfg.TelegramBotToken == "") != (cfg.TelegramChatID == "") {
		warnings = append(warnings, "Telegram is half-configured — set both "+EnvPrefix+"TELEGRAM_BOT_TOKEN and "+EnvPrefix+"TELEGRAM_CHAT_ID.")
	}

	return warnings
}

func envKeySuffix(provider string) string {
	switch provider {
	case "gemini":
		return "GEMINI"
	case "openai":
		return "OPENAI"
	case "anthropic":
		return "ANTHROPIC"
	}
	return "UNKNOWN"
}
