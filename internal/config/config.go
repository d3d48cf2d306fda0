// Package config provides centralized configuration for the amigo server.
// Values come from defaults, an optional config file, .env.local and the
// environment, in increasing order of precedence.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all server configuration values.
type Config struct {
	Port        string `mapstructure:"port" validate:"required"`
	LogMode     string `mapstructure:"log_mode"`
	CORSOrigins string `mapstructure:"cors_origins"`

	// DBDriver selects the relational store: "sqlite" or "postgres".
	DBDriver string `mapstructure:"db_driver" validate:"oneof=sqlite postgres"`
	// DBDSN is a file path for sqlite or a connection string for postgres.
	DBDSN string `mapstructure:"db_dsn" validate:"required"`

	// BlobProvider selects where uploads are stored: "local" or "gcs".
	BlobProvider      string `mapstructure:"blob_provider" validate:"oneof=local gcs"`
	BlobDir           string `mapstructure:"blob_dir" validate:"required_if=BlobProvider local"`
	BlobPublicBaseURL string `mapstructure:"blob_public_base_url"`
	GCSBucket         string `mapstructure:"gcs_bucket" validate:"required_if=BlobProvider gcs"`
	GCSCDNDomain      string `mapstructure:"gcs_cdn_domain"`
	GCSCredentials    string `mapstructure:"google_application_credentials"`

	// LLMProvider selects which LLM backend to use.
	LLMProvider       string `mapstructure:"llm_provider" validate:"oneof=openai claude gemini ollama stub"`
	OpenAIKey         string `mapstructure:"openai_api_key"`
	OpenAIBaseURL     string `mapstructure:"openai_base_url"`
	OpenAIModel       string `mapstructure:"openai_model"`
	OpenAIVisionModel string `mapstructure:"openai_vision_model"`
	AnthropicKey      string `mapstructure:"anthropic_api_key"`
	AnthropicModel    string `mapstructure:"anthropic_model"`
	GeminiKey         string `mapstructure:"gemini_api_key"`
	GeminiModel       string `mapstructure:"gemini_model"`
	OllamaURL         string `mapstructure:"ollama_url"`
	OllamaModel       string `mapstructure:"ollama_model"`

	// LLMTimeout bounds each model call; zero means no client-side timeout.
	LLMTimeout time.Duration `mapstructure:"llm_timeout" validate:"min=0"`
	// LLMMaxAttempts above 1 retries transient model failures.
	LLMMaxAttempts int `mapstructure:"llm_max_attempts" validate:"min=1"`

	// HTTPTimeout bounds each outgoing transcription call.
	HTTPTimeout time.Duration `mapstructure:"http_timeout" validate:"gt=0"`

	// TranscribeProvider selects the speech-to-text backend.
	TranscribeProvider    string `mapstructure:"transcribe_provider" validate:"oneof=openai gcp stub"`
	OpenAITranscribeModel string `mapstructure:"openai_transcribe_model"`
	SpeechLanguage        string `mapstructure:"speech_language"`

	MaxUploadBytes        int64         `mapstructure:"max_upload_bytes" validate:"min=1"`
	LinkFetchTimeout      time.Duration `mapstructure:"link_fetch_timeout" validate:"gt=0"`
	PageContextChars      int           `mapstructure:"page_context_chars" validate:"min=1"`
	MaxConcurrentAnalyses int64         `mapstructure:"max_concurrent_analyses" validate:"min=1"`
	JobRetention          time.Duration `mapstructure:"job_retention"`
	SweepInterval         time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	SweepGrace            time.Duration `mapstructure:"sweep_grace" validate:"gt=0"`

	OTelEnabled     bool    `mapstructure:"otel_enabled"`
	OTelEndpoint    string  `mapstructure:"otel_endpoint"`
	OTelSampleRatio float64 `mapstructure:"otel_sample_ratio" validate:"min=0,max=1"`
	ServiceName     string  `mapstructure:"service_name"`
}

var defaults = map[string]any{
	"port":         "8080",
	"log_mode":     "development",
	"cors_origins": "*",

	"db_driver": "sqlite",
	"db_dsn":    "amigo.db",

	"blob_provider":        "local",
	"blob_dir":             "data/blobs",
	"blob_public_base_url": "http://localhost:8080/files",

	"llm_provider":        "openai",
	"openai_base_url":     "https://api.openai.com/v1",
	"openai_model":        "gpt-4o-mini",
	"openai_vision_model": "gpt-4o-mini",
	"anthropic_model":     "claude-sonnet-4-20250514",
	"gemini_model":        "gemini-2.0-flash",
	"ollama_url":          "http://localhost:11434",
	"ollama_model":        "llama3",
	"llm_timeout":         "0s",
	"llm_max_attempts":    1,
	"http_timeout":        "60s",

	"transcribe_provider":     "openai",
	"openai_transcribe_model": "whisper-1",
	"speech_language":         "en-US",

	"max_upload_bytes":        int64(10 << 20),
	"link_fetch_timeout":      "10s",
	"page_context_chars":      4000,
	"max_concurrent_analyses": int64(4),
	"job_retention":           "10m",
	"sweep_interval":          "30s",
	"sweep_grace":             "2m",

	"otel_enabled":      false,
	"otel_sample_ratio": 1.0,
	"service_name":      "amigo",
}

// envOnly lists keys that have no default but must still be read from the
// environment during Unmarshal.
var envOnly = []string{
	"openai_api_key",
	"anthropic_api_key",
	"gemini_api_key",
	"gcs_bucket",
	"gcs_cdn_domain",
	"google_application_credentials",
	"otel_endpoint",
}

// Load reads configuration. configPath may be empty, in which case amigo.yaml
// is looked up in the working directory and a missing file is not an error.
func Load(configPath string) (*Config, error) {
	loadEnvFile(".env.local")

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("amigo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envOnly {
		_ = v.BindEnv(k)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints. Credentials for the relational and
// object stores are required here; model and transcription credentials are
// only checked when first used.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.DBDriver == "postgres" && !strings.Contains(c.DBDSN, "://") && !strings.Contains(c.DBDSN, "=") {
		return fmt.Errorf("invalid configuration: db_dsn %q is not a postgres connection string", c.DBDSN)
	}
	return nil
}

// AllowedOrigins splits CORSOrigins on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// loadEnvFile reads KEY=VALUE lines into the process environment. Variables
// already present in the environment are left untouched. Missing files are
// ignored.
func loadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, val)
		}
	}
}
