package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp isolates Load from any amigo.yaml or .env.local in the package dir.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env.local")

	content := `# comment line
FOO_TEST_KEY=hello
BAR_TEST_KEY="quoted value"
BAZ_TEST_KEY='single quoted'

EMPTY_LINE_ABOVE=works
NO_VALUE_LINE
`
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	keys := []string{"FOO_TEST_KEY", "BAR_TEST_KEY", "BAZ_TEST_KEY", "EMPTY_LINE_ABOVE"}
	for _, k := range keys {
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})

	loadEnvFile(envFile)

	tests := []struct {
		key  string
		want string
	}{
		{"FOO_TEST_KEY", "hello"},
		{"BAR_TEST_KEY", "quoted value"},
		{"BAZ_TEST_KEY", "single quoted"},
		{"EMPTY_LINE_ABOVE", "works"},
	}
	for _, tt := range tests {
		if got := os.Getenv(tt.key); got != tt.want {
			t.Errorf("os.Getenv(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestLoadEnvFile_RealEnvTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env.local")
	if err := os.WriteFile(envFile, []byte("PRECEDENCE_TEST=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PRECEDENCE_TEST", "from-env")

	loadEnvFile(envFile)

	if got := os.Getenv("PRECEDENCE_TEST"); got != "from-env" {
		t.Errorf("env var = %q, want %q (real env should take precedence)", got, "from-env")
	}
}

func TestLoadEnvFile_MissingFile(t *testing.T) {
	loadEnvFile("/nonexistent/path/.env.local")
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.DBDriver != "sqlite" || cfg.DBDSN != "amigo.db" {
		t.Errorf("db = %q %q, want sqlite amigo.db", cfg.DBDriver, cfg.DBDSN)
	}
	if cfg.BlobProvider != "local" {
		t.Errorf("BlobProvider = %q, want local", cfg.BlobProvider)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("MaxUploadBytes = %d, want 10 MiB", cfg.MaxUploadBytes)
	}
	if cfg.LinkFetchTimeout != 10*time.Second {
		t.Errorf("LinkFetchTimeout = %v, want 10s", cfg.LinkFetchTimeout)
	}
	if cfg.PageContextChars != 4000 {
		t.Errorf("PageContextChars = %d, want 4000", cfg.PageContextChars)
	}
	if cfg.SweepGrace != 2*time.Minute {
		t.Errorf("SweepGrace = %v, want 2m", cfg.SweepGrace)
	}
	if cfg.OpenAITranscribeModel != "whisper-1" {
		t.Errorf("OpenAITranscribeModel = %q", cfg.OpenAITranscribeModel)
	}
	if cfg.LLMTimeout != 0 || cfg.LLMMaxAttempts != 1 {
		t.Errorf("llm timeout/attempts = %v/%d, want none/1", cfg.LLMTimeout, cfg.LLMMaxAttempts)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("OPENAI_BASE_URL", "https://proxy.example.com/v1")
	t.Setenv("OPENAI_API_KEY", "sk-test-key")
	t.Setenv("MAX_UPLOAD_BYTES", "2048")
	t.Setenv("SWEEP_INTERVAL", "5s")
	t.Setenv("LLM_PROVIDER", "claude")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.OpenAIBaseURL != "https://proxy.example.com/v1" {
		t.Errorf("OpenAIBaseURL = %q", cfg.OpenAIBaseURL)
	}
	if cfg.OpenAIKey != "sk-test-key" {
		t.Errorf("OpenAIKey = %q, want %q", cfg.OpenAIKey, "sk-test-key")
	}
	if cfg.MaxUploadBytes != 2048 {
		t.Errorf("MaxUploadBytes = %d, want 2048", cfg.MaxUploadBytes)
	}
	if cfg.SweepInterval != 5*time.Second {
		t.Errorf("SweepInterval = %v, want 5s", cfg.SweepInterval)
	}
	if cfg.LLMProvider != "claude" {
		t.Errorf("LLMProvider = %q", cfg.LLMProvider)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	yaml := "port: \"9090\"\nblob_provider: gcs\ngcs_bucket: amigo-uploads\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.GCSBucket != "amigo-uploads" {
		t.Errorf("unexpected config: port=%q bucket=%q", cfg.Port, cfg.GCSBucket)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdirTemp(t)
	if _, err := Load("/nonexistent/amigo.yaml"); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:                  "8080",
			DBDriver:              "sqlite",
			DBDSN:                 "amigo.db",
			BlobProvider:          "local",
			BlobDir:               "data",
			LLMProvider:           "openai",
			LLMMaxAttempts:        1,
			HTTPTimeout:           time.Second,
			TranscribeProvider:    "openai",
			MaxUploadBytes:        1,
			LinkFetchTimeout:      time.Second,
			PageContextChars:      1,
			MaxConcurrentAnalyses: 1,
			SweepInterval:         time.Second,
			SweepGrace:            time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown llm provider", func(c *Config) { c.LLMProvider = "mystery" }, "LLMProvider"},
		{"zero llm attempts", func(c *Config) { c.LLMMaxAttempts = 0 }, "LLMMaxAttempts"},
		{"gcs without bucket", func(c *Config) { c.BlobProvider = "gcs" }, "GCSBucket"},
		{"postgres with file dsn", func(c *Config) { c.DBDriver = "postgres" }, "postgres connection string"},
		{"postgres with url dsn", func(c *Config) {
			c.DBDriver = "postgres"
			c.DBDSN = "postgres://u:p@localhost/amigo"
		}, ""},
		{"missing llm key is fine", func(c *Config) { c.OpenAIKey = "" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Config{CORSOrigins: "http://a.test, http://b.test ,"}
	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Errorf("AllowedOrigins = %v", got)
	}
}
