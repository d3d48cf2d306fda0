package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/option"

	"github.com/yangwenmai/amigo/internal/blob"
	"github.com/yangwenmai/amigo/internal/config"
	"github.com/yangwenmai/amigo/internal/engine"
	"github.com/yangwenmai/amigo/internal/transcribe"
)

type blobBackend struct {
	blob.Store
	// filesDir is served under /files when objects live on local disk.
	filesDir string
	close    func()
}

func buildBlobStore(ctx context.Context, cfg *config.Config) (*blobBackend, error) {
	switch cfg.BlobProvider {
	case "gcs":
		s, err := blob.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCDNDomain, googleOptions(cfg)...)
		if err != nil {
			return nil, err
		}
		return &blobBackend{Store: s, close: func() { _ = s.Close() }}, nil
	case "local", "":
		s, err := blob.NewLocalStore(cfg.BlobDir, cfg.BlobPublicBaseURL)
		if err != nil {
			return nil, err
		}
		return &blobBackend{Store: s, filesDir: s.Dir(), close: func() {}}, nil
	default:
		return nil, fmt.Errorf("unknown blob provider %q", cfg.BlobProvider)
	}
}

type transcriberBackend struct {
	transcribe.Transcriber
	close func()
}

func buildTranscriber(ctx context.Context, cfg *config.Config) (*transcriberBackend, error) {
	switch cfg.TranscribeProvider {
	case "gcp":
		g, err := transcribe.NewGoogleTranscriber(ctx, cfg.SpeechLanguage, googleOptions(cfg)...)
		if err != nil {
			return nil, err
		}
		return &transcriberBackend{Transcriber: g, close: func() { _ = g.Close() }}, nil
	case "stub":
		return &transcriberBackend{Transcriber: &transcribe.StubTranscriber{}, close: func() {}}, nil
	case "openai", "":
		t := transcribe.NewOpenAITranscriber(cfg.OpenAIKey,
			transcribe.WithBaseURL(cfg.OpenAIBaseURL),
			transcribe.WithModel(cfg.OpenAITranscribeModel),
			transcribe.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		)
		return &transcriberBackend{Transcriber: t, close: func() {}}, nil
	default:
		return nil, fmt.Errorf("unknown transcribe provider %q", cfg.TranscribeProvider)
	}
}

func buildModelClient(cfg *config.Config) engine.ModelClient {
	switch cfg.LLMProvider {
	case "claude":
		return engine.NewClaudeClient(cfg.AnthropicKey,
			engine.WithClaudeModel(cfg.AnthropicModel),
			engine.WithClaudeTimeout(cfg.LLMTimeout),
			engine.WithClaudeMaxAttempts(cfg.LLMMaxAttempts),
		)
	case "gemini":
		return engine.NewGeminiClient(cfg.GeminiKey,
			engine.WithGeminiModel(cfg.GeminiModel),
			engine.WithGeminiTimeout(cfg.LLMTimeout),
			engine.WithGeminiMaxAttempts(cfg.LLMMaxAttempts),
		)
	case "ollama":
		return engine.NewOllamaClient(cfg.OllamaURL,
			engine.WithOllamaModel(cfg.OllamaModel),
			engine.WithOllamaTimeout(cfg.LLMTimeout),
			engine.WithOllamaMaxAttempts(cfg.LLMMaxAttempts),
		)
	case "stub":
		return &engine.StubModelClient{}
	default:
		return engine.NewOpenAIClient(cfg.OpenAIKey,
			engine.WithModel(cfg.OpenAIModel),
			engine.WithVisionModel(cfg.OpenAIVisionModel),
			engine.WithBaseURL(cfg.OpenAIBaseURL),
			engine.WithOpenAITimeout(cfg.LLMTimeout),
			engine.WithMaxAttempts(cfg.LLMMaxAttempts),
		)
	}
}

// googleOptions accepts either inline service-account JSON or a path to a
// credentials file. Empty falls back to application default credentials.
func googleOptions(cfg *config.Config) []option.ClientOption {
	creds := strings.TrimSpace(cfg.GCSCredentials)
	switch {
	case creds == "":
		return nil
	case strings.HasPrefix(creds, "{"):
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	default:
		return []option.ClientOption{option.WithCredentialsFile(creds)}
	}
}
