package engine

import (
	"context"
	"errors"
)

// Request is one single-turn model call.
type Request struct {
	// System carries the instructions; Prompt the user content.
	System string
	Prompt string
	// ImageURL, when set, is attached as an image input. Providers that cannot
	// fetch remote images receive the URL inside the prompt instead.
	ImageURL string
	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// ModelClient abstracts LLM calls. Implementations wrap OpenAI, Claude,
// Gemini, Ollama or a stub.
type ModelClient interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// PageFetcher retrieves the readable text of a web page.
type PageFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// ErrNotConfigured is returned at first use when a provider credential is
// missing.
var ErrNotConfigured = errors.New("model provider is not configured")
