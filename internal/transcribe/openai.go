package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultTranscribeModel   = "whisper-1"
	defaultTranscribeTimeout = 2 * time.Minute
)

var allowedAudioMIMEs = map[string]struct{}{
	"audio/webm":      {},
	"audio/mpeg":      {},
	"audio/mp3":       {},
	"audio/mp4":       {},
	"audio/x-m4a":     {},
	"audio/m4a":       {},
	"audio/wav":       {},
	"audio/x-wav":     {},
	"audio/ogg":       {},
	"audio/flac":      {},
	"video/webm":      {},
	"application/ogg": {},
}

// OpenAITranscriber calls the Whisper transcription endpoint.
type OpenAITranscriber struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// OpenAIOption configures an OpenAITranscriber.
type OpenAIOption func(*OpenAITranscriber)

func WithBaseURL(url string) OpenAIOption {
	return func(t *OpenAITranscriber) {
		if url != "" {
			t.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithModel(model string) OpenAIOption {
	return func(t *OpenAITranscriber) {
		if model != "" {
			t.model = model
		}
	}
}

func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(t *OpenAITranscriber) { t.httpClient = c }
}

func NewOpenAITranscriber(apiKey string, opts ...OpenAIOption) *OpenAITranscriber {
	t := &OpenAITranscriber{
		apiKey:     apiKey,
		baseURL:    defaultOpenAIBaseURL,
		model:      defaultTranscribeModel,
		httpClient: &http.Client{Timeout: defaultTranscribeTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return "", fmt.Errorf("openai: %w", ErrNotConfigured)
	}
	if mime := baseMIME(audio.ContentType); mime != "" {
		if _, ok := allowedAudioMIMEs[mime]; !ok {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
		}
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	name := audio.Name
	if name == "" {
		name = "audio.webm"
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}
	if err := writer.WriteField("model", t.model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", decodeAPIError(resp)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return strings.TrimSpace(payload.Text), nil
}

func decodeAPIError(resp *http.Response) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("openai transcription error: status %d type %s message %s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
	}
	return fmt.Errorf("openai transcription error: status %d body %s", resp.StatusCode, string(body))
}
