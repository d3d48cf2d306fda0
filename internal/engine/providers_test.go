package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaudeComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req claudeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sys", req.System)
		require.Len(t, req.Messages, 1)
		blocks := req.Messages[0].Content
		require.Len(t, blocks, 2)
		assert.Equal(t, "image", blocks[0].Type)
		assert.Equal(t, "https://cdn.example.com/a.png", blocks[0].Source.URL)
		assert.Equal(t, "text", blocks[1].Type)

		w.Write([]byte(`{"content":[{"type":"text","text":"{\"summary\":\"s\",\"category\":\"ideas\"}"}]}`))
	}))
	defer srv.Close()

	c := NewClaudeClient("sk-ant", WithClaudeBaseURL(srv.URL))
	got, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "look", ImageURL: "https://cdn.example.com/a.png", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"s","category":"ideas"}`, got)
}

func TestClaudeComplete_MissingKey(t *testing.T) {
	_, err := NewClaudeClient("").Complete(context.Background(), Request{Prompt: "x"})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestGeminiComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "sys", req.SystemInstruction.Parts[0].Text)
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMIMEType)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "Image URL: https://cdn.example.com/a.png")

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient("g-key", WithGeminiBaseURL(srv.URL), WithGeminiModel("gemini-test"))
	got, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "look", ImageURL: "https://cdn.example.com/a.png", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestGeminiComplete_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	_, err := NewGeminiClient("k", WithGeminiBaseURL(srv.URL)).Complete(context.Background(), Request{Prompt: "x"})
	assert.Error(t, err)
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral", req.Model)
		assert.Equal(t, "json", req.Format)
		assert.False(t, req.Stream)

		w.Write([]byte(`{"response":"local answer"}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL+"/", WithOllamaModel("mistral"))
	got, err := c.Complete(context.Background(), Request{Prompt: "x", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, "local answer", got)
}

func TestOllamaComplete_ErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	_, err := NewOllamaClient(srv.URL).Complete(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "model not found"))
}

func TestStubModelClient(t *testing.T) {
	m := &StubModelClient{}
	got, err := m.Complete(context.Background(), Request{Prompt: buildTextPrompt("a reusable prompt for code review")})
	require.NoError(t, err)

	a := ParseAnalysis(got)
	assert.Equal(t, "prompts", string(a.Category))
	assert.NotEmpty(t, a.Summary)
}
