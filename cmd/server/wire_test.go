package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/amigo/internal/blob"
	"github.com/yangwenmai/amigo/internal/config"
	"github.com/yangwenmai/amigo/internal/engine"
	"github.com/yangwenmai/amigo/internal/transcribe"
)

func TestBuildModelClient(t *testing.T) {
	tests := []struct {
		provider string
		want     any
	}{
		{"openai", &engine.OpenAIClient{}},
		{"claude", &engine.ClaudeClient{}},
		{"gemini", &engine.GeminiClient{}},
		{"ollama", &engine.OllamaClient{}},
		{"stub", &engine.StubModelClient{}},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c := buildModelClient(&config.Config{LLMProvider: tt.provider})
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestBuildBlobStoreLocal(t *testing.T) {
	dir := t.TempDir()
	b, err := buildBlobStore(context.Background(), &config.Config{
		BlobProvider:      "local",
		BlobDir:           dir,
		BlobPublicBaseURL: "http://localhost:8080/files",
	})
	require.NoError(t, err)
	defer b.close()

	assert.IsType(t, &blob.LocalStore{}, b.Store)
	assert.NotEmpty(t, b.filesDir)
}

func TestBuildBlobStoreUnknown(t *testing.T) {
	_, err := buildBlobStore(context.Background(), &config.Config{BlobProvider: "s3"})
	assert.Error(t, err)
}

func TestBuildTranscriber(t *testing.T) {
	tr, err := buildTranscriber(context.Background(), &config.Config{TranscribeProvider: "stub"})
	require.NoError(t, err)
	assert.IsType(t, &transcribe.StubTranscriber{}, tr.Transcriber)

	tr, err = buildTranscriber(context.Background(), &config.Config{TranscribeProvider: "openai"})
	require.NoError(t, err)
	assert.IsType(t, &transcribe.OpenAITranscriber{}, tr.Transcriber)

	_, err = buildTranscriber(context.Background(), &config.Config{TranscribeProvider: "aws"})
	assert.Error(t, err)
}

func TestGoogleOptions(t *testing.T) {
	assert.Empty(t, googleOptions(&config.Config{}))
	assert.Len(t, googleOptions(&config.Config{GCSCredentials: `{"type":"service_account"}`}), 1)
	assert.Len(t, googleOptions(&config.Config{GCSCredentials: "/etc/creds.json"}), 1)
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
}
