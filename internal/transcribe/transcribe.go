// Package transcribe turns recorded audio into text.
package transcribe

import (
	"context"
	"errors"
	"strings"
)

// Audio is a recorded clip held in memory. Clips are bounded by the upload
// size limit.
type Audio struct {
	Name        string
	ContentType string
	Data        []byte
}

// Transcriber converts audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// ErrUnsupportedFormat is returned for audio the provider cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// ErrNotConfigured is returned at first use when the provider credential is
// missing.
var ErrNotConfigured = errors.New("transcription provider is not configured")

func baseMIME(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// StubTranscriber returns a fixed transcript for development without
// provider credentials.
type StubTranscriber struct {
	Text string
}

func (s *StubTranscriber) Transcribe(_ context.Context, audio Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", errors.New("empty audio")
	}
	if s.Text != "" {
		return s.Text, nil
	}
	return "This is a stub transcript of " + audio.Name + ".", nil
}
