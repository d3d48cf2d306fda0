package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", Invalid("bad %s", "x"), http.StatusBadRequest},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"conflict", Conflict("busy"), http.StatusConflict},
		{"too large", TooLarge("big"), http.StatusRequestEntityTooLarge},
		{"upstream", Upstream("model", errors.New("boom")), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("ctx: %w", NotFound("x")), http.StatusNotFound},
		{"untyped", errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("analyze: %w", Upstream("model call failed", cause))

	if !Is(err, CodeUpstream) {
		t.Error("Is(err, CodeUpstream) = false")
	}
	if Is(err, CodeInvalid) {
		t.Error("Is(err, CodeInvalid) = true")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if got := err.Error(); got != "analyze: model call failed: connection reset" {
		t.Errorf("Error() = %q", got)
	}
}
