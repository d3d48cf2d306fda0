package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Goose migrations</title><style>body{color:red}</style></head>
<body>
<nav>Home | Blog</nav>
<article>
<h1>Goose migrations in practice</h1>
<p>Goose is a database migration tool for Go. It supports SQL migrations embedded with go:embed and runs them with a provider bound to a single dialect.</p>
<p>Each migration file carries an Up and a Down section. The provider records applied versions in a table so repeated runs are idempotent and cheap to execute at startup.</p>
<p>This article walks through wiring goose into a small HTTP service backed by SQLite in development and Postgres in production.</p>
</article>
<script>console.log("tracking")</script>
</body></html>`

func TestHTTPFetcher_Article(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	got, err := NewHTTPFetcher(time.Second, 0).FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, got, "Goose is a database migration tool for Go.")
	assert.NotContains(t, got, "tracking")
	assert.NotContains(t, got, "color:red")
}

func TestHTTPFetcher_Truncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html><body><p>" + strings.Repeat("日本語 ", 3000) + "</p></body></html>"))
	}))
	defer srv.Close()

	got, err := NewHTTPFetcher(time.Second, 100).FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 100, len([]rune(got)))
}

func TestHTTPFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(time.Second, 0).FetchText(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewHTTPFetcher(50*time.Millisecond, 0).FetchText(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestStripTags(t *testing.T) {
	got := stripTags([]byte(`<div>Hello <b>world</b><script>var x = 1;</script><style>p{}</style>
	again</div>`))
	assert.Equal(t, "Hello world again", got)
}
