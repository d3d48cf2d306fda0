package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

const (
	// minReadableLength is the shortest readability result accepted before
	// falling back to plain tag stripping.
	minReadableLength = 200
	// maxBodySize is the maximum HTTP response body size (5MB).
	maxBodySize = 5 * 1024 * 1024

	defaultFetchTimeout = 10 * time.Second
	defaultPageChars    = 4000
)

var errEmptyPage = errors.New("page has no readable text")

// HTTPFetcher fetches web pages and returns their visible text. Each fetch is
// a single attempt bounded by the timeout.
type HTTPFetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxChars int
}

// NewHTTPFetcher creates a fetcher. Zero values select a 10 s timeout and a
// 4000 character limit.
func NewHTTPFetcher(timeout time.Duration, maxChars int) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if maxChars <= 0 {
		maxChars = defaultPageChars
	}
	return &HTTPFetcher{
		client:   &http.Client{},
		timeout:  timeout,
		maxChars: maxChars,
	}
}

// FetchText downloads url and extracts its main text, truncated to maxChars
// runes.
func (f *HTTPFetcher) FetchText(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	// Use a realistic browser User-Agent to avoid being blocked by sites.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	text := ""
	if parsedURL, err := nurl.Parse(url); err == nil {
		if article, err := readability.FromReader(bytes.NewReader(body), parsedURL); err == nil {
			text = collapseWhitespace(article.TextContent)
		}
	}
	if utf8.RuneCountInString(text) < minReadableLength {
		if stripped := stripTags(body); utf8.RuneCountInString(stripped) > utf8.RuneCountInString(text) {
			text = stripped
		}
	}
	if text == "" {
		return "", errEmptyPage
	}
	return truncateRunes(text, f.maxChars), nil
}

// stripTags returns the visible text of an HTML document with script and
// style contents removed.
func stripTags(doc []byte) string {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseWhitespace(b.String())
		case html.StartTagToken:
			if isHiddenTag(z) {
				skip++
			}
		case html.EndTagToken:
			if isHiddenTag(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHiddenTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes truncates s to maxRunes runes (Unicode-safe).
func truncateRunes(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes])
}
