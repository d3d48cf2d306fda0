package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/yangwenmai/amigo/internal/model"
)

// StubFetcher returns a fixed page body (for development/testing).
type StubFetcher struct{}

func (f *StubFetcher) FetchText(_ context.Context, url string) (string, error) {
	return "This is a stub page about " + url + ". It contains useful information about software engineering.", nil
}

// StubModelClient returns a deterministic analysis (for development/testing).
// The category is picked from keywords in the prompt.
type StubModelClient struct{}

var stubKeywords = []struct {
	words    []string
	category model.Category
}{
	{[]string{"prompt"}, model.CategoryPrompts},
	{[]string{"agent", "automation", "workflow"}, model.CategoryAgents},
	{[]string{"amigo"}, model.CategoryAmigo},
	{[]string{"idea", "maybe we could", "what if"}, model.CategoryIdeas},
	{[]string{"golang", "code", "function", "bug", "sql", "api"}, model.CategoryCoding},
}

func (m *StubModelClient) Complete(_ context.Context, req Request) (string, error) {
	lower := strings.ToLower(req.Prompt)
	category := model.DefaultCategory
	for _, k := range stubKeywords {
		for _, w := range k.words {
			if strings.Contains(lower, w) {
				category = k.category
				break
			}
		}
		if category != model.DefaultCategory {
			break
		}
	}

	summary := "Stub summary: " + firstWords(req.Prompt, 16)
	if req.ImageURL != "" {
		summary = "Stub summary of an image at " + req.ImageURL
	}
	b, _ := json.Marshal(Analysis{Summary: summary, Category: category})
	return string(b), nil
}

func firstWords(s string, n int) string {
	f := strings.Fields(s)
	if len(f) > n {
		f = f[:n]
	}
	return strings.Join(f, " ")
}
