package engine

import (
	"fmt"
	"strings"

	"github.com/yangwenmai/amigo/internal/model"
)

// systemPrompt lists the category set so the model and the parser agree on
// the same values.
func systemPrompt() string {
	var b strings.Builder
	b.WriteString(`You are the triage assistant of a personal knowledge inbox. For each captured item, write a short summary and pick exactly one category.

Output ONLY valid JSON with this exact structure (no markdown, no explanation):
{"summary": "two to three sentences", "category": "<category id>"}

Categories:
`)
	for _, c := range model.Categories {
		fmt.Fprintf(&b, "- %s: %s\n", c.Category, c.Description)
	}
	fmt.Fprintf(&b, "\nRules:\n- summary: 2-3 sentences, in the language of the content\n- category: one of the ids above; use %q when unsure\n", model.DefaultCategory)
	return b.String()
}

func buildTextPrompt(content string) string {
	return "Analyze this note:\n\n" + content
}

func buildVoicePrompt(transcript string) string {
	return "Analyze this transcribed voice note:\n\n" + transcript
}

func buildLinkPrompt(url, page string) string {
	if page == "" {
		return fmt.Sprintf("Analyze this link. The page could not be fetched, so infer from the URL alone.\n\nURL: %s", url)
	}
	return fmt.Sprintf("Analyze this link.\n\nURL: %s\n\nPage content:\n%s", url, page)
}

func buildImagePrompt() string {
	return "Analyze the attached image. Describe what it shows and why someone might have saved it."
}

func buildFilePrompt(fileName string) string {
	return fmt.Sprintf("Analyze this uploaded file. Only its name is available, so infer from the file name.\n\nFile name: %s", fileName)
}
