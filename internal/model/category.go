package model

import "strings"

// Category is the topical bucket assigned by analysis.
type Category string

const (
	CategoryCoding    Category = "coding"
	CategoryAgents    Category = "agents"
	CategoryPrompts   Category = "prompts"
	CategoryAmigo     Category = "amigo"
	CategoryResources Category = "resources"
	CategoryIdeas     Category = "ideas"
)

// DefaultCategory is used whenever the model output names no known category.
const DefaultCategory = CategoryResources

// categoryInfo describes one category for prompts and the categories endpoint.
type categoryInfo struct {
	Category    Category `json:"id"`
	Description string   `json:"description"`
}

// Categories is the closed, ordered category set.
var Categories = []categoryInfo{
	{CategoryCoding, "Programming techniques, code snippets, libraries and developer tooling"},
	{CategoryAgents, "AI agents, automation workflows and autonomous systems"},
	{CategoryPrompts, "Prompt writing, prompt templates and LLM usage patterns"},
	{CategoryAmigo, "Notes about this product itself: features, bugs, roadmap"},
	{CategoryResources, "Reference material, articles, docs and anything else worth keeping"},
	{CategoryIdeas, "New ideas, plans and things to try later"},
}

// Valid reports whether c is a member of the category set.
func (c Category) Valid() bool {
	for _, info := range Categories {
		if info.Category == c {
			return true
		}
	}
	return false
}

// ParseCategory normalizes s and coerces anything outside the set to
// DefaultCategory.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c.Valid() {
		return c
	}
	return DefaultCategory
}
