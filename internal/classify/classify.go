// Package classify assigns accepted posts to digest categories through a
// batched LLM call, with the same positional reconciliation discipline the
// evaluation stage uses.
package classify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/TobiSchelling/StreamDigest/internal/config"
	"github.com/TobiSchelling/StreamDigest/internal/evaluate"
	"github.com/TobiSchelling/StreamDigest/internal/llm"
)

const (
	defaultCategory    = "Other"
	defaultSubCategory = "Uncategorized"
	summaryMaxChars    = 200
)

const classifyPromptHeader = `You are organizing accepted posts into a daily AI digest. Assign each post below to exactly one category and write a one-sentence summary for it.

Categories:
%s

For each post produce:
- category: one of the category names above, verbatim
- sub_category: one of the listed sub-categories of that category, or a short phrase of your own if none fits
- summary: one sentence, under 40 words, capturing what the post actually says
- key_points: up to 3 short bullet strings; empty array if the post is a single claim

%s

Respond with ONLY a JSON array containing exactly %d objects, one per post in the same order:
[
    {
        "index": 1,
        "category": "News",
        "sub_category": "Model Release",
        "summary": "...",
        "key_points": ["...", "..."]
    }
]`

// Classification is one post's digest placement.
type Classification struct {
	Category    string   `json:"category"`
	SubCategory string   `json:"sub_category"`
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
}

// Classified attaches the placement to a scored post.
type Classified struct {
	evaluate.Scored
	Classification Classification
}

// Classifier batches accepted posts through the oracle.
type Classifier struct {
	provider   llm.Provider
	categories []config.Category
	batchSize  int
	maxTokens  int
	valid      map[string]bool
}

// New creates a Classifier over the configured taxonomy.
func New(provider llm.Provider, categories []config.Category, batchSize, maxTokens int) *Classifier {
	if batchSize <= 0 {
		batchSize = 10
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	valid := make(map[string]bool, len(categories))
	for _, cat := range categories {
		valid[cat.Name] = true
	}
	return &Classifier{
		provider:   provider,
		categories: categories,
		batchSize:  batchSize,
		maxTokens:  maxTokens,
		valid:      valid,
	}
}

// ClassifyAll places every scored post, in order. It never returns fewer
// results than inputs; posts the oracle could not place get the default
// classification.
func (c *Classifier) ClassifyAll(ctx context.Context, posts []evaluate.Scored) []Classified {
	out := make([]Classified, 0, len(posts))

	for start := 0; start < len(posts); start += c.batchSize {
		end := min(start+c.batchSize, len(posts))
		chunk := posts[start:end]

		classifications := c.classifyBatch(ctx, chunk)
		for i, scored := range chunk {
			out = append(out, Classified{Scored: scored, Classification: classifications[i]})
		}
	}

	log.Printf("Classified %d posts into %d categories", len(out), len(c.categories))
	return out
}

func (c *Classifier) classifyBatch(ctx context.Context, chunk []evaluate.Scored) []Classification {
	if c.provider == nil {
		return c.fallbackBatch(chunk)
	}

	prompt := c.buildPrompt(chunk)
	responseText, err := c.provider.Generate(ctx, prompt, c.maxTokens)
	if err != nil {
		log.Printf("Classification call failed for batch of %d: %v", len(chunk), err)
		return c.fallbackBatch(chunk)
	}

	raw := llm.ParseJSONArray(responseText)
	if raw == nil {
		log.Printf("Classification returned unparsable output for batch of %d", len(chunk))
		return c.fallbackBatch(chunk)
	}
	if len(raw) != len(chunk) {
		log.Printf("Classification result count mismatch: expected %d, got %d", len(chunk), len(raw))
	}

	out := make([]Classification, len(chunk))
	for i := range chunk {
		if i < len(raw) {
			out[i] = c.parseClassification(raw[i], chunk[i])
		} else {
			out[i] = c.defaultClassification(chunk[i])
		}
	}
	return out
}

func (c *Classifier) fallbackBatch(chunk []evaluate.Scored) []Classification {
	out := make([]Classification, len(chunk))
	for i, scored := range chunk {
		out[i] = c.defaultClassification(scored)
	}
	return out
}

// defaultClassification is the placement used when the oracle gives nothing
// usable: summary falls back to the truncated post body.
func (c *Classifier) defaultClassification(scored evaluate.Scored) Classification {
	return Classification{
		Category:    defaultCategory,
		SubCategory: defaultSubCategory,
		Summary:     truncate(scored.Post.Content, summaryMaxChars),
	}
}

func (c *Classifier) parseClassification(m map[string]any, scored evaluate.Scored) Classification {
	cl := Classification{
		Category:    strings.TrimSpace(llm.GetString(m, "category", "")),
		SubCategory: strings.TrimSpace(llm.GetString(m, "sub_category", defaultSubCategory)),
		Summary:     strings.TrimSpace(llm.GetString(m, "summary", "")),
	}
	if !c.valid[cl.Category] {
		cl.Category = defaultCategory
	}
	if cl.SubCategory == "" {
		cl.SubCategory = defaultSubCategory
	}
	if cl.Summary == "" {
		cl.Summary = truncate(scored.Post.Content, summaryMaxChars)
	}
	if points, ok := m["key_points"].([]any); ok {
		for _, p := range points {
			if s, ok := p.(string); ok && strings.TrimSpace(s) != "" {
				cl.KeyPoints = append(cl.KeyPoints, strings.TrimSpace(s))
			}
		}
	}
	return cl
}

func (c *Classifier) buildPrompt(chunk []evaluate.Scored) string {
	var cats []string
	for _, cat := range c.categories {
		line := fmt.Sprintf("- %s: %s", cat.Name, cat.Description)
		if len(cat.SubCategories) > 0 {
			line += fmt.Sprintf(" (sub-categories: %s)", strings.Join(cat.SubCategories, ", "))
		}
		cats = append(cats, line)
	}

	var entries []string
	for i, scored := range chunk {
		body := scored.Post.Content
		if len(body) > 500 {
			body = body[:500] + "..."
		}
		entries = append(entries, fmt.Sprintf("[Post %d]\nAuthor: @%s\nContent: %s",
			i+1, scored.Post.Author.Handle, body))
	}

	return fmt.Sprintf(classifyPromptHeader,
		strings.Join(cats, "\n"), strings.Join(entries, "\n\n"), len(chunk))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
