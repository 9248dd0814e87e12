package classify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/TobiSchelling/StreamDigest/internal/config"
	"github.com/TobiSchelling/StreamDigest/internal/evaluate"
	"github.com/TobiSchelling/StreamDigest/internal/ingest"
)

type mockProvider struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (m *mockProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.prompts = append(m.prompts, prompt)
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "[]", nil
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

func (m *mockProvider) IsConfigured() bool { return true }

func scoredPost(id int64, handle, content string) evaluate.Scored {
	return evaluate.Scored{
		Post: ingest.Post{
			ID:      id,
			Author:  ingest.Author{Handle: handle, DisplayName: handle},
			Content: content,
		},
	}
}

func classifyResponse(items ...Classification) string {
	out := make([]map[string]any, len(items))
	for i, c := range items {
		out[i] = map[string]any{
			"index":        i + 1,
			"category":     c.Category,
			"sub_category": c.SubCategory,
			"summary":      c.Summary,
			"key_points":   c.KeyPoints,
		}
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func TestClassifyAllAssignsCategories(t *testing.T) {
	provider := &mockProvider{responses: []string{classifyResponse(
		Classification{Category: "News", SubCategory: "Model Release", Summary: "A new model shipped", KeyPoints: []string{"ships today"}},
		Classification{Category: "Technique", SubCategory: "Prompting", Summary: "A prompting trick"},
	)}}
	c := New(provider, config.DefaultCategories(), 10, 2048)

	got := c.ClassifyAll(context.Background(), []evaluate.Scored{
		scoredPost(1, "alice", "Model X is out"),
		scoredPost(2, "bob", "Try this prompt structure"),
	})

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Classification.Category != "News" || got[0].Classification.KeyPoints[0] != "ships today" {
		t.Errorf("first classification wrong: %+v", got[0].Classification)
	}
	if got[1].Classification.Category != "Technique" {
		t.Errorf("second classification wrong: %+v", got[1].Classification)
	}
}

func TestUnknownCategoryFallsBackToOther(t *testing.T) {
	provider := &mockProvider{responses: []string{classifyResponse(
		Classification{Category: "Memes", SubCategory: "Dank", Summary: "A meme"},
	)}}
	c := New(provider, config.DefaultCategories(), 10, 2048)

	got := c.ClassifyAll(context.Background(), []evaluate.Scored{
		scoredPost(1, "alice", "lol look at this"),
	})

	if got[0].Classification.Category != defaultCategory {
		t.Errorf("category = %q, want %q", got[0].Classification.Category, defaultCategory)
	}
	if got[0].Classification.SubCategory != "Dank" {
		t.Errorf("sub-category should survive: %q", got[0].Classification.SubCategory)
	}
}

func TestOracleFailureUsesDefaults(t *testing.T) {
	provider := &mockProvider{err: errors.New("timeout")}
	c := New(provider, config.DefaultCategories(), 10, 2048)

	content := "A substantive post about state space models and their scaling behavior"
	got := c.ClassifyAll(context.Background(), []evaluate.Scored{
		scoredPost(1, "alice", content),
	})

	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	cl := got[0].Classification
	if cl.Category != defaultCategory || cl.SubCategory != defaultSubCategory {
		t.Errorf("fallback classification wrong: %+v", cl)
	}
	if !strings.HasPrefix(cl.Summary, content[:40]) {
		t.Errorf("fallback summary should be the post content, got %q", cl.Summary)
	}
}

func TestShortResponsePadsWithDefaults(t *testing.T) {
	provider := &mockProvider{responses: []string{classifyResponse(
		Classification{Category: "Research", SubCategory: "Paper", Summary: "A paper"},
	)}}
	c := New(provider, config.DefaultCategories(), 10, 2048)

	got := c.ClassifyAll(context.Background(), []evaluate.Scored{
		scoredPost(1, "alice", "First post about an interesting paper"),
		scoredPost(2, "bob", "Second post that the oracle forgot"),
	})

	if got[0].Classification.Category != "Research" {
		t.Errorf("first post should carry the single result: %+v", got[0].Classification)
	}
	if got[1].Classification.Category != defaultCategory {
		t.Errorf("unmatched post should get the default: %+v", got[1].Classification)
	}
}

func TestBatchChunking(t *testing.T) {
	item := Classification{Category: "News", SubCategory: "Release", Summary: "s"}
	provider := &mockProvider{responses: []string{
		classifyResponse(item, item),
		classifyResponse(item),
	}}
	c := New(provider, config.DefaultCategories(), 2, 2048)

	posts := []evaluate.Scored{
		scoredPost(1, "a", "post one"),
		scoredPost(2, "b", "post two"),
		scoredPost(3, "c", "post three"),
	}
	got := c.ClassifyAll(context.Background(), posts)

	if provider.calls != 2 {
		t.Errorf("oracle calls = %d, want 2", provider.calls)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}

func TestPromptListsConfiguredCategories(t *testing.T) {
	provider := &mockProvider{responses: []string{classifyResponse(
		Classification{Category: "News", Summary: "s"},
	)}}
	cats := []config.Category{
		{Name: "News", Emoji: "🔥", Description: "Breaking things", SubCategories: []string{"Release", "Event"}},
	}
	c := New(provider, cats, 10, 2048)

	c.ClassifyAll(context.Background(), []evaluate.Scored{scoredPost(1, "a", "x y z")})

	if len(provider.prompts) != 1 {
		t.Fatalf("expected 1 prompt")
	}
	p := provider.prompts[0]
	if !strings.Contains(p, "News: Breaking things") || !strings.Contains(p, "Release, Event") {
		t.Errorf("prompt missing category taxonomy:\n%s", p)
	}
}

func TestEmptyInput(t *testing.T) {
	provider := &mockProvider{}
	c := New(provider, config.DefaultCategories(), 10, 2048)

	got := c.ClassifyAll(context.Background(), nil)
	if len(got) != 0 || provider.calls != 0 {
		t.Errorf("empty input should produce nothing and call no one: %d results, %d calls", len(got), provider.calls)
	}
}
