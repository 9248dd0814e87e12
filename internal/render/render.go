// Package render turns classified posts into the markdown digest document.
// Rendering is deterministic: same inputs, same bytes.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/StreamDigest/internal/classify"
	"github.com/TobiSchelling/StreamDigest/internal/config"
)

// Renderer generates digest markdown over the configured taxonomy.
type Renderer struct {
	categories []config.Category
}

// New creates a renderer. Category order in the digest follows the
// configured order; posts the classifier could not place come last.
func New(categories []config.Category) *Renderer {
	return &Renderer{categories: categories}
}

// Render produces the digest markdown for one run.
func (r *Renderer) Render(posts []classify.Classified, generatedAt time.Time) string {
	var b strings.Builder

	b.WriteString("---\n")
	fmt.Fprintf(&b, "generated_at: %s\n", generatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "post_count: %d\n", len(posts))
	fmt.Fprintf(&b, "period: %s\n", generatedAt.Format("2006-01-02"))
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# AI Digest: %s\n\n", generatedAt.Format("January 2, 2006"))

	if len(posts) == 0 {
		b.WriteString("No posts made the cut this run.\n")
		return b.String()
	}

	byCategory := make(map[string][]classify.Classified)
	for _, p := range posts {
		byCategory[p.Classification.Category] = append(byCategory[p.Classification.Category], p)
	}

	for _, cat := range r.categories {
		r.writeSection(&b, cat.Emoji, cat.Name, byCategory[cat.Name])
		delete(byCategory, cat.Name)
	}

	// Anything left is the classifier's fallback bucket.
	var leftovers []string
	for name := range byCategory {
		leftovers = append(leftovers, name)
	}
	sort.Strings(leftovers)
	for _, name := range leftovers {
		r.writeSection(&b, "📎", name, byCategory[name])
	}

	return b.String()
}

func (r *Renderer) writeSection(b *strings.Builder, emoji, name string, posts []classify.Classified) {
	if len(posts) == 0 {
		return
	}

	// Highest value first; stable on post id so reruns render identically.
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].Verdict.ValueScore != posts[j].Verdict.ValueScore {
			return posts[i].Verdict.ValueScore > posts[j].Verdict.ValueScore
		}
		return posts[i].Post.ID > posts[j].Post.ID
	})

	fmt.Fprintf(b, "## %s %s\n\n", emoji, name)

	for _, p := range posts {
		fmt.Fprintf(b, "### %s\n\n", p.Classification.Summary)
		fmt.Fprintf(b, "**@%s** (%s) · %s · value %d/10\n\n",
			p.Post.Author.Handle, p.Post.Author.DisplayName,
			p.Classification.SubCategory, p.Verdict.ValueScore)

		for _, point := range p.Classification.KeyPoints {
			fmt.Fprintf(b, "- %s\n", point)
		}
		if len(p.Classification.KeyPoints) > 0 {
			b.WriteString("\n")
		}

		b.WriteString("<details>\n<summary>Original post</summary>\n\n")
		b.WriteString(quoteBlock(p.Post.Content))
		if p.Post.URL != "" {
			fmt.Fprintf(b, "\n[source](%s)\n", p.Post.URL)
		}
		b.WriteString("\n</details>\n\n")
	}
}

func quoteBlock(content string) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n") + "\n"
}

// DigestFilename names the digest file for a run time.
func DigestFilename(t time.Time) string {
	return t.Format("2006-01-02_15") + ".md"
}

// Write stores the digest under dir/digests, creating the directory as
// needed, and returns the path written.
func Write(dir string, t time.Time, markdown string) (string, error) {
	digestDir := filepath.Join(dir, "digests")
	if err := os.MkdirAll(digestDir, 0o755); err != nil {
		return "", fmt.Errorf("creating digest dir: %w", err)
	}
	path := filepath.Join(digestDir, DigestFilename(t))
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return "", fmt.Errorf("writing digest: %w", err)
	}
	return path, nil
}
