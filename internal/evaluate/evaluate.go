// Package evaluate turns batches of raw posts into accept/reject decisions
// through a batched LLM judgment call, reconciling untrusted oracle output
// back to its inputs and feeding the reputation ledger.
package evaluate

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/TobiSchelling/StreamDigest/internal/events"
	"github.com/TobiSchelling/StreamDigest/internal/ingest"
	"github.com/TobiSchelling/StreamDigest/internal/ledger"
	"github.com/TobiSchelling/StreamDigest/internal/llm"
	"github.com/TobiSchelling/StreamDigest/internal/reputation"
)

const maxBodyChars = 500

const batchPromptHeader = `You are curating a feed of short social-media posts about AI for a daily digest. Judge each post below for topical relevance and informational value.

For each post decide:

1. Relevance (0-100): does it substantively discuss AI, machine learning, large models, or adjacent technology? A bare #AI hashtag or passing mention scores below 50; concrete discussion of specific technology scores above 70.

2. Value (1-10): 8-10 = high value (original analysis, significant release, practical technique, important news from an authoritative source); 5-7 = worth knowing; 1-4 = no substance, pure marketing, or stale.

3. Suspect content: does the post assert things that are plainly false or misleading, such as announcing model versions that do not exist?

Posts marked [forwarded] repeat another author's content. Judge the original content on its own merit; do not lower the score just because it is forwarded.

%s

Respond with ONLY a JSON array containing exactly %d objects, one per post in the same order:
[
    {
        "index": 1,
        "is_relevant": true or false,
        "relevance_score": 0-100,
        "value_score": 1-10,
        "reason": "One or two sentences",
        "is_suspect_content": true or false,
        "suspect_reason": "Why, or empty string"
    }
]`

// Scored pairs a post with its verdict for downstream stages and audit.
type Scored struct {
	Post    ingest.Post
	Verdict Verdict
}

// Result holds the outcome of one evaluation run.
type Result struct {
	Accepted     []Scored
	Rejected     []Scored
	Batches      int
	OracleErrors int
}

// Engine is the batch evaluation engine. It owns no state of its own; the
// ledger and reputation store are injected and mutated in post order.
type Engine struct {
	provider  llm.Provider
	ledger    *ledger.Ledger
	rep       *reputation.Store
	emitter   *events.Emitter
	batchSize int
	threshold int
	minLength int
	maxTokens int
}

// Options configures an Engine.
type Options struct {
	BatchSize        int
	ValueThreshold   int
	MinContentLength int
	MaxTokens        int
}

// NewEngine creates a batch evaluation engine.
func NewEngine(provider llm.Provider, led *ledger.Ledger, rep *reputation.Store, emitter *events.Emitter, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.ValueThreshold <= 0 {
		opts.ValueThreshold = 5
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return &Engine{
		provider:  provider,
		ledger:    led,
		rep:       rep,
		emitter:   emitter,
		batchSize: opts.BatchSize,
		threshold: opts.ValueThreshold,
		minLength: opts.MinContentLength,
		maxTokens: opts.MaxTokens,
	}
}

// EvaluateAll processes posts in ingestion order: consecutive fixed-size
// batches, one oracle call per batch, positional reconciliation. Every post
// gets exactly one verdict and exactly one reputation update, and enters the
// dedup ledger whether it passed or not.
func (e *Engine) EvaluateAll(ctx context.Context, posts []ingest.Post) *Result {
	r := &Result{}
	if len(posts) == 0 {
		return r
	}

	e.emitter.Emit(events.EvaluateStart, map[string]any{"posts": len(posts)})

	// Short posts are rejected up front, with no oracle cost.
	var pending []ingest.Post
	for _, post := range posts {
		if len(strings.TrimSpace(post.Content)) < e.minLength {
			e.recordOutcome(r, post, shortContentVerdict())
			continue
		}
		pending = append(pending, post)
	}

	for start := 0; start < len(pending); start += e.batchSize {
		end := min(start+e.batchSize, len(pending))
		chunk := pending[start:end]
		r.Batches++

		verdicts, oracleErr := e.evaluateBatch(ctx, chunk)
		if oracleErr {
			r.OracleErrors++
		}
		for i, post := range chunk {
			e.recordOutcome(r, post, verdicts[i])
		}

		e.emitter.Emit(events.EvaluateBatch, map[string]any{
			"batch":    r.Batches,
			"size":     len(chunk),
			"accepted": len(r.Accepted),
		})
		log.Printf("Evaluated batch %d (%d posts): %d accepted so far", r.Batches, len(chunk), len(r.Accepted))
	}

	e.emitter.Emit(events.EvaluateDone, map[string]any{
		"accepted": len(r.Accepted),
		"rejected": len(r.Rejected),
		"errors":   r.OracleErrors,
	})
	log.Printf("Evaluation complete: %d/%d posts accepted, %d oracle errors",
		len(r.Accepted), len(posts), r.OracleErrors)
	return r
}

// recordOutcome applies the per-post side effects in order: reputation
// update, ledger record, then the accept/reject split.
func (e *Engine) recordOutcome(r *Result, post ingest.Post, v Verdict) {
	accepted := v.Accepted(e.threshold)
	e.rep.Update(post.Author.Handle, post.Author.DisplayName, post.Author.Followers, accepted, v.ValueScore)
	e.ledger.Record(post.ID)

	if accepted {
		r.Accepted = append(r.Accepted, Scored{Post: post, Verdict: v})
	} else {
		r.Rejected = append(r.Rejected, Scored{Post: post, Verdict: v})
	}
}

// evaluateBatch sends one chunk to the oracle and always returns exactly
// len(chunk) verdicts. The bool reports whether the oracle call or its
// output failed.
func (e *Engine) evaluateBatch(ctx context.Context, chunk []ingest.Post) ([]Verdict, bool) {
	if e.provider == nil {
		return fallbackVerdicts(len(chunk), "no judgment provider available"), true
	}

	prompt := buildBatchPrompt(chunk)
	responseText, err := e.provider.Generate(ctx, prompt, e.maxTokens)
	if err != nil {
		log.Printf("Oracle call failed for batch of %d: %v", len(chunk), err)
		return fallbackVerdicts(len(chunk), fmt.Sprintf("judgment call failed: %v", err)), true
	}

	raw := llm.ParseJSONArray(responseText)
	if raw == nil {
		log.Printf("Oracle returned unparsable output for batch of %d", len(chunk))
		return fallbackVerdicts(len(chunk), "judgment response could not be parsed"), true
	}

	// Strictly positional: verdict k belongs to chunk member k. A short
	// array is padded; extra entries are dropped.
	if len(raw) != len(chunk) {
		log.Printf("Oracle result count mismatch: expected %d, got %d", len(chunk), len(raw))
	}

	verdicts := make([]Verdict, len(chunk))
	for i := range chunk {
		if i < len(raw) {
			verdicts[i] = parseVerdict(raw[i])
		} else {
			verdicts[i] = defaultVerdict("missing from judgment response")
		}
	}
	return verdicts, false
}

func fallbackVerdicts(n int, reason string) []Verdict {
	verdicts := make([]Verdict, n)
	for i := range verdicts {
		verdicts[i] = defaultVerdict(reason)
	}
	return verdicts
}

// buildBatchPrompt serializes a chunk into the judgment prompt. Forwarded
// posts are unwrapped so the oracle judges the original content.
func buildBatchPrompt(chunk []ingest.Post) string {
	var entries []string
	for i, post := range chunk {
		body := post.Content
		forwardedNote := ""
		if fwd, origAuthor, origText := ingest.ParseForwarded(body); fwd {
			forwardedNote = fmt.Sprintf(" [forwarded: original author @%s]", origAuthor)
			body = origText
		}
		if len(body) > maxBodyChars {
			body = body[:maxBodyChars] + "..."
		}

		entries = append(entries, fmt.Sprintf(
			"[Post %d]%s\nAuthor: @%s (%s)\nFollowers: %d\nEngagement: %d replies | %d reposts | %d likes\nContent: %s",
			i+1, forwardedNote,
			post.Author.Handle, post.Author.DisplayName, post.Author.Followers,
			post.Replies, post.Reposts, post.Likes,
			body))
	}

	return fmt.Sprintf(batchPromptHeader, strings.Join(entries, "\n\n"), len(chunk))
}
