package reputation

import (
	"context"
	"fmt"
	"log"

	"github.com/TobiSchelling/StreamDigest/internal/llm"
)

// Escalation trigger. An influential author whose sampled content looks low
// quality, but whose sample is too small to trust the aggregate removal
// policy, gets a one-off identity check instead.
const (
	escalateMaxPassRate = 0.3
	escalateMaxSample   = 10
)

// Assessment is the identity-check result for one author. Ephemeral:
// recomputed each report generation, never persisted.
type Assessment struct {
	IsImportant    bool    `json:"is_important_kol"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
	Background     string  `json:"background"`
	Recommendation string  `json:"recommendation"` // keep | watch | remove
}

const identifyPrompt = `You are an expert on the AI and tech social-media landscape. Decide whether this account belongs to an important figure in the field (founder, core developer, notable researcher, investor, or similarly influential person).

Account:
- Handle: @%s
- Display name: %s
- Followers: %d

Respond with ONLY this JSON:
{
    "is_important_kol": true or false,
    "confidence": 0.0-1.0,
    "reason": "One or two sentences explaining the judgment",
    "background": "Short summary of who this account is",
    "recommendation": "keep" or "watch" or "remove"
}

recommendation: keep = definitely an important figure, retain; watch = uncertain, keep observing; remove = confidently not important.`

// ShouldEscalate reports whether a record matches the escalation trigger:
// high reach, low pass rate, sample too small for the aggregate policy.
func ShouldEscalate(rec *Record) bool {
	return rec.Followers >= highFollowerThreshold &&
		rec.PassRate() <= escalateMaxPassRate &&
		rec.Total <= escalateMaxSample
}

// Checker performs identity checks through a judgment provider.
type Checker struct {
	provider llm.Provider
}

// NewChecker creates a new identity checker.
func NewChecker(provider llm.Provider) *Checker {
	return &Checker{provider: provider}
}

// Identify runs one identity check. Any failure fails open to "watch" with
// zero confidence: never an automatic removal, never an automatic keep.
func (c *Checker) Identify(ctx context.Context, handle, displayName string, followers int) Assessment {
	fallback := Assessment{Recommendation: "watch", Confidence: 0}

	if c.provider == nil {
		return fallback
	}

	prompt := fmt.Sprintf(identifyPrompt, handle, displayName, followers)
	responseText, err := c.provider.Generate(ctx, prompt, 512)
	if err != nil {
		log.Printf("Identity check failed for @%s: %v", handle, err)
		fallback.Reason = fmt.Sprintf("identity check failed: %v", err)
		return fallback
	}

	parsed := llm.ParseJSONResponse(responseText)
	if parsed == nil {
		log.Printf("Identity check for @%s returned unparsable output", handle)
		fallback.Reason = "identity check response could not be parsed"
		return fallback
	}

	rec := llm.GetString(parsed, "recommendation", "watch")
	if rec != "keep" && rec != "watch" && rec != "remove" {
		rec = "watch"
	}

	return Assessment{
		IsImportant:    llm.GetBool(parsed, "is_important_kol", false),
		Confidence:     llm.GetFloat(parsed, "confidence", 0),
		Reason:         llm.GetString(parsed, "reason", ""),
		Background:     llm.GetString(parsed, "background", ""),
		Recommendation: rec,
	}
}

// Screen runs identity checks against a freshly built report and strips
// authors the check vouches for from the removal recommendations. Checked
// authors are those matching the escalation trigger plus everyone already on
// the remove list; each gets exactly one call per report generation. The
// underlying store statistics are never touched.
func (c *Checker) Screen(ctx context.Context, s *Store, report *Report) map[string]Assessment {
	checked := make(map[string]Assessment)

	check := func(summary AuthorSummary) {
		if _, done := checked[summary.Handle]; done {
			return
		}
		assessment := c.Identify(ctx, summary.Handle, summary.DisplayName, summary.Followers)
		checked[summary.Handle] = assessment
		log.Printf("Identity check @%s: %s (confidence %.2f)",
			summary.Handle, assessment.Recommendation, assessment.Confidence)
	}

	for _, summary := range report.AllAuthors {
		rec := s.Get(summary.Handle)
		if rec != nil && ShouldEscalate(rec) {
			check(summary)
		}
	}
	for _, summary := range report.RecommendRemove {
		check(summary)
	}

	var kept []AuthorSummary
	for _, summary := range report.RecommendRemove {
		a := checked[summary.Handle]
		if a.IsImportant || a.Recommendation == "keep" {
			continue
		}
		kept = append(kept, summary)
	}
	report.RecommendRemove = kept

	return checked
}
