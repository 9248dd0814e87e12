package evaluate

import "github.com/TobiSchelling/StreamDigest/internal/llm"

// Verdict is the judgment for one post. The oracle is untrusted: every
// verdict passes through parseVerdict, which defaults missing fields and
// clamps ranges before anything downstream sees it.
type Verdict struct {
	IsRelevant     bool   `json:"is_relevant"`
	RelevanceScore int    `json:"relevance_score"`
	ValueScore     int    `json:"value_score"`
	Reason         string `json:"reason"`
	IsSuspect      bool   `json:"is_suspect_content"`
	SuspectReason  string `json:"suspect_reason"`
}

// suspectScoreCap is the hard value ceiling for content flagged as suspect.
const suspectScoreCap = 2

// defaultVerdict is the rejected fallback assigned when the oracle fails or
// returns fewer results than posts.
func defaultVerdict(reason string) Verdict {
	return Verdict{
		IsRelevant:     false,
		RelevanceScore: 0,
		ValueScore:     1,
		Reason:         reason,
	}
}

// shortContentVerdict marks a post rejected without an oracle call because
// its body was below the minimum length. Its zero value score feeds the
// reputation update.
func shortContentVerdict() Verdict {
	return Verdict{
		IsRelevant:     false,
		RelevanceScore: 0,
		ValueScore:     0,
		Reason:         "content below minimum length",
	}
}

// Accepted applies the acceptance policy for a given value threshold.
func (v Verdict) Accepted(valueThreshold int) bool {
	return v.IsRelevant && v.RelevanceScore >= 50 && v.ValueScore >= valueThreshold
}

// parseVerdict validates one raw oracle object into a Verdict. Out-of-range
// scores are clamped, and suspect content is capped at suspectScoreCap
// before acceptance is ever evaluated.
func parseVerdict(m map[string]any) Verdict {
	v := Verdict{
		IsRelevant:     llm.GetBool(m, "is_relevant", false),
		RelevanceScore: llm.GetInt(m, "relevance_score", 0),
		ValueScore:     llm.GetInt(m, "value_score", 1),
		Reason:         llm.GetString(m, "reason", ""),
		IsSuspect:      llm.GetBool(m, "is_suspect_content", false),
		SuspectReason:  llm.GetString(m, "suspect_reason", ""),
	}

	if v.RelevanceScore < 0 {
		v.RelevanceScore = 0
	} else if v.RelevanceScore > 100 {
		v.RelevanceScore = 100
	}

	if v.ValueScore < 1 {
		v.ValueScore = 1
	} else if v.ValueScore > 10 {
		v.ValueScore = 10
	}

	if v.IsSuspect && v.ValueScore > suspectScoreCap {
		v.ValueScore = suspectScoreCap
	}

	return v
}
