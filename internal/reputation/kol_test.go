package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	response string
	err      error
	calls    int
}

func (m *mockProvider) Generate(_ context.Context, _ string, _ int) (string, error) {
	m.calls++
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

func assessmentJSON(important bool, recommendation string) string {
	data, _ := json.Marshal(map[string]any{
		"is_important_kol": important,
		"confidence":       0.9,
		"reason":           "well known founder",
		"background":       "founded a lab",
		"recommendation":   recommendation,
	})
	return string(data)
}

func TestIdentifyParsesAssessment(t *testing.T) {
	checker := NewChecker(&mockProvider{response: assessmentJSON(true, "keep")})

	a := checker.Identify(context.Background(), "sama", "Sam", 2000000)
	if !a.IsImportant {
		t.Error("expected is_important true")
	}
	if a.Recommendation != "keep" {
		t.Errorf("expected keep, got %q", a.Recommendation)
	}
	if a.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %f", a.Confidence)
	}
}

func TestIdentifyFailsOpenOnError(t *testing.T) {
	checker := NewChecker(&mockProvider{err: errors.New("network down")})

	a := checker.Identify(context.Background(), "someone", "Someone", 150000)
	if a.Recommendation != "watch" {
		t.Errorf("expected watch on failure, got %q", a.Recommendation)
	}
	if a.Confidence != 0 {
		t.Errorf("expected zero confidence on failure, got %f", a.Confidence)
	}
	if a.IsImportant {
		t.Error("failure must never assert importance")
	}
}

func TestIdentifyFailsOpenOnGarbage(t *testing.T) {
	checker := NewChecker(&mockProvider{response: "absolutely not json"})

	a := checker.Identify(context.Background(), "someone", "Someone", 150000)
	if a.Recommendation != "watch" || a.Confidence != 0 {
		t.Errorf("expected watch/0 on unparsable output, got %q/%f", a.Recommendation, a.Confidence)
	}
}

func TestIdentifyNormalizesBadRecommendation(t *testing.T) {
	resp, _ := json.Marshal(map[string]any{
		"is_important_kol": false,
		"recommendation":   "obliterate",
	})
	checker := NewChecker(&mockProvider{response: string(resp)})

	a := checker.Identify(context.Background(), "x", "X", 0)
	if a.Recommendation != "watch" {
		t.Errorf("expected unknown recommendation to normalize to watch, got %q", a.Recommendation)
	}
}

func TestScreenRemovesVouchedAuthors(t *testing.T) {
	s := newTestStore(t)
	// All failed, recent average 1: solidly on the remove list.
	addPosts(s, "ceo", 500000, 15, 0, 1)
	addPosts(s, "spammer", 5000, 10, 0, 1)

	report := s.BuildReport(3)
	if len(report.RecommendRemove) != 2 {
		t.Fatalf("expected 2 removal candidates, got %d", len(report.RecommendRemove))
	}

	checker := NewChecker(&mockProvider{response: assessmentJSON(true, "keep")})
	checker.Screen(context.Background(), s, report)

	if len(report.RecommendRemove) != 0 {
		t.Errorf("expected vouched authors off the remove list, got %+v", report.RecommendRemove)
	}

	// Underlying stats untouched: a fresh report still flags both.
	fresh := s.BuildReport(3)
	if len(fresh.RecommendRemove) != 2 {
		t.Errorf("expected stats unchanged, fresh report has %d candidates", len(fresh.RecommendRemove))
	}
}

func TestScreenKeepsCondemnedAuthors(t *testing.T) {
	s := newTestStore(t)
	addPosts(s, "spammer", 5000, 10, 0, 1)

	report := s.BuildReport(3)
	checker := NewChecker(&mockProvider{response: assessmentJSON(false, "remove")})
	checker.Screen(context.Background(), s, report)

	if len(report.RecommendRemove) != 1 {
		t.Errorf("expected condemned author to stay on remove list, got %+v", report.RecommendRemove)
	}
}

func TestScreenChecksEscalatedAuthorsOnce(t *testing.T) {
	s := newTestStore(t)
	// Escalation trigger: high reach, low pass rate, sample of exactly 10
	// (enough for the report, small enough to escalate).
	addPosts(s, "bigname", 150000, 10, 2, 2)

	report := s.BuildReport(3)
	if report.TotalAuthors != 1 {
		t.Fatalf("expected bigname in report, got %d authors", report.TotalAuthors)
	}

	mock := &mockProvider{response: assessmentJSON(false, "watch")}
	checker := NewChecker(mock)
	assessments := checker.Screen(context.Background(), s, report)

	if mock.calls != 1 {
		t.Errorf("expected exactly one identity call, got %d", mock.calls)
	}
	if _, ok := assessments["bigname"]; !ok {
		t.Error("expected an assessment for bigname")
	}
}

func TestScreenNilProviderFailsOpen(t *testing.T) {
	s := newTestStore(t)
	addPosts(s, "spammer", 5000, 10, 0, 1)

	report := s.BuildReport(3)
	checker := NewChecker(nil)
	checker.Screen(context.Background(), s, report)

	// Fail open means keep observing, not auto-clear: the candidate stays.
	if len(report.RecommendRemove) != 1 {
		t.Errorf("expected remove list unchanged without a provider, got %+v", report.RecommendRemove)
	}
}
