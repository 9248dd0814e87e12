package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/StreamDigest/internal/config"
	"github.com/TobiSchelling/StreamDigest/internal/ingest"
	"github.com/TobiSchelling/StreamDigest/internal/ledger"
	"github.com/TobiSchelling/StreamDigest/internal/reputation"
)

type fakeSource struct {
	posts []ingest.Post
	err   error
	calls int
}

func (f *fakeSource) Fetch(_ context.Context, sinceID int64) ([]ingest.Post, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []ingest.Post
	for _, p := range f.posts {
		if p.ID > sinceID {
			out = append(out, p)
		}
	}
	return out, nil
}

type scriptedProvider struct {
	responses []string
	calls     int
}

func (s *scriptedProvider) Generate(_ context.Context, _ string, _ int) (string, error) {
	s.calls++
	if len(s.responses) == 0 {
		return "[]", nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedProvider) IsConfigured() bool { return true }

func testConfig() *config.Config {
	return &config.Config{
		Evaluation: config.Evaluation{
			ValueThreshold:   5,
			BatchSize:        10,
			MinContentLength: 20,
			MaxTokens:        2048,
		},
		Categories: config.DefaultCategories(),
	}
}

func post(id int64, handle, content string) ingest.Post {
	return ingest.Post{
		ID:      id,
		URL:     "https://example.com/status/1",
		Date:    time.Now(),
		Author:  ingest.Author{Handle: handle, DisplayName: handle, Followers: 1000},
		Content: content,
	}
}

// acceptAll is an oracle response accepting n posts, then a classification
// response placing them all in News.
func acceptAll(n int) []string {
	var verdicts, placements []map[string]any
	for i := 0; i < n; i++ {
		verdicts = append(verdicts, map[string]any{
			"index": i + 1, "is_relevant": true, "relevance_score": 80,
			"value_score": 7, "reason": "good",
		})
		placements = append(placements, map[string]any{
			"index": i + 1, "category": "News", "sub_category": "Release",
			"summary": "something shipped", "key_points": []string{},
		})
	}
	v, _ := json.Marshal(verdicts)
	c, _ := json.Marshal(placements)
	return []string{string(v), string(c)}
}

func rejectAll(n int) []string {
	var verdicts []map[string]any
	for i := 0; i < n; i++ {
		verdicts = append(verdicts, map[string]any{
			"index": i + 1, "is_relevant": false, "relevance_score": 10,
			"value_score": 1, "reason": "off topic",
		})
	}
	v, _ := json.Marshal(verdicts)
	return []string{string(v)}
}

func TestRunProducesDigest(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{posts: []ingest.Post{
		post(1, "alice", "A substantive post about transformer inference costs"),
		post(2, "bob", "Another substantive post about agent memory design"),
	}}
	provider := &scriptedProvider{responses: acceptAll(2)}

	p := New(testConfig(), nil, provider, source, nil, dir)
	r := p.Run(context.Background())

	if r.Outcome != OutcomeDigest {
		t.Fatalf("outcome = %s, want %s (steps: %+v)", r.Outcome, OutcomeDigest, r.Steps)
	}
	if r.Ingested != 2 || r.Accepted != 2 || r.Rejected != 0 {
		t.Errorf("counts = %d/%d/%d", r.Ingested, r.Accepted, r.Rejected)
	}
	if r.OutputPath == "" {
		t.Fatal("no output path")
	}
	data, err := os.ReadFile(r.OutputPath)
	if err != nil {
		t.Fatalf("reading digest: %v", err)
	}
	if len(data) == 0 {
		t.Error("digest file is empty")
	}

	wantSteps := []string{"Ingest", "Evaluate", "Classify", "Render"}
	if len(r.Steps) != len(wantSteps) {
		t.Fatalf("steps = %d, want %d", len(r.Steps), len(wantSteps))
	}
	for i, name := range wantSteps {
		if r.Steps[i].Name != name {
			t.Errorf("step %d = %s, want %s", i, r.Steps[i].Name, name)
		}
	}
}

func TestRerunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	posts := []ingest.Post{
		post(1, "alice", "A substantive post about transformer inference costs"),
	}

	source := &fakeSource{posts: posts}
	provider := &scriptedProvider{responses: acceptAll(1)}
	first := New(testConfig(), nil, provider, source, nil, dir).Run(context.Background())
	if first.Outcome != OutcomeDigest {
		t.Fatalf("first run outcome = %s", first.Outcome)
	}

	// Same capture again: the cursor and ledger both block re-evaluation.
	source2 := &fakeSource{posts: posts}
	provider2 := &scriptedProvider{}
	second := New(testConfig(), nil, provider2, source2, nil, dir).Run(context.Background())

	if second.Outcome != OutcomeNoNewPosts {
		t.Errorf("second run outcome = %s, want %s", second.Outcome, OutcomeNoNewPosts)
	}
	if provider2.calls != 0 {
		t.Errorf("second run called the oracle %d times, want 0", provider2.calls)
	}

	rep := reputation.LoadStore(filepath.Join(dir, "authors.json"))
	if rec := rep.Get("alice"); rec == nil || rec.Total != 1 {
		t.Errorf("author should have exactly one recorded post, got %+v", rec)
	}
}

func TestLedgerBlocksSeenPostsEvenWithStaleCursor(t *testing.T) {
	dir := t.TempDir()

	// Pre-seed the ledger but leave the cursor at zero, as if state.json
	// was lost. The ledger alone must prevent re-evaluation.
	led := ledger.Load(filepath.Join(dir, "processed.json"))
	led.Record(1)
	if err := led.Persist(); err != nil {
		t.Fatalf("seeding ledger: %v", err)
	}

	source := &fakeSource{posts: []ingest.Post{
		post(1, "alice", "A substantive post about transformer inference costs"),
	}}
	provider := &scriptedProvider{}

	r := New(testConfig(), nil, provider, source, nil, dir).Run(context.Background())

	if r.Outcome != OutcomeNoNewPosts {
		t.Errorf("outcome = %s, want %s", r.Outcome, OutcomeNoNewPosts)
	}
	if provider.calls != 0 {
		t.Errorf("oracle called %d times for an already-seen post", provider.calls)
	}
}

func TestNothingAcceptedStillPersists(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{posts: []ingest.Post{
		post(1, "alice", "A long enough post that the oracle rejects as off topic"),
	}}
	provider := &scriptedProvider{responses: rejectAll(1)}

	r := New(testConfig(), nil, provider, source, nil, dir).Run(context.Background())

	if r.Outcome != OutcomeNothingAccepted {
		t.Fatalf("outcome = %s, want %s", r.Outcome, OutcomeNothingAccepted)
	}
	if r.OutputPath != "" {
		t.Error("no digest should be written")
	}

	led := ledger.Load(filepath.Join(dir, "processed.json"))
	if !led.Contains(1) {
		t.Error("rejected post should be in the persisted ledger")
	}
	rep := reputation.LoadStore(filepath.Join(dir, "authors.json"))
	if rec := rep.Get("alice"); rec == nil || rec.Rejected != 1 {
		t.Errorf("rejection should be in the persisted reputation: %+v", rec)
	}
}

func TestSourceFailure(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{err: errors.New("feed unreachable")}

	r := New(testConfig(), nil, &scriptedProvider{}, source, nil, dir).Run(context.Background())

	if r.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want %s", r.Outcome, OutcomeFailed)
	}
	if len(r.Steps) != 1 || r.Steps[0].Err == nil {
		t.Errorf("expected a single failed ingest step: %+v", r.Steps)
	}
}

func TestNoNewPostsAdvancesNothing(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{}

	r := New(testConfig(), nil, &scriptedProvider{}, source, nil, dir).Run(context.Background())

	if r.Outcome != OutcomeNoNewPosts {
		t.Fatalf("outcome = %s", r.Outcome)
	}
	state := ingest.LoadState(filepath.Join(dir, "state.json"))
	if state.LastPostID != 0 {
		t.Errorf("cursor moved to %d with no posts", state.LastPostID)
	}
}
