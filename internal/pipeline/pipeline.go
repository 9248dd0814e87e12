// Package pipeline orchestrates one digest run: ingest, evaluate, classify,
// render. Dedup and reputation state is committed as soon as evaluation
// finishes; a later stage failing never rolls that back, so rerunning after a
// crash re-evaluates nothing.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/TobiSchelling/StreamDigest/internal/classify"
	"github.com/TobiSchelling/StreamDigest/internal/config"
	"github.com/TobiSchelling/StreamDigest/internal/evaluate"
	"github.com/TobiSchelling/StreamDigest/internal/events"
	"github.com/TobiSchelling/StreamDigest/internal/ingest"
	"github.com/TobiSchelling/StreamDigest/internal/ledger"
	"github.com/TobiSchelling/StreamDigest/internal/llm"
	"github.com/TobiSchelling/StreamDigest/internal/render"
	"github.com/TobiSchelling/StreamDigest/internal/reputation"
	"github.com/TobiSchelling/StreamDigest/internal/store"
)

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeDigest          Outcome = "digest"
	OutcomeNoNewPosts      Outcome = "no_new_posts"
	OutcomeNothingAccepted Outcome = "nothing_accepted"
	OutcomeFailed          Outcome = "failed"
)

// StepResult holds the result of a single pipeline stage.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full run.
type Result struct {
	RunID      string
	Outcome    Outcome
	Steps      []StepResult
	Ingested   int
	Accepted   int
	Rejected   int
	OutputPath string
	Duration   time.Duration
}

// Pipeline wires one run's collaborators together.
type Pipeline struct {
	cfg      *config.Config
	db       *store.DB
	provider llm.Provider
	source   ingest.Source
	emitter  *events.Emitter
	dataDir  string
}

// New creates a pipeline. The archive db and emitter may be nil; the source
// decides where posts come from (feeds or a capture file).
func New(cfg *config.Config, db *store.DB, provider llm.Provider, source ingest.Source, emitter *events.Emitter, dataDir string) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		db:       db,
		provider: provider,
		source:   source,
		emitter:  emitter,
		dataDir:  dataDir,
	}
}

func (p *Pipeline) statePath() string   { return filepath.Join(p.dataDir, "state.json") }
func (p *Pipeline) ledgerPath() string  { return filepath.Join(p.dataDir, "processed.json") }
func (p *Pipeline) authorsPath() string { return filepath.Join(p.dataDir, "authors.json") }

// Run executes the full pipeline and always returns a Result with a terminal
// outcome. Only infrastructure failures (source, persistence, digest write)
// produce OutcomeFailed; oracle trouble degrades to rejections inside the
// evaluate stage.
func (p *Pipeline) Run(ctx context.Context) *Result {
	started := time.Now()
	r := &Result{Outcome: OutcomeFailed}
	if p.emitter != nil {
		r.RunID = p.emitter.RunID()
	}
	p.emitter.Emit(events.PipelineStart, map[string]any{"data_dir": p.dataDir})

	state := ingest.LoadState(p.statePath())
	led := ledger.Load(p.ledgerPath())
	rep := reputation.LoadStore(p.authorsPath())

	// Stage 1: ingest.
	posts, step := p.runIngest(ctx, state, led)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		p.fail(r, started, step.Err)
		return r
	}
	r.Ingested = len(posts)
	if len(posts) == 0 {
		if err := state.Save(p.statePath()); err != nil {
			log.Printf("Saving cursor state: %v", err)
		}
		r.Outcome = OutcomeNoNewPosts
		p.finish(r, started)
		return r
	}

	// Stage 2: evaluate. Ledger and reputation commit here, before anything
	// downstream can fail.
	evalResult, step := p.runEvaluate(ctx, posts, led, rep)
	r.Steps = append(r.Steps, step)
	r.Accepted = len(evalResult.Accepted)
	r.Rejected = len(evalResult.Rejected)

	state.Advance(newestID(posts), len(posts))
	if err := p.persistAll(state, led, rep); err != nil {
		p.fail(r, started, err)
		return r
	}

	if len(evalResult.Accepted) == 0 {
		r.Outcome = OutcomeNothingAccepted
		p.finish(r, started)
		return r
	}

	// Stage 3: classify.
	classified, step := p.runClassify(ctx, evalResult.Accepted)
	r.Steps = append(r.Steps, step)

	// Stage 4: render.
	step = p.runRender(classified, r)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		p.fail(r, started, step.Err)
		return r
	}

	r.Outcome = OutcomeDigest
	p.finish(r, started)
	return r
}

func (p *Pipeline) runIngest(ctx context.Context, state *ingest.State, led *ledger.Ledger) ([]ingest.Post, StepResult) {
	log.Println("Stage 1/4: Ingesting posts...")
	p.emitter.Emit(events.IngestStart, map[string]any{"since_id": state.LastPostID})

	fetched, err := p.source.Fetch(ctx, state.LastPostID)
	if err != nil {
		return nil, StepResult{Name: "Ingest", Err: fmt.Errorf("fetching posts: %w", err)}
	}

	// The ledger is the dedup authority; the cursor only narrows the fetch.
	var fresh []ingest.Post
	for _, post := range fetched {
		if !led.Contains(post.ID) {
			fresh = append(fresh, post)
		}
	}

	if p.cfg.Ingestion.ExpandLinks {
		expander := ingest.NewLinkExpander(15 * time.Second)
		fresh = expander.ExpandAll(fresh)
	}

	p.emitter.Emit(events.IngestDone, map[string]any{"fetched": len(fetched), "new": len(fresh)})
	return fresh, StepResult{
		Name:    "Ingest",
		Summary: fmt.Sprintf("Fetched %d posts, %d new", len(fetched), len(fresh)),
	}
}

func (p *Pipeline) runEvaluate(ctx context.Context, posts []ingest.Post, led *ledger.Ledger, rep *reputation.Store) (*evaluate.Result, StepResult) {
	log.Println("Stage 2/4: Evaluating posts...")

	engine := evaluate.NewEngine(p.provider, led, rep, p.emitter, evaluate.Options{
		BatchSize:        p.cfg.Evaluation.BatchSize,
		ValueThreshold:   p.cfg.Evaluation.ValueThreshold,
		MinContentLength: p.cfg.Evaluation.MinContentLength,
		MaxTokens:        p.cfg.Evaluation.MaxTokens,
	})
	result := engine.EvaluateAll(ctx, posts)

	p.archiveVerdicts(result)

	return result, StepResult{
		Name: "Evaluate",
		Summary: fmt.Sprintf("Accepted %d, rejected %d (%d batches, %d oracle errors)",
			len(result.Accepted), len(result.Rejected), result.Batches, result.OracleErrors),
	}
}

func (p *Pipeline) runClassify(ctx context.Context, accepted []evaluate.Scored) ([]classify.Classified, StepResult) {
	log.Println("Stage 3/4: Classifying accepted posts...")
	p.emitter.Emit(events.ClassifyStart, map[string]any{"posts": len(accepted)})

	classifier := classify.New(p.provider, p.cfg.Categories, p.cfg.Evaluation.BatchSize, p.cfg.Evaluation.MaxTokens)
	classified := classifier.ClassifyAll(ctx, accepted)

	if p.db != nil {
		for _, c := range classified {
			if err := p.db.ArchiveClassification(c.Post.ID, c.Classification); err != nil {
				log.Printf("Archiving classification for %d: %v", c.Post.ID, err)
			}
		}
	}

	p.emitter.Emit(events.ClassifyDone, map[string]any{"posts": len(classified)})
	return classified, StepResult{
		Name:    "Classify",
		Summary: fmt.Sprintf("Classified %d posts", len(classified)),
	}
}

func (p *Pipeline) runRender(classified []classify.Classified, r *Result) StepResult {
	log.Println("Stage 4/4: Rendering digest...")
	p.emitter.Emit(events.RenderStart, map[string]any{"posts": len(classified)})

	now := time.Now()
	renderer := render.New(p.cfg.Categories)
	markdown := renderer.Render(classified, now)

	path, err := render.Write(p.dataDir, now, markdown)
	if err != nil {
		return StepResult{Name: "Render", Err: err}
	}
	r.OutputPath = path

	if p.db != nil {
		if err := p.db.ArchiveDigest(r.RunID, now, len(classified), path, markdown); err != nil {
			log.Printf("Archiving digest: %v", err)
		}
	}

	p.emitter.Emit(events.RenderDone, map[string]any{"path": path})
	return StepResult{
		Name:    "Render",
		Summary: fmt.Sprintf("Digest written to %s", path),
	}
}

func (p *Pipeline) archiveVerdicts(result *evaluate.Result) {
	if p.db == nil {
		return
	}
	runID := ""
	if p.emitter != nil {
		runID = p.emitter.RunID()
	}
	for _, s := range result.Accepted {
		if err := p.db.ArchivePost(runID, s, true); err != nil {
			log.Printf("Archiving post %d: %v", s.Post.ID, err)
		}
	}
	for _, s := range result.Rejected {
		if err := p.db.ArchivePost(runID, s, false); err != nil {
			log.Printf("Archiving post %d: %v", s.Post.ID, err)
		}
	}
}

func (p *Pipeline) persistAll(state *ingest.State, led *ledger.Ledger, rep *reputation.Store) error {
	if err := led.Persist(); err != nil {
		return fmt.Errorf("persisting ledger: %w", err)
	}
	if err := rep.Persist(); err != nil {
		return fmt.Errorf("persisting reputation: %w", err)
	}
	if err := state.Save(p.statePath()); err != nil {
		return fmt.Errorf("persisting cursor state: %w", err)
	}
	return nil
}

func (p *Pipeline) finish(r *Result, started time.Time) {
	r.Duration = time.Since(started)
	p.emitter.Emit(events.PipelineDone, map[string]any{
		"outcome":  string(r.Outcome),
		"ingested": r.Ingested,
		"accepted": r.Accepted,
		"rejected": r.Rejected,
	})
	log.Printf("Run finished: %s (%s)", r.Outcome, r.Duration.Round(time.Millisecond))
}

func (p *Pipeline) fail(r *Result, started time.Time, err error) {
	r.Outcome = OutcomeFailed
	r.Duration = time.Since(started)
	p.emitter.Emit(events.PipelineError, map[string]any{"error": err.Error()})
	log.Printf("Run failed: %v", err)
}

func newestID(posts []ingest.Post) int64 {
	var max int64
	for _, p := range posts {
		if p.ID > max {
			max = p.ID
		}
	}
	return max
}
