// Package events appends pipeline progress events to a JSONL file, one file
// per run, for external visualization. A nil Emitter is a no-op, so callers
// never have to guard their emits.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the pipeline.
const (
	PipelineStart = "pipeline_start"
	PipelineDone  = "pipeline_done"
	PipelineError = "pipeline_error"

	IngestStart = "ingest_start"
	IngestDone  = "ingest_done"

	EvaluateStart = "evaluate_start"
	EvaluateBatch = "evaluate_batch"
	EvaluateDone  = "evaluate_done"

	ClassifyStart = "classify_start"
	ClassifyDone  = "classify_done"

	RenderStart = "render_start"
	RenderDone  = "render_done"
)

// Emitter writes run events. It only writes; it does not know who reads.
type Emitter struct {
	runID string
	path  string
	start time.Time
}

type event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	ElapsedMS int64          `json:"elapsed_ms"`
	Timestamp time.Time      `json:"timestamp"`
}

// New creates an emitter writing to <dir>/<run-id>.jsonl.
func New(dir string) (*Emitter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating events directory: %w", err)
	}
	runID := time.Now().Format("2006-01-02_150405") + "_" + uuid.NewString()[:8]
	return &Emitter{
		runID: runID,
		path:  filepath.Join(dir, runID+".jsonl"),
		start: time.Now(),
	}, nil
}

// RunID returns the run identifier.
func (e *Emitter) RunID() string {
	if e == nil {
		return ""
	}
	return e.runID
}

// Path returns the event file path.
func (e *Emitter) Path() string {
	if e == nil {
		return ""
	}
	return e.path
}

// Emit appends one event. Emit failures are logged and otherwise ignored;
// the event stream must never affect the run.
func (e *Emitter) Emit(eventType string, data map[string]any) {
	if e == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}

	ev := event{
		Type:      eventType,
		Data:      data,
		ElapsedMS: time.Since(e.start).Milliseconds(),
		Timestamp: time.Now(),
	}
	line, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Failed to marshal event %s: %v", eventType, err)
		return
	}

	f, err := os.OpenFile(e.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("Failed to open event file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Printf("Failed to write event: %v", err)
	}
}
