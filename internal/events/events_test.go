package events

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
)

func TestEmitWritesJSONL(t *testing.T) {
	e, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create emitter: %v", err)
	}

	e.Emit(PipelineStart, map[string]any{"run": "test"})
	e.Emit(EvaluateBatch, map[string]any{"batch": 1, "size": 5})

	f, err := os.Open(e.Path())
	if err != nil {
		t.Fatalf("failed to open event file: %v", err)
	}
	defer f.Close()

	var types []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("invalid JSONL line: %v", err)
		}
		types = append(types, ev.Type)
	}

	if len(types) != 2 || types[0] != PipelineStart || types[1] != EvaluateBatch {
		t.Errorf("unexpected event types: %v", types)
	}
}

func TestNilEmitterIsNoOp(t *testing.T) {
	var e *Emitter
	e.Emit(PipelineStart, nil) // must not panic
	if e.RunID() != "" || e.Path() != "" {
		t.Error("nil emitter should return empty identifiers")
	}
}

func TestRunIDUnique(t *testing.T) {
	dir := t.TempDir()
	a, _ := New(dir)
	b, _ := New(dir)
	if a.RunID() == b.RunID() {
		t.Error("expected unique run ids")
	}
}
