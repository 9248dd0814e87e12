package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRecordAndContains(t *testing.T) {
	l := Load(filepath.Join(t.TempDir(), "ledger.json"))

	if l.Contains(1) {
		t.Error("empty ledger should not contain anything")
	}

	l.Record(1)
	l.Record(2)
	l.Record(1) // idempotent

	if !l.Contains(1) || !l.Contains(2) {
		t.Error("expected recorded ids to be present")
	}
	if l.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", l.Len())
	}
}

func TestPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")

	l := Load(path)
	l.Record(10)
	l.Record(20)
	if err := l.Persist(); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	reloaded := Load(path)
	if !reloaded.Contains(10) || !reloaded.Contains(20) {
		t.Error("expected ids to survive reload")
	}
	if reloaded.Len() != 2 {
		t.Errorf("expected 2 entries after reload, got %d", reloaded.Len())
	}
}

func TestPersistTruncatesToCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")

	l := Load(path)
	for i := 0; i < MaxEntries+50; i++ {
		l.Record(int64(i))
	}
	if err := l.Persist(); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	if l.Len() != MaxEntries {
		t.Errorf("expected %d entries after truncation, got %d", MaxEntries, l.Len())
	}
	// Oldest 50 dropped, newest retained.
	if l.Contains(0) || l.Contains(49) {
		t.Error("expected oldest entries to be evicted")
	}
	if !l.Contains(50) || !l.Contains(int64(MaxEntries+49)) {
		t.Error("expected newest entries to be retained")
	}

	var f struct {
		IDs   []int64 `json:"ids"`
		Count int     `json:"count"`
	}
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("persisted ledger is not valid JSON: %v", err)
	}
	if f.Count != MaxEntries || len(f.IDs) != MaxEntries {
		t.Errorf("expected persisted count %d, got %d (%d ids)", MaxEntries, f.Count, len(f.IDs))
	}
	if f.IDs[0] != 50 {
		t.Errorf("expected eviction in insertion order, first id is %d", f.IDs[0])
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	os.WriteFile(path, []byte("not json"), 0o644)

	l := Load(path)
	if l.Len() != 0 {
		t.Errorf("expected empty ledger from corrupt file, got %d entries", l.Len())
	}

	// The empty ledger must still be usable and persistable.
	l.Record(7)
	if err := l.Persist(); err != nil {
		t.Fatalf("persist after corrupt load failed: %v", err)
	}
	if !Load(path).Contains(7) {
		t.Error("expected recovery to produce a working ledger")
	}
}

func TestLoadMissingFile(t *testing.T) {
	l := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if l.Len() != 0 {
		t.Errorf("expected empty ledger for missing file, got %d", l.Len())
	}
}
