// Package ledger tracks which post ids have already been evaluated, so a
// post is judged at most once across runs.
package ledger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// MaxEntries bounds the persisted ledger. On overflow the oldest entries (by
// first insertion) are dropped.
const MaxEntries = 10000

// Ledger is a bounded, insertion-ordered set of processed post ids.
// Not safe for concurrent use; the run orchestrator is the single writer.
type Ledger struct {
	path  string
	ids   []int64
	index map[int64]struct{}
}

type ledgerFile struct {
	IDs         []int64   `json:"ids"`
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"last_updated"`
}

// Load reads the ledger from disk. A missing or corrupt file yields an empty
// ledger rather than an error: reprocessing a few posts is cheaper than
// failing the run.
func Load(path string) *Ledger {
	l := &Ledger{path: path, index: make(map[int64]struct{})}

	data, err := os.ReadFile(path)
	if err != nil {
		return l
	}

	var f ledgerFile
	if err := json.Unmarshal(data, &f); err != nil {
		log.Printf("Ignoring corrupt ledger %s: %v", path, err)
		return l
	}

	for _, id := range f.IDs {
		if _, ok := l.index[id]; ok {
			continue
		}
		l.ids = append(l.ids, id)
		l.index[id] = struct{}{}
	}
	return l
}

// Contains reports whether a post id has already been processed.
func (l *Ledger) Contains(id int64) bool {
	_, ok := l.index[id]
	return ok
}

// Record adds a post id. Recording an already-present id is a no-op; the
// original insertion position keeps defining its age.
func (l *Ledger) Record(id int64) {
	if _, ok := l.index[id]; ok {
		return
	}
	l.ids = append(l.ids, id)
	l.index[id] = struct{}{}
}

// Len returns the number of ids currently held.
func (l *Ledger) Len() int {
	return len(l.ids)
}

// Persist writes the ledger atomically: whole document to a temp sibling,
// then rename over the target. Before writing, the set is truncated to the
// MaxEntries most recently inserted ids.
func (l *Ledger) Persist() error {
	if len(l.ids) > MaxEntries {
		dropped := l.ids[:len(l.ids)-MaxEntries]
		for _, id := range dropped {
			delete(l.index, id)
		}
		l.ids = append([]int64(nil), l.ids[len(l.ids)-MaxEntries:]...)
	}

	f := ledgerFile{
		IDs:         l.ids,
		Count:       len(l.ids),
		LastUpdated: time.Now(),
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating ledger directory: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}
