package ingest

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// State is the ingestion cursor, persisted across runs so each run only
// fetches posts newer than the last one seen.
type State struct {
	LastFetchTime time.Time `json:"last_fetch_time"`
	LastPostID    int64     `json:"last_post_id"`
	TotalFetched  int       `json:"total_fetched"`
}

// LoadState reads the cursor file. A missing or corrupt file yields a zero
// state (full fetch) rather than an error.
func LoadState(path string) *State {
	data, err := os.ReadFile(path)
	if err != nil {
		return &State{}
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		log.Printf("Ignoring corrupt cursor state %s: %v", path, err)
		return &State{}
	}
	return &s
}

// Save writes the cursor atomically: whole file to a temp sibling, then
// rename over the target.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cursor state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cursor state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing cursor state: %w", err)
	}
	return nil
}

// Advance records a completed fetch that ended at newestID.
func (s *State) Advance(newestID int64, fetched int) {
	s.LastFetchTime = time.Now()
	if newestID > s.LastPostID {
		s.LastPostID = newestID
	}
	s.TotalFetched += fetched
}
