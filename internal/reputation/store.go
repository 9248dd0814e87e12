// Package reputation maintains a durable quality profile per author and
// produces the periodic quality report with removal recommendations.
package reputation

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// scoreRingSize bounds the per-author ring of recent value scores.
const scoreRingSize = 20

// Record is the durable reputation state for one author handle. Mutated
// exactly once per evaluated post, never deleted.
type Record struct {
	DisplayName string    `json:"displayname"`
	Followers   int       `json:"followers"`
	Total       int       `json:"total_posts"`
	Passed      int       `json:"passed_posts"`
	Rejected    int       `json:"rejected_posts"`
	TotalScore  int       `json:"total_score"`
	Scores      []int     `json:"scores"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// PassRate returns passed/total, 0 for an empty record.
func (r *Record) PassRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Passed) / float64(r.Total)
}

// RecentAvg returns the mean of the score ring, 0 when empty.
func (r *Record) RecentAvg() float64 {
	if len(r.Scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range r.Scores {
		sum += s
	}
	return float64(sum) / float64(len(r.Scores))
}

// Store owns the author reputation map for the process lifetime. Loaded in
// full at startup, rewritten in full at end of run. Single writer.
type Store struct {
	path    string
	authors map[string]*Record
}

type storeFile struct {
	Authors     map[string]*Record `json:"authors"`
	LastUpdated time.Time          `json:"last_updated"`
}

// LoadStore reads the reputation store from disk. A missing or corrupt file
// yields an empty store; reputation fidelity degrades for the run but the
// run proceeds.
func LoadStore(path string) *Store {
	s := &Store{path: path, authors: make(map[string]*Record)}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		log.Printf("Ignoring corrupt reputation store %s: %v", path, err)
		return s
	}
	if f.Authors != nil {
		s.authors = f.Authors
	}
	return s
}

// Update records one evaluated post for an author, creating the record on
// first sight. Display name and follower count always take the latest seen
// values; the score ring keeps the most recent entries only.
func (s *Store) Update(handle, displayName string, followers int, passed bool, score int) {
	now := time.Now()
	rec, ok := s.authors[handle]
	if !ok {
		rec = &Record{FirstSeen: now}
		s.authors[handle] = rec
	}

	rec.DisplayName = displayName
	rec.Followers = followers
	rec.LastSeen = now
	rec.Total++
	if passed {
		rec.Passed++
	} else {
		rec.Rejected++
	}
	rec.TotalScore += score
	rec.Scores = append(rec.Scores, score)
	if len(rec.Scores) > scoreRingSize {
		rec.Scores = rec.Scores[len(rec.Scores)-scoreRingSize:]
	}
}

// Get returns the record for a handle, or nil.
func (s *Store) Get(handle string) *Record {
	return s.authors[handle]
}

// Len returns the number of tracked authors.
func (s *Store) Len() int {
	return len(s.authors)
}

// Persist writes the store atomically: whole document to a temp sibling,
// then rename over the target.
func (s *Store) Persist() error {
	f := storeFile{Authors: s.authors, LastUpdated: time.Now()}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling reputation store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating reputation directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing reputation store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing reputation store: %w", err)
	}
	return nil
}
