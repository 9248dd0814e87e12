package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Source produces a finite, newest-first sequence of posts. An empty result
// is a legitimate outcome, not an error.
type Source interface {
	Fetch(ctx context.Context, sinceID int64) ([]Post, error)
}

// Capture is the on-disk shape of a pre-fetched post file, as written by an
// external scraper.
type Capture struct {
	FetchTime time.Time `json:"fetch_time"`
	Count     int       `json:"count"`
	Posts     []Post    `json:"posts"`
}

// FileSource reads posts from a pre-fetched JSON capture instead of a live
// timeline. Used by `run --input`.
type FileSource struct {
	Path string
}

// Fetch loads the capture and returns its posts newer than sinceID,
// preserving file order.
func (f *FileSource) Fetch(_ context.Context, sinceID int64) ([]Post, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading capture: %w", err)
	}

	var capture Capture
	if err := json.Unmarshal(data, &capture); err != nil {
		return nil, fmt.Errorf("parsing capture: %w", err)
	}

	var posts []Post
	for _, p := range capture.Posts {
		if sinceID > 0 && p.ID <= sinceID {
			continue
		}
		posts = append(posts, p)
	}
	return posts, nil
}
