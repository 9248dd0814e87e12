package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/StreamDigest/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No digests yet") {
		t.Error("empty archive should show the empty state")
	}
}

func TestIndexListsDigests(t *testing.T) {
	db := openTestDB(t)
	at := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	db.ArchiveDigest("run-1", at, 4, "/tmp/d.md", "# body")

	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "4 posts") {
		t.Errorf("expected digest entry in index:\n%s", body)
	}
}

func TestDigestRoute(t *testing.T) {
	db := openTestDB(t)
	at := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	markdown := "---\ngenerated_at: 2026-08-28T09:00:00Z\npost_count: 1\nperiod: 2026-08-28\n---\n\n## 🔥 News\n\nSomething shipped"
	db.ArchiveDigest("run-1", at, 1, "/tmp/d.md", markdown)

	digests, _ := db.ListDigests(1)
	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", fmt.Sprintf("/digest/%d", digests[0].ID), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h2") || !strings.Contains(body, "Something shipped") {
		t.Errorf("markdown should render to HTML:\n%s", body)
	}
	if strings.Contains(body, "generated_at:") {
		t.Error("front matter should be stripped before rendering")
	}
}

func TestDigestMissing(t *testing.T) {
	db := openTestDB(t)
	srv, _ := New(db)

	req := httptest.NewRequest("GET", "/digest/999", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestUnknownPath(t *testing.T) {
	db := openTestDB(t)
	srv, _ := New(db)

	req := httptest.NewRequest("GET", "/nope", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestStripFrontMatter(t *testing.T) {
	in := "---\na: 1\n---\n\n# Body"
	if got := stripFrontMatter(in); got != "# Body" {
		t.Errorf("got %q", got)
	}
	if got := stripFrontMatter("# No front matter"); got != "# No front matter" {
		t.Errorf("got %q", got)
	}
}
