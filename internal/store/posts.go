package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/TobiSchelling/StreamDigest/internal/classify"
	"github.com/TobiSchelling/StreamDigest/internal/evaluate"
)

// PostRow is one archived post with its verdict.
type PostRow struct {
	ID             int64
	RunID          string
	URL            string
	AuthorHandle   string
	AuthorName     string
	Followers      int
	Content        string
	PostedAt       string
	IsRelevant     bool
	RelevanceScore int
	ValueScore     int
	Reason         string
	IsSuspect      bool
	SuspectReason  string
	Accepted       bool
	EvaluatedAt    string
}

// ArchivePost stores an evaluated post with its verdict. Re-archiving the
// same post id replaces the earlier row.
func (db *DB) ArchivePost(runID string, s evaluate.Scored, accepted bool) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO posts
		(id, run_id, url, author_handle, author_name, followers, content, posted_at,
		 is_relevant, relevance_score, value_score, reason, is_suspect, suspect_reason, accepted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Post.ID, runID, s.Post.URL, s.Post.Author.Handle, s.Post.Author.DisplayName,
		s.Post.Author.Followers, s.Post.Content, s.Post.Date.Format(time.RFC3339),
		s.Verdict.IsRelevant, s.Verdict.RelevanceScore, s.Verdict.ValueScore,
		s.Verdict.Reason, s.Verdict.IsSuspect, s.Verdict.SuspectReason, accepted,
	)
	return err
}

// ArchiveClassification stores a post's digest placement.
func (db *DB) ArchiveClassification(postID int64, c classify.Classification) error {
	points, _ := json.Marshal(c.KeyPoints)
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO classifications (post_id, category, sub_category, summary, key_points)
		VALUES (?, ?, ?, ?, ?)`,
		postID, c.Category, c.SubCategory, c.Summary, string(points),
	)
	return err
}

// GetPost returns one archived post, or nil if absent.
func (db *DB) GetPost(id int64) (*PostRow, error) {
	row := db.conn.QueryRow(
		`SELECT id, run_id, url, author_handle, author_name, followers, content, posted_at,
		 is_relevant, relevance_score, value_score, reason, is_suspect, suspect_reason, accepted, evaluated_at
		FROM posts WHERE id = ?`, id,
	)
	var p PostRow
	err := row.Scan(&p.ID, &p.RunID, &p.URL, &p.AuthorHandle, &p.AuthorName, &p.Followers,
		&p.Content, &p.PostedAt, &p.IsRelevant, &p.RelevanceScore, &p.ValueScore,
		&p.Reason, &p.IsSuspect, &p.SuspectReason, &p.Accepted, &p.EvaluatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CountPosts returns total and accepted post counts.
func (db *DB) CountPosts() (total, accepted int, err error) {
	err = db.conn.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(accepted), 0) FROM posts",
	).Scan(&total, &accepted)
	return total, accepted, err
}

// PostsByAuthor returns a handle's archived posts, newest first.
func (db *DB) PostsByAuthor(handle string, limit int) ([]PostRow, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, url, author_handle, author_name, followers, content, posted_at,
		 is_relevant, relevance_score, value_score, reason, is_suspect, suspect_reason, accepted, evaluated_at
		FROM posts WHERE author_handle = ? ORDER BY id DESC LIMIT ?`, handle, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PostRow
	for rows.Next() {
		var p PostRow
		if err := rows.Scan(&p.ID, &p.RunID, &p.URL, &p.AuthorHandle, &p.AuthorName, &p.Followers,
			&p.Content, &p.PostedAt, &p.IsRelevant, &p.RelevanceScore, &p.ValueScore,
			&p.Reason, &p.IsSuspect, &p.SuspectReason, &p.Accepted, &p.EvaluatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DigestRow is one archived digest document.
type DigestRow struct {
	ID          int64
	RunID       string
	GeneratedAt string
	PostCount   int
	Path        string
	Markdown    string
}

// ArchiveDigest stores a rendered digest.
func (db *DB) ArchiveDigest(runID string, generatedAt time.Time, postCount int, path, markdown string) error {
	_, err := db.conn.Exec(
		`INSERT INTO digests (run_id, generated_at, post_count, path, markdown)
		VALUES (?, ?, ?, ?, ?)`,
		runID, generatedAt.Format(time.RFC3339), postCount, path, markdown,
	)
	return err
}

// ListDigests returns digest metadata, newest first, without the markdown body.
func (db *DB) ListDigests(limit int) ([]DigestRow, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, generated_at, post_count, path FROM digests
		ORDER BY generated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DigestRow
	for rows.Next() {
		var d DigestRow
		if err := rows.Scan(&d.ID, &d.RunID, &d.GeneratedAt, &d.PostCount, &d.Path); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDigest returns one digest including its markdown, or nil if absent.
func (db *DB) GetDigest(id int64) (*DigestRow, error) {
	row := db.conn.QueryRow(
		`SELECT id, run_id, generated_at, post_count, path, markdown FROM digests WHERE id = ?`, id,
	)
	var d DigestRow
	err := row.Scan(&d.ID, &d.RunID, &d.GeneratedAt, &d.PostCount, &d.Path, &d.Markdown)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
