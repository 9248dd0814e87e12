package store

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY,
    run_id TEXT,
    url TEXT,
    author_handle TEXT NOT NULL,
    author_name TEXT,
    followers INTEGER DEFAULT 0,
    content TEXT,
    posted_at TEXT,
    is_relevant INTEGER DEFAULT 0,
    relevance_score INTEGER DEFAULT 0,
    value_score INTEGER DEFAULT 0,
    reason TEXT,
    is_suspect INTEGER DEFAULT 0,
    suspect_reason TEXT,
    accepted INTEGER DEFAULT 0,
    evaluated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS classifications (
    post_id INTEGER PRIMARY KEY REFERENCES posts(id),
    category TEXT NOT NULL,
    sub_category TEXT,
    summary TEXT,
    key_points TEXT,
    classified_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS digests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT,
    generated_at TEXT NOT NULL,
    post_count INTEGER DEFAULT 0,
    path TEXT,
    markdown TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_handle);
CREATE INDEX IF NOT EXISTS idx_posts_accepted ON posts(accepted);
CREATE INDEX IF NOT EXISTS idx_digests_generated ON digests(generated_at);
`)
			return err
		},
	},
}

func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
