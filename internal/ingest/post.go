package ingest

import (
	"regexp"
	"time"
)

// Author identifies the account a post came from, with the follower count
// observed at fetch time.
type Author struct {
	Handle      string `json:"username"`
	DisplayName string `json:"displayname"`
	Followers   int    `json:"followers"`
}

// Post is one unit of ingested content. Posts are immutable once created;
// only their evaluation outcome is carried downstream.
type Post struct {
	ID      int64     `json:"id"`
	URL     string    `json:"url"`
	Date    time.Time `json:"date"`
	Author  Author    `json:"user"`
	Content string    `json:"content"`
	Lang    string    `json:"lang,omitempty"`
	Replies int       `json:"replyCount"`
	Reposts int       `json:"retweetCount"`
	Likes   int       `json:"likeCount"`
}

// forwardedPattern matches the canonical forwarded-post marker:
// "RT @handle: text". Case-sensitive, prefix only.
var forwardedPattern = regexp.MustCompile(`(?s)^RT @(\w+):\s*(.+)$`)

// ParseForwarded detects the forwarded-post marker at the start of a body.
// When the marker matches it returns (true, original author handle, original
// text); otherwise the whole body is treated as original content.
func ParseForwarded(content string) (forwarded bool, origAuthor, origText string) {
	m := forwardedPattern.FindStringSubmatch(content)
	if m == nil {
		return false, "", content
	}
	return true, m[1], m[2]
}
