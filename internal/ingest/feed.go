package ingest

import (
	"context"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/StreamDigest/internal/config"
)

// FeedSource ingests posts from RSS/Atom mirrors of timelines (Nitter-style
// list feeds and the like). Entries that don't carry a numeric status id in
// their link are skipped; the id is what makes dedup and cursors work.
type FeedSource struct {
	feeds      []config.Feed
	maxPerFeed int
	parser     *gofeed.Parser
}

// NewFeedSource creates a FeedSource over the configured feeds.
func NewFeedSource(feeds []config.Feed, maxPerFeed int) *FeedSource {
	if maxPerFeed <= 0 {
		maxPerFeed = 50
	}
	return &FeedSource{feeds: feeds, maxPerFeed: maxPerFeed, parser: gofeed.NewParser()}
}

// Fetch parses all configured feeds and returns posts with ID > sinceID,
// merged newest first.
func (fs *FeedSource) Fetch(ctx context.Context, sinceID int64) ([]Post, error) {
	var all []Post
	for _, fc := range fs.feeds {
		posts, err := fs.parseFeed(ctx, fc, sinceID)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", fc.URL, err)
			continue
		}
		all = append(all, posts...)
		log.Printf("Parsed %d new posts from %s", len(posts), feedName(fc))
	}

	// Status ids are monotonic, so sorting by id descending is newest first.
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return all, nil
}

func (fs *FeedSource) parseFeed(ctx context.Context, fc config.Feed, sinceID int64) ([]Post, error) {
	feed, err := fs.parser.ParseURLWithContext(fc.URL, ctx)
	if err != nil {
		return nil, err
	}

	var posts []Post
	for _, item := range feed.Items {
		if len(posts) >= fs.maxPerFeed {
			break
		}
		post := itemToPost(item)
		if post == nil {
			continue
		}
		if sinceID > 0 && post.ID <= sinceID {
			continue
		}
		posts = append(posts, *post)
	}
	return posts, nil
}

// itemToPost maps one feed entry to a Post. Returns nil when the entry has no
// parsable status id or no content.
func itemToPost(item *gofeed.Item) *Post {
	id := statusID(item.Link)
	if id == 0 {
		id = statusID(item.GUID)
	}
	if id == 0 {
		return nil
	}

	content := item.Title
	if item.Description != "" {
		content = stripHTML(item.Description)
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var handle, display string
	if item.Author != nil {
		handle = strings.TrimPrefix(strings.TrimSpace(item.Author.Name), "@")
		display = handle
	}

	date := time.Now()
	if item.PublishedParsed != nil {
		date = *item.PublishedParsed
	}

	return &Post{
		ID:      id,
		URL:     item.Link,
		Date:    date,
		Author:  Author{Handle: handle, DisplayName: display},
		Content: content,
	}
}

// statusID extracts the trailing numeric status id from a post URL, e.g.
// ".../status/1874512345678901234#m" -> 1874512345678901234.
func statusID(link string) int64 {
	if link == "" {
		return 0
	}
	if i := strings.IndexByte(link, '#'); i >= 0 {
		link = link[:i]
	}
	idx := strings.LastIndex(link, "/status/")
	if idx < 0 {
		return 0
	}
	digits := link[idx+len("/status/"):]
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func feedName(fc config.Feed) string {
	if fc.Name != "" {
		return fc.Name
	}
	return fc.URL
}
