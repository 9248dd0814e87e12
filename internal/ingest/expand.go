package ingest

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const maxExpandedChars = 1500

var urlPattern = regexp.MustCompile(`https?://\S+`)

// LinkExpander enriches link-only posts with readable text from the linked
// page, so the judgment oracle has something to judge beyond a bare URL.
type LinkExpander struct {
	client *http.Client
}

// NewLinkExpander creates a link expander with the given HTTP timeout.
func NewLinkExpander(timeout time.Duration) *LinkExpander {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &LinkExpander{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// ExpandAll expands every link-only post in place. Failures are logged and
// leave the post untouched.
func (e *LinkExpander) ExpandAll(posts []Post) []Post {
	expanded := 0
	for i := range posts {
		link, ok := linkOnlyContent(posts[i].Content)
		if !ok {
			continue
		}
		text := e.fetchReadable(link)
		if text == "" {
			continue
		}
		posts[i].Content = posts[i].Content + "\n\n[linked page] " + text
		expanded++
	}
	if expanded > 0 {
		log.Printf("Expanded %d link-only posts", expanded)
	}
	return posts
}

// linkOnlyContent reports whether a body is essentially just a URL, and
// returns that URL.
func linkOnlyContent(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	match := urlPattern.FindString(trimmed)
	if match == "" {
		return "", false
	}
	rest := strings.TrimSpace(strings.Replace(trimmed, match, "", 1))
	if len(rest) > 40 {
		return "", false
	}
	return match, true
}

func (e *LinkExpander) fetchReadable(pageURL string) string {
	req, err := http.NewRequest("GET", pageURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "StreamDigest/1.0 (post curator)")

	resp, err := e.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ""
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return ""
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < 100 {
		return ""
	}
	if len(text) > maxExpandedChars {
		text = text[:maxExpandedChars] + "..."
	}
	return text
}
