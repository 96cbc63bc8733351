package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	topicIDPattern = regexp.MustCompile(`/(\d+)\.page$`)
	offsetSegment  = regexp.MustCompile(`^\d+$`)
)

// Absolute resolves href against base. Scheme-less results default to https,
// matching how board markup links back to itself.
func Absolute(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	resolved := b.ResolveReference(h)
	if resolved.Scheme == "" {
		resolved.Scheme = "https"
	}
	return resolved.String()
}

// TopicID extracts the numeric topic identifier from a board link, e.g.
// ".../viewtopic/695288.page" yields "695288". Returns "" when the link does
// not carry one.
func TopicID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	m := topicIDPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return m[1]
}

// ForumPageURLs builds the board page URLs for the first n pages of a forum
// listing. dadi360 paginates by topic offset in the path: page 1 is
// /c/forums/show/87.page, page 2 is /c/forums/show/90/87.page, and so on in
// steps of perPage topics.
func ForumPageURLs(base string, pages, perPage int) ([]string, error) {
	if pages < 1 {
		return nil, fmt.Errorf("forum pages must be positive, got %d", pages)
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse forum url %q: %w", base, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("forum url %q has no host", base)
	}

	cleaned := path.Clean(u.Path)
	dir, file := path.Split(cleaned)
	if !strings.HasSuffix(file, ".page") {
		return nil, errors.New("forum url does not end in a .page path")
	}
	// A base that already carries an offset segment is reduced to page one.
	dir = strings.TrimSuffix(dir, "/")
	if last := path.Base(dir); offsetSegment.MatchString(last) {
		dir = path.Dir(dir)
	}

	urls := make([]string, 0, pages)
	for page := 1; page <= pages; page++ {
		pu := *u
		if page == 1 {
			pu.Path = path.Join(dir, file)
		} else {
			offset := (page - 1) * perPage
			pu.Path = path.Join(dir, fmt.Sprintf("%d", offset), file)
		}
		urls = append(urls, pu.String())
	}
	return urls, nil
}
