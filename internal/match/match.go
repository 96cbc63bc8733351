package match

import (
	"errors"
	"strings"

	"github.com/lzhou1110/boardwatch/internal/posting"
)

// ErrNoKeywords is returned when a category is configured without keywords.
// An empty set must fail at startup rather than silently match everything.
var ErrNoKeywords = errors.New("keyword set is empty")

// Matcher decides whether a posting's text matches a category's keyword set.
// A posting matches when any keyword appears, case-insensitively, in its
// title or description.
type Matcher struct {
	keywords []string // original casing, for digests and logs
	lowered  []string
}

func New(keywords []string) (*Matcher, error) {
	cleaned := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			cleaned = append(cleaned, kw)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrNoKeywords
	}
	lowered := make([]string, len(cleaned))
	for i, kw := range cleaned {
		lowered[i] = strings.ToLower(kw)
	}
	return &Matcher{keywords: cleaned, lowered: lowered}, nil
}

func (m *Matcher) Matches(p posting.Posting) bool {
	text := strings.ToLower(p.Text())
	for _, kw := range m.lowered {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Filter returns the postings that match, preserving order.
func (m *Matcher) Filter(postings []posting.Posting) []posting.Posting {
	var out []posting.Posting
	for _, p := range postings {
		if m.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}

func (m *Matcher) Keywords() []string {
	return m.keywords
}
