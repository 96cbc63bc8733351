package posting

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

// Posting is a single listing extracted from a board page. Immutable once
// extracted; Description may be attached later by detail enrichment before
// the posting enters a digest.
type Posting struct {
	ID          string
	Title       string
	Link        string
	Author      string
	Date        string // raw date text as shown on the board
	Description string
}

// Text returns the searchable text of the posting.
func (p Posting) Text() string {
	if p.Description == "" {
		return p.Title
	}
	return p.Title + "\n" + p.Description
}

// Boards show dates in a handful of layouts; try them in order.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`),
	regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`),
	regexp.MustCompile(`(\d{1,2})-(\d{1,2})-(\d{4})`),
	regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})`),
}

// ParseDate extracts a calendar date from free-form board text. The second
// return is false when no recognizable date is present.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, re := range datePatterns {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		var year, month, day int
		if len(m[1]) == 4 {
			fmt.Sscanf(m[1], "%d", &year)
			fmt.Sscanf(m[2], "%d", &month)
			fmt.Sscanf(m[3], "%d", &day)
		} else {
			fmt.Sscanf(m[1], "%d", &month)
			fmt.Sscanf(m[2], "%d", &day)
			fmt.Sscanf(m[3], "%d", &year)
		}
		if month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		// time.Date normalizes overflow (2/31 becomes 3/3); an impossible
		// calendar date is not a date.
		if d.Year() != year || d.Month() != time.Month(month) || d.Day() != day {
			continue
		}
		return d, true
	}
	return time.Time{}, false
}

// Dedupe removes postings whose ID was already seen earlier in the slice,
// keeping first occurrences in their original order. A posting listed on two
// board pages in the same cycle collapses to one entry.
func Dedupe(postings []Posting) []Posting {
	seen := make(map[string]struct{}, len(postings))
	out := make([]Posting, 0, len(postings))
	for _, p := range postings {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// SortNewestFirst orders postings by publish date, newest first. Postings
// without a parseable date keep their relative order at the end.
func SortNewestFirst(postings []Posting) {
	sort.SliceStable(postings, func(i, j int) bool {
		di, oki := ParseDate(postings[i].Date)
		dj, okj := ParseDate(postings[j].Date)
		if oki != okj {
			return oki
		}
		if !oki {
			return false
		}
		return di.After(dj)
	})
}

// CountByDate tallies postings per calendar day for the digest summary.
// Parseable dates are normalized to YYYY-MM-DD; the rest keep their raw text,
// and postings with no date at all fall under "unknown".
func CountByDate(postings []Posting) map[string]int {
	counts := make(map[string]int)
	for _, p := range postings {
		switch d, ok := ParseDate(p.Date); {
		case ok:
			counts[d.Format("2006-01-02")]++
		case p.Date != "":
			counts[p.Date]++
		default:
			counts["unknown"]++
		}
	}
	return counts
}
