package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lzhou1110/boardwatch/internal/posting"
)

// Notifier dispatches one digest covering all new postings of a cycle. An
// empty batch must not invoke the transport at all.
type Notifier interface {
	Notify(ctx context.Context, subject string, postings []posting.Posting, keywords []string) error
}

// BuildBody renders the plain-text digest: a per-date summary followed by a
// numbered entry per posting in the given order.
func BuildBody(postings []posting.Posting, keywords []string) string {
	var b strings.Builder

	b.WriteString("Hello,\n\n")
	fmt.Fprintf(&b, "Found %d new posting(s)", len(postings))
	if len(keywords) > 0 {
		fmt.Fprintf(&b, " matching keywords: %s", strings.Join(keywords, ", "))
	}
	b.WriteString("\n")
	b.WriteString(summarize(postings))
	b.WriteString("\n")

	for i, p := range postings {
		date := p.Date
		if date == "" {
			date = "unknown"
		}
		fmt.Fprintf(&b, "%d. Date:   %s\n", i+1, date)
		fmt.Fprintf(&b, "   Title:  %s\n", p.Title)
		if p.Author != "" {
			fmt.Fprintf(&b, "   Author: %s\n", p.Author)
		}
		fmt.Fprintf(&b, "   Link:   %s\n", p.Link)
		if p.Description != "" {
			fmt.Fprintf(&b, "   Details: %s\n", p.Description)
		}
		b.WriteString("   " + strings.Repeat("-", 50) + "\n")
	}

	fmt.Fprintf(&b, "\nSent at %s\n", time.Now().Format("2006-01-02 15:04:05"))
	return b.String()
}

func summarize(postings []posting.Posting) string {
	counts := posting.CountByDate(postings)
	if len(counts) == 0 {
		return ""
	}

	dates := make([]string, 0, len(counts))
	for date := range counts {
		dates = append(dates, date)
	}
	// Unknown dates go last.
	sort.Slice(dates, func(i, j int) bool {
		if (dates[i] == "unknown") != (dates[j] == "unknown") {
			return dates[j] == "unknown"
		}
		return dates[i] < dates[j]
	})

	var b strings.Builder
	b.WriteString("By date:\n")
	for _, date := range dates {
		fmt.Fprintf(&b, "  %s: %d\n", date, counts[date])
	}
	return b.String()
}
