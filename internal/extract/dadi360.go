package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/lzhou1110/boardwatch/internal/posting"
	"github.com/lzhou1110/boardwatch/internal/urlutil"
)

// topicsPerPage is how many topics a dadi360 board page lists; the site
// paginates by topic offset in the URL path.
const topicsPerPage = 90

var rowDatePattern = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)

// Dadi360 extracts topic rows from dadi360 board listing pages. Each topic
// sits in a tr.bg_small_yellow row with the title link, an author cell and a
// post-date cell.
type Dadi360 struct {
	logger *slog.Logger
}

func NewDadi360(logger *slog.Logger) *Dadi360 {
	return &Dadi360{logger: logger}
}

func (d *Dadi360) Name() string {
	return "dadi360"
}

func (d *Dadi360) PageURLs(base string, pages int) ([]string, error) {
	return urlutil.ForumPageURLs(base, pages, topicsPerPage)
}

func (d *Dadi360) Extract(content []byte, baseURL string) ([]posting.Posting, error) {
	doc, err := d.parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse board page: %w", err)
	}

	var postings []posting.Posting
	doc.Find("tr.bg_small_yellow").Each(func(i int, row *goquery.Selection) {
		titleLink := row.Find("a[href]").First()
		href, ok := titleLink.Attr("href")
		title := strings.TrimSpace(titleLink.Text())
		if !ok || href == "" || title == "" {
			// A decorated or half-rendered row; skip it, keep the rest.
			d.logger.Warn("skipping board row without title link", "row", i, "page", baseURL)
			return
		}

		link := urlutil.Absolute(baseURL, href)
		id := urlutil.TopicID(link)
		if id == "" {
			id = title + "|" + link
		}

		postings = append(postings, posting.Posting{
			ID:     id,
			Title:  title,
			Link:   link,
			Author: d.author(row),
			Date:   d.postDate(row),
		})
	})
	return postings, nil
}

// ExtractDescription pulls the body text of a topic detail page.
func (d *Dadi360) ExtractDescription(content []byte) string {
	doc, err := d.parse(content)
	if err != nil {
		return ""
	}
	var parts []string
	doc.Find("div.postbody").First().Contents().Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}

// parse decodes the page charset before handing it to goquery; dadi360
// serves a mix of UTF-8 and legacy Chinese encodings.
func (d *Dadi360) parse(content []byte) (*goquery.Document, error) {
	reader, err := charset.NewReader(bytes.NewReader(content), "text/html")
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(reader)
}

func (d *Dadi360) author(row *goquery.Selection) string {
	cell := row.Find("td.row3").First()
	if link := cell.Find("a").First(); link.Length() > 0 {
		return strings.TrimSpace(link.Text())
	}
	return strings.TrimSpace(cell.Text())
}

func (d *Dadi360) postDate(row *goquery.Selection) string {
	cell := row.Find("td.row3[nowrap]").First()
	if span := cell.Find("span.postdetails").First(); span.Length() > 0 {
		if date := strings.TrimSpace(span.Text()); date != "" {
			return date
		}
	}
	if date := strings.TrimSpace(cell.Text()); date != "" {
		return date
	}
	// Fall back to any cell that carries an M/D/YYYY date.
	var date string
	row.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		text := strings.TrimSpace(td.Text())
		if rowDatePattern.MatchString(text) {
			date = text
			return false
		}
		return true
	})
	return date
}
