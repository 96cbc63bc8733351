package extract

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

const boardPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>board</title></head><body>
<table>
<tr class="bg_small_yellow">
  <td class="row1"><a href="/c/forums/viewtopic/695288.page">两房一厅出租 近七号线</a></td>
  <td class="row3"><a href="/c/profile/1.page">张三</a></td>
  <td class="row3" nowrap="nowrap"><span class="postdetails">7/4/2025</span></td>
</tr>
<tr class="bg_small_yellow">
  <td class="row1"><a href="https://c.dadi360.com/c/forums/viewtopic/695290.page">美甲店请小工</a></td>
  <td class="row3">李四</td>
  <td class="row3" nowrap="nowrap">7/5/2025</td>
</tr>
<tr class="bg_small_yellow">
  <td class="row1">decorative row without a link</td>
</tr>
<tr class="bg_small_yellow">
  <td class="row1"><a href="/c/forums/posting/new.page"></a></td>
</tr>
<tr class="other_row">
  <td><a href="/c/forums/viewtopic/999.page">not a topic row</a></td>
</tr>
</table>
</body></html>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDadi360_Extract(t *testing.T) {
	d := NewDadi360(testLogger())
	postings, err := d.Extract([]byte(boardPage), "https://c.dadi360.com/c/forums/show/87.page")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(postings) != 2 {
		t.Fatalf("got %d postings, want 2 (malformed rows skipped): %+v", len(postings), postings)
	}

	first := postings[0]
	if first.ID != "695288" {
		t.Errorf("ID = %q, want topic id 695288", first.ID)
	}
	if first.Title != "两房一厅出租 近七号线" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Link != "https://c.dadi360.com/c/forums/viewtopic/695288.page" {
		t.Errorf("Link = %q, want absolute", first.Link)
	}
	if first.Author != "张三" {
		t.Errorf("Author = %q", first.Author)
	}
	if first.Date != "7/4/2025" {
		t.Errorf("Date = %q", first.Date)
	}

	second := postings[1]
	if second.ID != "695290" {
		t.Errorf("ID = %q", second.ID)
	}
	if second.Author != "李四" {
		t.Errorf("Author = %q", second.Author)
	}
	if second.Date != "7/5/2025" {
		t.Errorf("Date = %q (plain cell fallback)", second.Date)
	}
}

func TestDadi360_ExtractStableAcrossPages(t *testing.T) {
	// The same topic fetched from two page offsets must keep one id.
	d := NewDadi360(testLogger())
	p1, err := d.Extract([]byte(boardPage), "https://c.dadi360.com/c/forums/show/87.page")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := d.Extract([]byte(boardPage), "https://c.dadi360.com/c/forums/show/90/87.page")
	if err != nil {
		t.Fatal(err)
	}
	if p1[0].ID != p2[0].ID {
		t.Errorf("ids diverge across page offsets: %q vs %q", p1[0].ID, p2[0].ID)
	}
}

func TestDadi360_IDFallbackWithoutTopicID(t *testing.T) {
	page := `<table><tr class="bg_small_yellow">
	<td><a href="/c/some/odd/link">标题</a></td>
	</tr></table>`
	d := NewDadi360(testLogger())
	postings, err := d.Extract([]byte(page), "https://c.dadi360.com/c/forums/show/87.page")
	if err != nil {
		t.Fatal(err)
	}
	if len(postings) != 1 {
		t.Fatalf("got %d postings", len(postings))
	}
	if postings[0].ID == "" {
		t.Error("fallback id is empty")
	}
	if !strings.Contains(postings[0].ID, "标题") {
		t.Errorf("fallback id %q should include the title", postings[0].ID)
	}
}

func TestDadi360_ExtractDescription(t *testing.T) {
	page := `<html><body>
	<div class="postbody">两房一厅<br>近地铁<br>$2300</div>
	<div class="postbody">second post ignored</div>
	</body></html>`
	d := NewDadi360(testLogger())
	desc := d.ExtractDescription([]byte(page))
	for _, want := range []string{"两房一厅", "近地铁", "$2300"} {
		if !strings.Contains(desc, want) {
			t.Errorf("description %q missing %q", desc, want)
		}
	}
	if strings.Contains(desc, "second post") {
		t.Errorf("description leaked second postbody: %q", desc)
	}
}

func TestDadi360_PageURLs(t *testing.T) {
	d := NewDadi360(testLogger())
	urls, err := d.PageURLs("https://c.dadi360.com/c/forums/show/56.page", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 2 || urls[1] != "https://c.dadi360.com/c/forums/show/90/56.page" {
		t.Errorf("PageURLs = %v", urls)
	}
}
