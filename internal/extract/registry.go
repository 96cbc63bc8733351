package extract

import (
	"context"
	"sort"

	"github.com/lzhou1110/boardwatch/internal/posting"
)

// Extractor turns fetched page content into candidate postings. One extractor
// exists per supported site section layout; categories select one by name.
//
// Identifiers must be stable and non-empty: the same real-world posting seen
// in two cycles, possibly at a different page offset, must yield the same id
// or deduplication silently fails. Malformed individual entries are skipped,
// never abort the page.
type Extractor interface {
	Name() string
	// PageURLs expands a board base URL into its first n listing pages.
	PageURLs(base string, pages int) ([]string, error)
	Extract(content []byte, baseURL string) ([]posting.Posting, error)
}

// DescriptionExtractor is implemented by extractors that can pull the body
// text out of a single posting's detail page.
type DescriptionExtractor interface {
	ExtractDescription(content []byte) string
}

// Fetcher is the page retrieval capability extractors and scrapers depend on.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Registry holds the known extractors by name.
type Registry struct {
	extractors map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{extractors: map[string]Extractor{}}
}

func (r *Registry) Register(e Extractor) {
	r.extractors[e.Name()] = e
}

func (r *Registry) Get(name string) (Extractor, bool) {
	e, ok := r.extractors[name]
	return e, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.extractors))
	for name := range r.extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
