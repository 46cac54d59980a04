package websearch

import (
	"context"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Service wraps a backend with result hygiene: duplicate URLs are dropped
// and hits are reordered by how many query terms they actually mention.
type Service struct {
	searcher Searcher
}

func NewService(searcher Searcher) *Service {
	return &Service{searcher: searcher}
}

func (s *Service) Enabled() bool {
	return s != nil && s.searcher != nil
}

func (s *Service) Search(ctx context.Context, query string, count int) ([]Result, error) {
	if !s.Enabled() {
		return nil, nil
	}
	raw, err := s.searcher.Search(ctx, query, count)
	if err != nil {
		return nil, err
	}
	results := rankResults(dedupeResults(raw), query)
	if len(results) > count {
		results = results[:count]
	}
	logutil.GetLogger(ctx).Debug("web search completed",
		zap.String("backend", s.searcher.Name()), zap.Int("results", len(results)))
	return results, nil
}

// TestConnection fires a trivial query to verify credentials.
func (s *Service) TestConnection(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.searcher.Search(ctx, "connectivity check", 1)
	return err
}

func dedupeResults(results []Result) []Result {
	seen := make(map[string]struct{}, len(results))
	out := make([]Result, 0, len(results))
	for _, result := range results {
		key := strings.TrimRight(strings.ToLower(result.URL), "/")
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, result)
	}
	return out
}

// rankResults scores each hit by query-term frequency in its title and
// snippet, title matches weighted double. The sort is stable so backend
// order breaks ties.
func rankResults(results []Result, query string) []Result {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return results
	}
	scores := make([]int, len(results))
	for i, result := range results {
		title := strings.ToLower(result.Title)
		snippet := strings.ToLower(result.Snippet)
		for _, term := range terms {
			scores[i] += 2*strings.Count(title, term) + strings.Count(snippet, term)
		}
	}
	ranked := make([]Result, len(results))
	copy(ranked, results)
	indices := make([]int, len(results))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool { return scores[indices[a]] > scores[indices[b]] })
	for i, idx := range indices {
		ranked[i] = results[idx]
	}
	return ranked
}
