// Package catalog is the read-only item lookup the draft phase feeds on.
// The server only ever filters and sorts what a provider returns; the
// provider itself is stateless and external.
package catalog

import (
	"context"
	"sort"
	"strings"
)

type Item struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Year            int      `json:"year,omitempty"`
	Genres          []string `json:"genres,omitempty"`
	CommunityRating float64  `json:"community_rating,omitempty"`
}

type SortField string

const (
	SortByName   SortField = "name"
	SortByYear   SortField = "year"
	SortByRating SortField = "rating"
)

type Query struct {
	Search     string
	Genre      string
	SortBy     SortField
	Descending bool
}

type Provider interface {
	Items(ctx context.Context, q Query) ([]Item, error)
}

// ApplyQuery filters and sorts in place of a provider that cannot do it
// server-side.
func ApplyQuery(items []Item, q Query) []Item {
	out := make([]Item, 0, len(items))
	search := strings.ToLower(q.Search)
	for _, it := range items {
		if search != "" && !strings.Contains(strings.ToLower(it.Name), search) {
			continue
		}
		if q.Genre != "" && !hasGenre(it, q.Genre) {
			continue
		}
		out = append(out, it)
	}

	less := func(i, j int) bool { return out[i].Name < out[j].Name }
	switch q.SortBy {
	case SortByYear:
		less = func(i, j int) bool { return out[i].Year < out[j].Year }
	case SortByRating:
		less = func(i, j int) bool { return out[i].CommunityRating < out[j].CommunityRating }
	}
	if q.Descending {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(out, less)
	return out
}

func hasGenre(it Item, genre string) bool {
	for _, g := range it.Genres {
		if strings.EqualFold(g, genre) {
			return true
		}
	}
	return false
}

// Static serves a fixed item list, for development and tests.
type Static struct {
	items []Item
}

func NewStatic(items []Item) *Static {
	return &Static{items: items}
}

func (s *Static) Items(_ context.Context, q Query) ([]Item, error) {
	return ApplyQuery(s.items, q), nil
}

// SampleItems is the default development catalog.
var SampleItems = []Item{
	{ID: "item-1", Name: "The Matrix", Year: 1999, Genres: []string{"Action", "Sci-Fi"}, CommunityRating: 8.7},
	{ID: "item-2", Name: "Inception", Year: 2010, Genres: []string{"Action", "Thriller"}, CommunityRating: 8.8},
	{ID: "item-3", Name: "Pulp Fiction", Year: 1994, Genres: []string{"Crime"}, CommunityRating: 8.9},
	{ID: "item-4", Name: "The Shawshank Redemption", Year: 1994, Genres: []string{"Drama"}, CommunityRating: 9.3},
	{ID: "item-5", Name: "Spirited Away", Year: 2001, Genres: []string{"Animation", "Fantasy"}, CommunityRating: 8.6},
	{ID: "item-6", Name: "Parasite", Year: 2019, Genres: []string{"Thriller", "Drama"}, CommunityRating: 8.5},
}
