package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func names(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Name)
	}
	return out
}

func TestApplyQueryFilterAndSort(t *testing.T) {
	cases := []struct {
		name  string
		query Query
		want  []string
	}{
		{
			name:  "no query keeps everything sorted by name",
			query: Query{},
			want:  []string{"Inception", "Parasite", "Pulp Fiction", "Spirited Away", "The Matrix", "The Shawshank Redemption"},
		},
		{
			name:  "search is case-insensitive substring",
			query: Query{Search: "the"},
			want:  []string{"The Matrix", "The Shawshank Redemption"},
		},
		{
			name:  "genre filter is case-insensitive",
			query: Query{Genre: "thriller"},
			want:  []string{"Inception", "Parasite"},
		},
		{
			name:  "sort by year descending",
			query: Query{SortBy: SortByYear, Descending: true},
			want:  []string{"Parasite", "Inception", "Spirited Away", "The Matrix", "Pulp Fiction", "The Shawshank Redemption"},
		},
		{
			name:  "sort by rating",
			query: Query{SortBy: SortByRating, Descending: true},
			want:  []string{"The Shawshank Redemption", "Pulp Fiction", "Inception", "The Matrix", "Spirited Away", "Parasite"},
		},
		{
			name:  "combined search and genre",
			query: Query{Search: "para", Genre: "drama"},
			want:  []string{"Parasite"},
		},
		{
			name:  "no matches",
			query: Query{Search: "zzz"},
			want:  []string{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplyQuery(SampleItems, tc.query)
			assert.Equal(t, tc.want, names(got))
		})
	}
}

func TestApplyQueryStableTiesKeepInputOrder(t *testing.T) {
	items := []Item{
		{ID: "1", Name: "First", Year: 1994},
		{ID: "2", Name: "Second", Year: 1994},
	}
	got := ApplyQuery(items, Query{SortBy: SortByYear})
	require.Len(t, got, 2)
	assert.Equal(t, "First", got[0].Name)
	assert.Equal(t, "Second", got[1].Name)
}

func TestStaticProvider(t *testing.T) {
	p := NewStatic(SampleItems)
	got, err := p.Items(context.Background(), Query{Genre: "crime"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Pulp Fiction"}, names(got))
}

func TestHTTPProviderFetchesAndQueries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Items", r.URL.Path)
		assert.Equal(t, "Movie", r.URL.Query().Get("IncludeItemTypes"))
		assert.Equal(t, "secret-token", r.Header.Get("X-Emby-Token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Items":[
			{"Id":"m1","Name":"Alien","ProductionYear":1979,"CommunityRating":8.5,"Genres":["Horror","Sci-Fi"]},
			{"Id":"m2","Name":"Aliens","ProductionYear":1986,"CommunityRating":8.4,"Genres":["Action","Sci-Fi"]},
			{"Id":"m3","Name":"Amelie","ProductionYear":2001,"CommunityRating":8.3,"Genres":["Romance"]}
		]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "secret-token", zap.NewNop())
	got, err := p.Items(context.Background(), Query{Genre: "sci-fi", SortBy: SortByYear})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alien", "Aliens"}, names(got))
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, 1979, got[0].Year)
}

func TestHTTPProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "bad-token", zap.NewNop())
	_, err := p.Items(context.Background(), Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
