package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// HTTPProvider talks to a Jellyfin-compatible media server. Query filtering
// and sorting happen locally after the fetch, the same for every provider.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

type mediaItem struct {
	Name            string   `json:"Name"`
	ID              string   `json:"Id"`
	ProductionYear  int      `json:"ProductionYear"`
	CommunityRating float64  `json:"CommunityRating"`
	Genres          []string `json:"Genres"`
}

type mediaResponse struct {
	Items []mediaItem `json:"Items"`
}

func NewHTTPProvider(baseURL, apiKey string, logger *zap.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
}

func (p *HTTPProvider) Items(ctx context.Context, q Query) ([]Item, error) {
	const path = "/Items?IncludeItemTypes=Movie&Recursive=true&Fields=Genres"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("X-Emby-Token", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var result mediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}

	items := make([]Item, 0, len(result.Items))
	for _, m := range result.Items {
		items = append(items, Item{
			ID:              m.ID,
			Name:            m.Name,
			Year:            m.ProductionYear,
			Genres:          m.Genres,
			CommunityRating: m.CommunityRating,
		})
	}
	p.logger.Debug("fetched catalog items", zap.Int("count", len(items)))

	return ApplyQuery(items, q), nil
}
