// Package mapbox wraps the Mapbox forward geocoding endpoint used for
// pickup and return address autocomplete.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.mapbox.com"

type Client struct {
	HTTPClient  *http.Client
	BaseURL     string
	AccessToken string

	// Country restricts results (ISO 3166 alpha-2). Defaults to "ph".
	Country string
	Limit   int
}

type Suggestion struct {
	ID        string  `json:"id"`
	PlaceName string  `json:"placeName"`
	Text      string  `json:"text"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

type featureCollection struct {
	Features []struct {
		ID        string    `json:"id"`
		Text      string    `json:"text"`
		PlaceName string    `json:"place_name"`
		Center    []float64 `json:"center"`
	} `json:"features"`
	Message string `json:"message"`
}

// Suggest returns address suggestions for a partial query.
func (c Client) Suggest(ctx context.Context, query string) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if c.AccessToken == "" {
		return nil, fmt.Errorf("missing mapbox access token")
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	country := c.Country
	if country == "" {
		country = "ph"
	}
	limit := c.Limit
	if limit <= 0 {
		limit = 5
	}

	q := url.Values{}
	q.Set("access_token", c.AccessToken)
	q.Set("country", country)
	q.Set("types", "address,place,locality,neighborhood,poi")
	q.Set("autocomplete", "true")
	q.Set("limit", fmt.Sprint(limit))
	u := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s", strings.TrimSuffix(base, "/"), url.PathEscape(query), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var fc featureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("decode mapbox response failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mapbox api error: status=%d message=%s", resp.StatusCode, fc.Message)
	}

	out := make([]Suggestion, 0, len(fc.Features))
	for _, f := range fc.Features {
		s := Suggestion{ID: f.ID, PlaceName: f.PlaceName, Text: f.Text}
		if len(f.Center) == 2 {
			s.Longitude, s.Latitude = f.Center[0], f.Center[1]
		}
		out = append(out, s)
	}
	return out, nil
}
