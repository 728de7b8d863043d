// Package garage loads the sector and spot catalog from the garage
// simulator into the store.
package garage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Catalog is the body of GET /garage.
type Catalog struct {
	Garage []SectorDTO `json:"garage"`
	Spots  []SpotDTO   `json:"spots"`
}

type SectorDTO struct {
	Sector               string      `json:"sector"`
	BasePrice            json.Number `json:"base_price"`
	MaxCapacity          int         `json:"max_capacity"`
	OpenHour             string      `json:"open_hour"`
	CloseHour            string      `json:"close_hour"`
	DurationLimitMinutes int         `json:"duration_limit_minutes"`
}

type SpotDTO struct {
	ID       uint64      `json:"id"`
	Sector   string      `json:"sector"`
	Lat      json.Number `json:"lat"`
	Lng      json.Number `json:"lng"`
	Occupied bool        `json:"occupied"`
}

// Client talks to the garage simulator.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// FetchGarage downloads the catalog.  Non-2xx answers are errors.
func (c *Client) FetchGarage(ctx context.Context) (*Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/garage", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch garage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch garage: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var cat Catalog
	if err := json.NewDecoder(resp.Body).Decode(&cat); err != nil {
		return nil, fmt.Errorf("decode garage: %w", err)
	}
	return &cat, nil
}
