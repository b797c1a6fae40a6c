// Package distance asks a routing service how far apart places are.
package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Element is the route between one origin and one destination.
type Element struct {
	Meters   int
	Duration time.Duration

	DistanceText string
	DurationText string
}

// Matrix returns result[i][j] for origins[i] and destinations[j]. Pairs that
// cannot be routed are nil.
type Matrix interface {
	DistanceMatrix(ctx context.Context, origins, destinations []string) ([][]*Element, error)
}

// Google uses the Google Distance Matrix API.
type Google struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewGoogle creates a client with the given API key.
func NewGoogle(apiKey string) *Google {
	return &Google{
		apiKey:  apiKey,
		baseURL: "https://maps.googleapis.com/maps/api/distancematrix/json",
		http:    &http.Client{Timeout: 20 * time.Second},
	}
}

type textValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

type matrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string    `json:"status"`
			Distance textValue `json:"distance"`
			Duration textValue `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

func (g *Google) DistanceMatrix(ctx context.Context, origins, destinations []string) ([][]*Element, error) {
	if len(origins) == 0 || len(destinations) == 0 {
		return nil, nil
	}

	q := url.Values{
		"origins":      {strings.Join(origins, "|")},
		"destinations": {strings.Join(destinations, "|")},
		"units":        {"imperial"},
		"key":          {g.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building distance request: %w", err)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling distance matrix: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("distance matrix: status %d", resp.StatusCode)
	}

	var body matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding distance matrix: %w", err)
	}
	if body.Status != "OK" {
		return nil, fmt.Errorf("distance matrix: %s %s", body.Status, body.ErrorMessage)
	}
	if len(body.Rows) != len(origins) {
		return nil, fmt.Errorf("distance matrix: got %d rows for %d origins", len(body.Rows), len(origins))
	}

	out := make([][]*Element, len(origins))
	for i, row := range body.Rows {
		out[i] = make([]*Element, len(destinations))
		for j, el := range row.Elements {
			if j >= len(destinations) || el.Status != "OK" {
				continue
			}
			out[i][j] = &Element{
				Meters:       el.Distance.Value,
				Duration:     time.Duration(el.Duration.Value) * time.Second,
				DistanceText: el.Distance.Text,
				DurationText: el.Duration.Text,
			}
		}
	}
	return out, nil
}
