// Package chat asks the conversational service for a short message about a
// walking route.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"subway-congestion-map/internal/geo"
)

// Query is what the chat service needs to know about a route.
type Query struct {
	DistanceKm  string // already formatted, e.g. "1.23"
	DurationMin string // already formatted, e.g. "16"
	Destination geo.Point
	StationName string // optional
}

type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Enabled() bool { return c != nil && c.base != "" }

// Info returns the reply text for a route.
func (c *Client) Info(ctx context.Context, q Query) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("chat service not configured")
	}
	v := url.Values{}
	v.Set("distance", q.DistanceKm)
	v.Set("time", q.DurationMin)
	v.Set("lnglat", fmt.Sprintf("%f,%f", q.Destination.Lng, q.Destination.Lat))
	if q.StationName != "" {
		v.Set("name", q.StationName)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/info?"+v.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat info: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var obj struct {
		Reply string `json:"reply"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return "", fmt.Errorf("chat info: decode: %w", err)
	}
	return obj.Reply, nil
}
