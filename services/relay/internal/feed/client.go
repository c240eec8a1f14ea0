package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/models"
)

// DefaultBaseURL is the public airplanes.live API.
const DefaultBaseURL = "https://api.airplanes.live"

// Query selects the circle of airspace to poll.
type Query struct {
	Lat      float64
	Lon      float64
	RadiusNM int
}

// Client retrieves aircraft from the airplanes.live point endpoint.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient builds a feed client. A nil httpClient uses http.DefaultClient.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: httpClient, baseURL: baseURL}
}

// PointURL returns the request URL for q.
func (c *Client) PointURL(q Query) string {
	return c.baseURL + "/v2/point/" +
		models.FormatFloat(q.Lat) + "/" +
		models.FormatFloat(q.Lon) + "/" +
		strconv.Itoa(q.RadiusNM)
}

// FetchAircraft retrieves the current aircraft inside q. Non-2xx statuses and
// undecodable payloads are errors; a payload without an aircraft list is not.
func (c *Client) FetchAircraft(ctx context.Context, q Query) (models.FeedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PointURL(q), nil)
	if err != nil {
		return models.FeedResponse{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.FeedResponse{}, fmt.Errorf("request point feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.FeedResponse{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.FeedResponse{}, fmt.Errorf("read payload: %w", err)
	}

	return models.ParseFeed(body)
}
