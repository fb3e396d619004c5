package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/glitchcodes/restroom-backend/internal/places"
)

const (
	// BaseURL is the legacy Places web service root.
	BaseURL = "https://maps.googleapis.com/maps/api/place"

	// DefaultPageDelay is how long a next_page_token takes to become valid.
	DefaultPageDelay = 2 * time.Second

	// MaxPages caps textsearch pagination. Google never returns more than 3.
	MaxPages = 3

	detailsFields = "place_id,name,formatted_address,vicinity,geometry,types"
)

// Client is an HTTP client for the Google Places API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	pageDelay  time.Duration
}

// NewClient creates a Places client. qps <= 0 disables rate limiting.
func NewClient(apiKey string, qps float64, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = places.DefaultTimeout
	}
	limit := rate.Inf
	if qps > 0 {
		limit = rate.Limit(qps)
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:   rate.NewLimiter(limit, 1),
		pageDelay: DefaultPageDelay,
	}
}

// WithBaseURL points the client at a different host. Used by tests.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

// WithPageDelay overrides the wait between textsearch pages.
func (c *Client) WithPageDelay(d time.Duration) *Client {
	c.pageDelay = d
	return c
}

// NearbySearch lists establishments around a coordinate in Google's
// prominence order.
func (c *Client) NearbySearch(ctx context.Context, lat, lng, radiusMeters float64, placeType string) ([]placeResult, error) {
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", lat, lng))
	params.Set("radius", strconv.Itoa(int(radiusMeters+0.5)))
	if placeType != "" {
		params.Set("type", placeType)
	}

	var body placesResponse
	if err := c.get(ctx, "nearbysearch", params, &body); err != nil {
		return nil, err
	}
	if err := checkStatus("nearbysearch", body.Status, body.ErrorMessage); err != nil {
		return nil, err
	}
	return body.Results, nil
}

// Details fetches a single place. It returns nil, nil for an unknown id.
func (c *Client) Details(ctx context.Context, placeID string) (*placeResult, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailsFields)

	var body detailsResponse
	if err := c.get(ctx, "details", params, &body); err != nil {
		return nil, err
	}
	switch body.Status {
	case statusNotFound, statusZeroResults:
		return nil, nil
	case statusInvalidRequest:
		// Malformed ids come back as INVALID_REQUEST rather than NOT_FOUND.
		return nil, nil
	}
	if err := checkStatus("details", body.Status, body.ErrorMessage); err != nil {
		return nil, err
	}
	return body.Result, nil
}

// TextSearch runs a free-text query, following next_page_token up to
// MaxPages pages.
func (c *Client) TextSearch(ctx context.Context, query string) ([]placeResult, error) {
	var all []placeResult
	token := ""

	for page := 0; page < MaxPages; page++ {
		params := url.Values{}
		if token == "" {
			params.Set("query", query)
		} else {
			params.Set("pagetoken", token)
		}

		var body placesResponse
		if err := c.get(ctx, "textsearch", params, &body); err != nil {
			return all, err
		}
		if err := checkStatus("textsearch", body.Status, body.ErrorMessage); err != nil {
			return all, err
		}
		all = append(all, body.Results...)

		if body.NextPageToken == "" {
			break
		}
		token = body.NextPageToken

		select {
		case <-ctx.Done():
			return all, ctx.Err()
		case <-time.After(c.pageDelay):
		}
	}

	return all, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	endpointURL := fmt.Sprintf("%s/%s/json", c.baseURL, endpoint)
	logged := map[string]interface{}{}
	for k, v := range params {
		logged[k] = v
	}
	places.LogRequest("google", http.MethodGet, endpointURL, logged)

	params.Set("key", c.apiKey)
	fullURL := fmt.Sprintf("%s?%s", endpointURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		places.LogError("google", endpoint, err)
		return fmt.Errorf("places %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("places %s returned HTTP %d", endpoint, resp.StatusCode)
		places.LogError("google", endpoint, err)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		places.LogError("google", "decode", err)
		return fmt.Errorf("decode places %s: %w", endpoint, err)
	}

	places.LogResponse("google", resp.StatusCode, time.Since(start), resultCount(out))
	return nil
}

func checkStatus(endpoint, status, message string) error {
	switch status {
	case statusOK, statusZeroResults:
		return nil
	}
	if message != "" {
		return fmt.Errorf("places %s failed: status=%s: %s", endpoint, status, message)
	}
	return fmt.Errorf("places %s failed: status=%s", endpoint, status)
}

func resultCount(out interface{}) int {
	switch v := out.(type) {
	case *placesResponse:
		return len(v.Results)
	case *detailsResponse:
		if v.Result != nil {
			return 1
		}
	}
	return 0
}
