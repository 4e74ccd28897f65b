package oodi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/edusync/moodlebridge/internal/registry"
)

// Client is a legacy registry API client.
type Client struct {
	// baseURL is the base URL for API requests.
	baseURL string

	// httpClient is the HTTP client for making requests.
	httpClient *http.Client
}

// NewClient creates a new legacy registry API client.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// GetCourseUnitRealisation fetches one course realisation by its numeric id.
// Returns nil when the realisation does not exist.
func (c *Client) GetCourseUnitRealisation(
	ctx context.Context,
	realisationID string,
) (*registry.CourseUnitRealisation, error) {
	if _, err := strconv.ParseInt(realisationID, 10, 64); err != nil {
		return nil, fmt.Errorf("realisation id %q is not numeric: %w", realisationID, err)
	}

	params := url.Values{}
	params.Set("include_approved_status", "true")

	reqURL := fmt.Sprintf("%s/courseunitrealisations/%s?%s", c.baseURL, realisationID, params.Encode())

	var result response[courseUnitRealisation]
	if err := c.doRequest(ctx, reqURL, &result); err != nil {
		return nil, fmt.Errorf("getting course unit realisation: %w", err)
	}

	if result.Data == nil {
		return nil, nil
	}

	cur := result.Data.toRegistry()
	return &cur, nil
}

// GetCourseChanges fetches the ids of realisations changed after the given time.
func (c *Client) GetCourseChanges(ctx context.Context, after time.Time) ([]registry.CourseChange, error) {
	reqURL := fmt.Sprintf("%s/courseunitrealisations/changes/ids/%s",
		c.baseURL, after.UTC().Format("2006-01-02T15:04:05"))

	var result response[[]courseChange]
	if err := c.doRequest(ctx, reqURL, &result); err != nil {
		return nil, fmt.Errorf("getting course changes: %w", err)
	}

	if result.Data == nil {
		return nil, nil
	}

	changes := make([]registry.CourseChange, 0, len(*result.Data))
	for _, ch := range *result.Data {
		changes = append(changes, registry.CourseChange{
			ChangedAt:     ch.ChangedAt.Time,
			RealisationID: strconv.FormatInt(ch.CourseID, 10),
		})
	}

	return changes, nil
}

// doRequest executes a GET request and decodes the enveloped JSON response.
func (c *Client) doRequest(ctx context.Context, reqURL string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
