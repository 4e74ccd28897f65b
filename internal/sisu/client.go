package sisu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/edusync/moodlebridge/internal/registry"
)

// Client is a Sisu export API client.
type Client struct {
	// apiKey is the API key for authentication.
	apiKey string

	// baseURL is the base URL for API requests.
	baseURL string

	// httpClient is the HTTP client for making requests.
	httpClient *http.Client
}

// NewClient creates a new Sisu export API client.
func NewClient(baseURL string, apiKey string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// GetCourseUnitRealisations fetches course realisations in bulk by id.
// Ids absent in Sisu are simply missing from the result.
func (c *Client) GetCourseUnitRealisations(
	ctx context.Context,
	realisationIDs []string,
) ([]registry.CourseUnitRealisation, error) {
	if len(realisationIDs) == 0 {
		return nil, nil
	}

	reqURL := fmt.Sprintf("%s/courseunitrealisations/by-ids", c.baseURL)

	body, err := json.Marshal(map[string]any{"ids": realisationIDs})
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result []courseUnitRealisation
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	out := make([]registry.CourseUnitRealisation, 0, len(result))
	for _, cur := range result {
		out = append(out, cur.toRegistry())
	}

	return out, nil
}

// GetCourseUnitRealisation fetches a single course realisation by id.
// Returns nil when the realisation does not exist.
func (c *Client) GetCourseUnitRealisation(
	ctx context.Context,
	realisationID string,
) (*registry.CourseUnitRealisation, error) {
	curs, err := c.GetCourseUnitRealisations(ctx, []string{realisationID})
	if err != nil {
		return nil, err
	}

	for i := range curs {
		if curs[i].RealisationID == realisationID {
			return &curs[i], nil
		}
	}
	return nil, nil
}
