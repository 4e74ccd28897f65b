// Package iam provides a client for the university identity directory API,
// which maps student and employee numbers to account usernames.
package iam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is an identity directory API client.
type Client struct {
	// baseURL is the base URL for API requests.
	baseURL string

	// httpClient is the HTTP client for making requests.
	httpClient *http.Client
}

// account is the wire representation of a directory account.
type account struct {
	Username string `json:"username"`
}

// NewClient creates a new identity directory client.
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

// StudentUsername resolves a student number to a directory username.
// Returns an empty string when the directory has no matching account.
func (c *Client) StudentUsername(ctx context.Context, studentNumber string) (string, error) {
	if studentNumber == "" {
		return "", errors.New("student number is required")
	}
	return c.lookup(ctx, "studentnumber", studentNumber)
}

// TeacherUsername resolves an employee number to a directory username.
// The caller is expected to pass the employee number already carrying the
// teacher id marker prefix.
func (c *Client) TeacherUsername(ctx context.Context, employeeNumber string) (string, error) {
	if employeeNumber == "" {
		return "", errors.New("employee number is required")
	}
	return c.lookup(ctx, "employeenumber", employeeNumber)
}

// lookup queries the directory for accounts matching one attribute value.
func (c *Client) lookup(ctx context.Context, field string, value string) (string, error) {
	params := url.Values{}
	params.Set(field, value)

	reqURL := fmt.Sprintf("%s/accounts?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var accounts []account
	if err := json.NewDecoder(resp.Body).Decode(&accounts); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if len(accounts) == 0 {
		return "", nil
	}
	return accounts[0].Username, nil
}
