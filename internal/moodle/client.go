package moodle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// restEndpoint is the Moodle web service REST endpoint path.
const restEndpoint = "/webservice/rest/server.php"

// Client is a Moodle web service API client.
type Client struct {
	// baseURL is the base URL of the Moodle instance.
	baseURL string

	// httpClient is the HTTP client for making requests.
	httpClient *http.Client

	// tokenManager supplies the web service token.
	tokenManager *tokenManager
}

// NewClient creates a new Moodle web service client.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		tokenManager: &tokenManager{source: tokens},
	}, nil
}

// GetCourses fetches courses by their Moodle-internal ids. Ids that do not
// exist are simply missing from the result.
func (c *Client) GetCourses(ctx context.Context, courseIDs []int64) ([]Course, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}

	params := url.Values{}
	for i, id := range courseIDs {
		params.Set(fmt.Sprintf("options[ids][%d]", i), strconv.FormatInt(id, 10))
	}

	var result []Course
	if err := c.call(ctx, "core_course_get_courses", params, &result); err != nil {
		return nil, fmt.Errorf("getting courses: %w", err)
	}

	return result, nil
}

// GetEnrolledUsers fetches the current enrollment roster of a course.
// An empty roster is a valid result.
func (c *Client) GetEnrolledUsers(ctx context.Context, courseID int64) ([]EnrolledUser, error) {
	params := url.Values{}
	params.Set("courseid", strconv.FormatInt(courseID, 10))

	var result []EnrolledUser
	if err := c.call(ctx, "core_enrol_get_enrolled_users", params, &result); err != nil {
		return nil, fmt.Errorf("getting enrolled users: %w", err)
	}

	return result, nil
}

// EnrollUser enrols a user into a course with the given role.
func (c *Client) EnrollUser(ctx context.Context, courseID int64, userID int64, roleID int64) error {
	params := url.Values{}
	params.Set("enrolments[0][courseid]", strconv.FormatInt(courseID, 10))
	params.Set("enrolments[0][userid]", strconv.FormatInt(userID, 10))
	params.Set("enrolments[0][roleid]", strconv.FormatInt(roleID, 10))

	if err := c.call(ctx, "enrol_manual_enrol_users", params, nil); err != nil {
		return fmt.Errorf("enrolling user: %w", err)
	}

	return nil
}

// UnenrollUser removes a user's manual enrolment from a course.
func (c *Client) UnenrollUser(ctx context.Context, courseID int64, userID int64) error {
	params := url.Values{}
	params.Set("enrolments[0][courseid]", strconv.FormatInt(courseID, 10))
	params.Set("enrolments[0][userid]", strconv.FormatInt(userID, 10))

	if err := c.call(ctx, "enrol_manual_unenrol_users", params, nil); err != nil {
		return fmt.Errorf("unenrolling user: %w", err)
	}

	return nil
}

// AssignRole assigns a role to a user within a course context.
func (c *Client) AssignRole(ctx context.Context, courseID int64, userID int64, roleID int64) error {
	params := url.Values{}
	params.Set("assignments[0][roleid]", strconv.FormatInt(roleID, 10))
	params.Set("assignments[0][userid]", strconv.FormatInt(userID, 10))
	params.Set("assignments[0][contextlevel]", "course")
	params.Set("assignments[0][instanceid]", strconv.FormatInt(courseID, 10))

	if err := c.call(ctx, "core_role_assign_roles", params, nil); err != nil {
		return fmt.Errorf("assigning role: %w", err)
	}

	return nil
}

// UnassignRole removes a role from a user within a course context.
func (c *Client) UnassignRole(ctx context.Context, courseID int64, userID int64, roleID int64) error {
	params := url.Values{}
	params.Set("unassignments[0][roleid]", strconv.FormatInt(roleID, 10))
	params.Set("unassignments[0][userid]", strconv.FormatInt(userID, 10))
	params.Set("unassignments[0][contextlevel]", "course")
	params.Set("unassignments[0][instanceid]", strconv.FormatInt(courseID, 10))

	if err := c.call(ctx, "core_role_unassign_roles", params, nil); err != nil {
		return fmt.Errorf("unassigning role: %w", err)
	}

	return nil
}

// FindUserByUsername resolves a Moodle username to the internal user id.
// Returns 0 when no matching user exists.
func (c *Client) FindUserByUsername(ctx context.Context, username string) (int64, error) {
	params := url.Values{}
	params.Set("field", "username")
	params.Set("values[0]", username)

	var result []user
	if err := c.call(ctx, "core_user_get_users_by_field", params, &result); err != nil {
		return 0, fmt.Errorf("finding user by username: %w", err)
	}

	if len(result) == 0 {
		return 0, nil
	}
	return result[0].ID, nil
}

// call executes a web service function and decodes the JSON result.
// Moodle returns errors as a JSON object in place of the expected payload.
func (c *Client) call(ctx context.Context, wsFunction string, params url.Values, result any) error {
	token, err := c.tokenManager.accessToken(ctx)
	if err != nil {
		return err
	}

	form := url.Values{}
	for k, vs := range params {
		form[k] = vs
	}
	form.Set("wstoken", token)
	form.Set("wsfunction", wsFunction)
	form.Set("moodlewsrestformat", "json")

	reqURL := c.baseURL + restEndpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if wsErr := decodeWSError(body); wsErr != nil {
		return wsErr
	}

	if result == nil || strings.TrimSpace(string(body)) == "null" {
		return nil
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// decodeWSError returns the web service error carried in the body, if any.
func decodeWSError(body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}

	var wsErr wsError
	if err := json.Unmarshal(body, &wsErr); err != nil {
		return nil
	}
	if wsErr.Exception == "" {
		return nil
	}

	return &wsErr
}
