// Package directory is a thin client for the user-directory service that
// backs the access-selection UI.
package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"docchatai/pkg/domain"
)

const defaultMaxResults = 10

// Client calls the directory service over HTTP.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// APIError represents a directory service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a directory client. apiToken may be empty when the
// directory does not require authentication.
func NewClient(baseURL, apiToken string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiToken:   strings.TrimSpace(apiToken),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// LookupUsers searches the directory by name or email prefix.
func (c *Client) LookupUsers(ctx context.Context, searchPrefix string, maxResults int) ([]domain.DirectoryUser, error) {
	searchPrefix = strings.TrimSpace(searchPrefix)
	if searchPrefix == "" {
		return []domain.DirectoryUser{}, nil
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	query := url.Values{}
	query.Set("q", searchPrefix)
	query.Set("limit", strconv.Itoa(maxResults))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}

	var payload struct {
		Users []domain.DirectoryUser `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Users == nil {
		payload.Users = []domain.DirectoryUser{}
	}
	return payload.Users, nil
}
