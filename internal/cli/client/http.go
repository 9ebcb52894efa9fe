package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	envAPIKey = "AUTOREPLY_API_KEY"
	envAPIURL = "AUTOREPLY_API_URL"

	defaultAPIURL = "http://localhost:8000"

	// Batch sends and preview generation wait on the language model.
	requestTimeout = 2 * time.Minute
)

type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAPIClientWithCmd resolves credentials from the --api-key and --api-url
// flags, the environment and config.json, in that order.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	var flagKey, flagURL string
	if cmd != nil {
		flagKey, _ = cmd.Flags().GetString("api-key")
		flagURL, _ = cmd.Flags().GetString("api-url")
	}

	_, apiKey, apiURL, err := ResolveCredentials(flagKey, flagURL)
	if err != nil {
		return nil, err
	}
	return NewAPIClientWithConfig(apiKey, apiURL), nil
}

// NewAPIClientWithConfig creates an APIClient with explicit config.
func NewAPIClientWithConfig(apiKey, baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Get performs a GET request and decodes the JSON response into out.
func (c *APIClient) Get(path string, query url.Values, out interface{}) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(http.MethodGet, path, nil, out)
}

// Post performs a POST request with JSON body.
func (c *APIClient) Post(path string, body, out interface{}) error {
	return c.do(http.MethodPost, path, body, out)
}

// Put performs a PUT request with JSON body.
func (c *APIClient) Put(path string, body, out interface{}) error {
	return c.do(http.MethodPut, path, body, out)
}

func (c *APIClient) do(method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Detail string `json:"detail"`
		}
		message := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Detail != "" {
			message = apiErr.Detail
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
