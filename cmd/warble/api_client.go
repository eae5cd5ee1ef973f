package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// SyncClientTimeout applies to endpoints that execute work inline and hold
// the response open until the task finishes.
const SyncClientTimeout = 5 * time.Minute

// apiClient is the shared HTTP client with timeout.
var apiClient = &http.Client{
	Timeout: DefaultClientTimeout,
}

// syncClient serves the synchronous execution endpoints.
var syncClient = &http.Client{
	Timeout: SyncClientTimeout,
}

// apiGet performs a GET request to the API with timeout.
func apiGet(path string) ([]byte, error) {
	return doRequest(apiClient, http.MethodGet, path, nil)
}

// apiDelete performs a DELETE request to the API with timeout.
func apiDelete(path string) ([]byte, error) {
	return doRequest(apiClient, http.MethodDelete, path, nil)
}

// apiPost performs a POST request to the API with timeout.
func apiPost(path string, data any) ([]byte, error) {
	return doRequest(apiClient, http.MethodPost, path, data)
}

// apiPostSync performs a POST request against a synchronous execution
// endpoint, waiting for the task to finish.
func apiPostSync(path string, data any) ([]byte, error) {
	return doRequest(syncClient, http.MethodPost, path, data)
}

func doRequest(client *http.Client, method, path string, data any) ([]byte, error) {
	var reqBody io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, apiAddr+path, reqBody)
	if err != nil {
		return nil, err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErrorMessage(body))
	}

	return body, nil
}

// apiErrorMessage pulls the error field out of a JSON error envelope, falling
// back to the raw body.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	return string(body)
}
