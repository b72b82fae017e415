// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/datatypes"
)

const (
	DefaultServerHost = "localhost"
	DefaultServerPort = 12210
)

// getServerBaseURL resolves the server address. Precedence: --server flag,
// MINDSIM_URL environment variable, config file, built-in default.
func getServerBaseURL() string {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	if env := os.Getenv("MINDSIM_URL"); env != "" {
		return strings.TrimRight(env, "/")
	}
	if config.ServerURL != "" {
		return strings.TrimRight(config.ServerURL, "/")
	}
	return fmt.Sprintf("http://%s:%d", DefaultServerHost, DefaultServerPort)
}

// getAuthToken resolves the bearer token with the same precedence chain.
func getAuthToken() string {
	if authToken != "" {
		return authToken
	}
	if env := os.Getenv("MINDSIM_TOKEN"); env != "" {
		return env
	}
	return config.AuthToken
}

// apiClient is a thin JSON client for the simulation server's v1 API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		baseURL: getServerBaseURL(),
		token:   getAuthToken(),
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

// do performs one JSON round trip. Non-2xx responses are decoded as the
// server's uniform error envelope and surfaced as a Go error.
func (c *apiClient) do(method, path string, in, out interface{}) error {
	var body *bytes.Buffer
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr datatypes.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			if apiErr.Detail != "" {
				return fmt.Errorf("server returned %s: %s (%s)", resp.Status, apiErr.Error, apiErr.Detail)
			}
			return fmt.Errorf("server returned %s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse server response: %w", err)
	}
	return nil
}

func (c *apiClient) health() (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.do(http.MethodGet, "/healthz", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) run(req *datatypes.RunRequest) (*datatypes.RunResponse, error) {
	var out datatypes.RunResponse
	if err := c.do(http.MethodPost, "/v1/run", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// historyFilter narrows a history query; zero values mean no filtering.
type historyFilter struct {
	Type  string
	Stage string
	Pass  int
	Limit int
}

func (f historyFilter) encode() string {
	q := url.Values{}
	if f.Type != "" {
		q.Set("type", f.Type)
	}
	if f.Stage != "" {
		q.Set("stage", f.Stage)
	}
	if f.Pass > 0 {
		q.Set("pass", strconv.Itoa(f.Pass))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *apiClient) history(session string, f historyFilter) (*datatypes.HistoryResponse, error) {
	var out datatypes.HistoryResponse
	path := fmt.Sprintf("/v1/run/%s/history%s", url.PathEscape(session), f.encode())
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) clearSession(session string) (*datatypes.ClearResponse, error) {
	var out datatypes.ClearResponse
	path := fmt.Sprintf("/v1/run/%s/clear", url.PathEscape(session))
	if err := c.do(http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) listSessions() (*datatypes.SessionsResponse, error) {
	var out datatypes.SessionsResponse
	if err := c.do(http.MethodGet, "/v1/sessions", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// eventsURL converts the HTTP base URL into the websocket endpoint for a
// session's live event stream.
func (c *apiClient) eventsURL(session string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return fmt.Sprintf("%s/v1/run/%s/events", base, url.PathEscape(session))
}
