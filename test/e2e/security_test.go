// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package e2e

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getWithAuth issues a GET with an optional bearer token and returns the
// status code and decoded body.
func getWithAuth(t *testing.T, path, token string) (int, map[string]interface{}) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestAuth_RejectsMissingToken(t *testing.T) {
	status, body := getWithAuth(t, "/v1/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestAuth_RejectsWrongToken(t *testing.T) {
	status, body := getWithAuth(t, "/v1/sessions", "not-the-token")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestAuth_AcceptsConfiguredToken(t *testing.T) {
	status, body := getWithAuth(t, "/v1/sessions", e2eToken)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "sessions")
}

func TestAuth_GuardsEventStream(t *testing.T) {
	wsURL := strings.Replace(baseURL, "http://", "ws://", 1) + "/v1/run/e2e-auth/events"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// Health stays reachable without credentials so probes and load
// balancers do not need the service token.
func TestHealthz_OpenWithoutToken(t *testing.T) {
	status, body := getWithAuth(t, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}
