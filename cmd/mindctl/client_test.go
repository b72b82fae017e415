// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package main provides tests for the mindctl API client.

These tests verify:
  - Server URL and token precedence chains
  - History filter query encoding
  - JSON round trips against a stub server
  - Error envelope decoding
*/
package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/datatypes"
)

// resetClientGlobals clears the flag and config state the client reads.
// Tests that touch these cannot run in parallel.
func resetClientGlobals(t *testing.T) {
	t.Helper()
	origServer, origToken, origConfig := serverURL, authToken, config
	serverURL, authToken, config = "", "", CLIConfig{}
	t.Setenv("MINDSIM_URL", "")
	t.Setenv("MINDSIM_TOKEN", "")
	t.Cleanup(func() {
		serverURL, authToken, config = origServer, origToken, origConfig
	})
}

// =============================================================================
// Precedence Tests
// =============================================================================

func TestGetServerBaseURL_Default(t *testing.T) {
	resetClientGlobals(t)

	if got := getServerBaseURL(); got != "http://localhost:12210" {
		t.Errorf("expected built-in default, got %q", got)
	}
}

func TestGetServerBaseURL_ConfigFileBeatsDefault(t *testing.T) {
	resetClientGlobals(t)

	config.ServerURL = "http://config-host:9999/"
	if got := getServerBaseURL(); got != "http://config-host:9999" {
		t.Errorf("expected config value without trailing slash, got %q", got)
	}
}

func TestGetServerBaseURL_EnvBeatsConfig(t *testing.T) {
	resetClientGlobals(t)

	config.ServerURL = "http://config-host:9999"
	t.Setenv("MINDSIM_URL", "http://env-host:8888")
	if got := getServerBaseURL(); got != "http://env-host:8888" {
		t.Errorf("expected env value, got %q", got)
	}
}

func TestGetServerBaseURL_FlagBeatsEnv(t *testing.T) {
	resetClientGlobals(t)

	t.Setenv("MINDSIM_URL", "http://env-host:8888")
	serverURL = "http://flag-host:7777"
	if got := getServerBaseURL(); got != "http://flag-host:7777" {
		t.Errorf("expected flag value, got %q", got)
	}
}

func TestGetAuthToken_Precedence(t *testing.T) {
	resetClientGlobals(t)

	if got := getAuthToken(); got != "" {
		t.Errorf("expected empty token by default, got %q", got)
	}

	config.AuthToken = "config-token"
	if got := getAuthToken(); got != "config-token" {
		t.Errorf("expected config token, got %q", got)
	}

	t.Setenv("MINDSIM_TOKEN", "env-token")
	if got := getAuthToken(); got != "env-token" {
		t.Errorf("expected env token to win over config, got %q", got)
	}

	authToken = "flag-token"
	if got := getAuthToken(); got != "flag-token" {
		t.Errorf("expected flag token to win, got %q", got)
	}
}

// =============================================================================
// historyFilter Tests
// =============================================================================

func TestHistoryFilter_EncodeEmpty(t *testing.T) {
	t.Parallel()

	if got := (historyFilter{}).encode(); got != "" {
		t.Errorf("expected empty query string for zero filter, got %q", got)
	}
}

func TestHistoryFilter_EncodeFull(t *testing.T) {
	t.Parallel()

	got := historyFilter{Type: "stage", Stage: "reasoning", Pass: 2, Limit: 50}.encode()
	if !strings.HasPrefix(got, "?") {
		t.Fatalf("expected leading ?, got %q", got)
	}
	for _, want := range []string{"type=stage", "stage=reasoning", "pass=2", "limit=50"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
}

// =============================================================================
// Round Trip Tests
// =============================================================================

func TestAPIClient_RunRoundTrip(t *testing.T) {
	resetClientGlobals(t)

	var gotPath, gotAuth string
	var gotBody datatypes.RunRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"response_id": "resp-1",
			"session_id":  "cli-sess",
			"status":      "COMPLETED_SUCCESS",
			"confidence":  0.87645,
			"passes":      1,
		})
	}))
	defer srv.Close()

	serverURL = srv.URL
	authToken = "cli-secret"

	res, err := newAPIClient().run(&datatypes.RunRequest{Query: "What is entropy?", SessionID: "cli-sess"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if gotPath != "/v1/run" {
		t.Errorf("expected POST /v1/run, got %q", gotPath)
	}
	if gotAuth != "Bearer cli-secret" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
	if gotBody.Query != "What is entropy?" {
		t.Errorf("request body lost the query: %+v", gotBody)
	}
	if res.SessionID != "cli-sess" {
		t.Errorf("expected session cli-sess, got %q", res.SessionID)
	}
	if string(res.Status) != "COMPLETED_SUCCESS" {
		t.Errorf("expected COMPLETED_SUCCESS, got %q", res.Status)
	}
	if res.Passes != 1 {
		t.Errorf("expected 1 pass, got %d", res.Passes)
	}
}

func TestAPIClient_ErrorEnvelope(t *testing.T) {
	resetClientGlobals(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(datatypes.ErrorResponse{
			Error:  "invalid request",
			Detail: "query is required",
		})
	}))
	defer srv.Close()

	serverURL = srv.URL
	_, err := newAPIClient().run(&datatypes.RunRequest{})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "invalid request") {
		t.Errorf("expected envelope error text, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "query is required") {
		t.Errorf("expected envelope detail, got %q", err.Error())
	}
}

func TestAPIClient_HistoryAndSessions(t *testing.T) {
	resetClientGlobals(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/history"):
			if r.URL.Query().Get("type") != "stage" {
				t.Errorf("expected type filter in query, got %q", r.URL.RawQuery)
			}
			json.NewEncoder(w).Encode(datatypes.HistoryResponse{
				SessionID: "cli-sess",
				Count:     1,
			})
		case r.URL.Path == "/v1/sessions":
			json.NewEncoder(w).Encode(datatypes.SessionsResponse{
				Sessions: []string{"cli-sess"},
				Count:    1,
			})
		case strings.HasSuffix(r.URL.Path, "/clear"):
			json.NewEncoder(w).Encode(datatypes.ClearResponse{
				SessionID: "cli-sess",
				Deleted:   4,
			})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	serverURL = srv.URL
	client := newAPIClient()

	hist, err := client.history("cli-sess", historyFilter{Type: "stage"})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if hist.Count != 1 {
		t.Errorf("expected count 1, got %d", hist.Count)
	}

	sessions, err := client.listSessions()
	if err != nil {
		t.Fatalf("sessions failed: %v", err)
	}
	if len(sessions.Sessions) != 1 || sessions.Sessions[0] != "cli-sess" {
		t.Errorf("unexpected sessions: %+v", sessions.Sessions)
	}

	cleared, err := client.clearSession("cli-sess")
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if cleared.Deleted != 4 {
		t.Errorf("expected 4 deleted, got %d", cleared.Deleted)
	}
}

// =============================================================================
// eventsURL Tests
// =============================================================================

func TestEventsURL_SchemeMapping(t *testing.T) {
	t.Parallel()

	c := &apiClient{baseURL: "http://localhost:12210"}
	if got := c.eventsURL("s1"); got != "ws://localhost:12210/v1/run/s1/events" {
		t.Errorf("unexpected ws URL: %q", got)
	}

	c = &apiClient{baseURL: "https://mind.example.com"}
	if got := c.eventsURL("s1"); got != "wss://mind.example.com/v1/run/s1/events" {
		t.Errorf("unexpected wss URL: %q", got)
	}
}
