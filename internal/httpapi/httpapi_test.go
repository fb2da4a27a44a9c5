package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pusherd/pusherd/internal/auth"
)

type fakeStats struct{}

func (fakeStats) Stats() Stats {
	return Stats{Connections: 3, Channels: 2, PresenceChannels: 1}
}

func (fakeStats) AdminStats() AdminStats {
	return AdminStats{
		Stats:            Stats{Connections: 3, Channels: 2, PresenceChannels: 1},
		TotalConnections: 10,
		MessagesSent:     42,
		Goroutines:       7,
	}
}

func newTestAPI(t *testing.T) (*httptest.Server, *auth.Signer) {
	t.Helper()
	signer := auth.NewSigner("test-secret")

	mux := http.NewServeMux()
	Register(mux, Params{
		Signer: signer,
		Stats:  fakeStats{},
		Logger: zerolog.Nop(),
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, signer
}

func postAuth(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/auth", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthEndpoint(t *testing.T) {
	ts, signer := newTestAPI(t)

	resp := postAuth(t, ts, `{"socket_id":"12345.67890","channel_name":"private-x"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Auth        string `json:"auth"`
		ChannelData string `json:"channel_data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, signer.Verify(body.Auth, "12345.67890", "private-x"))
	assert.Empty(t, body.ChannelData)
}

func TestAuthEndpointOpaqueSocketIDSuffix(t *testing.T) {
	ts, signer := newTestAPI(t)

	// The random part of a socket id is opaque; non-numeric ids are
	// still signable.
	resp := postAuth(t, ts, `{"socket_id":"42.abc","channel_name":"private-x"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Auth string `json:"auth"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, signer.Verify(body.Auth, "42.abc", "private-x"))
}

func TestAuthEndpointEchoesChannelData(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp := postAuth(t, ts,
		`{"socket_id":"12345.67890","channel_name":"presence-room","channel_data":"{\"user_id\":\"u1\"}"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		ChannelData string `json:"channel_data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.JSONEq(t, `{"user_id":"u1"}`, body.ChannelData)
}

func TestAuthEndpointRejectsBadRequests(t *testing.T) {
	ts, _ := newTestAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing socket_id", `{"channel_name":"private-x"}`},
		{"malformed socket_id", `{"socket_id":"abc","channel_name":"private-x"}`},
		{"socket_id with colon", `{"socket_id":"42.a:b","channel_name":"private-x"}`},
		{"socket_id empty suffix", `{"socket_id":"42.","channel_name":"private-x"}`},
		{"missing channel", `{"socket_id":"12345.67890"}`},
		{"invalid channel", `{"socket_id":"12345.67890","channel_name":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postAuth(t, ts, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestAuthEndpointMethodNotAllowed(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp, err := http.Get(ts.URL + "/auth")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
		Stats     Stats  `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.NotEmpty(t, body.Timestamp)
	assert.Equal(t, int64(3), body.Stats.Connections)
	assert.Equal(t, 2, body.Stats.Channels)
	assert.Equal(t, 1, body.Stats.PresenceChannels)
}

func TestAdminStatsEndpoint(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp, err := http.Get(ts.URL + "/admin/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Stats AdminStats `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(10), body.Stats.TotalConnections)
	assert.Equal(t, int64(42), body.Stats.MessagesSent)
	assert.Equal(t, 7, body.Stats.Goroutines)
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestAPI(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/auth", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}
