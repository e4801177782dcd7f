// Package e2e exercises a running outreach-manager over HTTP. The suite is
// skipped unless E2E_BASE_URL points at a live instance with a seeded
// directory (see cmd/tools/seeder).
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("E2E_BASE_URL")
	if url == "" {
		t.Skip("E2E_BASE_URL not set; skipping end-to-end suite")
	}
	return url
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "e2e-suite")
	req.Header.Set("X-Actor-Role", "coordinator")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthz(t *testing.T) {
	base := baseURL(t)
	resp := doJSON(t, http.MethodGet, base+"/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOutreachLifecycle(t *testing.T) {
	base := baseURL(t)
	eventID := os.Getenv("E2E_EVENT_ID")
	recipientID := os.Getenv("E2E_RECIPIENT_ID")
	if eventID == "" || recipientID == "" {
		t.Skip("E2E_EVENT_ID / E2E_RECIPIENT_ID not set")
	}

	var initiated struct {
		CampaignID string `json:"campaignId"`
	}
	resp := doJSON(t, http.MethodPost, base+"/api/outreach", map[string]interface{}{
		"eventId":      eventID,
		"recipientIds": []string{recipientID},
		"config": map[string]interface{}{
			"reminderOffsetsDays": []int{1, 3},
			"handoffAfterDays":    5,
			"templates": map[string]string{
				"initial":  fmt.Sprintf("Hi {{recipientName}}, can you coach {{eventName}}? (run %s)", uuid.New().String()[:8]),
				"reminder": "Reminder {{recipientName}}: {{eventName}} still needs a coach.",
			},
		},
	}, &initiated)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, initiated.CampaignID)

	var status struct {
		Invitations []struct {
			RecipientID string `json:"recipientId"`
			State       string `json:"state"`
		} `json:"invitations"`
	}
	resp = doJSON(t, http.MethodGet, base+"/api/outreach/"+eventID+"/status", nil, &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, status.Invitations, 1)
	assert.Equal(t, "pending", status.Invitations[0].State)

	var correlated struct {
		State string `json:"state"`
	}
	resp = doJSON(t, http.MethodPost, base+"/api/outreach/"+eventID+"/responses", map[string]string{
		"recipientId": recipientID,
		"response":    "accept",
	}, &correlated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "accepted", correlated.State)
}

func TestCandidatesRanked(t *testing.T) {
	base := baseURL(t)
	eventID := os.Getenv("E2E_EVENT_ID")
	if eventID == "" {
		t.Skip("E2E_EVENT_ID not set")
	}

	var payload struct {
		Candidates []struct {
			Score float64 `json:"score"`
		} `json:"candidates"`
	}
	resp := doJSON(t, http.MethodGet, base+"/api/events/"+eventID+"/candidates", nil, &payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for i := 1; i < len(payload.Candidates); i++ {
		assert.GreaterOrEqual(t, payload.Candidates[i-1].Score, payload.Candidates[i].Score)
	}
}
