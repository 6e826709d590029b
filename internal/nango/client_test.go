package nango

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphsync/internal/core/apperr"
)

func TestListRecords_FollowsCursor(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/records", r.URL.Path)
		assert.Equal(t, "Bearer sk", r.Header.Get("Authorization"))
		assert.Equal(t, "org_proj", r.Header.Get("Connection-Id"))
		assert.Equal(t, "github", r.Header.Get("Provider-Config-Key"))
		assert.Equal(t, "github_issue", r.URL.Query().Get("model"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("cursor") == "" {
			_, _ = w.Write([]byte(`{"records":[{"id":"1"},{"id":"2"}],"next_cursor":"c2"}`))
			return
		}
		assert.Equal(t, "c2", r.URL.Query().Get("cursor"))
		_, _ = w.Write([]byte(`{"records":[{"id":"3"}],"next_cursor":null}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk", srv.Client())
	records, err := c.ListRecords(context.Background(), ListRecordsRequest{
		Provider:     "github",
		ConnectionID: "org_proj",
		Model:        "github_issue",
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, records, 3)
	assert.Equal(t, "3", records[2]["id"])
}

func TestGetConnection_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk", srv.Client())
	_, err := c.GetConnection(context.Background(), "github", "missing")

	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTriggerSync_SendsBody(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sync/trigger", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk", srv.Client())
	err := c.TriggerSync(context.Background(), "jira", []string{"o_p"}, []string{"jira_issue"}, true)

	require.NoError(t, err)
	assert.Equal(t, "jira", got["provider_config_key"])
	assert.Equal(t, true, got["full_resync"])
	assert.Equal(t, []interface{}{"jira_issue"}, got["syncs"])
}

func TestUpstreamFailureMapsTo502(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk", srv.Client())
	_, err := c.ListRecords(context.Background(), ListRecordsRequest{Provider: "github", Model: "github_issue"})

	assert.Equal(t, http.StatusBadGateway, apperr.StatusCode(err))
}
