package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphsync/internal/core/apperr"
	"github.com/agenthands/graphsync/internal/core/ingest"
	"github.com/agenthands/graphsync/internal/core/query"
	"github.com/agenthands/graphsync/internal/core/syncjobs"
	"github.com/agenthands/graphsync/internal/core/webhook"
	"github.com/agenthands/graphsync/internal/logger"
	"github.com/agenthands/graphsync/internal/metrics"
)

type MockWebhooks struct {
	Body      string
	Signature string
	Err       error
}

func (m *MockWebhooks) Process(ctx context.Context, body []byte, signature string) (webhook.Result, error) {
	m.Body = string(body)
	m.Signature = signature
	if m.Err != nil {
		return webhook.Result{}, m.Err
	}
	return webhook.Result{Success: true, EventID: "auth.success_x"}, nil
}

type MockSyncs struct {
	Started   []syncjobs.SyncRequest
	Cancelled []string
	Err       error
}

func (m *MockSyncs) Start(ctx context.Context, req syncjobs.SyncRequest) (syncjobs.SyncResult, error) {
	m.Started = append(m.Started, req)
	if m.Err != nil {
		return syncjobs.SyncResult{}, m.Err
	}
	return syncjobs.SyncResult{SyncID: "sync_1", Status: "pending", EstimatedTime: "1-2 minutes"}, nil
}

func (m *MockSyncs) Cancel(ctx context.Context, provider, connectionID string) error {
	m.Cancelled = append(m.Cancelled, provider+":"+connectionID)
	return m.Err
}

type MockKnowledge struct {
	Requests   []query.Request
	ThreadOpts []query.ThreadOptions
	Result     query.Result
	Err        error
}

func (m *MockKnowledge) Analyze(ctx context.Context, req query.Request) (query.Result, error) {
	m.Requests = append(m.Requests, req)
	return m.Result, m.Err
}

func (m *MockKnowledge) Status(ctx context.Context, projectID string) (query.Status, error) {
	return query.Status{ProjectID: projectID, GraphID: ingest.GraphID(projectID), Initialized: true, Status: "ready"}, m.Err
}

func (m *MockKnowledge) ThreadContext(ctx context.Context, threadID string, opts query.ThreadOptions) (string, error) {
	m.ThreadOpts = append(m.ThreadOpts, opts)
	return "RECENT MESSAGES:\nuser: hi", m.Err
}

func (m *MockKnowledge) CreateThread(ctx context.Context, projectID, userID string, metadata map[string]interface{}) (string, error) {
	return "thread_" + projectID + "_1", m.Err
}

type MockIngestion struct {
	Result ingest.InitialResult
}

func (m *MockIngestion) Initial(ctx context.Context, orgID, projectID string) ingest.InitialResult {
	return m.Result
}

type fixture struct {
	router    *gin.Engine
	webhooks  *MockWebhooks
	syncs     *MockSyncs
	knowledge *MockKnowledge
	ingestion *MockIngestion
}

func newFixture() fixture {
	gin.SetMode(gin.TestMode)
	f := fixture{
		webhooks:  &MockWebhooks{},
		syncs:     &MockSyncs{},
		knowledge: &MockKnowledge{},
		ingestion: &MockIngestion{},
	}
	s := &Server{
		Webhooks:  f.webhooks,
		Syncs:     f.syncs,
		Knowledge: f.knowledge,
		Ingestion: f.ingestion,
		Metrics:   metrics.New(),
		Log:       logger.Nop(),
	}
	f.router = s.SetupRouter()
	return f
}

func do(r http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestWebhook(t *testing.T) {
	f := newFixture()

	w := do(f.router, http.MethodPost, "/webhooks/nango", `{"type":"auth.success"}`, "X-Nango-Signature", "abc")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "auth.success_x", decode(t, w)["eventId"])
	assert.Equal(t, `{"type":"auth.success"}`, f.webhooks.Body)
	assert.Equal(t, "abc", f.webhooks.Signature)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(f.router, http.MethodHead, "/webhooks/nango", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		key    string
	}{
		{"validation", apperr.Validation("type", "bad type"), http.StatusBadRequest, "details"},
		{"rate limited", apperr.ErrRateLimited, http.StatusTooManyRequests, "error"},
		{"signature", apperr.ErrUnauthorized, http.StatusUnauthorized, "error"},
		{"upstream", &apperr.UpstreamError{Op: "record event", Attempts: 3, Err: errors.New("down")}, http.StatusBadGateway, "error"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.webhooks.Err = tc.err

			w := do(f.router, http.MethodPost, "/webhooks/nango", `{}`)

			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, decode(t, w), tc.key)
		})
	}
}

func TestSync(t *testing.T) {
	f := newFixture()

	w := do(f.router, http.MethodPost, "/sync", `{"provider":"github","connectionId":"org1_projA","fullSync":true}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sync_1", decode(t, w)["syncId"])
	require.Len(t, f.syncs.Started, 1)
	assert.True(t, f.syncs.Started[0].FullSync)

	// Scenario: conflict reports the running sync
	f.syncs.Err = &apperr.ConflictError{Key: "github_org1_projA", ExistingID: "sync_0"}
	w = do(f.router, http.MethodPost, "/sync", `{"provider":"github","connectionId":"org1_projA"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "sync_0", decode(t, w)["syncId"])

	// Scenario: cancel
	f.syncs.Err = nil
	w = do(f.router, http.MethodDelete, "/sync?provider=github&connectionId=org1_projA", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"github:org1_projA"}, f.syncs.Cancelled)

	w = do(f.router, http.MethodDelete, "/sync?provider=github", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryKnowledge_Search(t *testing.T) {
	f := newFixture()
	f.knowledge.Result = query.Result{Text: "RELEVANT FACTS:\n- A mentions B (Since: 2024-01-01)"}

	w := do(f.router, http.MethodPost, "/knowledge", `{"projectId":"p1","query":"login","type":"search","options":{"limit":5,"reranker":"bm25","dateTime":"2024-02-01T00:00:00Z"}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "RELEVANT FACTS:\n- A mentions B (Since: 2024-01-01)", body["context"])
	assert.Equal(t, "search", body["type"])
	require.Len(t, f.knowledge.Requests, 1)
	req := f.knowledge.Requests[0]
	assert.Equal(t, 5, req.Options.Limit)
	require.NotNil(t, req.Options.DateTime)
	assert.Equal(t, 2024, req.Options.DateTime.Year())
}

func TestQueryKnowledge_EntityContext(t *testing.T) {
	f := newFixture()
	f.knowledge.Result = query.Result{Entity: &query.EntityContext{Facts: []query.Fact{}, Summary: "Connected to 1 entities."}}

	w := do(f.router, http.MethodPost, "/knowledge", `{"projectId":"p1","query":"github:42","type":"entity"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	ctx, ok := decode(t, w)["context"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Connected to 1 entities.", ctx["summary"])
}

func TestQueryKnowledge_Threads(t *testing.T) {
	f := newFixture()

	w := do(f.router, http.MethodPost, "/knowledge", `{"threadId":"thread_1","minRating":0.4}`)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "summarized", body["mode"])
	assert.Equal(t, "RECENT MESSAGES:\nuser: hi", body["context"])
	assert.Equal(t, 0.4, f.knowledge.ThreadOpts[0].MinRating)

	w = do(f.router, http.MethodPost, "/knowledge", `{"createThread":true,"projectId":"p1","userId":"u1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "thread_p1_1", decode(t, w)["threadId"])

	w = do(f.router, http.MethodPost, "/knowledge", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestKnowledge(t *testing.T) {
	f := newFixture()
	f.ingestion.Result = ingest.InitialResult{
		GraphID: "project_p1",
		Results: map[string]apperr.ProviderResult{
			"github": {Success: true, Count: 3},
			"notion": {Success: false, Error: "list notion_page: 502"},
		},
	}

	// Scenario: initial ingestion with a failing provider still answers 200
	w := do(f.router, http.MethodPut, "/knowledge", `{"projectId":"p1","organizationId":"org1","type":"initial"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	results := body["results"].(map[string]interface{})
	assert.Equal(t, true, results["github"].(map[string]interface{})["success"])

	// Scenario: incremental triggers a sync on the project's connection
	w = do(f.router, http.MethodPut, "/knowledge", `{"projectId":"p1","organizationId":"org1","type":"incremental","provider":"jira"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.syncs.Started, 1)
	assert.Equal(t, syncjobs.SyncRequest{Provider: "jira", ConnectionID: "org1_p1"}, f.syncs.Started[0])

	// Scenario: incremental without provider
	w = do(f.router, http.MethodPut, "/knowledge", `{"projectId":"p1","organizationId":"org1","type":"incremental"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKnowledgeStatus(t *testing.T) {
	f := newFixture()

	w := do(f.router, http.MethodGet, "/knowledge?projectId=p1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "project_p1", body["graphId"])
	assert.Equal(t, "ready", body["status"])

	w = do(f.router, http.MethodGet, "/knowledge", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsAndHealth(t *testing.T) {
	f := newFixture()

	w := do(f.router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(f.router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}
