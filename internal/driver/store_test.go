package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphsync/internal/core/apperr"
	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/logger"
)

func newTestStore(d GraphDriver) *Store {
	s := NewStore(d, nil, logger.Nop())
	s.Now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	seq := 0
	s.NewUUID = func() string {
		seq++
		return fmt.Sprintf("episode-%d", seq)
	}
	return s
}

func issueItem(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"id":    "42",
		"title": "Fix login",
		"_metadata": map[string]interface{}{
			"nodeId":   "node-42",
			"nodeType": "task",
			"provider": "github",
			"title":    "Fix login",
			"status":   "open",
		},
		"_temporal": map[string]interface{}{
			"validFrom": "2024-01-01T00:00:00Z",
			"createdAt": "2024-01-01T00:00:00Z",
			"updatedAt": "2024-01-02T00:00:00Z",
		},
		"_relationships": map[string]interface{}{
			"author":    "alice",
			"mentions":  []string{"@bob"},
			"relatedTo": []string{"issue_3"},
		},
	})
	require.NoError(t, err)
	return string(data)
}

func TestAdd_JSONWritesEpisodeEntityAndEdges(t *testing.T) {
	d := NewMockDriver()
	s := newTestStore(d)

	id, err := s.Add(context.Background(), AddRequest{OwnerID: "project_p1", Type: model.ItemJSON, Data: issueItem(t)})

	require.NoError(t, err)

	episodes := d.CallsTo(SaveEpisodicNodeQuery)
	require.Len(t, episodes, 1)
	assert.Equal(t, id, episodes[0].Params["uuid"])
	assert.NotEqual(t, "episode-1", id, "records with a node id get a derived episode id")
	assert.Equal(t, "2024-01-01T00:00:00Z", episodes[0].Params["valid_at"])
	assert.Equal(t, "json", episodes[0].Params["source"])
	assert.Equal(t, "Fix login", episodes[0].Params["name"])

	entities := d.CallsTo(SaveEntityNodeQuery)
	require.Len(t, entities, 1)
	assert.Equal(t, "node-42", entities[0].Params["uuid"])
	assert.Equal(t, "task", entities[0].Params["node_type"])
	assert.Equal(t, "open", entities[0].Params["summary"])

	assert.Len(t, d.CallsTo(SaveEpisodicEdgeQuery), 1)
	assert.Len(t, d.CallsTo(SaveReferenceNodeQuery), 3)

	edges := d.CallsTo(SaveEntityEdgeQuery)
	require.Len(t, edges, 3)

	created := edges[0].Params
	assert.Equal(t, "created", created["name"])
	assert.Equal(t, "alice created Fix login", created["fact"])
	assert.Equal(t, 1.0, created["strength"])
	assert.Equal(t, "node-42", created["target_uuid"], "authorship points at the record")

	assert.Equal(t, "Fix login mentions @bob", edges[1].Params["fact"])
	assert.Equal(t, 0.7, edges[1].Params["strength"])
	assert.Equal(t, "Fix login is related to issue_3", edges[2].Params["fact"])
	assert.Equal(t, 0.3, edges[2].Params["strength"])
	assert.Equal(t, "2024-01-01T00:00:00Z", edges[2].Params["valid_at"])
}

func TestAdd_ReingestionReusesIdentifiers(t *testing.T) {
	d := NewMockDriver()
	s := newTestStore(d)
	ctx := context.Background()
	item := issueItem(t)

	_, err := s.Add(ctx, AddRequest{OwnerID: "project_p1", Type: model.ItemJSON, Data: item})
	require.NoError(t, err)
	_, err = s.Add(ctx, AddRequest{OwnerID: "project_p1", Type: model.ItemJSON, Data: item})
	require.NoError(t, err)

	episodes := d.CallsTo(SaveEpisodicNodeQuery)
	require.Len(t, episodes, 2)
	assert.Equal(t, episodes[0].Params["uuid"], episodes[1].Params["uuid"])

	entities := d.CallsTo(SaveEntityNodeQuery)
	require.Len(t, entities, 2)
	assert.Equal(t, entities[0].Params["uuid"], entities[1].Params["uuid"])

	edges := d.CallsTo(SaveEntityEdgeQuery)
	require.Len(t, edges, 6)
	for i := 0; i < 3; i++ {
		assert.Equal(t, edges[i].Params["uuid"], edges[i+3].Params["uuid"])
	}
}

func TestAdd_NewVersionGetsItsOwnEpisode(t *testing.T) {
	d := NewMockDriver()
	s := newTestStore(d)
	ctx := context.Background()

	first := issueItem(t)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(first), &doc))
	doc["_temporal"].(map[string]interface{})["validFrom"] = "2024-02-01T00:00:00Z"
	second, err := json.Marshal(doc)
	require.NoError(t, err)

	firstID, err := s.Add(ctx, AddRequest{OwnerID: "project_p1", Type: model.ItemJSON, Data: first})
	require.NoError(t, err)
	secondID, err := s.Add(ctx, AddRequest{OwnerID: "project_p1", Type: model.ItemJSON, Data: string(second)})
	require.NoError(t, err)
	otherOwner, err := s.Add(ctx, AddRequest{OwnerID: "project_p2", Type: model.ItemJSON, Data: first})
	require.NoError(t, err)

	assert.NotEqual(t, firstID, secondID)
	assert.NotEqual(t, firstID, otherOwner)
}

func TestAdd_TextWritesEpisodeOnly(t *testing.T) {
	d := NewMockDriver()
	s := newTestStore(d)

	_, err := s.Add(context.Background(), AddRequest{OwnerID: "project_p1", Type: model.ItemText, Data: "Project p1: deploy"})

	require.NoError(t, err)
	require.Len(t, d.Calls, 1)
	assert.Equal(t, SaveEpisodicNodeQuery, d.Calls[0].Query)
	assert.Equal(t, "Project p1: deploy", d.Calls[0].Params["content"])
}

func TestAdd_RejectsBadInput(t *testing.T) {
	s := newTestStore(NewMockDriver())
	ctx := context.Background()

	_, err := s.Add(ctx, AddRequest{OwnerID: "project_p1", Type: model.ItemJSON, Data: "not json"})
	var validation *apperr.ValidationError
	assert.True(t, errors.As(err, &validation))

	_, err = s.Add(ctx, AddRequest{Type: model.ItemText, Data: "x"})
	assert.True(t, errors.As(err, &validation))
}

func TestAdd_PropagatesDriverError(t *testing.T) {
	d := NewMockDriver()
	d.FailOn = SaveEntityNodeQuery
	s := newTestStore(d)

	_, err := s.Add(context.Background(), AddRequest{OwnerID: "project_p1", Type: model.ItemJSON, Data: issueItem(t)})

	assert.ErrorContains(t, err, "failed to save entity node-42")
}

func TestSearch_EdgesRankedFilteredAndLimited(t *testing.T) {
	d := NewMockDriver()
	d.Queue(SearchEdgesQuery,
		record("uuid", "e1", "fact", "alice created the dashboard", "name", "created", "strength", 1.0, "valid_at", "2024-01-01T00:00:00Z", "invalid_at", nil, "expired_at", nil),
		record("uuid", "e2", "fact", "login bug mentions login page", "name", "mentions", "strength", 0.7, "valid_at", "2024-01-01T00:00:00Z", "invalid_at", nil, "expired_at", nil),
		record("uuid", "e3", "fact", "login flow was replaced", "name", "related_to", "strength", 0.3, "valid_at", "2024-01-01T00:00:00Z", "invalid_at", "2024-02-01T00:00:00Z", "expired_at", nil),
	)
	s := newTestStore(d)

	resp, err := s.Search(context.Background(), SearchRequest{
		OwnerID:  "project_p1",
		Query:    "Login",
		Limit:    1,
		Reranker: model.RerankBM25,
		DateTime: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	require.Len(t, resp.Edges, 1)
	assert.Equal(t, "e2", resp.Edges[0].UUID)
	assert.Greater(t, resp.Edges[0].Score, 0.0)
	assert.Equal(t, 0.7, resp.Edges[0].Strength)
	assert.Nil(t, resp.Nodes)

	params := d.CallsTo(SearchEdgesQuery)[0].Params
	assert.Equal(t, []string{"login"}, params["terms"])
	assert.Equal(t, 100, params["limit"])
}

func TestSearch_MultipleScopes(t *testing.T) {
	d := NewMockDriver()
	d.Queue(SearchEdgesQuery, record("uuid", "e1", "fact", "a mentions b"))
	d.Queue(SearchNodesQuery, record("uuid", "n1", "name", "Dashboard", "summary", "open", "node_type", "task", "created_at", "2024-01-01T00:00:00Z"))
	s := newTestStore(d)

	resp, err := s.Search(context.Background(), SearchRequest{
		OwnerID: "project_p1",
		Query:   "dashboard",
		Limit:   50,
		Scopes:  []model.Scope{model.ScopeEdges, model.ScopeNodes},
	})

	require.NoError(t, err)
	assert.Len(t, resp.Edges, 1)
	require.Len(t, resp.Nodes, 1)
	assert.Equal(t, []string{"Entity", "task"}, resp.Nodes[0].Labels)
	assert.Equal(t, 250, d.CallsTo(SearchNodesQuery)[0].Params["limit"])
}

func TestSearch_Episodes(t *testing.T) {
	d := NewMockDriver()
	d.Queue(SearchEpisodesQuery, record("uuid", "ep1", "name", "deploy", "content", "Project p1: deployed", "valid_at", "2024-01-05T00:00:00Z", "created_at", "2024-01-05T00:00:00.000000000Z"))
	s := newTestStore(d)

	resp, err := s.Search(context.Background(), SearchRequest{OwnerID: "project_p1", Scopes: []model.Scope{model.ScopeEpisodes}})

	require.NoError(t, err)
	require.Len(t, resp.Episodes, 1)
	assert.Equal(t, "2024-01-05T00:00:00Z", resp.Episodes[0].Timestamp)
	assert.Equal(t, "Project p1: deployed", resp.Episodes[0].Content)
}

func TestSearch_UnknownScope(t *testing.T) {
	s := newTestStore(NewMockDriver())

	_, err := s.Search(context.Background(), SearchRequest{OwnerID: "p", Scopes: []model.Scope{"communities"}})

	assert.Equal(t, 400, apperr.StatusCode(err))
}

func TestCreateThread_StoresMetadata(t *testing.T) {
	d := NewMockDriver()
	s := newTestStore(d)

	err := s.CreateThread(context.Background(), "thread_1", "project_p1", map[string]interface{}{"createdBy": "u1"})

	require.NoError(t, err)
	calls := d.CallsTo(SaveSagaNodeQuery)
	require.Len(t, calls, 1)
	assert.Equal(t, "project_p1", calls[0].Params["group_id"])
	assert.JSONEq(t, `{"createdBy":"u1"}`, calls[0].Params["metadata"].(string))
}

func TestAddMessages_ChainsEpisodes(t *testing.T) {
	d := NewMockDriver()
	d.Queue(GetSagaQuery, record("uuid", "thread_1", "group_id", "project_p1"))
	d.Queue(GetPreviousEpisodeInSagaQuery)
	d.Queue(GetPreviousEpisodeInSagaQuery, record("uuid", "episode-1"))
	s := newTestStore(d)

	err := s.AddMessages(context.Background(), "thread_1", []model.Message{
		{Role: "user", Content: "what changed?"},
		{Role: "assistant", Content: "the login flow"},
	})

	require.NoError(t, err)
	episodes := d.CallsTo(SaveEpisodicNodeQuery)
	require.Len(t, episodes, 2)
	assert.Equal(t, "message", episodes[0].Params["source"])
	assert.Less(t, episodes[0].Params["created_at"].(string), episodes[1].Params["created_at"].(string))

	assert.Len(t, d.CallsTo(SaveHasEpisodeEdgeQuery), 2)
	next := d.CallsTo(SaveNextEpisodeEdgeQuery)
	require.Len(t, next, 1)
	assert.Equal(t, "episode-1", next[0].Params["source_uuid"])
	assert.Equal(t, "episode-2", next[0].Params["target_uuid"])
}

func TestThreadMessages_MissingThread(t *testing.T) {
	s := newTestStore(NewMockDriver())

	_, err := s.ThreadMessages(context.Background(), "thread_x", 10)

	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestThreadMessages_OldestFirst(t *testing.T) {
	d := NewMockDriver()
	d.Queue(GetSagaQuery, record("uuid", "thread_1", "group_id", "project_p1"))
	d.Queue(GetSagaMessagesQuery,
		record("uuid", "m2", "role", "assistant", "content", "hello", "created_at", "2024-03-01T12:00:01.000000000Z"),
		record("uuid", "m1", "role", "user", "content", "hi", "created_at", "2024-03-01T12:00:00.000000000Z"),
	)
	s := newTestStore(d)

	msgs, err := s.ThreadMessages(context.Background(), "thread_1", 2)

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].UUID)
	assert.Equal(t, "m2", msgs[1].UUID)
}

func TestThreadContext_Summarized(t *testing.T) {
	d := NewMockDriver()
	d.Queue(GetSagaQuery, record("uuid", "thread_1", "group_id", "project_p1"))
	d.Queue(GetRecentFactsQuery, record("fact", "alice created Fix login", "valid_at", "2024-01-01T00:00:00Z"))
	d.Queue(GetSagaMessagesQuery, record("uuid", "m1", "role", "user", "content", "status?", "created_at", "2024-03-01T12:00:00.000000000Z"))
	s := newTestStore(d)

	out, err := s.ThreadContext(context.Background(), "thread_1", ThreadContextOptions{MinRating: 0.7})

	require.NoError(t, err)
	assert.Equal(t, "FACTS:\n- alice created Fix login (Since: 2024-01-01T00:00:00Z)\n\nRECENT MESSAGES:\nuser: status?", out)
	assert.Equal(t, 0.7, d.CallsTo(GetRecentFactsQuery)[0].Params["min_rating"])
}

func TestThreadContext_BasicSkipsFacts(t *testing.T) {
	d := NewMockDriver()
	d.Queue(GetSagaQuery, record("uuid", "thread_1", "group_id", "project_p1"))
	d.Queue(GetSagaMessagesQuery, record("uuid", "m1", "role", "user", "content", "hi", "created_at", "2024-03-01T12:00:00.000000000Z"))
	s := newTestStore(d)

	out, err := s.ThreadContext(context.Background(), "thread_1", ThreadContextOptions{Mode: "basic"})

	require.NoError(t, err)
	assert.Equal(t, "RECENT MESSAGES:\nuser: hi", out)
	assert.Empty(t, d.CallsTo(GetRecentFactsQuery))
}

func TestThreadContext_UnknownMode(t *testing.T) {
	d := NewMockDriver()
	d.Queue(GetSagaQuery, record("uuid", "thread_1", "group_id", "project_p1"))
	s := newTestStore(d)

	_, err := s.ThreadContext(context.Background(), "thread_1", ThreadContextOptions{Mode: "verbose"})

	assert.Equal(t, 400, apperr.StatusCode(err))
}
