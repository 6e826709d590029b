//go:build integration

package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphsync/internal/core/ingest"
	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/core/query"
	"github.com/agenthands/graphsync/internal/driver"
	"github.com/agenthands/graphsync/internal/logger"
)

func TestTimelineOrdering(t *testing.T) {
	// Scenario: events arrive out of order; the timeline lists them by their own
	// timestamps and a time range drops the ones outside it.
	h := connect(t)
	ctx := context.Background()
	projectID := h.project(t, "temporal")
	graphID := ingest.GraphID(projectID)

	pipeline := ingest.NewPipeline(h.store, nil, ingest.DefaultOptions(), logger.Nop(), h.metrics)
	pipeline.InitializeGraph(ctx, projectID)

	events := []struct {
		at   time.Time
		desc string
	}{
		{time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC), "deploy rolled back"},
		{time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), "deploy started"},
		{time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), "deploy alert fired"},
	}
	for _, ev := range events {
		rec := model.DecodeRecord(model.ProviderGitHub, "event", map[string]interface{}{
			"eventType":   "deployment",
			"description": ev.desc,
		})
		rec.Kind = string(model.DataEvent)
		require.NoError(t, pipeline.IngestOne(ctx, graphID, model.DataEvent, rec, ingest.SourceMeta{
			Provider:  model.ProviderGitHub,
			Timestamp: ev.at,
		}))
	}

	resp, err := h.store.Search(ctx, driver.SearchRequest{
		OwnerID:  graphID,
		Query:    "deploy",
		Limit:    50,
		Reranker: model.RerankBM25,
		Scopes:   []model.Scope{model.ScopeEpisodes},
	})
	require.NoError(t, err)

	var order []string
	for _, ep := range query.SortEpisodes(resp.Episodes) {
		if !strings.HasPrefix(ep.Timestamp, "2024-03") {
			continue
		}
		for _, ev := range events {
			if strings.Contains(ep.Content, ev.desc) {
				order = append(order, ev.desc)
			}
		}
	}
	assert.Equal(t, []string{"deploy started", "deploy alert fired", "deploy rolled back"}, order)

	queries := query.NewService(h.store, logger.Nop(), h.metrics)
	out, err := queries.Analyze(ctx, query.Request{
		ProjectID: projectID,
		Query:     "deploy",
		Type:      query.TypeTimeline,
		Options: query.Options{TimeRange: &query.TimeRange{
			Start: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		}},
	})
	require.NoError(t, err)
	text := out.Value().(string)
	t.Logf("Timeline: %s", text)

	require.True(t, strings.HasPrefix(text, "TIMELINE:"))
	assert.NotContains(t, text, "[2024-03-01")
	assert.Contains(t, text, "[2024-03-02T09:00:00Z]")
	assert.Less(t, strings.Index(text, "[2024-03-02"), strings.Index(text, "[2024-03-03"))
}
