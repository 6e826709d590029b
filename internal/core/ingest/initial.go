package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/agenthands/graphsync/internal/core/apperr"
	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/nango"
)

type providerModel struct {
	model    string
	dataType model.DataType
}

// initialModels lists, per provider and in ingestion order, the models pulled by an
// initial ingestion.
var initialModels = []struct {
	provider string
	models   []providerModel
}{
	{model.ProviderGitHub, []providerModel{
		{"github_issue", model.DataIssue},
		{"github_pull_request", model.DataPR},
		{"github_repository", model.DataCode},
	}},
	{model.ProviderNotion, []providerModel{
		{"notion_page", model.DataDocument},
		{"notion_database", model.DataDocument},
	}},
	{model.ProviderJira, []providerModel{
		{"jira_issue", model.DataIssue},
		{"jira_project", model.DataCode},
	}},
}

type InitialResult struct {
	GraphID string                           `json:"graphId"`
	Results map[string]apperr.ProviderResult `json:"results"`
}

// Err reports a PartialFailure when any provider failed.
func (r InitialResult) Err() error {
	for _, res := range r.Results {
		if !res.Success {
			return &apperr.PartialFailure{Results: r.Results}
		}
	}
	return nil
}

// Initial pulls every provider's synced records for the connection orgID_projectID and
// ingests them. Providers are independent: one failing is recorded in its result and the
// others still run.
func (p *Pipeline) Initial(ctx context.Context, orgID, projectID string) InitialResult {
	p.log.Info("Starting initial ingestion", "projectId", projectID, "organizationId", orgID)
	graphID := p.InitializeGraph(ctx, projectID)
	connectionID := orgID + "_" + projectID

	result := InitialResult{GraphID: graphID, Results: make(map[string]apperr.ProviderResult, len(initialModels))}
	for _, pm := range initialModels {
		count, err := p.ingestProvider(ctx, graphID, connectionID, pm.provider, pm.models)
		if err != nil {
			p.log.Error("Provider ingestion failed", "provider", pm.provider, "graphId", graphID, "error", err)
			result.Results[pm.provider] = apperr.ProviderResult{Success: false, Count: count, Error: err.Error()}
			continue
		}
		result.Results[pm.provider] = apperr.ProviderResult{Success: true, Count: count}
	}

	p.log.Info("Initial ingestion completed", "projectId", projectID, "results", result.Results)
	return result
}

func (p *Pipeline) ingestProvider(ctx context.Context, graphID, connectionID, provider string, models []providerModel) (int, error) {
	if p.records == nil {
		return 0, errors.New("no provider sync client configured")
	}

	var items []model.BatchItem
	for _, m := range models {
		raws, err := p.records.ListRecords(ctx, nango.ListRecordsRequest{
			Provider:     provider,
			ConnectionID: connectionID,
			Model:        m.model,
		})
		if err != nil {
			return 0, fmt.Errorf("list %s: %w", m.model, err)
		}
		records := make([]model.Record, 0, len(raws))
		for _, raw := range raws {
			records = append(records, model.DecodeRecord(provider, m.model, raw))
		}
		items = append(items, p.PrepareBatch(records, m.dataType, provider)...)
	}
	if len(items) == 0 {
		return 0, nil
	}

	err := p.IngestBatch(ctx, graphID, items, BatchOptions{
		OnProgress: func(pr BatchProgress) {
			p.log.Debug("Provider ingestion progress", "provider", provider, "current", pr.Current, "total", pr.Total)
		},
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
