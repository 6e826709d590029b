package ingest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/core/ontology"
)

// BatchProgress is reported once per completed group.
type BatchProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// BatchOptions overrides the pipeline defaults for one call. A zero BatchSize or Delay uses
// the default; a negative Delay disables the pause between groups.
type BatchOptions struct {
	BatchSize  int
	Delay      time.Duration
	OnProgress func(BatchProgress)
}

// PrepareBatch maps provider records to json items, attaching the provider's structural
// relations to each.
func (p *Pipeline) PrepareBatch(records []model.Record, dataType model.DataType, provider string) []model.BatchItem {
	items := make([]model.BatchItem, 0, len(records))
	for _, rec := range records {
		item, _ := p.buildItem(dataType, rec, SourceMeta{
			Provider:        provider,
			RelatedEntities: ontology.RelationsFor(rec),
		})
		items = append(items, item)
	}
	return items
}

// IngestBatch writes items in fixed-size groups. Items within a group are written
// concurrently and the group is awaited before the next one starts. The first failing item
// fails its group once every sibling has finished, and the remaining groups are not attempted.
func (p *Pipeline) IngestBatch(ctx context.Context, graphID string, items []model.BatchItem, opts BatchOptions) error {
	size := opts.BatchSize
	if size <= 0 {
		size = p.opts.BatchSize
	}
	if size <= 0 {
		size = DefaultBatchSize
	}
	delay := opts.Delay
	if delay == 0 {
		delay = p.opts.Delay
	}

	total := len(items)
	p.log.Info("Starting batch ingestion", "graphId", graphID, "totalItems", total, "batchSize", size)

	for start := 0; start < total; start += size {
		end := min(start+size, total)
		group := items[start:end]

		began := time.Now()
		// A failing item does not cancel its siblings; the group still runs to completion.
		var g errgroup.Group
		for _, item := range group {
			g.Go(func() error {
				return p.write(ctx, graphID, item)
			})
		}
		err := g.Wait()
		p.metrics.BatchDuration.Observe(time.Since(began).Seconds())
		if err != nil {
			p.log.Error("Batch ingestion failed", "graphId", graphID, "group", fmt.Sprintf("%d-%d", start, end), "error", err)
			return fmt.Errorf("batch group %d-%d: %w", start, end, err)
		}

		p.log.Info("Batch group ingested", "graphId", graphID, "items", len(group), "progress", fmt.Sprintf("%d/%d", end, total))
		if opts.OnProgress != nil {
			opts.OnProgress(BatchProgress{Current: end, Total: total})
		}

		if end < total && delay > 0 {
			if err := p.Sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	p.log.Info("Batch ingestion completed", "graphId", graphID, "totalItems", total)
	return nil
}

// ProviderData groups records per provider model for a multi-provider batch.
type ProviderData struct {
	GitHubIssues    []model.Record
	GitHubPRs       []model.Record
	GitHubRepos     []model.Record
	NotionPages     []model.Record
	NotionDatabases []model.Record
	JiraIssues      []model.Record
	JiraProjects    []model.Record
}

// Len is the total number of records across providers.
func (d ProviderData) Len() int {
	return len(d.GitHubIssues) + len(d.GitHubPRs) + len(d.GitHubRepos) +
		len(d.NotionPages) + len(d.NotionDatabases) +
		len(d.JiraIssues) + len(d.JiraProjects)
}

// IngestProviders prepares every provider's records and writes them as one batch.
func (p *Pipeline) IngestProviders(ctx context.Context, graphID string, data ProviderData, opts BatchOptions) error {
	var items []model.BatchItem
	items = append(items, p.PrepareBatch(data.GitHubIssues, model.DataIssue, model.ProviderGitHub)...)
	items = append(items, p.PrepareBatch(data.GitHubPRs, model.DataPR, model.ProviderGitHub)...)
	items = append(items, p.PrepareBatch(data.GitHubRepos, model.DataCode, model.ProviderGitHub)...)
	items = append(items, p.PrepareBatch(data.NotionPages, model.DataDocument, model.ProviderNotion)...)
	items = append(items, p.PrepareBatch(data.NotionDatabases, model.DataDocument, model.ProviderNotion)...)
	items = append(items, p.PrepareBatch(data.JiraIssues, model.DataIssue, model.ProviderJira)...)
	items = append(items, p.PrepareBatch(data.JiraProjects, model.DataCode, model.ProviderJira)...)

	p.log.Info("Prepared multi-provider batch", "graphId", graphID, "totalItems", len(items))
	return p.IngestBatch(ctx, graphID, items, opts)
}
