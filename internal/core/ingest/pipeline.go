// Package ingest turns provider records into graph writes carrying temporal validity and
// delivers them one at a time, in batches, or as a stream.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agenthands/graphsync/internal/config"
	"github.com/agenthands/graphsync/internal/core/apperr"
	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/core/ontology"
	"github.com/agenthands/graphsync/internal/driver"
	"github.com/agenthands/graphsync/internal/logger"
	"github.com/agenthands/graphsync/internal/metrics"
	"github.com/agenthands/graphsync/internal/nango"
)

const (
	DefaultBatchSize     = 50
	DefaultDelay         = 100 * time.Millisecond
	DefaultChunkSize     = 100
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second

	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

// GraphWriter is the part of the graph store the pipeline writes through.
type GraphWriter interface {
	EnsureOwner(ctx context.Context, ownerID string, metadata map[string]interface{}) error
	Add(ctx context.Context, req driver.AddRequest) (string, error)
}

// RecordLister pages through a provider model's synced records.
type RecordLister interface {
	ListRecords(ctx context.Context, req nango.ListRecordsRequest) ([]map[string]interface{}, error)
}

type Options struct {
	BatchSize     int
	Delay         time.Duration
	ChunkSize     int
	RetryAttempts int
	RetryDelay    time.Duration
}

func DefaultOptions() Options {
	return Options{
		BatchSize:     DefaultBatchSize,
		Delay:         DefaultDelay,
		ChunkSize:     DefaultChunkSize,
		RetryAttempts: DefaultRetryAttempts,
		RetryDelay:    DefaultRetryDelay,
	}
}

// OptionsFromConfig fills unset values with the defaults.
func OptionsFromConfig(cfg config.IngestionConfig) Options {
	opts := DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.BatchSize = cfg.BatchSize
	}
	if cfg.DelayMS != 0 {
		opts.Delay = cfg.Delay()
	}
	if cfg.ChunkSize > 0 {
		opts.ChunkSize = cfg.ChunkSize
	}
	if cfg.RetryAttempts > 0 {
		opts.RetryAttempts = cfg.RetryAttempts
	}
	if cfg.RetryDelayMS > 0 {
		opts.RetryDelay = cfg.RetryDelay()
	}
	return opts
}

// SourceMeta describes where a record came from.
type SourceMeta struct {
	Provider        string
	Timestamp       time.Time
	Author          string
	RelatedEntities []string
}

type Pipeline struct {
	graph   GraphWriter
	records RecordLister
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewPipeline(graph GraphWriter, records RecordLister, opts Options, log *logger.Logger, m *metrics.Metrics) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Pipeline{
		graph:   graph,
		records: records,
		opts:    opts,
		log:     log,
		metrics: m,
		Now:     time.Now,
		Sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GraphID is the owner id under which a project's graph lives.
func GraphID(projectID string) string {
	if projectID == "" {
		projectID = "default"
	}
	return "project_" + projectID
}

// temporalFrame resolves validFrom as explicit timestamp, then record creation time, then now.
// createdAt and updatedAt prefer the record's own values.
func temporalFrame(rec model.Record, explicit, now time.Time) model.Temporal {
	validFrom := explicit
	if validFrom.IsZero() {
		validFrom = rec.CreatedAt
	}
	if validFrom.IsZero() {
		validFrom = now
	}
	frame := model.Temporal{ValidFrom: validFrom.UTC(), CreatedAt: validFrom.UTC(), UpdatedAt: validFrom.UTC()}
	if !rec.CreatedAt.IsZero() {
		frame.CreatedAt = rec.CreatedAt.UTC()
	}
	if !rec.UpdatedAt.IsZero() {
		frame.UpdatedAt = rec.UpdatedAt.UTC()
	}
	return frame
}

// buildItem wraps a record with its temporal frame first and derives relationships after,
// so both share the same frame.
func (p *Pipeline) buildItem(dataType model.DataType, rec model.Record, meta SourceMeta) (model.BatchItem, model.CanonicalNode) {
	now := p.Now().UTC()
	frame := temporalFrame(rec, meta.Timestamp, now)
	node := ontology.BuildNode(meta.Provider, dataType, rec, frame, now)

	attrs := make(map[string]interface{}, len(node.Attributes)+3)
	for k, v := range node.Attributes {
		attrs[k] = v
	}
	attrs["nodeId"] = node.NodeID
	if name := ontology.DisplayName(rec, node.Attributes); name != "" {
		attrs["name"] = name
	}

	doc := make(map[string]interface{}, len(rec.Raw)+6)
	for k, v := range rec.Raw {
		doc[k] = v
	}
	doc["nodeType"] = node.NodeType
	doc["nodeId"] = node.NodeID
	doc["_temporal"] = frame

	author := meta.Author
	if author == "" {
		author = rec.Author
	}
	doc["_relationships"] = model.ItemRelationships{
		Author:     author,
		Mentions:   ontology.ExtractMentions(rec),
		References: ontology.ExtractReferences(rec),
		RelatedTo:  meta.RelatedEntities,
	}
	doc["_source"] = map[string]interface{}{
		"system":    meta.Provider,
		"timestamp": frame.ValidFrom.Format(isoMillis),
		"dataType":  dataType,
	}
	doc["_metadata"] = attrs

	item := model.BatchItem{
		Type: model.ItemJSON,
		Data: ontology.Serialize(doc),
		Metadata: map[string]interface{}{
			"nodeType":  string(node.NodeType),
			"source":    meta.Provider,
			"dataType":  string(dataType),
			"timestamp": frame.ValidFrom.Format(isoMillis),
		},
	}
	return item, node
}

func (p *Pipeline) write(ctx context.Context, graphID string, item model.BatchItem) error {
	_, err := p.graph.Add(ctx, driver.AddRequest{
		OwnerID:  graphID,
		Type:     item.Type,
		Data:     item.Data,
		Metadata: item.Metadata,
	})
	if err != nil {
		p.metrics.GraphWrites.WithLabelValues("failed").Inc()
		return err
	}
	p.metrics.GraphWrites.WithLabelValues("ok").Inc()
	return nil
}

// IngestOne writes a single record. Event records that carry a description also get a
// plain-text episode so the sentence is searchable on its own.
func (p *Pipeline) IngestOne(ctx context.Context, graphID string, dataType model.DataType, rec model.Record, meta SourceMeta) error {
	if meta.Provider == "" {
		meta.Provider = rec.Provider
	}
	item, node := p.buildItem(dataType, rec, meta)
	if err := p.write(ctx, graphID, item); err != nil {
		return fmt.Errorf("ingest %s %s: %w", dataType, node.NodeID, err)
	}

	if dataType == model.DataEvent {
		if desc := rec.String("description"); desc != "" {
			text := model.BatchItem{
				Type: model.ItemText,
				Data: fmt.Sprintf("Project %s: %s - %s", graphID, node.Temporal.ValidFrom.Format(isoMillis), desc),
			}
			if err := p.write(ctx, graphID, text); err != nil {
				return fmt.Errorf("ingest event text: %w", err)
			}
		}
	}

	p.log.Debug("Record ingested", "graphId", graphID, "dataType", dataType, "provider", meta.Provider, "nodeId", node.NodeID)
	return nil
}

// RecordEvent stores a normalized webhook event in its project's graph. Failed writes are
// retried with a fixed delay; validation failures are returned at once.
func (p *Pipeline) RecordEvent(ctx context.Context, ev model.NormalizedEvent) error {
	graphID := GraphID(ev.ProjectID)
	raw := map[string]interface{}{
		"eventType":   string(ev.EventType),
		"payload":     ev.Payload,
		"description": ontology.DescribeEvent(ev.Payload),
	}
	rec := model.DecodeRecord(ev.Provider, "event", raw)
	rec.Kind = string(model.DataEvent)
	meta := SourceMeta{
		Provider:  ev.Provider,
		Timestamp: ev.Timestamp,
		Author:    payloadActor(ev.Payload),
	}

	attempts := max(p.opts.RetryAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = p.IngestOne(ctx, graphID, model.DataEvent, rec, meta)
		if err == nil {
			p.log.Info("Event recorded", "graphId", graphID, "eventType", ev.EventType, "provider", ev.Provider)
			return nil
		}
		var validation *apperr.ValidationError
		if errors.As(err, &validation) {
			return err
		}
		if attempt == attempts {
			break
		}
		p.metrics.WriteRetries.Inc()
		p.log.Warn("Failed to record event, retrying", "eventId", ev.EventID, "attempt", attempt, "remaining", attempts-attempt, "error", err)
		if serr := p.Sleep(ctx, p.opts.RetryDelay); serr != nil {
			return serr
		}
	}

	p.log.Error("Failed to record event after all retries", "eventId", ev.EventID, "error", err)
	return &apperr.UpstreamError{Op: "record event " + ev.EventID, Attempts: attempts, Err: err}
}

func payloadActor(payload map[string]interface{}) string {
	for _, path := range []string{"sender.login", "user.name", "user.login", "actor.displayName"} {
		if v, ok := model.Lookup(payload, path); ok {
			if s := model.ToString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// InitializeGraph makes sure the project's owner exists and records the init marker. It
// always returns the graph id; failures are only logged.
func (p *Pipeline) InitializeGraph(ctx context.Context, projectID string) string {
	if projectID == "" {
		projectID = "default"
	}
	graphID := GraphID(projectID)
	now := p.Now().UTC().Format(isoMillis)

	err := p.graph.EnsureOwner(ctx, graphID, map[string]interface{}{
		"type":      "project",
		"projectId": projectID,
		"createdAt": now,
	})
	if err != nil {
		p.log.Error("Failed to ensure project owner", "graphId", graphID, "error", err)
		return graphID
	}

	marker := ontology.Serialize(map[string]interface{}{
		"projectId":   projectID,
		"initialized": true,
		"name":        projectID + " Knowledge Graph",
		"description": "Complete knowledge graph for " + projectID + " including code, docs, issues, PRs, and events",
		"createdAt":   now,
	})
	if err := p.write(ctx, graphID, model.BatchItem{Type: model.ItemJSON, Data: marker}); err != nil {
		p.log.Error("Failed to initialize project graph", "graphId", graphID, "error", err)
		return graphID
	}

	p.log.Info("Project graph initialized", "graphId", graphID)
	return graphID
}
