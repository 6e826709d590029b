// Package webhook drives one provider-sync webhook through normalization, graph ingestion
// and connection status bookkeeping.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agenthands/graphsync/internal/connections"
	"github.com/agenthands/graphsync/internal/core/apperr"
	"github.com/agenthands/graphsync/internal/core/ingest"
	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/core/ontology"
	"github.com/agenthands/graphsync/internal/logger"
	"github.com/agenthands/graphsync/internal/metrics"
)

type Normalizer interface {
	Verify(body []byte, signature string) error
	Normalize(ctx context.Context, body []byte) (model.NormalizedEvent, error)
}

type Ingester interface {
	InitializeGraph(ctx context.Context, projectID string) string
	RecordEvent(ctx context.Context, ev model.NormalizedEvent) error
	IngestOne(ctx context.Context, graphID string, dataType model.DataType, rec model.Record, meta ingest.SourceMeta) error
}

// JobCompleter clears the active sync job once the provider reports its outcome.
type JobCompleter interface {
	Complete(ctx context.Context, provider, connectionID string) error
}

type Result struct {
	Success        bool   `json:"success"`
	EventID        string `json:"eventId"`
	ProcessingTime int64  `json:"processingTime"`
}

type Processor struct {
	normalizer  Normalizer
	ingester    Ingester
	connections connections.Store
	jobs        JobCompleter
	log         *logger.Logger
	metrics     *metrics.Metrics

	Now func() time.Time
}

// NewProcessor wires the webhook flow. conns and jobs may be nil, in which case status
// bookkeeping or job completion is skipped.
func NewProcessor(n Normalizer, ing Ingester, conns connections.Store, jobs JobCompleter, log *logger.Logger, m *metrics.Metrics) *Processor {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Processor{
		normalizer:  n,
		ingester:    ing,
		connections: conns,
		jobs:        jobs,
		log:         log.With("component", "webhook"),
		metrics:     m,
		Now:         time.Now,
	}
}

// Process handles one webhook delivery. Validation, signature, admission and graph write
// failures are returned; connection bookkeeping failures are only logged.
func (p *Processor) Process(ctx context.Context, body []byte, signature string) (Result, error) {
	start := p.Now()

	if err := p.normalizer.Verify(body, signature); err != nil {
		p.log.Warn("Invalid webhook signature", "error", err)
		return Result{}, err
	}
	ev, err := p.normalizer.Normalize(ctx, body)
	if err != nil {
		return Result{}, err
	}

	graphID := p.ingester.InitializeGraph(ctx, ev.ProjectID)
	if err := p.ingester.RecordEvent(ctx, ev); err != nil {
		return Result{}, err
	}

	p.updateConnection(ctx, ev)
	p.completeJob(ctx, ev)

	if err := p.dispatch(ctx, graphID, ev); err != nil {
		return Result{}, err
	}

	elapsed := p.Now().Sub(start).Milliseconds()
	p.log.Info("Webhook processed successfully",
		"eventType", ev.EventType,
		"originalType", ev.OriginalType,
		"provider", ev.Provider,
		"processingTime", elapsed,
	)
	return Result{Success: true, EventID: ev.EventID, ProcessingTime: elapsed}, nil
}

func (p *Processor) updateConnection(ctx context.Context, ev model.NormalizedEvent) {
	if p.connections == nil {
		return
	}
	if _, err := p.connections.Get(ctx, ev.ConnectionID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			p.log.Info("Connection not found in database, skipping update", "connectionId", ev.ConnectionID, "eventType", ev.EventType)
			return
		}
		p.metrics.ConnectionErrors.Inc()
		p.log.Error("Failed to load connection", "connectionId", ev.ConnectionID, "error", err)
		return
	}

	var u connections.Update
	switch ev.EventType {
	case model.EventAuthSuccess:
		u.Status = connections.StatusActive
	case model.EventAuthError:
		u.Status = connections.StatusError
		if ev.Error != nil {
			u.Metadata = map[string]interface{}{"error": ev.Error}
		}
	case model.EventConnectionDeleted:
		u.Status = connections.StatusInactive
	case model.EventSyncSuccess:
		now := p.Now().UTC()
		u.LastSyncAt = &now
	case model.EventSyncError:
		u.Status = connections.StatusError
		if ev.Error != nil {
			u.Metadata = map[string]interface{}{"lastError": ev.Error}
		}
	default:
		return
	}

	if err := p.connections.Update(ctx, ev.ConnectionID, u); err != nil {
		p.metrics.ConnectionErrors.Inc()
		p.log.Error("Failed to update connection status", "connectionId", ev.ConnectionID, "eventType", ev.EventType, "error", err)
	}
}

func (p *Processor) completeJob(ctx context.Context, ev model.NormalizedEvent) {
	if p.jobs == nil {
		return
	}
	if ev.EventType != model.EventSyncSuccess && ev.EventType != model.EventSyncError {
		return
	}
	if err := p.jobs.Complete(ctx, ev.Provider, ev.ConnectionID); err != nil {
		p.log.Warn("Failed to clear sync job", "provider", ev.Provider, "connectionId", ev.ConnectionID, "error", err)
	}
}

func (p *Processor) dispatch(ctx context.Context, graphID string, ev model.NormalizedEvent) error {
	switch ev.EventType {
	case model.EventSyncSuccess:
		p.log.Info("Sync successful", "provider", ev.Provider, "connectionId", ev.ConnectionID)
		return p.ingestRecords(ctx, graphID, ev)
	case model.EventSyncError:
		p.log.Error("Sync failed", "provider", ev.Provider, "connectionId", ev.ConnectionID, "error", ev.Error)
	case model.EventAuthSuccess:
		p.log.Info("Authentication successful", "provider", ev.Provider, "connectionId", ev.ConnectionID)
	case model.EventAuthError:
		p.log.Error("Authentication failed", "provider", ev.Provider, "connectionId", ev.ConnectionID, "error", ev.Error)
	case model.EventConnectionDeleted:
		p.log.Info("Connection deleted", "provider", ev.Provider, "connectionId", ev.ConnectionID)
	case model.EventWebhookForward:
		p.log.Info("Webhook forwarded", "provider", ev.Provider, "connectionId", ev.ConnectionID)
		return p.ingestForward(ctx, graphID, ev)
	}
	return nil
}

// ingestRecords writes every record carried by a sync.success payload, typed by its sync
// model and stamped with its last modification time.
func (p *Processor) ingestRecords(ctx context.Context, graphID string, ev model.NormalizedEvent) error {
	raws, ok := ev.Payload["records"].([]interface{})
	if !ok {
		return nil
	}
	for i, r := range raws {
		raw, ok := r.(map[string]interface{})
		if !ok {
			p.log.Warn("Skipping malformed sync record", "index", i, "connectionId", ev.ConnectionID)
			continue
		}
		rec := model.DecodeRecord(ev.Provider, "", raw)
		dataType := model.DataTypeForModel(rec.Model)

		ts := ev.Timestamp
		if v, ok := model.Lookup(raw, "_nango_metadata.last_modified_at"); ok {
			if t, ok := model.ParseTime(model.ToString(v)); ok {
				ts = t
			}
		}
		meta := ingest.SourceMeta{
			Provider:        ev.Provider,
			Timestamp:       ts,
			Author:          rec.Author,
			RelatedEntities: ontology.RelationsFor(rec),
		}
		if err := p.ingester.IngestOne(ctx, graphID, dataType, rec, meta); err != nil {
			return fmt.Errorf("sync record %d: %w", i, err)
		}
	}
	p.log.Info("Sync records ingested", "graphId", graphID, "count", len(raws))
	return nil
}

// ingestForward stores a forwarded provider webhook as an event record.
func (p *Processor) ingestForward(ctx context.Context, graphID string, ev model.NormalizedEvent) error {
	action := model.ToString(ev.Payload["action"])
	if action == "" {
		action = "unknown"
	}
	raw := map[string]interface{}{
		"eventType":   action,
		"payload":     ev.Payload,
		"description": ontology.DescribeEvent(ev.Payload),
	}
	rec := model.DecodeRecord(ev.Provider, "event", raw)
	rec.Kind = string(model.DataEvent)

	author := ""
	for _, path := range []string{"sender.login", "user.name"} {
		if v, ok := model.Lookup(ev.Payload, path); ok {
			if author = model.ToString(v); author != "" {
				break
			}
		}
	}
	return p.ingester.IngestOne(ctx, graphID, model.DataEvent, rec, ingest.SourceMeta{
		Provider:  ev.Provider,
		Timestamp: ev.Timestamp,
		Author:    author,
	})
}
