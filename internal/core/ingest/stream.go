package ingest

import (
	"context"
	"iter"

	"github.com/agenthands/graphsync/internal/core/model"
)

// StreamProgress is yielded after every flushed chunk. Processed is cumulative and Current
// is the last record of the chunk.
type StreamProgress struct {
	Processed int
	Current   model.Record
}

// IngestStream buffers records from source and flushes every chunkSize of them through
// IngestBatch, plus a final partial chunk. Each flush yields one progress value; a consumer
// that stops iterating prevents later flushes but never interrupts one already dispatched.
// The pipeline keeps no cursor, so a stream is resumed only by issuing a new call.
func (p *Pipeline) IngestStream(ctx context.Context, graphID string, source iter.Seq2[model.Record, error], dataType model.DataType, provider string, chunkSize int) iter.Seq2[StreamProgress, error] {
	if chunkSize <= 0 {
		chunkSize = p.opts.ChunkSize
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return func(yield func(StreamProgress, error) bool) {
		buf := make([]model.Record, 0, chunkSize)
		processed := 0

		flush := func() bool {
			if err := ctx.Err(); err != nil {
				yield(StreamProgress{Processed: processed}, err)
				return false
			}
			items := p.PrepareBatch(buf, dataType, provider)
			if err := p.IngestBatch(ctx, graphID, items, BatchOptions{}); err != nil {
				p.log.Error("Stream ingestion failed", "graphId", graphID, "processed", processed, "error", err)
				yield(StreamProgress{Processed: processed}, err)
				return false
			}
			processed += len(buf)
			last := buf[len(buf)-1]
			buf = buf[:0]
			return yield(StreamProgress{Processed: processed, Current: last}, nil)
		}

		for rec, err := range source {
			if err != nil {
				yield(StreamProgress{Processed: processed}, err)
				return
			}
			buf = append(buf, rec)
			if len(buf) >= chunkSize && !flush() {
				return
			}
		}
		if len(buf) > 0 && !flush() {
			return
		}

		p.log.Info("Stream ingestion completed", "graphId", graphID, "totalProcessed", processed, "dataType", dataType, "provider", provider)
	}
}
