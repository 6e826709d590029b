package driver

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/graphsync/internal/core/model"
)

type GraphDriver interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error)
	BuildIndices(ctx context.Context) error
	Close(ctx context.Context) error
}

// AddRequest writes one item into an owner's graph. Json items are parsed for their
// _metadata, _temporal and _relationships sections; text items become plain episodes.
type AddRequest struct {
	OwnerID  string
	Type     model.ItemType
	Data     string
	Metadata map[string]interface{}
}

type SearchRequest struct {
	OwnerID  string
	Query    string
	Limit    int
	Reranker model.Reranker
	// Scopes defaults to edges when empty.
	Scopes []model.Scope
	// DateTime, when set, keeps only results valid at that instant.
	DateTime time.Time
}

type ThreadContextOptions struct {
	// Mode is "basic" (recent messages) or "summarized" (facts plus recent messages).
	Mode      string
	MinRating float64
}

// GraphStore is the temporal knowledge graph as seen by the ingestion and query layers.
type GraphStore interface {
	EnsureOwner(ctx context.Context, ownerID string, metadata map[string]interface{}) error
	Add(ctx context.Context, req AddRequest) (string, error)
	Search(ctx context.Context, req SearchRequest) (*model.SearchResponse, error)

	CreateThread(ctx context.Context, threadID, ownerID string, metadata map[string]interface{}) error
	AddMessages(ctx context.Context, threadID string, msgs []model.Message) error
	ThreadMessages(ctx context.Context, threadID string, limit int) ([]model.Message, error)
	ThreadContext(ctx context.Context, threadID string, opts ThreadContextOptions) (string, error)

	BuildIndices(ctx context.Context) error
	Close(ctx context.Context) error
}
