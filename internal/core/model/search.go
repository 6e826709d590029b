package model

import "encoding/json"

type Reranker string

const (
	RerankBM25   Reranker = "bm25"
	RerankMMR    Reranker = "mmr"
	RerankCohere Reranker = "cohere"
)

type Scope string

const (
	ScopeEdges    Scope = "edges"
	ScopeNodes    Scope = "nodes"
	ScopeEpisodes Scope = "episodes"
)

// Edge is a fact returned by graph search. Temporal bounds keep the store's textual form.
type Edge struct {
	UUID        string  `json:"uuid,omitempty"`
	Fact        string  `json:"fact,omitempty"`
	Description string  `json:"description,omitempty"`
	Name        string  `json:"name,omitempty"`
	ValidAt     string  `json:"valid_at,omitempty"`
	InvalidAt   string  `json:"invalid_at,omitempty"`
	ExpiredAt   string  `json:"expired_at,omitempty"`
	Strength    float64 `json:"strength,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

type Node struct {
	UUID        string   `json:"uuid,omitempty"`
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Impact      string   `json:"impact,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Score       float64  `json:"score,omitempty"`
}

type Episode struct {
	UUID        string  `json:"uuid,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
	Event       string  `json:"event,omitempty"`
	Description string  `json:"description,omitempty"`
	Content     string  `json:"content,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

// SearchResponse carries any of edges, nodes or episodes. Raw holds a response that
// matched none of those shapes.
type SearchResponse struct {
	Edges    []Edge          `json:"edges,omitempty"`
	Nodes    []Node          `json:"nodes,omitempty"`
	Episodes []Episode       `json:"episodes,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}
