package model

import "time"

type Temporal struct {
	ValidFrom time.Time `json:"validFrom"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CanonicalNode struct {
	NodeType   NodeType               `json:"nodeType"`
	NodeID     string                 `json:"nodeId"`
	Provider   string                 `json:"provider"`
	Attributes map[string]interface{} `json:"attributes"`
	Temporal   Temporal               `json:"temporal"`
}

type CanonicalRelation struct {
	RelationType  RelationType `json:"relationType"`
	SourceID      string       `json:"sourceId"`
	TargetID      string       `json:"targetId"`
	Strength      float64      `json:"strength"`
	Context       string       `json:"context"`
	EstablishedAt time.Time    `json:"establishedAt"`
}

// SyncJob is one tracked synchronization run for a provider connection.
type SyncJob struct {
	SyncKey   string    `json:"syncKey"`
	SyncID    string    `json:"syncId"`
	StartedAt time.Time `json:"startedAt"`
}
