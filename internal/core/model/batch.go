package model

type ItemType string

const (
	ItemJSON ItemType = "json"
	ItemText ItemType = "text"
)

// BatchItem is one graph write prepared from a source record.
type BatchItem struct {
	Type     ItemType               `json:"type"`
	Data     string                 `json:"data"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ItemRelationships is the _relationships section of a json item.
type ItemRelationships struct {
	Author     string   `json:"author,omitempty"`
	Mentions   []string `json:"mentions,omitempty"`
	References []string `json:"references,omitempty"`
	RelatedTo  []string `json:"relatedTo,omitempty"`
}

// ItemEnvelope is the reserved part of a json item. The remaining keys are the source
// record as received.
type ItemEnvelope struct {
	Metadata      map[string]interface{} `json:"_metadata,omitempty"`
	Temporal      *Temporal              `json:"_temporal,omitempty"`
	Relationships *ItemRelationships     `json:"_relationships,omitempty"`
}
