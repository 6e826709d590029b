// Package ontology maps provider records onto the canonical node and relation types.
// Every function here is pure: no I/O, no shared state, and unknown input falls back to a
// neutral value instead of failing.
package ontology

import (
	"github.com/agenthands/graphsync/internal/core/model"
)

var dataTypeNodes = map[model.DataType]model.NodeType{
	model.DataIssue:    model.NodeTask,
	model.DataPR:       model.NodeTask,
	model.DataDocument: model.NodeDocument,
	model.DataEvent:    model.NodeEvent,
	model.DataCode:     model.NodeProject,
	model.DataSync:     model.NodeEvent,
}

// Classify maps a data type to its node type. Unknown types are concepts.
func Classify(dataType model.DataType) model.NodeType {
	if nt, ok := dataTypeNodes[dataType]; ok {
		return nt
	}
	return model.NodeConcept
}

var providerEntityNodes = map[string]map[string]model.NodeType{
	model.ProviderGitHub: {
		"user":         model.NodePerson,
		"organization": model.NodeOrganization,
		"repository":   model.NodeProject,
		"issue":        model.NodeTask,
		"pull_request": model.NodeTask,
		"release":      model.NodeEvent,
		"commit":       model.NodeEvent,
		"milestone":    model.NodeConcept,
	},
	model.ProviderNotion: {
		"user":      model.NodePerson,
		"workspace": model.NodeOrganization,
		"page":      model.NodeDocument,
		"database":  model.NodeConcept,
		"block":     model.NodeDocument,
		"comment":   model.NodeEvent,
	},
	model.ProviderJira: {
		"user":    model.NodePerson,
		"project": model.NodeProject,
		"issue":   model.NodeTask,
		"epic":    model.NodeProject,
		"sprint":  model.NodeConcept,
		"board":   model.NodeConcept,
	},
	model.ProviderSlack: {
		"user":      model.NodePerson,
		"workspace": model.NodeOrganization,
		"channel":   model.NodeLocation,
		"message":   model.NodeEvent,
		"thread":    model.NodeConcept,
	},
}

// ClassifyProviderEntity maps a provider's own entity name to a node type.
func ClassifyProviderEntity(provider, entityType string) model.NodeType {
	if nt, ok := providerEntityNodes[provider][entityType]; ok {
		return nt
	}
	return model.NodeConcept
}
