package model

type NodeType string

const (
	NodePerson       NodeType = "person"
	NodeOrganization NodeType = "organization"
	NodeLocation     NodeType = "location"
	NodeEvent        NodeType = "event"
	NodeProduct      NodeType = "product"
	NodeConcept      NodeType = "concept"
	NodeDocument     NodeType = "document"
	NodeTask         NodeType = "task"
	NodeProject      NodeType = "project"
)

type RelationType string

const (
	RelKnows          RelationType = "knows"
	RelWorksWith      RelationType = "works_with"
	RelLocatedAt      RelationType = "located_at"
	RelParticipatedIn RelationType = "participated_in"
	RelCreated        RelationType = "created"
	RelMentions       RelationType = "mentions"
	RelRelatedTo      RelationType = "related_to"
	RelPartOf         RelationType = "part_of"
)

// Strength is a fixed function of the relation type, never of record content.
func (r RelationType) Strength() float64 {
	switch r {
	case RelCreated, RelPartOf:
		return 1.0
	case RelWorksWith, RelMentions:
		return 0.7
	default:
		return 0.3
	}
}

// DataType is the coarse category a provider record is ingested as.
type DataType string

const (
	DataIssue    DataType = "issue"
	DataPR       DataType = "pr"
	DataDocument DataType = "document"
	DataEvent    DataType = "event"
	DataCode     DataType = "code"
	DataSync     DataType = "sync"
)

var nangoModelDataTypes = map[string]DataType{
	"github_issue":        DataIssue,
	"github_pull_request": DataPR,
	"github_repository":   DataCode,
	"notion_page":         DataDocument,
	"notion_database":     DataDocument,
	"notion_block":        DataDocument,
	"jira_issue":          DataIssue,
	"jira_project":        DataCode,
}

// DataTypeForModel maps a sync provider model name to a DataType; unknown models are events.
func DataTypeForModel(model string) DataType {
	if dt, ok := nangoModelDataTypes[model]; ok {
		return dt
	}
	return DataEvent
}

const (
	ProviderGitHub = "github"
	ProviderNotion = "notion"
	ProviderJira   = "jira"
	ProviderSlack  = "slack"
)
