// Package query answers read-side questions about a project graph and formats the answers
// as context for a language model.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agenthands/graphsync/internal/core/apperr"
	"github.com/agenthands/graphsync/internal/core/ingest"
	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/driver"
	"github.com/agenthands/graphsync/internal/logger"
	"github.com/agenthands/graphsync/internal/metrics"
)

type Type string

const (
	TypeSearch   Type = "search"
	TypeEntity   Type = "entity"
	TypeTimeline Type = "timeline"
	TypeImpact   Type = "impact"
)

const (
	DefaultSearchLimit   = 20
	DefaultTimelineLimit = 50
	EntityLimit          = 50
	ImpactLimit          = 30
	DefaultMinRating     = 0.7

	initMarkerQuery = "initialized:true"
)

// Graph is the part of the graph store the query layer reads through.
type Graph interface {
	Search(ctx context.Context, req driver.SearchRequest) (*model.SearchResponse, error)
	CreateThread(ctx context.Context, threadID, ownerID string, metadata map[string]interface{}) error
	AddMessages(ctx context.Context, threadID string, msgs []model.Message) error
	ThreadMessages(ctx context.Context, threadID string, limit int) ([]model.Message, error)
	ThreadContext(ctx context.Context, threadID string, opts driver.ThreadContextOptions) (string, error)
}

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Options struct {
	Limit     int            `json:"limit,omitempty"`
	Scope     model.Scope    `json:"scope,omitempty"`
	TimeRange *TimeRange     `json:"timeRange,omitempty"`
	Reranker  model.Reranker `json:"reranker,omitempty"`
	DateTime  *time.Time     `json:"dateTime,omitempty"`
}

type Request struct {
	ProjectID string  `json:"projectId"`
	Query     string  `json:"query"`
	Type      Type    `json:"type"`
	Options   Options `json:"options"`
}

// Result holds formatted text, or an entity context for entity queries.
type Result struct {
	Text   string
	Entity *EntityContext
}

// Value is what callers serialize: the entity context when present, else the text.
func (r Result) Value() interface{} {
	if r.Entity != nil {
		return r.Entity
	}
	return r.Text
}

type Service struct {
	graph   Graph
	log     *logger.Logger
	metrics *metrics.Metrics

	Now func() time.Time
}

func NewService(graph Graph, log *logger.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{graph: graph, log: log, metrics: m, Now: time.Now}
}

func validate(req Request) error {
	var fields []apperr.FieldError
	if strings.TrimSpace(req.ProjectID) == "" {
		fields = append(fields, apperr.FieldError{Field: "projectId", Message: "required"})
	}
	if strings.TrimSpace(req.Query) == "" {
		fields = append(fields, apperr.FieldError{Field: "query", Message: "required"})
	}
	switch req.Type {
	case TypeSearch, TypeEntity, TypeTimeline, TypeImpact:
	default:
		fields = append(fields, apperr.FieldError{Field: "type", Message: fmt.Sprintf("unsupported query type %q", req.Type)})
	}
	if len(fields) > 0 {
		return &apperr.ValidationError{Message: "invalid knowledge query", Fields: fields}
	}
	return nil
}

// Analyze runs one knowledge query. Only malformed requests return an error; graph store
// failures degrade to the type's fallback result and are logged.
func (s *Service) Analyze(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	var (
		res Result
		err error
	)
	switch req.Type {
	case TypeSearch:
		res.Text, err = s.Search(ctx, req.ProjectID, req.Query, req.Options)
	case TypeEntity:
		var ec EntityContext
		ec, err = s.Entity(ctx, req.ProjectID, req.Query)
		if err != nil {
			ec = EntityContext{Facts: []Fact{}, RelatedEntities: []model.Node{}, Summary: "Failed to retrieve context"}
		}
		res.Entity = &ec
	case TypeTimeline:
		res.Text, err = s.Timeline(ctx, req.ProjectID, req.Query, req.Options)
	case TypeImpact:
		res.Text, err = s.Impact(ctx, req.ProjectID, req.Query)
		if err != nil {
			res.Text = "Failed to analyze impact"
		}
	}
	if err != nil {
		s.metrics.QueryFailures.WithLabelValues(string(req.Type)).Inc()
		s.log.Error("Knowledge query failed", "projectId", req.ProjectID, "type", req.Type, "error", err)
		return res, nil
	}

	s.log.Info("Knowledge search completed", "projectId", req.ProjectID, "type", req.Type, "query", truncate(req.Query, 50))
	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func searchRequest(projectID, query string, opts Options) driver.SearchRequest {
	req := driver.SearchRequest{
		OwnerID:  ingest.GraphID(projectID),
		Query:    query,
		Limit:    opts.Limit,
		Reranker: opts.Reranker,
	}
	if opts.Scope != "" {
		req.Scopes = []model.Scope{opts.Scope}
	}
	if opts.DateTime != nil {
		req.DateTime = *opts.DateTime
	}
	return req
}

// Search returns the project's knowledge relevant to query, diversified with MMR unless
// another reranker is requested.
func (s *Service) Search(ctx context.Context, projectID, query string, opts Options) (string, error) {
	req := searchRequest(projectID, query, opts)
	if req.Limit <= 0 {
		req.Limit = DefaultSearchLimit
	}
	if req.Reranker == "" {
		req.Reranker = model.RerankMMR
	}
	resp, err := s.graph.Search(ctx, req)
	if err != nil {
		return "", fmt.Errorf("search project knowledge: %w", err)
	}
	return BuildContext(resp), nil
}

// Entity gathers the facts and neighbouring entities matching an entity id or name.
func (s *Service) Entity(ctx context.Context, projectID, entity string) (EntityContext, error) {
	resp, err := s.graph.Search(ctx, driver.SearchRequest{
		OwnerID:  ingest.GraphID(projectID),
		Query:    entity,
		Limit:    EntityLimit,
		Reranker: model.RerankBM25,
		Scopes:   []model.Scope{model.ScopeEdges, model.ScopeNodes},
	})
	if err != nil {
		return EntityContext{}, fmt.Errorf("get entity context: %w", err)
	}
	return NewEntityContext(resp), nil
}

// Timeline lists matching episodes oldest first. A time range, when given, drops episodes
// outside it.
func (s *Service) Timeline(ctx context.Context, projectID, query string, opts Options) (string, error) {
	req := searchRequest(projectID, query, opts)
	req.Scopes = []model.Scope{model.ScopeEpisodes}
	if req.Limit <= 0 {
		req.Limit = DefaultTimelineLimit
	}
	if req.Reranker == "" {
		req.Reranker = model.RerankBM25
	}
	resp, err := s.graph.Search(ctx, req)
	if err != nil {
		return "", fmt.Errorf("search timeline: %w", err)
	}
	if resp != nil && opts.TimeRange != nil {
		resp.Episodes = inRange(resp.Episodes, *opts.TimeRange)
	}
	return FormatTimeline(resp), nil
}

func inRange(episodes []model.Episode, r TimeRange) []model.Episode {
	kept := make([]model.Episode, 0, len(episodes))
	for _, ep := range episodes {
		t := episodeTime(ep)
		if !r.Start.IsZero() && t.Before(r.Start) {
			continue
		}
		if !r.End.IsZero() && t.After(r.End) {
			continue
		}
		kept = append(kept, ep)
	}
	return kept
}

// Impact looks for relationships describing the impact of subject, ordered by the
// cross-ranker.
func (s *Service) Impact(ctx context.Context, projectID, subject string) (string, error) {
	resp, err := s.graph.Search(ctx, driver.SearchRequest{
		OwnerID:  ingest.GraphID(projectID),
		Query:    "impact of " + subject,
		Limit:    ImpactLimit,
		Reranker: model.RerankCohere,
		Scopes:   []model.Scope{model.ScopeEdges},
	})
	if err != nil {
		return "", fmt.Errorf("analyze impact: %w", err)
	}
	return FormatImpact(resp), nil
}

type Status struct {
	ProjectID   string `json:"projectId"`
	GraphID     string `json:"graphId"`
	Initialized bool   `json:"initialized"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// Status reports whether the project's graph carries its initialization marker.
func (s *Service) Status(ctx context.Context, projectID string) (Status, error) {
	if strings.TrimSpace(projectID) == "" {
		return Status{}, apperr.Validation("projectId", "missing projectId parameter")
	}
	graphID := ingest.GraphID(projectID)
	resp, err := s.graph.Search(ctx, driver.SearchRequest{
		OwnerID:  graphID,
		Query:    initMarkerQuery,
		Limit:    1,
		Reranker: model.RerankBM25,
		Scopes:   []model.Scope{model.ScopeEpisodes},
	})
	if err != nil {
		return Status{}, fmt.Errorf("get graph status: %w", err)
	}

	st := Status{ProjectID: projectID, GraphID: graphID, Initialized: hasMarker(resp)}
	if st.Initialized {
		st.Status = "ready"
		st.Message = "Knowledge graph is ready for queries"
	} else {
		st.Status = "not_initialized"
		st.Message = `Knowledge graph needs initialization. Call PUT /knowledge with type:"initial"`
	}
	return st, nil
}

func hasMarker(resp *model.SearchResponse) bool {
	if resp == nil {
		return false
	}
	for _, ep := range resp.Episodes {
		if strings.Contains(ep.Content, `"initialized":true`) {
			return true
		}
	}
	return strings.Contains(BuildContext(resp), "initialized")
}
