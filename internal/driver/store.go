package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/graphsync/internal/core/apperr"
	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/llm"
	"github.com/agenthands/graphsync/internal/logger"
)

const (
	// Fixed width so that created_at strings sort chronologically.
	storeTimeFormat = "2006-01-02T15:04:05.000000000Z"

	minCandidates     = 100
	candidateFactor   = 5
	threadFactsLimit  = 20
	threadMessageTail = 10

	sourceMessage = "message"
)

var graphNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("graphsync/graph-element"))

var _ GraphStore = (*Store)(nil)

// Store is the GraphStore over a Memgraph connection. Owners partition the graph through
// the group_id property carried by every node and edge.
type Store struct {
	driver GraphDriver
	ranker Ranker
	log    *logger.Logger

	Now     func() time.Time
	NewUUID func() string
}

func NewStore(d GraphDriver, cross llm.RerankerClient, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		driver:  d,
		ranker:  Ranker{Cross: cross},
		log:     log,
		Now:     time.Now,
		NewUUID: func() string { return uuid.New().String() },
	}
}

func (s *Store) BuildIndices(ctx context.Context) error {
	return s.driver.BuildIndices(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) now() string {
	return s.Now().UTC().Format(storeTimeFormat)
}

func (s *Store) EnsureOwner(ctx context.Context, ownerID string, metadata map[string]interface{}) error {
	meta, err := toJSON(metadata)
	if err != nil {
		return err
	}
	_, err = s.driver.ExecuteQuery(ctx, SaveOwnerQuery, map[string]interface{}{
		"uuid":       ownerID,
		"metadata":   meta,
		"created_at": s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save owner %s: %w", ownerID, err)
	}
	return nil
}

// Add writes one item and returns the uuid of the episode that records it.
func (s *Store) Add(ctx context.Context, req AddRequest) (string, error) {
	if req.OwnerID == "" {
		return "", apperr.Validation("ownerId", "owner id is required")
	}
	switch req.Type {
	case model.ItemText:
		now := s.now()
		return s.saveEpisode(ctx, s.NewUUID(), req.OwnerID, episodeName(req.Metadata, "text"), req.Data, string(model.ItemText), "", now, now)
	case model.ItemJSON:
		return s.addJSON(ctx, req)
	default:
		return "", apperr.Validation("type", "unsupported item type %q", req.Type)
	}
}

func (s *Store) addJSON(ctx context.Context, req AddRequest) (string, error) {
	var env model.ItemEnvelope
	if err := json.Unmarshal([]byte(req.Data), &env); err != nil {
		return "", apperr.Validation("data", "item data is not a json object: %v", err)
	}

	createdAt := s.now()
	validAt := createdAt
	if env.Temporal != nil && !env.Temporal.ValidFrom.IsZero() {
		validAt = env.Temporal.ValidFrom.UTC().Format(time.RFC3339)
	}

	name := episodeName(env.Metadata, "record")
	nodeID := model.ToString(env.Metadata["nodeId"])
	episodeID := s.NewUUID()
	if nodeID != "" {
		// One episode per node version, so replaying a record rewrites it in place.
		episodeID = s.referenceID(req.OwnerID, "episode:"+nodeID+"@"+validAt)
	}
	if _, err := s.saveEpisode(ctx, episodeID, req.OwnerID, name, req.Data, string(model.ItemJSON), "", createdAt, validAt); err != nil {
		return "", err
	}

	if nodeID == "" {
		// Nothing to anchor entities on; the episode alone is kept.
		return episodeID, nil
	}

	attrs, err := toJSON(env.Metadata)
	if err != nil {
		return "", err
	}
	_, err = s.driver.ExecuteQuery(ctx, SaveEntityNodeQuery, map[string]interface{}{
		"uuid":       nodeID,
		"name":       name,
		"group_id":   req.OwnerID,
		"node_type":  model.ToString(env.Metadata["nodeType"]),
		"provider":   model.ToString(env.Metadata["provider"]),
		"summary":    entitySummary(env.Metadata),
		"attributes": attrs,
		"created_at": createdAt,
		"updated_at": createdAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save entity %s: %w", nodeID, err)
	}
	if err := s.link(ctx, SaveEpisodicEdgeQuery, req.OwnerID, episodeID, nodeID, "mentions", createdAt); err != nil {
		return "", err
	}

	rel := env.Relationships
	if rel == nil {
		return episodeID, nil
	}

	edge := func(target, targetType string, rt model.RelationType, fact string) error {
		targetID := s.referenceID(req.OwnerID, target)
		if _, err := s.driver.ExecuteQuery(ctx, SaveReferenceNodeQuery, map[string]interface{}{
			"uuid":       targetID,
			"name":       target,
			"group_id":   req.OwnerID,
			"node_type":  targetType,
			"created_at": createdAt,
		}); err != nil {
			return fmt.Errorf("failed to save reference %s: %w", target, err)
		}
		source, dest := nodeID, targetID
		if rt == model.RelCreated {
			source, dest = targetID, nodeID
		}
		_, err := s.driver.ExecuteQuery(ctx, SaveEntityEdgeQuery, map[string]interface{}{
			"uuid":        edgeID(req.OwnerID, source, string(rt), dest),
			"source_uuid": source,
			"target_uuid": dest,
			"name":        string(rt),
			"fact":        fact,
			"group_id":    req.OwnerID,
			"strength":    rt.Strength(),
			"valid_at":    validAt,
			"invalid_at":  nil,
			"created_at":  createdAt,
		})
		if err != nil {
			return fmt.Errorf("failed to save %s edge: %w", rt, err)
		}
		return nil
	}

	if rel.Author != "" {
		if err := edge(rel.Author, string(model.NodePerson), model.RelCreated, fmt.Sprintf("%s created %s", rel.Author, name)); err != nil {
			return "", err
		}
	}
	for _, m := range rel.Mentions {
		if err := edge(m, string(mentionType(m)), model.RelMentions, fmt.Sprintf("%s mentions %s", name, m)); err != nil {
			return "", err
		}
	}
	for _, r := range rel.RelatedTo {
		if err := edge(r, string(model.NodeConcept), model.RelRelatedTo, fmt.Sprintf("%s is related to %s", name, r)); err != nil {
			return "", err
		}
	}
	return episodeID, nil
}

func (s *Store) saveEpisode(ctx context.Context, id, ownerID, name, content, source, role, createdAt, validAt string) (string, error) {
	_, err := s.driver.ExecuteQuery(ctx, SaveEpisodicNodeQuery, map[string]interface{}{
		"uuid":       id,
		"name":       name,
		"group_id":   ownerID,
		"created_at": createdAt,
		"valid_at":   validAt,
		"content":    content,
		"source":     source,
		"role":       role,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save episode: %w", err)
	}
	return id, nil
}

func (s *Store) link(ctx context.Context, query, groupID, sourceID, targetID, kind, createdAt string) error {
	_, err := s.driver.ExecuteQuery(ctx, query, map[string]interface{}{
		"uuid":        edgeID(groupID, sourceID, kind, targetID),
		"source_uuid": sourceID,
		"target_uuid": targetID,
		"group_id":    groupID,
		"created_at":  createdAt,
	})
	if err != nil {
		return fmt.Errorf("failed to link %s: %w", kind, err)
	}
	return nil
}

func (s *Store) referenceID(groupID, name string) string {
	return uuid.NewSHA1(graphNamespace, []byte(groupID+":"+name)).String()
}

func edgeID(groupID, source, kind, target string) string {
	return uuid.NewSHA1(graphNamespace, []byte(strings.Join([]string{groupID, source, kind, target}, ":"))).String()
}

func mentionType(token string) model.NodeType {
	switch {
	case strings.HasPrefix(token, "@"):
		return model.NodePerson
	case strings.HasPrefix(token, "#"):
		return model.NodeTask
	default:
		return model.NodeConcept
	}
}

func episodeName(meta map[string]interface{}, fallback string) string {
	for _, key := range []string{"name", "title"} {
		if s := model.ToString(meta[key]); s != "" {
			return s
		}
	}
	provider := model.ToString(meta["provider"])
	nodeType := model.ToString(meta["nodeType"])
	if provider != "" || nodeType != "" {
		return strings.TrimSpace(provider + " " + nodeType)
	}
	return fallback
}

func entitySummary(meta map[string]interface{}) string {
	for _, key := range []string{"description", "status", "action"} {
		if s := model.ToString(meta[key]); s != "" {
			return s
		}
	}
	return ""
}

func toJSON(v map[string]interface{}) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode properties: %w", err)
	}
	return string(b), nil
}

// Search matches candidates on query terms inside the owner's group, then orders them in
// process with the requested reranker.
func (s *Store) Search(ctx context.Context, req SearchRequest) (*model.SearchResponse, error) {
	if req.Limit <= 0 {
		req.Limit = 10
	}
	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []model.Scope{model.ScopeEdges}
	}
	params := map[string]interface{}{
		"group_id": req.OwnerID,
		"terms":    Tokenize(req.Query),
		"limit":    max(req.Limit*candidateFactor, minCandidates),
	}

	resp := &model.SearchResponse{}
	for _, scope := range scopes {
		switch scope {
		case model.ScopeEdges:
			edges, err := s.searchEdges(ctx, params, req)
			if err != nil {
				return nil, err
			}
			resp.Edges = edges
		case model.ScopeNodes:
			nodes, err := s.searchNodes(ctx, params, req)
			if err != nil {
				return nil, err
			}
			resp.Nodes = nodes
		case model.ScopeEpisodes:
			episodes, err := s.searchEpisodes(ctx, params, req)
			if err != nil {
				return nil, err
			}
			resp.Episodes = episodes
		default:
			return nil, apperr.Validation("scope", "unsupported search scope %q", scope)
		}
	}
	return resp, nil
}

func (s *Store) searchEdges(ctx context.Context, params map[string]interface{}, req SearchRequest) ([]model.Edge, error) {
	res, err := s.driver.ExecuteQuery(ctx, SearchEdgesQuery, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search edges: %w", err)
	}
	var edges []model.Edge
	for _, rec := range res.Records {
		e := model.Edge{
			UUID:      getString(rec, "uuid"),
			Fact:      getString(rec, "fact"),
			Name:      getString(rec, "name"),
			ValidAt:   getString(rec, "valid_at"),
			InvalidAt: getString(rec, "invalid_at"),
			ExpiredAt: getString(rec, "expired_at"),
			Strength:  getFloat(rec, "strength"),
		}
		if !req.DateTime.IsZero() && !validDuring(req.DateTime, e.ValidAt, e.InvalidAt) {
			continue
		}
		edges = append(edges, e)
	}

	docs := make([]string, len(edges))
	for i, e := range edges {
		docs[i] = e.Fact
	}
	order, scores := s.ranker.Rank(ctx, req.Reranker, req.Query, docs)
	out := make([]model.Edge, 0, min(len(order), req.Limit))
	for _, idx := range order[:min(len(order), req.Limit)] {
		e := edges[idx]
		e.Score = scores[idx]
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) searchNodes(ctx context.Context, params map[string]interface{}, req SearchRequest) ([]model.Node, error) {
	res, err := s.driver.ExecuteQuery(ctx, SearchNodesQuery, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search nodes: %w", err)
	}
	var nodes []model.Node
	for _, rec := range res.Records {
		if !req.DateTime.IsZero() && !validDuring(req.DateTime, getString(rec, "created_at"), "") {
			continue
		}
		n := model.Node{
			UUID:    getString(rec, "uuid"),
			Name:    getString(rec, "name"),
			Summary: getString(rec, "summary"),
			Labels:  []string{"Entity"},
		}
		if t := getString(rec, "node_type"); t != "" {
			n.Labels = append(n.Labels, t)
		}
		nodes = append(nodes, n)
	}

	docs := make([]string, len(nodes))
	for i, n := range nodes {
		docs[i] = n.Name + " " + n.Summary
	}
	order, scores := s.ranker.Rank(ctx, req.Reranker, req.Query, docs)
	out := make([]model.Node, 0, min(len(order), req.Limit))
	for _, idx := range order[:min(len(order), req.Limit)] {
		n := nodes[idx]
		n.Score = scores[idx]
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) searchEpisodes(ctx context.Context, params map[string]interface{}, req SearchRequest) ([]model.Episode, error) {
	res, err := s.driver.ExecuteQuery(ctx, SearchEpisodesQuery, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search episodes: %w", err)
	}
	var episodes []model.Episode
	for _, rec := range res.Records {
		ep := model.Episode{
			UUID:        getString(rec, "uuid"),
			Timestamp:   getString(rec, "valid_at"),
			CreatedAt:   getString(rec, "created_at"),
			Description: getString(rec, "name"),
			Content:     getString(rec, "content"),
		}
		if !req.DateTime.IsZero() && !validDuring(req.DateTime, ep.Timestamp, "") {
			continue
		}
		episodes = append(episodes, ep)
	}

	docs := make([]string, len(episodes))
	for i, ep := range episodes {
		docs[i] = ep.Description + " " + ep.Content
	}
	order, scores := s.ranker.Rank(ctx, req.Reranker, req.Query, docs)
	out := make([]model.Episode, 0, min(len(order), req.Limit))
	for _, idx := range order[:min(len(order), req.Limit)] {
		ep := episodes[idx]
		ep.Score = scores[idx]
		out = append(out, ep)
	}
	return out, nil
}

// validDuring reports whether [from, until) contains t. Unparsable bounds do not exclude.
func validDuring(t time.Time, from, until string) bool {
	if ts, err := time.Parse(time.RFC3339, from); err == nil && ts.After(t) {
		return false
	}
	if ts, err := time.Parse(time.RFC3339, until); err == nil && !ts.After(t) {
		return false
	}
	return true
}

func getString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return model.ToString(v)
}

func getFloat(rec *neo4j.Record, key string) float64 {
	v, _ := rec.Get(key)
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	}
	return 0
}

// CreateThread stores a saga node that groups the thread's messages.
func (s *Store) CreateThread(ctx context.Context, threadID, ownerID string, metadata map[string]interface{}) error {
	meta, err := toJSON(metadata)
	if err != nil {
		return err
	}
	_, err = s.driver.ExecuteQuery(ctx, SaveSagaNodeQuery, map[string]interface{}{
		"uuid":       threadID,
		"name":       threadID,
		"group_id":   ownerID,
		"metadata":   meta,
		"created_at": s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save thread %s: %w", threadID, err)
	}
	return nil
}

func (s *Store) threadGroup(ctx context.Context, threadID string) (string, error) {
	res, err := s.driver.ExecuteQuery(ctx, GetSagaQuery, map[string]interface{}{"uuid": threadID})
	if err != nil {
		return "", fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}
	if len(res.Records) == 0 {
		return "", fmt.Errorf("thread %s: %w", threadID, apperr.ErrNotFound)
	}
	return getString(res.Records[0], "group_id"), nil
}

// AddMessages appends messages to a thread, chaining each to its predecessor.
func (s *Store) AddMessages(ctx context.Context, threadID string, msgs []model.Message) error {
	groupID, err := s.threadGroup(ctx, threadID)
	if err != nil {
		return err
	}
	base := s.Now().UTC()
	for i, msg := range msgs {
		createdAt := msg.CreatedAt
		if createdAt == "" {
			// Offset by position so a coarse clock keeps batch order.
			createdAt = base.Add(time.Duration(i)).Format(storeTimeFormat)
		}
		episodeID, err := s.saveEpisode(ctx, s.NewUUID(), groupID, msg.Role, msg.Content, sourceMessage, msg.Role, createdAt, createdAt)
		if err != nil {
			return err
		}

		prev, err := s.driver.ExecuteQuery(ctx, GetPreviousEpisodeInSagaQuery, map[string]interface{}{
			"saga_uuid":            threadID,
			"current_episode_uuid": episodeID,
		})
		if err != nil {
			return fmt.Errorf("failed to load previous message: %w", err)
		}
		if err := s.link(ctx, SaveHasEpisodeEdgeQuery, groupID, threadID, episodeID, "has_episode", createdAt); err != nil {
			return err
		}
		if len(prev.Records) > 0 {
			prevID := getString(prev.Records[0], "uuid")
			if err := s.link(ctx, SaveNextEpisodeEdgeQuery, groupID, prevID, episodeID, "next_episode", createdAt); err != nil {
				return err
			}
		}
	}
	return nil
}

// ThreadMessages returns up to limit of the newest messages, oldest first.
func (s *Store) ThreadMessages(ctx context.Context, threadID string, limit int) ([]model.Message, error) {
	if _, err := s.threadGroup(ctx, threadID); err != nil {
		return nil, err
	}
	return s.messages(ctx, threadID, limit)
}

func (s *Store) messages(ctx context.Context, threadID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	res, err := s.driver.ExecuteQuery(ctx, GetSagaMessagesQuery, map[string]interface{}{
		"saga_uuid": threadID,
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	msgs := make([]model.Message, 0, len(res.Records))
	for _, rec := range res.Records {
		msgs = append(msgs, model.Message{
			UUID:      getString(rec, "uuid"),
			Role:      getString(rec, "role"),
			Content:   getString(rec, "content"),
			CreatedAt: getString(rec, "created_at"),
		})
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt < msgs[j].CreatedAt })
	return msgs, nil
}

// ThreadContext renders the thread for a prompt. Mode "basic" lists recent messages;
// "summarized" (the default) prefixes them with the owner's strongest current facts.
func (s *Store) ThreadContext(ctx context.Context, threadID string, opts ThreadContextOptions) (string, error) {
	groupID, err := s.threadGroup(ctx, threadID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	switch opts.Mode {
	case "basic":
	case "", "summarized":
		res, err := s.driver.ExecuteQuery(ctx, GetRecentFactsQuery, map[string]interface{}{
			"group_id":   groupID,
			"min_rating": opts.MinRating,
			"limit":      threadFactsLimit,
		})
		if err != nil {
			return "", fmt.Errorf("failed to load facts: %w", err)
		}
		if len(res.Records) > 0 {
			b.WriteString("FACTS:\n")
			for _, rec := range res.Records {
				b.WriteString("- " + getString(rec, "fact"))
				if v := getString(rec, "valid_at"); v != "" {
					b.WriteString(" (Since: " + v + ")")
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	default:
		return "", apperr.Validation("mode", "unsupported context mode %q", opts.Mode)
	}

	msgs, err := s.messages(ctx, threadID, threadMessageTail)
	if err != nil {
		return "", err
	}
	if len(msgs) > 0 {
		b.WriteString("RECENT MESSAGES:\n")
		for _, m := range msgs {
			b.WriteString(m.Role + ": " + m.Content + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
