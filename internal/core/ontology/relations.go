package ontology

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/graphsync/internal/core/model"
)

var (
	mentionPattern  = regexp.MustCompile(`@[\w-]+`)
	issueRefPattern = regexp.MustCompile(`#\d+`)
	urlPattern      = regexp.MustCompile(`https?://[^\s"]+`)
	fileRefPattern  = regexp.MustCompile(`(?i)[\w-]+\.(?:ts|js|py|java|go|md)\b`)
	fixesPattern    = regexp.MustCompile(`(?i)(?:fix|fixes|fixed|close|closes|closed|resolve|resolves|resolved)\s+#(\d+)`)
	nodeIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("graphsync/canonical-node"))
)

// Serialize renders a record's raw payload as stable JSON (sorted keys, no HTML escaping).
func Serialize(raw map[string]interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(raw); err != nil {
		return ""
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

// NodeID derives the canonical node id from (provider, source id). Records without an id
// hash their serialized payload instead, so the id never depends on time or randomness.
func NodeID(provider string, rec model.Record) string {
	key := provider + ":" + rec.ID
	if rec.ID == "" {
		key = provider + ":content:" + Serialize(rec.Raw)
	}
	return uuid.NewSHA1(nodeIDNamespace, []byte(key)).String()
}

// BuildNode assembles the canonical node for a record under the given temporal frame.
func BuildNode(provider string, dataType model.DataType, rec model.Record, frame model.Temporal, now time.Time) model.CanonicalNode {
	nodeType := Classify(dataType)
	return model.CanonicalNode{
		NodeType:   nodeType,
		NodeID:     NodeID(provider, rec),
		Provider:   provider,
		Attributes: EnrichMetadata(rec, nodeType, provider, now),
		Temporal:   frame,
	}
}

// ExtractMentions returns @handles and #issue references found anywhere in the record.
func ExtractMentions(rec model.Record) []string {
	text := Serialize(rec.Raw)
	out := newOrderedSet()
	out.add(mentionPattern.FindAllString(text, -1)...)
	out.add(issueRefPattern.FindAllString(text, -1)...)
	return out.items
}

// ExtractReferences returns URLs and filename-like tokens found in the record.
func ExtractReferences(rec model.Record) []string {
	text := Serialize(rec.Raw)
	out := newOrderedSet()
	out.add(urlPattern.FindAllString(text, -1)...)
	out.add(fileRefPattern.FindAllString(text, -1)...)
	return out.items
}

// ExtractRelations is the provider-agnostic reference scan.
func ExtractRelations(rec model.Record) []string {
	out := newOrderedSet()
	if pr, ok := rec.Raw["pull_request"].(map[string]interface{}); ok {
		if n := model.ToString(pr["number"]); n != "" {
			out.add("pr_" + n)
		}
		if ref, ok := model.Lookup(pr, "head.ref"); ok {
			out.add("branch_" + model.ToString(ref))
		}
	}
	if issue, ok := rec.Raw["issue"].(map[string]interface{}); ok {
		if n := model.ToString(issue["number"]); n != "" {
			out.add("issue_" + n)
		}
	}
	for _, ref := range issueRefPattern.FindAllString(Serialize(rec.Raw), -1) {
		out.add("issue_" + ref[1:])
	}
	if p := rec.String("parent_id"); p != "" {
		out.add("page_" + p)
	}
	if k := rec.String("project_key"); k != "" {
		out.add("project_" + k)
	}
	return out.items
}

// RelationsFor adds the structural references a provider shape exposes, falling back to
// the generic scan for unmodelled shapes.
func RelationsFor(rec model.Record) []string {
	out := newOrderedSet()
	switch v := rec.Variant.(type) {
	case model.GitHubIssue:
		if v.PullRequestNumber != 0 {
			out.add("pr_" + strconv.Itoa(v.PullRequestNumber))
		}
		if v.MilestoneID != "" {
			out.add("milestone_" + v.MilestoneID)
		}
		for _, l := range v.Labels {
			out.add("label_" + l)
		}
		for _, ref := range issueRefPattern.FindAllString(rec.Body, -1) {
			out.add("issue_" + ref[1:])
		}
	case model.GitHubPullRequest:
		if v.IssueNumber != 0 {
			out.add("issue_" + strconv.Itoa(v.IssueNumber))
		}
		if v.HeadRef != "" {
			out.add("branch_" + v.HeadRef)
		}
		if v.BaseRef != "" {
			out.add("branch_" + v.BaseRef)
		}
		if v.MilestoneID != "" {
			out.add("milestone_" + v.MilestoneID)
		}
		text := rec.Title + " " + rec.Body
		for _, ref := range issueRefPattern.FindAllString(text, -1) {
			out.add("issue_" + ref[1:])
		}
		for _, m := range fixesPattern.FindAllStringSubmatch(text, -1) {
			out.add("fixes_issue_" + m[1])
		}
	case model.NotionPage:
		if v.ParentPageID != "" {
			out.add("page_" + v.ParentPageID)
		}
		if v.ParentDatabaseID != "" {
			out.add("database_" + v.ParentDatabaseID)
		}
		for _, id := range v.PeopleIDs {
			out.add("user_" + id)
		}
	case model.JiraIssue:
		if v.ProjectKey != "" {
			out.add("project_" + v.ProjectKey)
		}
		if v.ParentKey != "" {
			out.add("issue_" + v.ParentKey)
		}
		for _, k := range v.LinkedKeys {
			out.add("issue_" + k)
		}
		if v.Epic != "" {
			out.add("epic_" + v.Epic)
		}
		if v.SprintID != "" {
			out.add("sprint_" + v.SprintID)
		}
	default:
		return ExtractRelations(rec)
	}
	return out.items
}

// RelationType classifies the edge between two records. The rules are evaluated in a fixed
// order and the first match wins.
func RelationType(source, target model.Record) model.RelationType {
	switch {
	case source.Author != "" && target.Author != "":
		return model.RelWorksWith
	case source.Author != "" && isAuthoredKind(target.Kind):
		return model.RelCreated
	case target.ID != "" && contains(source.Mentions, target.ID):
		return model.RelMentions
	case source.ParentID != "" && source.ParentID == target.ID,
		target.ParentID != "" && target.ParentID == source.ID:
		return model.RelPartOf
	case source.Kind == "event" && target.Kind == "person":
		return model.RelParticipatedIn
	default:
		return model.RelRelatedTo
	}
}

// NewRelation builds the canonical relation between two records.
func NewRelation(source, target model.Record, at time.Time) model.CanonicalRelation {
	rt := RelationType(source, target)
	return model.CanonicalRelation{
		RelationType:  rt,
		SourceID:      NodeID(source.Provider, source),
		TargetID:      NodeID(target.Provider, target),
		Strength:      rt.Strength(),
		Context:       relationContext(rt, source, target),
		EstablishedAt: at.UTC(),
	}
}

func relationContext(rt model.RelationType, source, target model.Record) string {
	switch rt {
	case model.RelCreated:
		return fmt.Sprintf("%s created %s", or(source.Author, "User"), or(target.Title, target.String("name"), "item"))
	case model.RelMentions:
		return fmt.Sprintf("%s mentions %s", or(source.Title, source.String("name"), "Source"), or(target.Title, target.String("name"), "target"))
	case model.RelPartOf:
		return fmt.Sprintf("%s is part of %s", or(source.String("name"), "Item"), or(target.String("name"), "parent"))
	case model.RelWorksWith:
		return fmt.Sprintf("%s works with %s", or(source.String("name"), "Person"), or(target.String("name"), "person"))
	default:
		return fmt.Sprintf("%s is related to %s", or(source.ID, "source"), or(target.ID, "target"))
	}
}

// DescribeEvent renders a one-line description of a provider webhook payload.
func DescribeEvent(payload map[string]interface{}) string {
	if payload == nil {
		return "Unknown event occurred"
	}
	rec := model.Record{Raw: payload}
	sender := rec.String("sender.login")
	action := or(rec.String("action"), "unknown")

	if pr, ok := payload["pull_request"].(map[string]interface{}); ok {
		return fmt.Sprintf("%s %s PR #%s: %s", or(sender, "Someone"), action, model.ToString(pr["number"]), model.ToString(pr["title"]))
	}
	if issue, ok := payload["issue"].(map[string]interface{}); ok {
		return fmt.Sprintf("%s %s issue #%s: %s", or(sender, "Someone"), action, model.ToString(issue["number"]), model.ToString(issue["title"]))
	}
	if comment, ok := payload["comment"].(map[string]interface{}); ok {
		body := []rune(model.ToString(comment["body"]))
		if len(body) > 100 {
			body = body[:100]
		}
		return fmt.Sprintf("%s commented: %s...", or(sender, "Someone"), string(body))
	}
	if repo, ok := payload["repository"].(map[string]interface{}); ok {
		return fmt.Sprintf("Repository %s %s", model.ToString(repo["name"]), action)
	}
	return fmt.Sprintf("%s performed %s", or(sender, "System"), action)
}

func isAuthoredKind(kind string) bool {
	return kind == "issue" || kind == "pr" || kind == "document"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func or(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]struct{}{}, items: []string{}}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}
