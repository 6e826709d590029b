package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Variant is the provider-specific part of a Record.
type Variant interface {
	variant() string
}

type GitHubIssue struct {
	Number            int
	PullRequestNumber int
	MilestoneID       string
	Labels            []string
}

type GitHubPullRequest struct {
	Number      int
	IssueNumber int
	HeadRef     string
	BaseRef     string
	MilestoneID string
}

type GitHubRepository struct {
	FullName string
	Language string
}

type NotionPage struct {
	ParentPageID     string
	ParentDatabaseID string
	PeopleIDs        []string
}

type NotionDatabase struct {
	ParentPageID string
}

type JiraIssue struct {
	Key        string
	ProjectKey string
	ParentKey  string
	Epic       string
	SprintID   string
	LinkedKeys []string
}

type JiraProject struct {
	Key string
}

type SlackMessage struct {
	Channel  string
	ThreadTS string
}

// Generic is used for records whose provider shape is not modelled.
type Generic struct{}

func (GitHubIssue) variant() string       { return "github_issue" }
func (GitHubPullRequest) variant() string { return "github_pull_request" }
func (GitHubRepository) variant() string  { return "github_repository" }
func (NotionPage) variant() string        { return "notion_page" }
func (NotionDatabase) variant() string    { return "notion_database" }
func (JiraIssue) variant() string         { return "jira_issue" }
func (JiraProject) variant() string       { return "jira_project" }
func (SlackMessage) variant() string      { return "slack_message" }
func (Generic) variant() string           { return "generic" }

// Record is a provider record reduced to the fields the ontology works on. Raw keeps the
// original payload for serialization and enrichment fallbacks.
type Record struct {
	ID        string
	Kind      string
	Provider  string
	Model     string
	Author    string
	Title     string
	Body      string
	ParentID  string
	Mentions  []string
	CreatedAt time.Time
	UpdatedAt time.Time
	Variant   Variant
	Raw       map[string]interface{}
}

// VariantName reports the tag of the record's variant.
func (r Record) VariantName() string {
	if r.Variant == nil {
		return Generic{}.variant()
	}
	return r.Variant.variant()
}

// Field returns the first present, non-empty value among the given dotted paths.
func (r Record) Field(paths ...string) (interface{}, bool) {
	for _, p := range paths {
		v, ok := Lookup(r.Raw, p)
		if !ok || isEmpty(v) {
			continue
		}
		return v, true
	}
	return nil, false
}

// String is Field coerced to a string.
func (r Record) String(paths ...string) string {
	v, ok := r.Field(paths...)
	if !ok {
		return ""
	}
	return ToString(v)
}

// Lookup resolves a dotted path such as "assignee.login" inside nested maps.
func Lookup(m map[string]interface{}, path string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	cur := interface{}(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

func ToString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func toInt(v interface{}) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(strings.TrimPrefix(t, "#"))
		return n
	}
	return 0
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

var modelKinds = map[string]string{
	"github_issue":        "issue",
	"github_pull_request": "pr",
	"github_repository":   "code",
	"github_user":         "person",
	"notion_page":         "document",
	"notion_database":     "document",
	"notion_block":        "document",
	"notion_user":         "person",
	"jira_issue":          "issue",
	"jira_project":        "code",
	"jira_user":           "person",
	"slack_message":       "event",
	"slack_user":          "person",
}

// DecodeRecord builds a Record from a raw provider payload. modelName is the sync model
// (e.g. "github_issue"); when empty the provider shape is guessed from the payload.
func DecodeRecord(provider, modelName string, raw map[string]interface{}) Record {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	if modelName == "" {
		if m, ok := Lookup(raw, "_nango_metadata.model"); ok {
			modelName = ToString(m)
		}
	}
	if modelName == "" {
		modelName = guessModel(provider, raw)
	}

	rec := Record{
		Provider: provider,
		Model:    modelName,
		Raw:      raw,
	}
	rec.ID = rec.String("id", "key", "number")
	rec.Kind = rec.String("type")
	if rec.Kind == "" {
		rec.Kind = modelKinds[modelName]
	}
	rec.Author = decodeAuthor(rec)
	rec.Title = rec.String("title", "summary", "name", "fields.summary")
	rec.Body = rec.String("body", "description", "content", "text")
	rec.ParentID = rec.String("parent_id", "parent.page_id", "parent.database_id", "fields.parent.key")
	rec.CreatedAt = parseTime(rec.String("created_at", "createdAt", "created_time", "fields.created"))
	rec.UpdatedAt = parseTime(rec.String("updated_at", "updatedAt", "last_edited_time", "fields.updated"))
	if m, ok := Lookup(raw, "_relationships.mentions"); ok {
		rec.Mentions = toStrings(m)
	}
	rec.Variant = decodeVariant(modelName, rec)
	return rec
}

func decodeAuthor(rec Record) string {
	if s, ok := rec.Raw["author"].(string); ok && s != "" {
		return s
	}
	return rec.String("author.login", "author.name", "creator", "user.login", "user.name", "created_by.name", "fields.reporter.displayName")
}

func guessModel(provider string, raw map[string]interface{}) string {
	switch provider {
	case ProviderGitHub:
		if _, ok := raw["head"]; ok {
			return "github_pull_request"
		}
		if _, ok := raw["full_name"]; ok {
			return "github_repository"
		}
		if _, ok := raw["number"]; ok {
			return "github_issue"
		}
	case ProviderNotion:
		if obj, _ := raw["object"].(string); obj == "database" {
			return "notion_database"
		}
		if _, ok := raw["parent"]; ok {
			return "notion_page"
		}
	case ProviderJira:
		if _, ok := raw["fields"]; ok {
			return "jira_issue"
		}
		if _, ok := raw["projectTypeKey"]; ok {
			return "jira_project"
		}
	case ProviderSlack:
		if _, ok := raw["ts"]; ok {
			return "slack_message"
		}
	}
	return ""
}

func decodeVariant(modelName string, rec Record) Variant {
	switch modelName {
	case "github_issue":
		v := GitHubIssue{
			Number:      toInt(rec.Raw["number"]),
			MilestoneID: rec.String("milestone.id"),
		}
		if n, ok := Lookup(rec.Raw, "pull_request.number"); ok {
			v.PullRequestNumber = toInt(n)
		}
		if labels, ok := rec.Raw["labels"].([]interface{}); ok {
			for _, l := range labels {
				switch lv := l.(type) {
				case map[string]interface{}:
					if name := ToString(lv["name"]); name != "" {
						v.Labels = append(v.Labels, name)
					}
				case string:
					v.Labels = append(v.Labels, lv)
				}
			}
		}
		return v
	case "github_pull_request":
		v := GitHubPullRequest{
			Number:      toInt(rec.Raw["number"]),
			HeadRef:     rec.String("head.ref"),
			BaseRef:     rec.String("base.ref"),
			MilestoneID: rec.String("milestone.id"),
		}
		if n, ok := Lookup(rec.Raw, "issue.number"); ok {
			v.IssueNumber = toInt(n)
		}
		return v
	case "github_repository":
		return GitHubRepository{FullName: rec.String("full_name"), Language: rec.String("language")}
	case "notion_page", "notion_block":
		v := NotionPage{
			ParentPageID:     rec.String("parent.page_id"),
			ParentDatabaseID: rec.String("parent.database_id"),
		}
		if props, ok := rec.Raw["properties"].(map[string]interface{}); ok {
			for _, p := range props {
				prop, ok := p.(map[string]interface{})
				if !ok || ToString(prop["type"]) != "people" {
					continue
				}
				people, _ := prop["people"].([]interface{})
				for _, person := range people {
					if pm, ok := person.(map[string]interface{}); ok {
						if id := ToString(pm["id"]); id != "" {
							v.PeopleIDs = append(v.PeopleIDs, id)
						}
					}
				}
			}
		}
		return v
	case "notion_database":
		return NotionDatabase{ParentPageID: rec.String("parent.page_id")}
	case "jira_issue":
		v := JiraIssue{
			Key:        rec.String("key"),
			ProjectKey: rec.String("fields.project.key", "project_key"),
			ParentKey:  rec.String("fields.parent.key"),
			Epic:       rec.String("fields.epic"),
			SprintID:   rec.String("fields.sprint.id"),
		}
		if links, ok := Lookup(rec.Raw, "fields.issuelinks"); ok {
			list, _ := links.([]interface{})
			for _, l := range list {
				link, ok := l.(map[string]interface{})
				if !ok {
					continue
				}
				if k, ok := Lookup(link, "outwardIssue.key"); ok {
					v.LinkedKeys = append(v.LinkedKeys, ToString(k))
				}
				if k, ok := Lookup(link, "inwardIssue.key"); ok {
					v.LinkedKeys = append(v.LinkedKeys, ToString(k))
				}
			}
		}
		return v
	case "jira_project":
		return JiraProject{Key: rec.String("key")}
	case "slack_message":
		return SlackMessage{Channel: rec.String("channel"), ThreadTS: rec.String("thread_ts")}
	}
	return Generic{}
}

func toStrings(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := ToString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime accepts the timestamp layouts the supported providers emit.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseTime(s string) time.Time {
	t, _ := ParseTime(s)
	return t
}
