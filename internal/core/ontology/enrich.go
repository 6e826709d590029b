package ontology

import (
	"time"

	"github.com/agenthands/graphsync/internal/core/model"
)

// EnrichMetadata extracts the attributes relevant to nodeType from a record. Each attribute
// follows a fallback chain over the provider spellings; absent attributes are left out.
func EnrichMetadata(rec model.Record, nodeType model.NodeType, provider string, at time.Time) map[string]interface{} {
	attrs := map[string]interface{}{
		"nodeType":    string(nodeType),
		"provider":    provider,
		"extractedAt": at.UTC().Format(time.RFC3339),
	}
	set := func(key string, paths ...string) {
		if v, ok := rec.Field(paths...); ok {
			attrs[key] = v
		}
	}
	setDefault := func(key string, def interface{}, paths ...string) {
		if v, ok := rec.Field(paths...); ok {
			attrs[key] = v
			return
		}
		attrs[key] = def
	}

	switch nodeType {
	case model.NodePerson:
		set("name", "name", "login", "displayName")
		set("email", "email")
		set("avatar", "avatar_url", "avatarUrl")
		setDefault("role", "contributor", "role")
	case model.NodeTask:
		set("title", "title", "summary")
		set("status", "state", "status")
		setDefault("priority", "medium", "priority")
		set("assignee", "assignee.login", "assignee.displayName")
		setDefault("labels", []interface{}{}, "labels")
		set("dueDate", "due_date", "duedate")
	case model.NodeDocument:
		set("title", "title", "name")
		set("url", "url", "html_url")
		set("lastModified", "last_edited_time", "updated_at")
		set("author", "created_by.name", "author.login")
	case model.NodeProject:
		set("name", "name", "key")
		set("description", "description")
		setDefault("visibility", "private", "visibility")
		set("language", "language")
		setDefault("topics", []interface{}{}, "topics")
	case model.NodeEvent:
		set("action", "action", "event")
		set("timestamp", "created_at", "timestamp")
		set("actor", "sender.login", "actor.displayName")
		set("target", "repository.name", "project.key")
	}
	return attrs
}

// DisplayName picks the best human label for a node from its attributes or record.
func DisplayName(rec model.Record, attrs map[string]interface{}) string {
	for _, key := range []string{"name", "title"} {
		if s := model.ToString(attrs[key]); s != "" {
			return s
		}
	}
	if rec.Title != "" {
		return rec.Title
	}
	if s := rec.String("name", "login", "key"); s != "" {
		return s
	}
	return rec.ID
}
