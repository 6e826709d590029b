package model

import "time"

type EventType string

const (
	EventSyncSuccess       EventType = "sync.success"
	EventSyncError         EventType = "sync.error"
	EventAuthSuccess       EventType = "auth.success"
	EventAuthError         EventType = "auth.error"
	EventConnectionDeleted EventType = "connection.deleted"
	EventWebhookForward    EventType = "webhook.forward"

	// Legacy shorthand accepted on input only.
	EventLegacyAuth EventType = "auth"
	EventLegacySync EventType = "sync"
)

type WebhookError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// NormalizedEvent is an inbound webhook after legacy rewrite and validation.
type NormalizedEvent struct {
	EventID        string                 `json:"eventId"`
	Provider       string                 `json:"provider"`
	EventType      EventType              `json:"eventType"`
	OriginalType   EventType              `json:"originalType"`
	ConnectionID   string                 `json:"connectionId"`
	OrganizationID string                 `json:"organizationId"`
	ProjectID      string                 `json:"projectId"`
	SyncJobID      string                 `json:"syncJobId,omitempty"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	Error          *WebhookError          `json:"error,omitempty"`
	ModifiedAfter  string                 `json:"modifiedAfter,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}
