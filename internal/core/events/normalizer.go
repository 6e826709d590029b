// Package events turns raw provider-sync webhooks into NormalizedEvents: schema validation,
// legacy type rewrite, deterministic event ids and per-connection admission.
package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agenthands/graphsync/internal/core/apperr"
	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/logger"
	"github.com/agenthands/graphsync/internal/metrics"
	"github.com/agenthands/graphsync/internal/state"
)

const (
	DefaultRateLimit  = 100
	DefaultRateWindow = 60 * time.Second

	// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
	SignatureHeader = "X-Nango-Signature"

	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

type Options struct {
	RateLimit     int
	RateWindow    time.Duration
	WebhookSecret string
}

type Normalizer struct {
	schema  *jsonschema.Schema
	windows state.WindowStore
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics

	Now func() time.Time
}

type wireEvent struct {
	Provider      string              `json:"provider"`
	Type          model.EventType     `json:"type"`
	ConnectionID  string              `json:"connectionId"`
	SyncJobID     string              `json:"syncJobId"`
	Data          interface{}         `json:"data"`
	Error         *model.WebhookError `json:"error"`
	ModifiedAfter string              `json:"modifiedAfter"`
	CreatedAt     string              `json:"createdAt"`
}

func NewNormalizer(windows state.WindowStore, opts Options, log *logger.Logger, m *metrics.Metrics) (*Normalizer, error) {
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = DefaultRateWindow
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(webhookSchema))
	if err != nil {
		return nil, fmt.Errorf("parse webhook schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("webhook.json", doc); err != nil {
		return nil, fmt.Errorf("add webhook schema: %w", err)
	}
	schema, err := c.Compile("webhook.json")
	if err != nil {
		return nil, fmt.Errorf("compile webhook schema: %w", err)
	}

	return &Normalizer{
		schema:  schema,
		windows: windows,
		opts:    opts,
		log:     log.With("component", "events"),
		metrics: m,
		Now:     time.Now,
	}, nil
}

// Verify checks the body signature. It is a no-op when no webhook secret is configured.
func (n *Normalizer) Verify(body []byte, signature string) error {
	if n.opts.WebhookSecret == "" {
		return nil
	}
	if signature == "" {
		return fmt.Errorf("missing %s: %w", SignatureHeader, apperr.ErrUnauthorized)
	}
	mac := hmac.New(sha256.New, []byte(n.opts.WebhookSecret))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return fmt.Errorf("signature mismatch: %w", apperr.ErrUnauthorized)
	}
	return nil
}

// Parse validates and normalizes a webhook body without touching admission state.
func (n *Normalizer) Parse(body []byte) (model.NormalizedEvent, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return model.NormalizedEvent{}, apperr.Validation("body", "invalid JSON: %v", err)
	}
	if err := n.schema.Validate(inst); err != nil {
		return model.NormalizedEvent{}, schemaError(err)
	}

	var wire wireEvent
	if err := json.Unmarshal(body, &wire); err != nil {
		return model.NormalizedEvent{}, apperr.Validation("body", "invalid JSON: %v", err)
	}

	now := n.Now().UTC()
	ts := now
	createdAt := wire.CreatedAt
	if createdAt != "" {
		parsed, ok := model.ParseTime(createdAt)
		if !ok {
			return model.NormalizedEvent{}, apperr.Validation("createdAt", "unparsable timestamp %q", createdAt)
		}
		ts = parsed
	} else {
		createdAt = now.Format(isoMillis)
	}

	eventType := NormalizeType(wire.Type, wire.Error != nil)
	orgID, projectID := SplitConnectionID(wire.ConnectionID)

	return model.NormalizedEvent{
		EventID:        EventID(eventType, wire.SyncJobID, createdAt),
		Provider:       wire.Provider,
		EventType:      eventType,
		OriginalType:   wire.Type,
		ConnectionID:   wire.ConnectionID,
		OrganizationID: orgID,
		ProjectID:      projectID,
		SyncJobID:      wire.SyncJobID,
		Payload:        payloadMap(wire.Data),
		Error:          wire.Error,
		ModifiedAfter:  wire.ModifiedAfter,
		Timestamp:      ts,
	}, nil
}

// Admit applies the fixed-window limit for one connection.
func (n *Normalizer) Admit(ctx context.Context, connectionID string) error {
	count, err := n.windows.Hit(ctx, connectionID, n.opts.RateWindow)
	if err != nil {
		return fmt.Errorf("admission for %s: %w", connectionID, err)
	}
	if count > n.opts.RateLimit {
		n.metrics.RateLimited.Inc()
		n.log.Warn("Rate limit exceeded", "connectionId", connectionID, "count", count)
		return fmt.Errorf("connection %s: %w", connectionID, apperr.ErrRateLimited)
	}
	return nil
}

// Normalize is Parse followed by Admit. Rejected events are never returned.
func (n *Normalizer) Normalize(ctx context.Context, body []byte) (model.NormalizedEvent, error) {
	ev, err := n.Parse(body)
	if err != nil {
		return model.NormalizedEvent{}, err
	}
	if err := n.Admit(ctx, ev.ConnectionID); err != nil {
		return model.NormalizedEvent{}, err
	}
	n.metrics.WebhookEvents.WithLabelValues(string(ev.EventType)).Inc()
	return ev, nil
}

// NormalizeType rewrites the legacy "auth" and "sync" shorthands.
func NormalizeType(t model.EventType, hasError bool) model.EventType {
	switch t {
	case model.EventLegacyAuth:
		if hasError {
			return model.EventAuthError
		}
		return model.EventAuthSuccess
	case model.EventLegacySync:
		if hasError {
			return model.EventSyncError
		}
		return model.EventSyncSuccess
	}
	return t
}

// EventID is stable across redeliveries that carry the same sync job id or timestamp.
func EventID(t model.EventType, syncJobID, createdAt string) string {
	if syncJobID != "" {
		return string(t) + "_" + syncJobID
	}
	return string(t) + "_" + createdAt
}

// SplitConnectionID splits "<org>_<project>" on the first underscore.
func SplitConnectionID(connectionID string) (orgID, projectID string) {
	orgID, projectID, _ = strings.Cut(connectionID, "_")
	if projectID == "" {
		projectID = "default"
	}
	return orgID, projectID
}

func payloadMap(data interface{}) map[string]interface{} {
	switch v := data.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return v
	default:
		return map[string]interface{}{"value": v}
	}
}

func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return apperr.Validation("body", "%v", err)
	}
	out := &apperr.ValidationError{Message: "webhook payload does not match schema"}
	collectLeaves(ve, out)
	if len(out.Fields) == 0 {
		out.Fields = append(out.Fields, apperr.FieldError{Field: "body", Message: ve.Error()})
	}
	return out
}

func collectLeaves(ve *jsonschema.ValidationError, out *apperr.ValidationError) {
	if len(ve.Causes) == 0 {
		field := strings.Join(ve.InstanceLocation, ".")
		if field == "" {
			field = "body"
		}
		out.Fields = append(out.Fields, apperr.FieldError{Field: field, Message: ve.Error()})
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, out)
	}
}
