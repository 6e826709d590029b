package events

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphsync/internal/core/apperr"
	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/logger"
	"github.com/agenthands/graphsync/internal/metrics"
	"github.com/agenthands/graphsync/internal/state"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestNormalizer(t *testing.T, secret string) (*Normalizer, *state.Memory, *time.Time, *metrics.Metrics) {
	t.Helper()
	now := t0
	store := state.NewMemory()
	store.Now = func() time.Time { return now }
	m := metrics.New()
	n, err := NewNormalizer(store, Options{WebhookSecret: secret}, logger.Nop(), m)
	require.NoError(t, err)
	n.Now = func() time.Time { return now }
	return n, store, &now, m
}

func TestParse_LegacyAuthWithError(t *testing.T) {
	n, _, _, _ := newTestNormalizer(t, "")

	ev, err := n.Parse([]byte(`{
		"provider": "github",
		"type": "auth",
		"connectionId": "org1_projA",
		"error": {"message": "token revoked", "code": "401"},
		"createdAt": "2024-05-01T10:00:00.000Z"
	}`))

	require.NoError(t, err)
	assert.Equal(t, model.EventAuthError, ev.EventType)
	assert.Equal(t, model.EventLegacyAuth, ev.OriginalType)
	assert.Equal(t, "auth.error_2024-05-01T10:00:00.000Z", ev.EventID)
	assert.Equal(t, "org1", ev.OrganizationID)
	assert.Equal(t, "projA", ev.ProjectID)
	assert.Equal(t, "token revoked", ev.Error.Message)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), ev.Timestamp)
}

func TestParse_LegacySyncWithoutError(t *testing.T) {
	n, _, _, _ := newTestNormalizer(t, "")

	ev, err := n.Parse([]byte(`{"provider":"notion","type":"sync","connectionId":"solo","syncJobId":"job-9"}`))

	require.NoError(t, err)
	assert.Equal(t, model.EventSyncSuccess, ev.EventType)
	assert.Equal(t, "sync.success_job-9", ev.EventID)
	assert.Equal(t, "solo", ev.OrganizationID)
	assert.Equal(t, "default", ev.ProjectID)
	assert.Equal(t, t0, ev.Timestamp)
}

func TestParse_DefaultsCreatedAtToNow(t *testing.T) {
	n, _, _, _ := newTestNormalizer(t, "")

	ev, err := n.Parse([]byte(`{"provider":"jira","type":"connection.deleted","connectionId":"o_p"}`))

	require.NoError(t, err)
	assert.Equal(t, "connection.deleted_2024-06-01T12:00:00.000Z", ev.EventID)
}

func TestParse_SplitsOnFirstUnderscore(t *testing.T) {
	org, project := SplitConnectionID("acme_proj_x")
	assert.Equal(t, "acme", org)
	assert.Equal(t, "proj_x", project)
}

func TestParse_Rejects(t *testing.T) {
	n, _, _, _ := newTestNormalizer(t, "")

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"malformed json", `{"provider":`, "body"},
		{"missing provider", `{"type":"sync.success","connectionId":"a_b"}`, ""},
		{"unknown type", `{"provider":"github","type":"push","connectionId":"a_b"}`, "type"},
		{"bad createdAt", `{"provider":"github","type":"sync","connectionId":"a_b","createdAt":"later"}`, "createdAt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Parse([]byte(tt.body))
			var ve *apperr.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, 400, apperr.StatusCode(err))
			if tt.field != "" {
				var fields []string
				for _, f := range ve.Fields {
					fields = append(fields, f.Field)
				}
				assert.Contains(t, fields, tt.field)
			}
		})
	}
}

func TestAdmit_101stRejectedThenWindowResets(t *testing.T) {
	n, _, now, m := newTestNormalizer(t, "")
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, n.Admit(ctx, "org_proj"), "event %d", i+1)
	}
	err := n.Admit(ctx, "org_proj")
	assert.ErrorIs(t, err, apperr.ErrRateLimited)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))

	// Another connection has its own window.
	assert.NoError(t, n.Admit(ctx, "org_other"))

	*now = now.Add(61 * time.Second)
	assert.NoError(t, n.Admit(ctx, "org_proj"))
	count, _ := n.windows.Hit(ctx, "org_proj", DefaultRateWindow)
	assert.Equal(t, 2, count)
}

func TestNormalize_RateLimitedNotReturned(t *testing.T) {
	n, _, _, _ := newTestNormalizer(t, "")
	n.opts.RateLimit = 1
	body := []byte(`{"provider":"github","type":"sync.success","connectionId":"o_p"}`)

	_, err := n.Normalize(context.Background(), body)
	require.NoError(t, err)

	ev, err := n.Normalize(context.Background(), body)
	assert.ErrorIs(t, err, apperr.ErrRateLimited)
	assert.Empty(t, ev.EventID)
}

func TestVerify(t *testing.T) {
	body := []byte(`{"provider":"github"}`)
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(body)
	good := hex.EncodeToString(mac.Sum(nil))

	n, _, _, _ := newTestNormalizer(t, "s3cret")
	assert.NoError(t, n.Verify(body, good))
	assert.ErrorIs(t, n.Verify(body, "deadbeef"), apperr.ErrUnauthorized)
	assert.ErrorIs(t, n.Verify(body, ""), apperr.ErrUnauthorized)

	open, _, _, _ := newTestNormalizer(t, "")
	assert.NoError(t, open.Verify(body, ""))
}

func TestPayloadWrapsNonObjectData(t *testing.T) {
	n, _, _, _ := newTestNormalizer(t, "")

	ev, err := n.Parse([]byte(fmt.Sprintf(`{"provider":"slack","type":"webhook.forward","connectionId":"o_p","data":%s}`, `[1,2]`)))

	require.NoError(t, err)
	assert.Equal(t, []interface{}{1.0, 2.0}, ev.Payload["value"])
}
