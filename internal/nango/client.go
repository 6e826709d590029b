// Package nango is a small REST client for the provider-sync service: record listing with
// cursor paging, connection lookup and sync triggering.
package nango

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agenthands/graphsync/internal/core/apperr"
)

const DefaultHost = "https://api.nango.dev"

type Client struct {
	host      string
	secretKey string
	http      *http.Client
}

type Connection struct {
	ID                int                    `json:"id"`
	ConnectionID      string                 `json:"connection_id"`
	ProviderConfigKey string                 `json:"provider_config_key"`
	Provider          string                 `json:"provider"`
	CreatedAt         string                 `json:"created_at"`
	Metadata          map[string]interface{} `json:"metadata"`
}

type ListRecordsRequest struct {
	Provider      string
	ConnectionID  string
	Model         string
	ModifiedAfter string
	Limit         int
}

type recordsPage struct {
	Records    []map[string]interface{} `json:"records"`
	NextCursor *string                  `json:"next_cursor"`
}

func NewClient(host, secretKey string, httpClient *http.Client) *Client {
	if host == "" {
		host = DefaultHost
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		host:      strings.TrimRight(host, "/"),
		secretKey: secretKey,
		http:      httpClient,
	}
}

// ListRecords follows next_cursor until the model is exhausted.
func (c *Client) ListRecords(ctx context.Context, req ListRecordsRequest) ([]map[string]interface{}, error) {
	var all []map[string]interface{}
	cursor := ""
	for {
		q := url.Values{}
		q.Set("model", req.Model)
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		if req.ModifiedAfter != "" {
			q.Set("modified_after", req.ModifiedAfter)
		}
		if req.Limit > 0 {
			q.Set("limit", fmt.Sprint(req.Limit))
		}
		headers := map[string]string{
			"Connection-Id":       req.ConnectionID,
			"Provider-Config-Key": req.Provider,
		}

		var page recordsPage
		if err := c.do(ctx, http.MethodGet, "/records?"+q.Encode(), headers, nil, &page); err != nil {
			return all, fmt.Errorf("list %s records: %w", req.Model, err)
		}
		all = append(all, page.Records...)
		if page.NextCursor == nil || *page.NextCursor == "" {
			return all, nil
		}
		cursor = *page.NextCursor
	}
}

func (c *Client) GetConnection(ctx context.Context, providerConfigKey, connectionID string) (*Connection, error) {
	path := "/connection/" + url.PathEscape(connectionID) + "?provider_config_key=" + url.QueryEscape(providerConfigKey)
	var conn Connection
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &conn); err != nil {
		return nil, fmt.Errorf("get connection %s: %w", connectionID, err)
	}
	return &conn, nil
}

func (c *Client) TriggerSync(ctx context.Context, providerConfigKey string, connectionIDs, syncs []string, fullResync bool) error {
	body := map[string]interface{}{
		"provider_config_key": providerConfigKey,
		"connection_ids":      connectionIDs,
		"syncs":               syncs,
		"full_resync":         fullResync,
	}
	if err := c.do(ctx, http.MethodPost, "/sync/trigger", nil, body, nil); err != nil {
		return fmt.Errorf("trigger sync: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &apperr.UpstreamError{Op: method + " " + path, Attempts: 1, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperr.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &apperr.UpstreamError{
			Op:       method + " " + path,
			Attempts: 1,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
