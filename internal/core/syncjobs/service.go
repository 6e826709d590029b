package syncjobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/agenthands/graphsync/internal/core/apperr"
	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/logger"
	"github.com/agenthands/graphsync/internal/nango"
)

// ProviderSync is the part of the provider-sync API the service needs.
type ProviderSync interface {
	GetConnection(ctx context.Context, providerConfigKey, connectionID string) (*nango.Connection, error)
	TriggerSync(ctx context.Context, providerConfigKey string, connectionIDs, syncs []string, fullResync bool) error
}

var defaultModels = map[string][]string{
	model.ProviderGitHub: {"github_issue", "github_pull_request", "github_repository"},
	model.ProviderNotion: {"notion_page", "notion_database", "notion_block"},
	model.ProviderJira:   {"jira_issue", "jira_project", "jira_user"},
}

// DefaultModels lists the sync models triggered when a request names none.
func DefaultModels(provider string) []string {
	return append([]string(nil), defaultModels[provider]...)
}

type SyncRequest struct {
	Provider     string   `json:"provider"`
	ConnectionID string   `json:"connectionId"`
	FullSync     bool     `json:"fullSync"`
	Models       []string `json:"models,omitempty"`
}

type SyncResult struct {
	SyncID        string `json:"syncId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	EstimatedTime string `json:"estimatedTime"`
}

func (r SyncRequest) Validate() error {
	if _, ok := defaultModels[r.Provider]; !ok {
		return apperr.Validation("provider", "unsupported provider %q", r.Provider)
	}
	if r.ConnectionID == "" {
		return apperr.Validation("connectionId", "connectionId is required")
	}
	return nil
}

type Service struct {
	coord    *Coordinator
	provider ProviderSync
	log      *logger.Logger
}

func NewService(coord *Coordinator, provider ProviderSync, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{coord: coord, provider: provider, log: log.With("component", "sync")}
}

// Start refuses overlapping syncs, checks the connection exists, records the job and asks
// the provider-sync service to run it.
func (s *Service) Start(ctx context.Context, req SyncRequest) (SyncResult, error) {
	if err := req.Validate(); err != nil {
		return SyncResult{}, err
	}
	if err := s.coord.Check(ctx, req.Provider, req.ConnectionID); err != nil {
		return SyncResult{}, err
	}
	if s.provider == nil {
		return SyncResult{}, errors.New("no provider sync client configured")
	}
	if _, err := s.provider.GetConnection(ctx, req.Provider, req.ConnectionID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return SyncResult{}, fmt.Errorf("connection not found: %s: %w", req.ConnectionID, apperr.ErrNotFound)
		}
		return SyncResult{}, err
	}

	job, err := s.coord.Trigger(ctx, req.Provider, req.ConnectionID)
	if err != nil {
		return SyncResult{}, err
	}

	models := req.Models
	if len(models) == 0 {
		models = DefaultModels(req.Provider)
	}
	if err := s.provider.TriggerSync(ctx, req.Provider, []string{req.ConnectionID}, models, req.FullSync); err != nil {
		_ = s.coord.Complete(ctx, req.Provider, req.ConnectionID)
		return SyncResult{}, err
	}

	s.log.Info("Sync triggered successfully",
		"provider", req.Provider,
		"connectionId", req.ConnectionID,
		"syncId", job.SyncID,
		"fullSync", req.FullSync,
	)

	estimated := "1-2 minutes"
	if req.FullSync {
		estimated = "5-10 minutes"
	}
	return SyncResult{
		SyncID:        job.SyncID,
		Status:        "pending",
		Message:       "Sync triggered successfully. Data will be received via webhook.",
		EstimatedTime: estimated,
	}, nil
}

// Cancel forgets the active job so a new sync can start immediately.
func (s *Service) Cancel(ctx context.Context, provider, connectionID string) error {
	_, ok, err := s.coord.Active(ctx, provider, connectionID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no active sync for %s: %w", SyncKey(provider, connectionID), apperr.ErrNotFound)
	}
	return s.coord.Complete(ctx, provider, connectionID)
}
