package repository

import (
	"context"

	"creditguild/internal/models"
)

// SyncRepository persists poll bookkeeping and raw indexer payloads.
type SyncRepository interface {
	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	ListSyncStates(ctx context.Context, marketID string) ([]models.SyncState, error)
	InsertIndexerSnapshot(ctx context.Context, item *models.IndexerSnapshot) error
	PruneIndexerSnapshots(ctx context.Context, marketID, resource string, keep int) (int64, error)
}
