package gormrepository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"creditguild/internal/models"
	"creditguild/internal/repository"
)

var _ repository.SyncRepository = (*Store)(nil)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var state models.SyncState
	err := s.db.WithContext(ctx).First(&state, "scope = ?", scope).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"market_id",
			"resource",
			"last_block",
			"target_block",
			"attempts",
			"last_success_at",
			"last_attempt_at",
			"last_error",
			"stats_json",
		}),
	}).Create(state).Error
}

func (s *Store) ListSyncStates(ctx context.Context, marketID string) ([]models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SyncState{})
	if id := strings.TrimSpace(marketID); id != "" {
		query = query.Where("market_id = ?", id)
	}
	var states []models.SyncState
	if err := query.Order("scope asc").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

func (s *Store) InsertIndexerSnapshot(ctx context.Context, item *models.IndexerSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// PruneIndexerSnapshots keeps the newest `keep` payloads for a scope.
func (s *Store) PruneIndexerSnapshots(ctx context.Context, marketID, resource string, keep int) (int64, error) {
	if s == nil || s.db == nil || keep <= 0 {
		return 0, nil
	}
	newest := s.db.WithContext(ctx).Model(&models.IndexerSnapshot{}).
		Select("id").
		Where("market_id = ? AND resource = ?", marketID, resource).
		Order("update_block desc, id desc").
		Limit(keep)
	res := s.db.WithContext(ctx).
		Where("market_id = ? AND resource = ?", marketID, resource).
		Where("id NOT IN (?)", newest).
		Delete(&models.IndexerSnapshot{})
	return res.RowsAffected, res.Error
}
