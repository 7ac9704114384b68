package models

import (
	"time"

	"gorm.io/datatypes"
)

type IndexerSnapshot struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	MarketID    string         `gorm:"type:text;not null;index:idx_indexer_snapshot_scope,priority:1"`
	Resource    string         `gorm:"type:text;not null;index:idx_indexer_snapshot_scope,priority:2"`
	UpdateBlock uint64         `gorm:"not null;index:idx_indexer_snapshot_scope,priority:3"`
	FetchedAt   time.Time      `gorm:"type:timestamptz;not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (IndexerSnapshot) TableName() string {
	return "indexer_snapshots"
}
