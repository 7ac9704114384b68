package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncState is one row per market:resource poll scope.
type SyncState struct {
	Scope         string         `gorm:"primaryKey;type:text;comment:market:resource"`
	MarketID      string         `gorm:"type:text;not null;index;comment:lending market id"`
	Resource      string         `gorm:"type:text;not null;comment:indexer resource"`
	LastBlock     uint64         `gorm:"not null;default:0;comment:last committed update block"`
	TargetBlock   uint64         `gorm:"not null;default:0;comment:block the last poll waited for"`
	Attempts      int            `gorm:"not null;default:0;comment:fetches in the last poll"`
	LastSuccessAt *time.Time     `gorm:"type:timestamptz"`
	LastAttemptAt *time.Time     `gorm:"type:timestamptz"`
	LastError     *string        `gorm:"type:text"`
	StatsJSON     datatypes.JSON `gorm:"type:jsonb"`
}

func (SyncState) TableName() string {
	return "sync_state"
}

func SyncScope(marketID, resource string) string {
	return marketID + ":" + resource
}
