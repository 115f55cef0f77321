package main

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MintRecord indexes one drop.minted event. The node's aggregate counters
// are the source of truth; this table exists for reporting and audit.
type MintRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence       uint64    `gorm:"uniqueIndex"`
	ContentHash    string    `gorm:"size:64;uniqueIndex"`
	Collection     string    `gorm:"size:64;index"`
	Minter         string    `gorm:"size:64;index"`
	FeeRecipient   string    `gorm:"size:64"`
	Payer          string    `gorm:"size:64"`
	Quantity       uint64
	UnitPrice      string `gorm:"size:80"`
	FeeBps         uint16
	DropStageIndex uint32
	ObservedAt     time.Time `gorm:"index"`
	CreatedAt      time.Time
}

// AdminChange indexes every non-mint event on the stream: configuration
// updates, collection creation, registry allow-list changes.
type AdminChange struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence    uint64    `gorm:"uniqueIndex"`
	ContentHash string    `gorm:"size:64;uniqueIndex"`
	EventType   string    `gorm:"size:64;index"`
	Collection  string    `gorm:"size:64;index"`
	Details     string    `gorm:"type:text"`
	ObservedAt  time.Time `gorm:"index"`
	CreatedAt   time.Time
}

// ExportRun records one report generation.
type ExportRun struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	WindowStart time.Time
	WindowEnd   time.Time
	Rows        int
	CSVPath     string `gorm:"size:512"`
	ParquetPath string `gorm:"size:512"`
	StartedAt   time.Time
	FinishedAt  time.Time
}

// AutoMigrate creates or updates the audit schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&MintRecord{}, &AdminChange{}, &ExportRun{})
}
