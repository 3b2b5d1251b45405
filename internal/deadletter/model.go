package deadletter

import (
	"time"

	"gorm.io/datatypes"
)

// CallPlacementDeadLetter holds a call job whose placement failed. Msg is the
// JSON encoded job.
type CallPlacementDeadLetter struct {
	ListingID   string         `gorm:"column:listing_id;type:varchar(255);primaryKey;not null"`
	SearchID    string         `gorm:"column:search_id;type:varchar(255);index"`
	Msg         datatypes.JSON `gorm:"column:msg;type:jsonb;not null"`
	Error       string         `gorm:"column:error;type:text;not null"`
	Status      string         `gorm:"column:status;type:varchar(20);default:'pending';not null"`
	RetryCount  int            `gorm:"column:retry_count;type:int;default:0;not null"`
	LastRetryAt *time.Time     `gorm:"column:last_retry_at;type:timestamp"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
}

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
)

func (CallPlacementDeadLetter) TableName() string {
	return "call_placement_dl"
}
