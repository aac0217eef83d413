package model

import "time"

// StatusAudit is an append-only record of one status change performed by a
// sweep or an administrative action.
type StatusAudit struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	EntityType string    `gorm:"size:40;not null;index" json:"entity_type"`
	EntityID   string    `gorm:"size:36;not null;index" json:"entity_id"`
	FromStatus string    `gorm:"size:30;not null" json:"from_status"`
	ToStatus   string    `gorm:"size:30;not null" json:"to_status"`
	ChangedBy  string    `gorm:"size:36" json:"changed_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
