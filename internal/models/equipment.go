package model

import (
	"time"

	"lab-scheduler.com/lab-scheduler/internal/constants"
)

// Equipment is one bookable device. CurrentUserID, CurrentCheckinTime and
// IsInUse form the exclusive-access triple and are only ever written through a
// conditional update.
type Equipment struct {
	ID                 string     `gorm:"primaryKey;size:36" json:"id"`
	Name               string     `gorm:"not null" json:"name"`
	Location           string     `gorm:"size:255" json:"location,omitempty"`
	IsBookable         bool       `gorm:"not null;default:true" json:"is_bookable"`
	IsInUse            bool       `gorm:"not null;default:false" json:"is_in_use"`
	CurrentUserID      string     `gorm:"size:36" json:"current_user_id,omitempty"`
	CurrentCheckinTime *time.Time `json:"current_checkin_time,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Booking reserves one time slot on one equipment for one user. The partial
// unique index over (equipment, person, slot) collapses double-submitted
// identical confirmed bookings to one row; cancelled rows stay outside the
// constraint so a freed slot can be rebooked.
type Booking struct {
	ID                 string                  `gorm:"primaryKey;size:36" json:"id"`
	EquipmentID        string                  `gorm:"size:36;not null;index:idx_booking_slot,unique,where:status = 'confirmed'" json:"equipment_id"`
	PersonID           string                  `gorm:"size:36;not null;index:idx_booking_slot,unique" json:"person_id"`
	StartTime          time.Time               `gorm:"not null;index:idx_booking_slot,unique" json:"start_time"`
	EndTime            time.Time               `gorm:"not null;index:idx_booking_slot,unique" json:"end_time"`
	Status             constants.BookingStatus `gorm:"type:varchar(20);not null;default:'confirmed'" json:"status"`
	ActualEndTime      *time.Time              `json:"actual_end_time,omitempty"`
	EarlyFinishNotified bool                   `gorm:"not null;default:false" json:"early_finish_notified"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

// EquipmentUsageLog is the append-only record of one check-in/out session.
// At most one active log exists per equipment.
type EquipmentUsageLog struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	EquipmentID   string         `gorm:"size:36;not null;index" json:"equipment_id"`
	PersonID      string         `gorm:"size:36;not null" json:"person_id"`
	CheckInTime   time.Time      `gorm:"not null" json:"check_in_time"`
	CheckOutTime  *time.Time     `json:"check_out_time,omitempty"`
	UsageDuration *time.Duration `json:"usage_duration,omitempty"`
	IsActive      bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
}

// WaitingQueueEntry is a pending request for equipment access. Position is a
// monotonic FIFO ordinal per equipment, never reused.
type WaitingQueueEntry struct {
	ID          string                     `gorm:"primaryKey;size:36" json:"id"`
	EquipmentID string                     `gorm:"size:36;not null;index" json:"equipment_id"`
	PersonID    string                     `gorm:"size:36;not null" json:"person_id"`
	Position    int                        `gorm:"not null" json:"position"`
	WindowStart time.Time                  `gorm:"not null" json:"window_start"`
	WindowEnd   time.Time                  `gorm:"not null" json:"window_end"`
	Status      constants.QueueEntryStatus `gorm:"type:varchar(30);not null;default:'waiting'" json:"status"`
	ExpiresAt   time.Time                  `gorm:"not null;index" json:"expires_at"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}
