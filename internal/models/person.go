package model

import "time"

// Person is one member of the lab. Referenced by rotation queues, task
// assignments, presenter slots and equipment sessions.
type Person struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Email       string    `gorm:"size:255" json:"email,omitempty"`
	SlackUserID string    `gorm:"size:64" json:"slack_user_id,omitempty"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
