package model

import (
	"time"

	"lab-scheduler.com/lab-scheduler/internal/constants"
)

// MeetingConfiguration is the singleton-per-lab weekly meeting setup.
type MeetingConfiguration struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	LabID     string `gorm:"size:36;not null;uniqueIndex" json:"lab_id"`
	Weekday   int    `gorm:"not null" json:"weekday"` // time.Weekday, Sunday=0
	StartTime string `gorm:"size:5;not null" json:"start_time"` // HH:MM

	JournalClubMinutes int `gorm:"not null;default:60" json:"journal_club_minutes"`
	ProgressMinutes    int `gorm:"not null;default:90" json:"progress_minutes"`
	GeneralMinutes     int `gorm:"not null;default:60" json:"general_minutes"`

	// Journal-club deadline offsets, in days before the meeting date.
	SubmissionOffsetDays int `gorm:"not null;default:7" json:"submission_offset_days"`
	FinalOffsetDays      int `gorm:"not null;default:2" json:"final_offset_days"`

	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DurationMinutes returns the configured length for one meeting type.
func (c *MeetingConfiguration) DurationMinutes(t constants.MeetingType) int {
	switch t {
	case constants.MeetingJournalClub:
		return c.JournalClubMinutes
	case constants.MeetingProgress:
		return c.ProgressMinutes
	default:
		return c.GeneralMinutes
	}
}

// Holiday is a date the meeting generator skips.
type Holiday struct {
	ID   string    `gorm:"primaryKey;size:36" json:"id"`
	Date time.Time `gorm:"not null;uniqueIndex" json:"date"`
	Name string    `gorm:"size:120" json:"name,omitempty"`
}

// MeetingInstance is one meeting occurrence. (Date, MeetingType) is unique.
type MeetingInstance struct {
	ID          string                  `gorm:"primaryKey;size:36" json:"id"`
	Date        time.Time               `gorm:"not null;index:idx_date_type,unique" json:"date"`
	MeetingType constants.MeetingType   `gorm:"type:varchar(30);not null;index:idx_date_type,unique" json:"meeting_type"`
	StartTime   string                  `gorm:"size:5;not null" json:"start_time"`
	Minutes     int                     `gorm:"not null" json:"minutes"`
	Status      constants.MeetingStatus `gorm:"type:varchar(20);not null;default:'scheduled'" json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Presenter links a meeting to a person. MaterialsSubmittedAt is only used for
// journal-club meetings.
type Presenter struct {
	ID                   string                    `gorm:"primaryKey;size:36" json:"id"`
	MeetingID            string                    `gorm:"size:36;not null;index" json:"meeting_id"`
	PersonID             string                    `gorm:"size:36;not null" json:"person_id"`
	Status               constants.PresenterStatus `gorm:"type:varchar(20);not null;default:'assigned'" json:"status"`
	MaterialsSubmittedAt *time.Time                `json:"materials_submitted_at,omitempty"`
	CreatedAt            time.Time                 `json:"created_at"`
	UpdatedAt            time.Time                 `json:"updated_at"`
}

// MeetingPresenterRotation is the per-meeting-type round-robin pointer.
//
// NextPresenterIndexRaw is persisted as text because historical data contains
// non-integer values; readers must coerce and clamp it, never trust it.
type MeetingPresenterRotation struct {
	ID                    string                `gorm:"primaryKey;size:36" json:"id"`
	MeetingType           constants.MeetingType `gorm:"type:varchar(30);not null;uniqueIndex" json:"meeting_type"`
	NextPresenterIndexRaw string                `gorm:"size:32;not null;default:'0'" json:"next_presenter_index"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// RotationMember is the explicit join entity behind the rotation's ordered
// people list.
type RotationMember struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	RotationID string    `gorm:"size:36;not null;index:idx_rotation_person,unique" json:"rotation_id"`
	PersonID   string    `gorm:"size:36;not null;index:idx_rotation_person,unique" json:"person_id"`
	Position   int       `gorm:"not null" json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}
