package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"lab-scheduler.com/lab-scheduler/internal/constants"
)

// TaskTemplate describes one recurring (or one-time) chore. Templates are never
// deleted while instances reference them; deactivation is via IsActive.
type TaskTemplate struct {
	ID           string                 `gorm:"primaryKey;size:36" json:"id"`
	Name         string                 `gorm:"not null" json:"name"`
	Type         constants.TaskType     `gorm:"type:varchar(20);not null" json:"type"`
	Frequency    constants.Frequency    `gorm:"type:varchar(20);not null" json:"frequency"`
	WindowPolicy constants.WindowPolicy `gorm:"type:varchar(20);not null" json:"window_policy"`

	// Fixed windows: literal day-of-period range.
	FixedStartDay int `json:"fixed_start_day,omitempty"`
	FixedEndDay   int `json:"fixed_end_day,omitempty"`

	// Flexible windows: a duration anchored inside the period.
	FlexAnchor       constants.WindowAnchor `gorm:"type:varchar(10)" json:"flex_anchor,omitempty"`
	FlexDurationDays int                    `json:"flex_duration_days,omitempty"`

	MinPeople     int       `gorm:"not null;default:1" json:"min_people"`
	MaxPeople     int       `gorm:"not null;default:1" json:"max_people"`
	DefaultPeople int       `gorm:"not null;default:1" json:"default_people"`
	IsActive      bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TaskRotationQueue holds the fairness parameters for one template (1:1).
type TaskRotationQueue struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	TemplateID       string    `gorm:"size:36;not null;uniqueIndex" json:"template_id"`
	MinGapMonths     int       `gorm:"not null;default:1" json:"min_gap_months"`
	ConsiderWorkload bool      `gorm:"not null;default:true" json:"consider_workload"`
	RandomFactor     float64   `gorm:"not null;default:0.1" json:"random_factor"`
	CreatedAt        time.Time `json:"created_at"`
}

// QueueMember is one person's fairness bookkeeping inside one rotation queue.
type QueueMember struct {
	ID                 string    `gorm:"primaryKey;size:36" json:"id"`
	QueueID            string    `gorm:"size:36;not null;index:idx_queue_person,unique" json:"queue_id"`
	PersonID           string    `gorm:"size:36;not null;index:idx_queue_person,unique" json:"person_id"`
	TotalAssignments   int       `gorm:"not null;default:0" json:"total_assignments"`
	CompletedCount     int       `gorm:"not null;default:0" json:"completed_count"`
	LastAssignedPeriod string    `gorm:"size:16" json:"last_assigned_period,omitempty"`
	CompletionRate     float64   `gorm:"not null;default:1" json:"completion_rate"`
	PriorityScore      float64   `gorm:"not null;default:0" json:"priority_score"`
	IsActive           bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// AssignmentMetadata is the typed replacement for the source system's JSON
// "bag of fields": only the keys actually read survive.
type AssignmentMetadata struct {
	AssignedAt      time.Time `json:"assigned_at"`
	AssignedBy      string    `json:"assigned_by"`
	PrimaryAssignee string    `json:"primary_assignee,omitempty"`
	Algorithm       string    `json:"algorithm"`
	WindowStart     string    `json:"window_start"`
	WindowEnd       string    `json:"window_end"`
}

func (m AssignmentMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *AssignmentMetadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("unsupported type for AssignmentMetadata")
	}
}

// PeriodicTaskInstance is one concrete occurrence of a template for one period.
// (TemplateID, ScheduledPeriod) is unique; the constraint is the concurrency
// control for idempotent generation.
type PeriodicTaskInstance struct {
	ID                 string               `gorm:"primaryKey;size:36" json:"id"`
	TemplateID         string               `gorm:"size:36;not null;index:idx_template_period,unique" json:"template_id"`
	ScheduledPeriod    string               `gorm:"size:16;not null;index:idx_template_period,unique" json:"scheduled_period"`
	ExecutionStartDate time.Time            `gorm:"not null" json:"execution_start_date"`
	ExecutionEndDate   time.Time            `gorm:"not null" json:"execution_end_date"`
	Status             constants.TaskStatus `gorm:"type:varchar(20);not null" json:"status"`
	CompletedByID      string               `gorm:"size:36" json:"completed_by,omitempty"`
	CompletedAt        *time.Time           `json:"completed_at,omitempty"`
	Metadata           AssignmentMetadata   `gorm:"type:text" json:"metadata"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// InstanceAssignee is the explicit join entity behind the two membership sets
// of an instance: Original is the immutable snapshot, Current the mutable set.
type InstanceAssignee struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	InstanceID string    `gorm:"size:36;not null;index" json:"instance_id"`
	PersonID   string    `gorm:"size:36;not null;index" json:"person_id"`
	Original   bool      `gorm:"column:is_original;not null;default:false" json:"original"`
	Current    bool      `gorm:"column:is_current;not null;default:false" json:"current"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TaskSwapRequest asks to hand a task slot over to someone else. Terminal
// states are final; only pending requests may be acted on.
type TaskSwapRequest struct {
	ID             string               `gorm:"primaryKey;size:36" json:"id"`
	InstanceID     string               `gorm:"size:36;not null;index" json:"instance_id"`
	RequesterID    string               `gorm:"size:36;not null" json:"requester_id"`
	TargetPersonID string               `gorm:"size:36" json:"target_person_id,omitempty"`
	Reason         string               `gorm:"size:500" json:"reason,omitempty"`
	Status         constants.SwapStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	ResolvedByID   string               `gorm:"size:36" json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time           `json:"resolved_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}
