package data_models

// AddQueueMemberRequest adds a person to a template's rotation queue.
type AddQueueMemberRequest struct {
	PersonID string `json:"person_id"`
}

// GenerateJobRequest triggers a generation run over [From, To], inclusive,
// dates in 2006-01-02 form. DryRun previews without writing.
type GenerateJobRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	DryRun bool   `json:"dry_run"`
}

// CheckRequest is the QR payload for equipment check-in and check-out.
type CheckRequest struct {
	PersonID string `json:"person_id"`
}

// CreateBookingRequest reserves an equipment time slot, RFC 3339 timestamps.
type CreateBookingRequest struct {
	EquipmentID string `json:"equipment_id"`
	PersonID    string `json:"person_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

// EnqueueRequest joins the waiting queue for a desired window.
type EnqueueRequest struct {
	PersonID    string `json:"person_id"`
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
}

// TaskActionRequest identifies the acting person for claim/complete/cancel.
type TaskActionRequest struct {
	PersonID string `json:"person_id"`
}

// RequestSwapRequest opens a swap request on a task instance.
type RequestSwapRequest struct {
	RequesterID    string `json:"requester_id"`
	TargetPersonID string `json:"target_person_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// ResolveSwapRequest approves or rejects a pending swap request.
type ResolveSwapRequest struct {
	PersonID string `json:"person_id"`
}
