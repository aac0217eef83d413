package constants

// TaskStatus is the lifecycle state of a PeriodicTaskInstance.
type TaskStatus string

const (
	TaskScheduled  TaskStatus = "scheduled"
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskOverdue    TaskStatus = "overdue"
)

// taskTransitions is the closed transition table. Overdue is deliberately
// non-terminal: an overdue task can still be completed.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskScheduled:  {TaskInProgress, TaskCompleted, TaskCancelled, TaskOverdue},
	TaskPending:    {TaskInProgress, TaskCancelled},
	TaskInProgress: {TaskCompleted, TaskCancelled, TaskOverdue},
	TaskOverdue:    {TaskCompleted, TaskCancelled},
}

func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	return contains(taskTransitions[s], next)
}

// SwapStatus is the lifecycle state of a TaskSwapRequest. Everything but
// pending is terminal.
type SwapStatus string

const (
	SwapPending   SwapStatus = "pending"
	SwapApproved  SwapStatus = "approved"
	SwapRejected  SwapStatus = "rejected"
	SwapCancelled SwapStatus = "cancelled"
	SwapExpired   SwapStatus = "expired"
)

var swapTransitions = map[SwapStatus][]SwapStatus{
	SwapPending: {SwapApproved, SwapRejected, SwapCancelled, SwapExpired},
}

func (s SwapStatus) CanTransitionTo(next SwapStatus) bool {
	return contains(swapTransitions[s], next)
}

// MeetingStatus is the lifecycle state of a MeetingInstance.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingConfirmed MeetingStatus = "confirmed"
	MeetingCompleted MeetingStatus = "completed"
	MeetingCancelled MeetingStatus = "cancelled"
)

var meetingTransitions = map[MeetingStatus][]MeetingStatus{
	MeetingScheduled: {MeetingConfirmed, MeetingCompleted, MeetingCancelled},
	MeetingConfirmed: {MeetingCompleted, MeetingCancelled},
}

func (s MeetingStatus) CanTransitionTo(next MeetingStatus) bool {
	return contains(meetingTransitions[s], next)
}

// PresenterStatus is the state of one presenter slot on a meeting.
type PresenterStatus string

const (
	PresenterAssigned  PresenterStatus = "assigned"
	PresenterConfirmed PresenterStatus = "confirmed"
	PresenterCompleted PresenterStatus = "completed"
	PresenterSwapped   PresenterStatus = "swapped"
	PresenterPostponed PresenterStatus = "postponed"
)

var presenterTransitions = map[PresenterStatus][]PresenterStatus{
	PresenterAssigned:  {PresenterConfirmed, PresenterCompleted, PresenterSwapped, PresenterPostponed},
	PresenterConfirmed: {PresenterCompleted, PresenterSwapped, PresenterPostponed},
	PresenterPostponed: {PresenterAssigned},
}

func (s PresenterStatus) CanTransitionTo(next PresenterStatus) bool {
	return contains(presenterTransitions[s], next)
}

// QueueEntryStatus is the state of a WaitingQueueEntry.
type QueueEntryStatus string

const (
	EntryWaiting   QueueEntryStatus = "waiting"
	EntryNotified  QueueEntryStatus = "notified"
	EntryConverted QueueEntryStatus = "converted_to_booking"
	EntryCancelled QueueEntryStatus = "cancelled"
	EntryExpired   QueueEntryStatus = "expired"
)

// Conversion is allowed straight from waiting as well: holders may book the
// freed slot before the notification sweep reaches them.
var entryTransitions = map[QueueEntryStatus][]QueueEntryStatus{
	EntryWaiting:  {EntryNotified, EntryConverted, EntryCancelled, EntryExpired},
	EntryNotified: {EntryConverted, EntryCancelled, EntryExpired},
}

func (s QueueEntryStatus) CanTransitionTo(next QueueEntryStatus) bool {
	return contains(entryTransitions[s], next)
}

// BookingStatus is the state of an equipment Booking.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// TaskType distinguishes recurring templates from one-shot ones.
type TaskType string

const (
	TaskTypeRecurring TaskType = "recurring"
	TaskTypeOneTime   TaskType = "one_time"
)

// Frequency is the recurrence cadence of a template.
type Frequency string

const (
	FrequencyMonthly Frequency = "monthly"
	FrequencyWeekly  Frequency = "weekly"
)

// WindowPolicy selects how the execution window is derived from a period.
type WindowPolicy string

const (
	WindowFixed    WindowPolicy = "fixed"
	WindowFlexible WindowPolicy = "flexible"
)

// WindowAnchor positions a flexible window inside its period.
type WindowAnchor string

const (
	AnchorStart  WindowAnchor = "start"
	AnchorMiddle WindowAnchor = "middle"
	AnchorEnd    WindowAnchor = "end"
)

// MeetingType is the kind of recurring lab meeting.
type MeetingType string

const (
	MeetingJournalClub MeetingType = "journal_club"
	MeetingProgress    MeetingType = "progress_report"
	MeetingGeneral     MeetingType = "general"
)

// Urgency tiers for journal-club material submission deadlines.
type Urgency string

const (
	UrgencySubmitted        Urgency = "submitted"
	UrgencyOverdue          Urgency = "overdue"
	UrgencyCritical         Urgency = "critical"
	UrgencyUrgent           Urgency = "urgent"
	UrgencyApproachingFinal Urgency = "approaching_final"
	UrgencyApproaching      Urgency = "approaching"
	UrgencyPending          Urgency = "pending"
)

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
