package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"lab-scheduler.com/lab-scheduler/internal/constants"
	errs "lab-scheduler.com/lab-scheduler/internal/errors"
	model "lab-scheduler.com/lab-scheduler/internal/models"
	"lab-scheduler.com/lab-scheduler/internal/notify"
	repository "lab-scheduler.com/lab-scheduler/internal/repositories"
)

// EquipmentService arbitrates concurrent, time-boxed access to physical
// equipment: QR check-in/out, bookings and the FIFO waiting queue.
type EquipmentService struct {
	equipment     *repository.EquipmentRepository
	persons       *repository.PersonRepository
	dispatcher    notify.Dispatcher
	notifyTimeout time.Duration
	entryTTL      time.Duration
	log           zerolog.Logger
	now           func() time.Time
}

func NewEquipmentService(
	equipment *repository.EquipmentRepository,
	persons *repository.PersonRepository,
	dispatcher notify.Dispatcher,
	notifyTimeout time.Duration,
	entryTTL time.Duration,
	log zerolog.Logger,
) *EquipmentService {
	return &EquipmentService{
		equipment:     equipment,
		persons:       persons,
		dispatcher:    dispatcher,
		notifyTimeout: notifyTimeout,
		entryTTL:      entryTTL,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CheckIn claims exclusive use of the equipment. Mutual exclusion rests on a
// single conditional update at the persistence layer: of two concurrent
// check-ins, exactly one lands. A repeat check-in by the current holder is a
// no-op returning the already-open session.
func (s *EquipmentService) CheckIn(ctx context.Context, equipmentID, personID string) (*model.EquipmentUsageLog, error) {
	eq, err := s.mustGetEquipment(ctx, equipmentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ok, err := s.equipment.CheckIn(ctx, eq.ID, personID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.mustGetEquipment(ctx, equipmentID)
		if err != nil {
			return nil, err
		}
		if current.IsInUse && current.CurrentUserID == personID {
			return s.equipment.GetActiveUsageLog(ctx, eq.ID)
		}
		return nil, errs.Conflict("equipment is already in use")
	}

	usageLog := &model.EquipmentUsageLog{
		EquipmentID: eq.ID,
		PersonID:    personID,
		CheckInTime: now,
		IsActive:    true,
	}
	if err := s.equipment.CreateUsageLog(ctx, usageLog); err != nil {
		return nil, err
	}
	return usageLog, nil
}

// CheckOut releases the equipment, closes the active usage log with its
// duration, stamps the holder's active booking with the actual end time and
// runs the early-finish check.
func (s *EquipmentService) CheckOut(ctx context.Context, equipmentID, personID string) (*model.EquipmentUsageLog, error) {
	eq, err := s.mustGetEquipment(ctx, equipmentID)
	if err != nil {
		return nil, err
	}

	ok, err := s.equipment.CheckOut(ctx, eq.ID, personID)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.mustGetEquipment(ctx, equipmentID)
		if err != nil {
			return nil, err
		}
		if !current.IsInUse {
			return nil, errs.Validation("equipment is not in use")
		}
		return nil, errs.Validation("equipment is checked in by another user")
	}

	now := s.now()
	usageLog, err := s.equipment.GetActiveUsageLog(ctx, eq.ID)
	if err != nil {
		return nil, err
	}
	if usageLog != nil {
		duration := now.Sub(usageLog.CheckInTime)
		if err := s.equipment.CloseUsageLog(ctx, usageLog.ID, now, duration); err != nil {
			return nil, err
		}
		usageLog.CheckOutTime = &now
		usageLog.UsageDuration = &duration
		usageLog.IsActive = false
	}

	booking, err := s.equipment.GetActiveBookingFor(ctx, eq.ID, personID, now)
	if err != nil {
		return usageLog, err
	}
	if booking != nil {
		if err := s.equipment.SetActualEndTime(ctx, booking.ID, now); err != nil {
			return usageLog, err
		}
		booking.ActualEndTime = &now
		s.CheckForEarlyFinish(ctx, booking)
	}
	return usageLog, nil
}

// CreateBooking reserves a time slot. Overlap with any confirmed booking on
// the same equipment is a conflict; the overlap guard runs inside the insert
// transaction at the persistence layer, so concurrent requests for the same
// slot resolve to a single booking.
func (s *EquipmentService) CreateBooking(ctx context.Context, equipmentID, personID string, start, end time.Time) (*model.Booking, error) {
	if !start.Before(end) {
		return nil, errs.Validation("booking start must be before end")
	}

	eq, err := s.mustGetEquipment(ctx, equipmentID)
	if err != nil {
		return nil, err
	}
	if !eq.IsBookable {
		return nil, errs.Validation("equipment is not bookable")
	}

	booking := &model.Booking{
		EquipmentID: eq.ID,
		PersonID:    personID,
		StartTime:   start,
		EndTime:     end,
		Status:      constants.BookingConfirmed,
	}
	ok, err := s.equipment.CreateBookingIfFree(ctx, booking)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Conflict("an identical booking already exists")
		}
		return nil, err
	}
	if !ok {
		return nil, errs.Conflict("time slot overlaps an existing booking")
	}
	return booking, nil
}

func (s *EquipmentService) CancelBooking(ctx context.Context, bookingID, personID string) error {
	booking, err := s.equipment.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return errs.NotFound("booking not found")
	}
	if booking.PersonID != personID {
		return errs.Validation("only the booking owner can cancel it")
	}

	ok, err := s.equipment.UpdateBookingStatus(ctx, bookingID, constants.BookingConfirmed, constants.BookingCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Validation("booking is not cancellable")
	}
	return nil
}

// CheckForEarlyFinish notifies the head of the waiting queue when a booking
// ended ahead of schedule. The early_finish_notified guard makes this fire at
// most once per booking; a failed send does not roll anything back.
func (s *EquipmentService) CheckForEarlyFinish(ctx context.Context, booking *model.Booking) {
	if booking.ActualEndTime == nil || !booking.ActualEndTime.Before(booking.EndTime) {
		return
	}

	won, err := s.equipment.MarkEarlyFinishNotified(ctx, booking.ID)
	if err != nil {
		s.log.Error().Err(err).Str("booking_id", booking.ID).Msg("early-finish guard update failed")
		return
	}
	if !won {
		return
	}

	head, err := s.equipment.HeadOfQueue(ctx, booking.EquipmentID)
	if err != nil {
		s.log.Error().Err(err).Str("equipment_id", booking.EquipmentID).Msg("waiting queue head lookup failed")
		return
	}
	if head == nil {
		return
	}

	if _, err := s.equipment.UpdateQueueEntryStatus(ctx, head.ID,
		[]constants.QueueEntryStatus{constants.EntryWaiting}, constants.EntryNotified); err != nil {
		s.log.Error().Err(err).Str("entry_id", head.ID).Msg("queue entry notify transition failed")
	}

	recipients := s.loadPersons(ctx, []string{head.PersonID})
	notify.Fire(ctx, s.dispatcher, s.notifyTimeout, s.log, recipients, notify.TemplateEarlyFinish, map[string]interface{}{
		"equipment_id": booking.EquipmentID,
		"freed_at":     booking.ActualEndTime.Format(time.RFC3339),
	})
}

// Enqueue appends a waiting-queue entry. Positions are monotonic per
// equipment and never reused, so FIFO order survives cancellations.
func (s *EquipmentService) Enqueue(ctx context.Context, equipmentID, personID string, windowStart, windowEnd time.Time) (*model.WaitingQueueEntry, error) {
	if !windowStart.Before(windowEnd) {
		return nil, errs.Validation("requested window start must be before end")
	}
	if _, err := s.mustGetEquipment(ctx, equipmentID); err != nil {
		return nil, err
	}

	maxPos, err := s.equipment.MaxQueuePosition(ctx, equipmentID)
	if err != nil {
		return nil, err
	}

	entry := &model.WaitingQueueEntry{
		EquipmentID: equipmentID,
		PersonID:    personID,
		Position:    maxPos + 1,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Status:      constants.EntryWaiting,
		ExpiresAt:   s.now().Add(s.entryTTL),
	}
	if err := s.equipment.CreateQueueEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *EquipmentService) CancelEntry(ctx context.Context, entryID, personID string) error {
	entry, err := s.mustGetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.PersonID != personID {
		return errs.Validation("only the entry owner can cancel it")
	}
	if entry.Status == constants.EntryExpired {
		return errs.Expiry("waiting queue entry has expired")
	}

	ok, err := s.equipment.UpdateQueueEntryStatus(ctx, entryID,
		[]constants.QueueEntryStatus{constants.EntryWaiting, constants.EntryNotified}, constants.EntryCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Validation("waiting queue entry is not cancellable")
	}
	return nil
}

// ConvertToBooking turns a live entry into a booking for its originally
// requested window. The window is re-validated now, not at enqueue time: if it
// was taken in the meantime the conversion fails with a conflict.
func (s *EquipmentService) ConvertToBooking(ctx context.Context, entryID string) (*model.Booking, error) {
	entry, err := s.mustGetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	switch entry.Status {
	case constants.EntryExpired:
		return nil, errs.Expiry("waiting queue entry has expired")
	case constants.EntryWaiting, constants.EntryNotified:
	default:
		return nil, errs.Validation("waiting queue entry cannot be converted")
	}

	if s.now().After(entry.ExpiresAt) {
		if _, err := s.equipment.UpdateQueueEntryStatus(ctx, entry.ID,
			[]constants.QueueEntryStatus{constants.EntryWaiting, constants.EntryNotified}, constants.EntryExpired); err != nil {
			s.log.Error().Err(err).Str("entry_id", entry.ID).Msg("lazy entry expiry failed")
		}
		return nil, errs.Expiry("waiting queue entry has expired")
	}

	booking, err := s.CreateBooking(ctx, entry.EquipmentID, entry.PersonID, entry.WindowStart, entry.WindowEnd)
	if err != nil {
		return nil, err
	}

	ok, err := s.equipment.UpdateQueueEntryStatus(ctx, entry.ID,
		[]constants.QueueEntryStatus{constants.EntryWaiting, constants.EntryNotified}, constants.EntryConverted)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with the expiry sweep; undo the booking.
		if _, err := s.equipment.UpdateBookingStatus(ctx, booking.ID, constants.BookingConfirmed, constants.BookingCancelled); err != nil {
			s.log.Error().Err(err).Str("booking_id", booking.ID).Msg("booking rollback failed")
		}
		return nil, errs.Expiry("waiting queue entry expired during conversion")
	}
	return booking, nil
}

// SweepExpiredEntries expires every live entry past its deadline. Best-effort:
// one failing record does not stop the sweep.
func (s *EquipmentService) SweepExpiredEntries(ctx context.Context) (int, error) {
	entries, err := s.equipment.ListExpiredEntries(ctx, s.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, entry := range entries {
		ok, err := s.equipment.UpdateQueueEntryStatus(ctx, entry.ID,
			[]constants.QueueEntryStatus{constants.EntryWaiting, constants.EntryNotified}, constants.EntryExpired)
		if err != nil {
			s.log.Error().Err(err).Str("entry_id", entry.ID).Msg("queue entry expiry failed")
			continue
		}
		if !ok {
			continue
		}
		expired++

		recipients := s.loadPersons(ctx, []string{entry.PersonID})
		notify.Fire(ctx, s.dispatcher, s.notifyTimeout, s.log, recipients, notify.TemplateQueueExpired, map[string]interface{}{
			"equipment_id": entry.EquipmentID,
			"position":     entry.Position,
		})
	}
	return expired, nil
}

func (s *EquipmentService) mustGetEquipment(ctx context.Context, id string) (*model.Equipment, error) {
	eq, err := s.equipment.GetEquipment(ctx, id)
	if err != nil {
		return nil, err
	}
	if eq == nil {
		return nil, errs.NotFound("equipment not found")
	}
	return eq, nil
}

func (s *EquipmentService) mustGetEntry(ctx context.Context, id string) (*model.WaitingQueueEntry, error) {
	entry, err := s.equipment.GetQueueEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errs.NotFound("waiting queue entry not found")
	}
	return entry, nil
}

func (s *EquipmentService) loadPersons(ctx context.Context, ids []string) []model.Person {
	people := make([]model.Person, 0, len(ids))
	for _, id := range ids {
		p, err := s.persons.Get(ctx, id)
		if err != nil || p == nil {
			continue
		}
		people = append(people, *p)
	}
	return people
}
