package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"lab-scheduler.com/lab-scheduler/internal/constants"
	errs "lab-scheduler.com/lab-scheduler/internal/errors"
	model "lab-scheduler.com/lab-scheduler/internal/models"
	"lab-scheduler.com/lab-scheduler/internal/notify"
	repository "lab-scheduler.com/lab-scheduler/internal/repositories"
)

type equipmentFixture struct {
	db         *gorm.DB
	equipment  *repository.EquipmentRepository
	persons    *repository.PersonRepository
	dispatcher *countingDispatcher
	svc        *EquipmentService
	device     *model.Equipment
}

func newEquipmentFixture(t *testing.T) *equipmentFixture {
	t.Helper()
	db := setupTestDB(t)
	f := &equipmentFixture{
		db:         db,
		equipment:  repository.NewEquipmentRepository(db),
		persons:    repository.NewPersonRepository(db),
		dispatcher: &countingDispatcher{},
	}
	f.svc = NewEquipmentService(f.equipment, f.persons, f.dispatcher, time.Second, 30*time.Minute, testLogger())

	f.device = &model.Equipment{Name: "confocal-1", IsBookable: true}
	if err := f.equipment.CreateEquipment(context.Background(), f.device); err != nil {
		t.Fatalf("failed to create equipment: %v", err)
	}
	return f
}

func TestCheckIn_MutualExclusion(t *testing.T) {
	f := newEquipmentFixture(t)

	const contenders = 16
	var wg sync.WaitGroup
	wg.Add(contenders)
	results := make(chan error, contenders)

	for i := 0; i < contenders; i++ {
		go func(idx int) {
			defer wg.Done()
			_, err := f.svc.CheckIn(context.Background(), f.device.ID, fmt.Sprintf("person-%02d", idx))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errs.IsConflict(err):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("expected exactly one winner, got %d", successes)
	}
	if conflicts != contenders-1 {
		t.Errorf("expected %d conflicts, got %d", contenders-1, conflicts)
	}

	active, err := f.equipment.CountActiveUsageLogs(context.Background(), f.device.ID)
	if err != nil {
		t.Fatalf("counting logs failed: %v", err)
	}
	if active != 1 {
		t.Errorf("expected a single active usage log, got %d", active)
	}
}

func TestCheckIn_RepeatByHolderIsNoOp(t *testing.T) {
	f := newEquipmentFixture(t)
	ctx := context.Background()

	first, err := f.svc.CheckIn(ctx, f.device.ID, "alice")
	if err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	second, err := f.svc.CheckIn(ctx, f.device.ID, "alice")
	if err != nil {
		t.Fatalf("repeat check-in failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("repeat check-in must return the open session, got %s and %s", first.ID, second.ID)
	}

	active, _ := f.equipment.CountActiveUsageLogs(ctx, f.device.ID)
	if active != 1 {
		t.Errorf("expected a single active usage log, got %d", active)
	}
}

func TestCheckInOut_ClosesLogAndDetectsEarlyFinish(t *testing.T) {
	f := newEquipmentFixture(t)
	ctx := context.Background()

	holder := createPerson(t, f.persons, "holder")
	waiter := createPerson(t, f.persons, "waiter")

	checkInAt := time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC)
	f.svc.now = fixedClock(checkInAt)

	booking, err := f.svc.CreateBooking(ctx, f.device.ID, holder.ID,
		checkInAt, checkInAt.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	entry, err := f.svc.Enqueue(ctx, f.device.ID, waiter.ID,
		checkInAt.Add(4*time.Hour), checkInAt.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if _, err := f.svc.CheckIn(ctx, f.device.ID, holder.ID); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}

	// Finish two hours early.
	f.svc.now = fixedClock(checkInAt.Add(2 * time.Hour))
	usageLog, err := f.svc.CheckOut(ctx, f.device.ID, holder.ID)
	if err != nil {
		t.Fatalf("check-out failed: %v", err)
	}

	if usageLog.UsageDuration == nil || *usageLog.UsageDuration != 2*time.Hour {
		t.Errorf("expected a 2h usage duration, got %v", usageLog.UsageDuration)
	}
	if usageLog.IsActive {
		t.Error("log must be closed after check-out")
	}

	got, _ := f.equipment.GetBooking(ctx, booking.ID)
	if got.ActualEndTime == nil || !got.ActualEndTime.Equal(checkInAt.Add(2*time.Hour)) {
		t.Errorf("actual end time not recorded: %+v", got)
	}
	if !got.EarlyFinishNotified {
		t.Error("early finish must be flagged")
	}
	if f.dispatcher.count(notify.TemplateEarlyFinish) != 1 {
		t.Errorf("expected one early-finish notification, got %d", f.dispatcher.count(notify.TemplateEarlyFinish))
	}

	head, _ := f.equipment.GetQueueEntry(ctx, entry.ID)
	if head.Status != constants.EntryNotified {
		t.Errorf("queue head should be notified, got %s", head.Status)
	}

	// Second check-out finds nothing to release.
	if _, err := f.svc.CheckOut(ctx, f.device.ID, holder.ID); !errs.IsValidation(err) {
		t.Errorf("expected validation error on double check-out, got %v", err)
	}
}

func TestEarlyFinishNotifiesAtMostOnce(t *testing.T) {
	f := newEquipmentFixture(t)
	ctx := context.Background()

	holder := createPerson(t, f.persons, "holder")
	waiter := createPerson(t, f.persons, "waiter")

	start := time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC)
	f.svc.now = fixedClock(start)

	booking, err := f.svc.CreateBooking(ctx, f.device.ID, holder.ID, start, start.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	if _, err := f.svc.Enqueue(ctx, f.device.ID, waiter.ID, start.Add(4*time.Hour), start.Add(5*time.Hour)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	early := start.Add(time.Hour)
	if err := f.equipment.SetActualEndTime(ctx, booking.ID, early); err != nil {
		t.Fatalf("failed to set actual end: %v", err)
	}
	booking.ActualEndTime = &early

	f.svc.CheckForEarlyFinish(ctx, booking)
	f.svc.CheckForEarlyFinish(ctx, booking)

	if n := f.dispatcher.count(notify.TemplateEarlyFinish); n != 1 {
		t.Errorf("expected exactly one notification, got %d", n)
	}
}

func TestCreateBooking_OverlapConflict(t *testing.T) {
	f := newEquipmentFixture(t)
	ctx := context.Background()

	start := time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC)
	if _, err := f.svc.CreateBooking(ctx, f.device.ID, "alice", start, start.Add(2*time.Hour)); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	_, err := f.svc.CreateBooking(ctx, f.device.ID, "bob", start.Add(time.Hour), start.Add(3*time.Hour))
	if !errs.IsConflict(err) {
		t.Errorf("expected conflict for an overlapping slot, got %v", err)
	}

	// Back-to-back slots share an endpoint and must not conflict.
	if _, err := f.svc.CreateBooking(ctx, f.device.ID, "bob", start.Add(2*time.Hour), start.Add(3*time.Hour)); err != nil {
		t.Errorf("adjacent booking should succeed: %v", err)
	}

	// A cancelled booking frees its slot.
	third, err := f.svc.CreateBooking(ctx, f.device.ID, "carol", start.Add(5*time.Hour), start.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("third booking failed: %v", err)
	}
	if err := f.svc.CancelBooking(ctx, third.ID, "carol"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, err := f.svc.CreateBooking(ctx, f.device.ID, "dave", start.Add(5*time.Hour), start.Add(6*time.Hour)); err != nil {
		t.Errorf("slot should be free after cancellation: %v", err)
	}
}

func TestCreateBooking_ConcurrentSameSlot(t *testing.T) {
	f := newEquipmentFixture(t)

	start := time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	const contenders = 8
	gate := make(chan struct{})
	results := make(chan error, contenders)
	var wg sync.WaitGroup
	wg.Add(contenders)
	for i := 0; i < contenders; i++ {
		go func(idx int) {
			defer wg.Done()
			<-gate
			_, err := f.svc.CreateBooking(context.Background(), f.device.ID,
				fmt.Sprintf("person-%02d", idx), start, end)
			results <- err
		}(i)
	}
	close(gate)
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		switch {
		case err == nil:
			won++
		case errs.IsConflict(err):
			lost++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != contenders-1 {
		t.Errorf("expected 1 winner and %d conflicts, got %d and %d", contenders-1, won, lost)
	}

	var count int64
	if err := f.db.Model(&model.Booking{}).
		Where("equipment_id = ? AND status = ?", f.device.ID, constants.BookingConfirmed).
		Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one confirmed booking, got %d", count)
	}
}

func TestBookingSlotUniqueConstraint(t *testing.T) {
	f := newEquipmentFixture(t)

	start := time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC)
	slot := func(id string, status constants.BookingStatus) *model.Booking {
		return &model.Booking{
			ID:          id,
			EquipmentID: f.device.ID,
			PersonID:    "alice",
			StartTime:   start,
			EndTime:     start.Add(2 * time.Hour),
			Status:      status,
		}
	}

	if err := f.db.Create(slot("b-1", constants.BookingConfirmed)).Error; err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := f.db.Create(slot("b-2", constants.BookingConfirmed)).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("expected duplicate key error for an identical confirmed slot, got %v", err)
	}

	// Cancelled rows sit outside the constraint, so a freed slot can be
	// rebooked without tripping it.
	if err := f.db.Create(slot("b-3", constants.BookingCancelled)).Error; err != nil {
		t.Errorf("cancelled duplicate should be allowed: %v", err)
	}
}

func TestWaitingQueue_PositionsAreMonotonic(t *testing.T) {
	f := newEquipmentFixture(t)
	ctx := context.Background()

	window := time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC)
	enqueue := func(person string) *model.WaitingQueueEntry {
		entry, err := f.svc.Enqueue(ctx, f.device.ID, person, window, window.Add(time.Hour))
		if err != nil {
			t.Fatalf("enqueue failed for %s: %v", person, err)
		}
		return entry
	}

	first := enqueue("alice")
	second := enqueue("bob")
	third := enqueue("carol")
	if first.Position != 1 || second.Position != 2 || third.Position != 3 {
		t.Fatalf("unexpected positions: %d %d %d", first.Position, second.Position, third.Position)
	}

	if err := f.svc.CancelEntry(ctx, second.ID, "bob"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// Cancelled positions are never reused.
	fourth := enqueue("dave")
	if fourth.Position != 4 {
		t.Errorf("expected position 4, got %d", fourth.Position)
	}

	head, _ := f.equipment.HeadOfQueue(ctx, f.device.ID)
	if head == nil || head.ID != first.ID {
		t.Errorf("expected the first entry at the head")
	}
}

func TestWaitingQueue_ExpiryAndConversion(t *testing.T) {
	f := newEquipmentFixture(t)
	ctx := context.Background()

	waiter := createPerson(t, f.persons, "waiter")
	start := time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC)
	f.svc.now = fixedClock(start)

	entry, err := f.svc.Enqueue(ctx, f.device.ID, waiter.ID, start.Add(time.Hour), start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	// Past the 30 minute TTL.
	f.svc.now = fixedClock(start.Add(45 * time.Minute))

	expired, err := f.svc.SweepExpiredEntries(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired entry, got %d", expired)
	}
	if f.dispatcher.count(notify.TemplateQueueExpired) != 1 {
		t.Errorf("expected one expiry notification, got %d", f.dispatcher.count(notify.TemplateQueueExpired))
	}

	if _, err := f.svc.ConvertToBooking(ctx, entry.ID); !errs.IsExpiry(err) {
		t.Errorf("converting an expired entry must fail with an expiry error, got %v", err)
	}

	got, _ := f.equipment.GetQueueEntry(ctx, entry.ID)
	if got.Status != constants.EntryExpired {
		t.Errorf("expected expired, got %s", got.Status)
	}
}

func TestWaitingQueue_ConvertToBooking(t *testing.T) {
	f := newEquipmentFixture(t)
	ctx := context.Background()

	waiter := createPerson(t, f.persons, "waiter")
	start := time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC)
	f.svc.now = fixedClock(start)

	entry, err := f.svc.Enqueue(ctx, f.device.ID, waiter.ID, start.Add(time.Hour), start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	booking, err := f.svc.ConvertToBooking(ctx, entry.ID)
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if !booking.StartTime.Equal(start.Add(time.Hour)) || !booking.EndTime.Equal(start.Add(2*time.Hour)) {
		t.Errorf("booking must use the requested window, got %v .. %v", booking.StartTime, booking.EndTime)
	}

	got, _ := f.equipment.GetQueueEntry(ctx, entry.ID)
	if got.Status != constants.EntryConverted {
		t.Errorf("expected converted entry, got %s", got.Status)
	}

	// The window is re-validated at conversion time.
	second, err := f.svc.Enqueue(ctx, f.device.ID, waiter.ID, start.Add(time.Hour), start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second enqueue failed: %v", err)
	}
	if _, err := f.svc.ConvertToBooking(ctx, second.ID); !errs.IsConflict(err) {
		t.Errorf("expected conflict converting into a taken window, got %v", err)
	}
	unchanged, _ := f.equipment.GetQueueEntry(ctx, second.ID)
	if unchanged.Status != constants.EntryWaiting {
		t.Errorf("failed conversion must leave the entry live, got %s", unchanged.Status)
	}
}
