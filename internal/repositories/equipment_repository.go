package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lab-scheduler.com/lab-scheduler/internal/constants"
	model "lab-scheduler.com/lab-scheduler/internal/models"
)

// EquipmentRepository persists equipment state, bookings, usage logs and the
// waiting queue. The exclusive-access triple on Equipment is only written via
// the conditional CheckIn/CheckOut updates.
type EquipmentRepository struct {
	db *gorm.DB
}

func NewEquipmentRepository(db *gorm.DB) *EquipmentRepository {
	return &EquipmentRepository{db: db}
}

func (r *EquipmentRepository) CreateEquipment(ctx context.Context, eq *model.Equipment) error {
	if eq.ID == "" {
		eq.ID = uuid.NewString()
	}
	eq.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(eq).Error
}

func (r *EquipmentRepository) GetEquipment(ctx context.Context, id string) (*model.Equipment, error) {
	var eq model.Equipment
	err := r.db.WithContext(ctx).First(&eq, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &eq, nil
}

// CheckIn is the single atomic conditional update guarding mutual exclusion:
// it only lands while is_in_use is still false. Two racing check-ins produce
// exactly one RowsAffected=1.
func (r *EquipmentRepository) CheckIn(ctx context.Context, equipmentID, personID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Equipment{}).
		Where("id = ? AND is_in_use = ?", equipmentID, false).
		Updates(map[string]interface{}{
			"is_in_use":            true,
			"current_user_id":      personID,
			"current_checkin_time": &at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CheckOut clears the triple, conditional on the caller being the holder.
func (r *EquipmentRepository) CheckOut(ctx context.Context, equipmentID, personID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Equipment{}).
		Where("id = ? AND is_in_use = ? AND current_user_id = ?", equipmentID, true, personID).
		Updates(map[string]interface{}{
			"is_in_use":            false,
			"current_user_id":      "",
			"current_checkin_time": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *EquipmentRepository) CreateUsageLog(ctx context.Context, usageLog *model.EquipmentUsageLog) error {
	if usageLog.ID == "" {
		usageLog.ID = uuid.NewString()
	}
	usageLog.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(usageLog).Error
}

func (r *EquipmentRepository) GetActiveUsageLog(ctx context.Context, equipmentID string) (*model.EquipmentUsageLog, error) {
	var usageLog model.EquipmentUsageLog
	err := r.db.WithContext(ctx).
		First(&usageLog, "equipment_id = ? AND is_active = ?", equipmentID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &usageLog, nil
}

func (r *EquipmentRepository) CountActiveUsageLogs(ctx context.Context, equipmentID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.EquipmentUsageLog{}).
		Where("equipment_id = ? AND is_active = ?", equipmentID, true).
		Count(&count).Error
	return count, err
}

func (r *EquipmentRepository) CloseUsageLog(ctx context.Context, logID string, checkOut time.Time, duration time.Duration) error {
	return r.db.WithContext(ctx).Model(&model.EquipmentUsageLog{}).
		Where("id = ? AND is_active = ?", logID, true).
		Updates(map[string]interface{}{
			"check_out_time": &checkOut,
			"usage_duration": duration,
			"is_active":      false,
		}).Error
}

func (r *EquipmentRepository) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	var booking model.Booking
	err := r.db.WithContext(ctx).First(&booking, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// CreateBookingIfFree inserts the booking only while no confirmed booking
// overlaps its slot (half-open interval test). The guard and the insert run in
// one write transaction so two racing requests for the same slot serialize at
// the store; reports whether the insert landed.
func (r *EquipmentRepository) CreateBookingIfFree(ctx context.Context, booking *model.Booking) (bool, error) {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	booking.CreatedAt = time.Now().UTC()

	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Booking{}).
			Where("equipment_id = ? AND status = ? AND start_time < ? AND end_time > ?",
				booking.EquipmentID, constants.BookingConfirmed, booking.EndTime, booking.StartTime).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Create(booking).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func (r *EquipmentRepository) UpdateBookingStatus(ctx context.Context, id string, from, to constants.BookingStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *EquipmentRepository) SetActualEndTime(ctx context.Context, bookingID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Booking{}).
		Where("id = ?", bookingID).
		Update("actual_end_time", &at).Error
}

// MarkEarlyFinishNotified flips the guard flag; the conditional write makes
// the notification fire at most once per booking.
func (r *EquipmentRepository) MarkEarlyFinishNotified(ctx context.Context, bookingID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Booking{}).
		Where("id = ? AND early_finish_notified = ?", bookingID, false).
		Update("early_finish_notified", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetActiveBookingFor finds the holder's confirmed booking covering the given
// moment, if any.
func (r *EquipmentRepository) GetActiveBookingFor(ctx context.Context, equipmentID, personID string, at time.Time) (*model.Booking, error) {
	var booking model.Booking
	err := r.db.WithContext(ctx).
		Where("equipment_id = ? AND person_id = ? AND status = ? AND start_time <= ? AND end_time > ?",
			equipmentID, personID, constants.BookingConfirmed, at, at).
		Order("start_time asc").
		First(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *EquipmentRepository) MaxQueuePosition(ctx context.Context, equipmentID string) (int, error) {
	var max sql.NullInt64
	err := r.db.WithContext(ctx).Model(&model.WaitingQueueEntry{}).
		Where("equipment_id = ?", equipmentID).
		Select("MAX(position)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

func (r *EquipmentRepository) CreateQueueEntry(ctx context.Context, entry *model.WaitingQueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *EquipmentRepository) GetQueueEntry(ctx context.Context, id string) (*model.WaitingQueueEntry, error) {
	var entry model.WaitingQueueEntry
	err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateQueueEntryStatus is conditional on the current status so a sweep and a
// user action racing on the same entry resolve to a single winner.
func (r *EquipmentRepository) UpdateQueueEntryStatus(ctx context.Context, id string, from []constants.QueueEntryStatus, to constants.QueueEntryStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.WaitingQueueEntry{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// HeadOfQueue returns the live entry with the lowest position.
func (r *EquipmentRepository) HeadOfQueue(ctx context.Context, equipmentID string) (*model.WaitingQueueEntry, error) {
	var entry model.WaitingQueueEntry
	err := r.db.WithContext(ctx).
		Where("equipment_id = ? AND status IN ?", equipmentID,
			[]constants.QueueEntryStatus{constants.EntryWaiting, constants.EntryNotified}).
		Order("position asc").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *EquipmentRepository) ListExpiredEntries(ctx context.Context, now time.Time) ([]model.WaitingQueueEntry, error) {
	var entries []model.WaitingQueueEntry
	err := r.db.WithContext(ctx).
		Where("expires_at < ? AND status IN ?", now,
			[]constants.QueueEntryStatus{constants.EntryWaiting, constants.EntryNotified}).
		Find(&entries).Error
	return entries, err
}
