package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lab-scheduler.com/lab-scheduler/internal/constants"
	model "lab-scheduler.com/lab-scheduler/internal/models"
)

// MeetingRepository persists the meeting configuration, generated instances,
// presenter slots and the per-type presenter rotation.
type MeetingRepository struct {
	db *gorm.DB
}

func NewMeetingRepository(db *gorm.DB) *MeetingRepository {
	return &MeetingRepository{db: db}
}

func (r *MeetingRepository) GetConfiguration(ctx context.Context) (*model.MeetingConfiguration, error) {
	var cfg model.MeetingConfiguration
	err := r.db.WithContext(ctx).First(&cfg, "is_active = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *MeetingRepository) SaveConfiguration(ctx context.Context, cfg *model.MeetingConfiguration) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
		cfg.CreatedAt = time.Now().UTC()
		return r.db.WithContext(ctx).Create(cfg).Error
	}
	return r.db.WithContext(ctx).Save(cfg).Error
}

func (r *MeetingRepository) CreateHoliday(ctx context.Context, h *model.Holiday) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *MeetingRepository) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Holiday{}).
		Where("date = ?", date).
		Count(&count).Error
	return count > 0, err
}

// CreateInstance relies on the (date, meeting_type) unique index for
// idempotence; duplicates surface as gorm.ErrDuplicatedKey.
func (r *MeetingRepository) CreateInstance(ctx context.Context, inst *model.MeetingInstance) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	inst.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(inst).Error
}

func (r *MeetingRepository) GetInstance(ctx context.Context, id string) (*model.MeetingInstance, error) {
	var inst model.MeetingInstance
	err := r.db.WithContext(ctx).First(&inst, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *MeetingRepository) GetInstanceByDateAndType(ctx context.Context, date time.Time, t constants.MeetingType) (*model.MeetingInstance, error) {
	var inst model.MeetingInstance
	err := r.db.WithContext(ctx).
		First(&inst, "date = ? AND meeting_type = ?", date, t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *MeetingRepository) ListInstancesBetween(ctx context.Context, from, to time.Time) ([]model.MeetingInstance, error) {
	var instances []model.MeetingInstance
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", from, to).
		Order("date asc").
		Find(&instances).Error
	return instances, err
}

func (r *MeetingRepository) UpdateInstanceStatus(ctx context.Context, id string, from, to constants.MeetingStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.MeetingInstance{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *MeetingRepository) CreatePresenter(ctx context.Context, p *model.Presenter) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *MeetingRepository) ListPresenters(ctx context.Context, meetingID string) ([]model.Presenter, error) {
	var presenters []model.Presenter
	err := r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Find(&presenters).Error
	return presenters, err
}

func (r *MeetingRepository) UpdatePresenterStatus(ctx context.Context, id string, from, to constants.PresenterStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Presenter{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *MeetingRepository) SetMaterialsSubmitted(ctx context.Context, presenterID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Presenter{}).
		Where("id = ?", presenterID).
		Update("materials_submitted_at", &at).Error
}

// CountCompletedPresentations counts only status=completed slots; see
// DESIGN.md for the resolution of the completed-metric question.
func (r *MeetingRepository) CountCompletedPresentations(ctx context.Context, personID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Presenter{}).
		Where("person_id = ? AND status = ?", personID, constants.PresenterCompleted).
		Count(&count).Error
	return count, err
}

func (r *MeetingRepository) GetRotation(ctx context.Context, t constants.MeetingType) (*model.MeetingPresenterRotation, error) {
	var rotation model.MeetingPresenterRotation
	err := r.db.WithContext(ctx).First(&rotation, "meeting_type = ?", t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rotation, nil
}

func (r *MeetingRepository) CreateRotation(ctx context.Context, rotation *model.MeetingPresenterRotation) error {
	if rotation.ID == "" {
		rotation.ID = uuid.NewString()
	}
	rotation.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(rotation).Error
}

func (r *MeetingRepository) UpdateRotationIndex(ctx context.Context, rotationID, raw string) error {
	return r.db.WithContext(ctx).Model(&model.MeetingPresenterRotation{}).
		Where("id = ?", rotationID).
		Update("next_presenter_index_raw", raw).Error
}

func (r *MeetingRepository) AddRotationMember(ctx context.Context, m *model.RotationMember) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MeetingRepository) ListRotationMembers(ctx context.Context, rotationID string) ([]model.RotationMember, error) {
	var members []model.RotationMember
	err := r.db.WithContext(ctx).
		Where("rotation_id = ?", rotationID).
		Order("position asc").
		Find(&members).Error
	return members, err
}
