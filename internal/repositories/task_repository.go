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

// TaskRepository persists templates, periodic task instances, their assignee
// sets and swap requests.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) CreateTemplate(ctx context.Context, tpl *model.TaskTemplate) error {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	tpl.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(tpl).Error
}

func (r *TaskRepository) GetTemplate(ctx context.Context, id string) (*model.TaskTemplate, error) {
	var tpl model.TaskTemplate
	err := r.db.WithContext(ctx).First(&tpl, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (r *TaskRepository) ListActiveTemplates(ctx context.Context) ([]model.TaskTemplate, error) {
	var templates []model.TaskTemplate
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at asc").
		Find(&templates).Error
	return templates, err
}

// CreateInstance inserts one occurrence. The (template_id, scheduled_period)
// unique index is the concurrency control: a racing duplicate surfaces as
// gorm.ErrDuplicatedKey, which callers treat as "already exists".
func (r *TaskRepository) CreateInstance(ctx context.Context, inst *model.PeriodicTaskInstance) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	inst.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(inst).Error
}

func (r *TaskRepository) GetInstance(ctx context.Context, id string) (*model.PeriodicTaskInstance, error) {
	var inst model.PeriodicTaskInstance
	err := r.db.WithContext(ctx).First(&inst, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *TaskRepository) GetInstanceByTemplateAndPeriod(ctx context.Context, templateID, period string) (*model.PeriodicTaskInstance, error) {
	var inst model.PeriodicTaskInstance
	err := r.db.WithContext(ctx).
		First(&inst, "template_id = ? AND scheduled_period = ?", templateID, period).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *TaskRepository) DeleteInstance(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&model.PeriodicTaskInstance{}, "id = ?", id).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&model.InstanceAssignee{}, "instance_id = ?", id).Error
}

// UpdateInstanceStatus performs a guarded transition: the write only lands if
// the instance is still in the expected state. Reports whether it did.
func (r *TaskRepository) UpdateInstanceStatus(ctx context.Context, id string, from, to constants.TaskStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := r.db.WithContext(ctx).Model(&model.PeriodicTaskInstance{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *TaskRepository) AddAssignee(ctx context.Context, a *model.InstanceAssignee) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *TaskRepository) ListCurrentAssignees(ctx context.Context, instanceID string) ([]model.InstanceAssignee, error) {
	var assignees []model.InstanceAssignee
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND is_current = ?", instanceID, true).
		Find(&assignees).Error
	return assignees, err
}

func (r *TaskRepository) ListOriginalAssignees(ctx context.Context, instanceID string) ([]model.InstanceAssignee, error) {
	var assignees []model.InstanceAssignee
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND is_original = ?", instanceID, true).
		Find(&assignees).Error
	return assignees, err
}

// RemoveCurrentAssignee drops a person from the mutable set only; the original
// snapshot row is never touched.
func (r *TaskRepository) RemoveCurrentAssignee(ctx context.Context, instanceID, personID string) error {
	return r.db.WithContext(ctx).Model(&model.InstanceAssignee{}).
		Where("instance_id = ? AND person_id = ? AND is_current = ?", instanceID, personID, true).
		Update("is_current", false).Error
}

func (r *TaskRepository) CreateSwap(ctx context.Context, swap *model.TaskSwapRequest) error {
	if swap.ID == "" {
		swap.ID = uuid.NewString()
	}
	swap.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(swap).Error
}

func (r *TaskRepository) GetSwap(ctx context.Context, id string) (*model.TaskSwapRequest, error) {
	var swap model.TaskSwapRequest
	err := r.db.WithContext(ctx).First(&swap, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &swap, nil
}

// UpdateSwapStatus is conditional on the current status so that two approvers
// racing on the same request cannot both win.
func (r *TaskRepository) UpdateSwapStatus(ctx context.Context, id string, from, to constants.SwapStatus, resolvedBy string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&model.TaskSwapRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":         to,
			"resolved_by_id": resolvedBy,
			"resolved_at":    &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *TaskRepository) ListPendingSwapsOlderThan(ctx context.Context, cutoff time.Time) ([]model.TaskSwapRequest, error) {
	var swaps []model.TaskSwapRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", constants.SwapPending, cutoff).
		Find(&swaps).Error
	return swaps, err
}

// ListOverdueCandidates returns instances whose window has closed but whose
// status still says work is possible.
func (r *TaskRepository) ListOverdueCandidates(ctx context.Context, today time.Time) ([]model.PeriodicTaskInstance, error) {
	var instances []model.PeriodicTaskInstance
	err := r.db.WithContext(ctx).
		Where("execution_end_date < ? AND status IN ?", today,
			[]constants.TaskStatus{constants.TaskScheduled, constants.TaskInProgress}).
		Find(&instances).Error
	return instances, err
}

func (r *TaskRepository) CreateAudit(ctx context.Context, audit *model.StatusAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	audit.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(audit).Error
}
