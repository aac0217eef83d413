package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	model "lab-scheduler.com/lab-scheduler/internal/models"
)

// RotationRepository persists rotation queues and their fairness bookkeeping.
type RotationRepository struct {
	db *gorm.DB
}

func NewRotationRepository(db *gorm.DB) *RotationRepository {
	return &RotationRepository{db: db}
}

func (r *RotationRepository) GetQueueByTemplate(ctx context.Context, templateID string) (*model.TaskRotationQueue, error) {
	var queue model.TaskRotationQueue
	err := r.db.WithContext(ctx).First(&queue, "template_id = ?", templateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &queue, nil
}

func (r *RotationRepository) CreateQueue(ctx context.Context, queue *model.TaskRotationQueue) error {
	if queue.ID == "" {
		queue.ID = uuid.NewString()
	}
	queue.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(queue).Error
}

func (r *RotationRepository) AddMember(ctx context.Context, member *model.QueueMember) error {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	member.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *RotationRepository) ListMembers(ctx context.Context, queueID string) ([]model.QueueMember, error) {
	var members []model.QueueMember
	err := r.db.WithContext(ctx).
		Where("queue_id = ?", queueID).
		Order("person_id asc").
		Find(&members).Error
	return members, err
}

func (r *RotationRepository) ListActiveMembers(ctx context.Context, queueID string) ([]model.QueueMember, error) {
	var members []model.QueueMember
	err := r.db.WithContext(ctx).
		Where("queue_id = ? AND is_active = ?", queueID, true).
		Order("person_id asc").
		Find(&members).Error
	return members, err
}

func (r *RotationRepository) GetMember(ctx context.Context, queueID, personID string) (*model.QueueMember, error) {
	var member model.QueueMember
	err := r.db.WithContext(ctx).
		First(&member, "queue_id = ? AND person_id = ?", queueID, personID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// UpdateMember writes the fairness fields back after a selection or a
// recalculation pass.
func (r *RotationRepository) UpdateMember(ctx context.Context, member *model.QueueMember) error {
	return r.db.WithContext(ctx).Model(&model.QueueMember{}).
		Where("id = ?", member.ID).
		Updates(map[string]interface{}{
			"total_assignments":    member.TotalAssignments,
			"completed_count":      member.CompletedCount,
			"last_assigned_period": member.LastAssignedPeriod,
			"completion_rate":      member.CompletionRate,
			"priority_score":       member.PriorityScore,
			"is_active":            member.IsActive,
		}).Error
}

func (r *RotationRepository) DeactivateMember(ctx context.Context, queueID, personID string) error {
	return r.db.WithContext(ctx).Model(&model.QueueMember{}).
		Where("queue_id = ? AND person_id = ?", queueID, personID).
		Update("is_active", false).Error
}
