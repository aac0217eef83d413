package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	model "lab-scheduler.com/lab-scheduler/internal/models"
)

type PersonRepository struct {
	db *gorm.DB
}

func NewPersonRepository(db *gorm.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

func (r *PersonRepository) Create(ctx context.Context, person *model.Person) error {
	if person.ID == "" {
		person.ID = uuid.NewString()
	}
	person.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(person).Error
}

func (r *PersonRepository) Get(ctx context.Context, id string) (*model.Person, error) {
	var person model.Person
	err := r.db.WithContext(ctx).First(&person, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &person, nil
}

func (r *PersonRepository) ListActive(ctx context.Context) ([]model.Person, error) {
	var people []model.Person
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name asc").
		Find(&people).Error
	return people, err
}
