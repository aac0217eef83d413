package config

import (
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	model "lab-scheduler.com/lab-scheduler/internal/models"
)

func New(dsn string) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	if err := Migrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	return db
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Person{},
		&model.TaskTemplate{},
		&model.TaskRotationQueue{},
		&model.QueueMember{},
		&model.PeriodicTaskInstance{},
		&model.InstanceAssignee{},
		&model.TaskSwapRequest{},
		&model.MeetingConfiguration{},
		&model.Holiday{},
		&model.MeetingInstance{},
		&model.Presenter{},
		&model.MeetingPresenterRotation{},
		&model.RotationMember{},
		&model.Equipment{},
		&model.Booking{},
		&model.EquipmentUsageLog{},
		&model.WaitingQueueEntry{},
		&model.StatusAudit{},
	)
}
