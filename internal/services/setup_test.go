package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	config "lab-scheduler.com/lab-scheduler/internal/configs"
	model "lab-scheduler.com/lab-scheduler/internal/models"
	repository "lab-scheduler.com/lab-scheduler/internal/repositories"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// One named in-memory database per test so shared-cache connections within
	// a test see the same data while tests stay isolated from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	if err := config.Migrate(db); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	return db
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func createPerson(t *testing.T, repo *repository.PersonRepository, name string) *model.Person {
	t.Helper()

	p := &model.Person{Name: name, IsActive: true}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("failed to create person %s: %v", name, err)
	}
	return p
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// countingDispatcher records how many notifications of each template were
// sent. Fire calls Send synchronously, so no waiting is needed.
type countingDispatcher struct {
	mu   sync.Mutex
	sent map[string]int
}

func (d *countingDispatcher) Send(_ context.Context, _ []model.Person, templateKey string, _ map[string]interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sent == nil {
		d.sent = make(map[string]int)
	}
	d.sent[templateKey]++
	return nil
}

func (d *countingDispatcher) count(templateKey string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[templateKey]
}
