package services

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"lab-scheduler.com/lab-scheduler/internal/constants"
	errs "lab-scheduler.com/lab-scheduler/internal/errors"
	model "lab-scheduler.com/lab-scheduler/internal/models"
	"lab-scheduler.com/lab-scheduler/internal/notify"
	repository "lab-scheduler.com/lab-scheduler/internal/repositories"
)

type taskFixture struct {
	db         *gorm.DB
	tasks      *repository.TaskRepository
	persons    *repository.PersonRepository
	rotRepo    *repository.RotationRepository
	rotation   *RotationService
	svc        *TaskGenService
	dispatcher *countingDispatcher
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	db := setupTestDB(t)
	f := &taskFixture{
		db:         db,
		tasks:      repository.NewTaskRepository(db),
		persons:    repository.NewPersonRepository(db),
		rotRepo:    repository.NewRotationRepository(db),
		dispatcher: &countingDispatcher{},
	}
	f.rotation = NewRotationService(f.rotRepo, testLogger())
	f.svc = NewTaskGenService(f.tasks, f.persons, f.rotation, f.dispatcher, time.Second, testLogger())
	return f
}

func (f *taskFixture) createTemplate(t *testing.T, tpl *model.TaskTemplate) *model.TaskTemplate {
	t.Helper()
	if err := f.tasks.CreateTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("failed to create template: %v", err)
	}
	return tpl
}

// seedQueue registers n real people and enrolls them in the template's queue.
func (f *taskFixture) seedQueue(t *testing.T, templateID string, n int) []string {
	t.Helper()
	ctx := context.Background()
	queue, err := f.rotation.EnsureQueue(ctx, templateID)
	if err != nil {
		t.Fatalf("failed to ensure queue: %v", err)
	}

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p := createPerson(t, f.persons, "member")
		if _, err := f.rotation.AddMember(ctx, queue.ID, p.ID); err != nil {
			t.Fatalf("failed to add member: %v", err)
		}
		ids = append(ids, p.ID)
	}
	return ids
}

func monthlyFixedTemplate() *model.TaskTemplate {
	return &model.TaskTemplate{
		Name:          "autoclave-maintenance",
		Type:          constants.TaskTypeRecurring,
		Frequency:     constants.FrequencyMonthly,
		WindowPolicy:  constants.WindowFixed,
		FixedStartDay: 25,
		FixedEndDay:   31,
		MinPeople:     1,
		MaxPeople:     3,
		DefaultPeople: 1,
		IsActive:      true,
	}
}

func TestGenerateForPeriod_FixedWindow(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	tpl := f.createTemplate(t, monthlyFixedTemplate())
	f.seedQueue(t, tpl.ID, 3)

	res, err := f.svc.GenerateForPeriod(ctx, tpl, "2025-01", false)
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}
	if !res.Created {
		t.Fatalf("expected an instance, got skip %q", res.SkipReason)
	}

	inst := res.Instance
	if inst.Status != constants.TaskScheduled {
		t.Errorf("expected status scheduled, got %s", inst.Status)
	}
	wantStart := time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	if !inst.ExecutionStartDate.Equal(wantStart) || !inst.ExecutionEndDate.Equal(wantEnd) {
		t.Errorf("unexpected window %v .. %v", inst.ExecutionStartDate, inst.ExecutionEndDate)
	}
	if inst.Metadata.Algorithm == "" || inst.Metadata.PrimaryAssignee == "" {
		t.Errorf("metadata not populated: %+v", inst.Metadata)
	}

	assignees, err := f.tasks.ListCurrentAssignees(ctx, inst.ID)
	if err != nil {
		t.Fatalf("listing assignees failed: %v", err)
	}
	if len(assignees) != 1 {
		t.Fatalf("expected 1 assignee, got %d", len(assignees))
	}
	if !assignees[0].Original || !assignees[0].Current {
		t.Errorf("assignee should be both original and current: %+v", assignees[0])
	}
}

func TestGenerateForPeriod_Idempotent(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	tpl := f.createTemplate(t, monthlyFixedTemplate())
	f.seedQueue(t, tpl.ID, 2)

	first, err := f.svc.GenerateForPeriod(ctx, tpl, "2025-01", false)
	if err != nil || !first.Created {
		t.Fatalf("first generation failed: %v (created=%v)", err, first.Created)
	}

	second, err := f.svc.GenerateForPeriod(ctx, tpl, "2025-01", false)
	if err != nil {
		t.Fatalf("second generation errored: %v", err)
	}
	if second.Created || second.SkipReason != skipAlreadyExists {
		t.Errorf("expected already-exists skip, got created=%v reason=%q", second.Created, second.SkipReason)
	}

	// The repeat run must not touch the queue bookkeeping.
	queue, _ := f.rotation.EnsureQueue(ctx, tpl.ID)
	members, _ := f.rotRepo.ListMembers(ctx, queue.ID)
	total := 0
	for _, m := range members {
		total += m.TotalAssignments
	}
	if total != 1 {
		t.Errorf("expected exactly 1 recorded assignment, got %d", total)
	}
}

func TestGenerateForPeriod_ForceRegenerates(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	tpl := f.createTemplate(t, monthlyFixedTemplate())
	f.seedQueue(t, tpl.ID, 2)

	first, _ := f.svc.GenerateForPeriod(ctx, tpl, "2025-01", false)
	res, err := f.svc.GenerateForPeriod(ctx, tpl, "2025-01", true)
	if err != nil {
		t.Fatalf("forced generation failed: %v", err)
	}
	if !res.Created {
		t.Fatalf("expected a fresh instance, got skip %q", res.SkipReason)
	}
	if res.Instance.ID == first.Instance.ID {
		t.Errorf("expected a new instance id")
	}
}

func TestGenerateForPeriod_AssignmentShortfallSkips(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	tpl := monthlyFixedTemplate()
	tpl.MinPeople = 2
	tpl.DefaultPeople = 2
	f.createTemplate(t, tpl)
	f.seedQueue(t, tpl.ID, 1)

	res, err := f.svc.GenerateForPeriod(ctx, tpl, "2025-01", false)
	if err != nil {
		t.Fatalf("expected a skip, got error: %v", err)
	}
	if res.Created || res.SkipReason == "" {
		t.Errorf("expected skip with reason, got %+v", res)
	}

	inst, _ := f.tasks.GetInstanceByTemplateAndPeriod(ctx, tpl.ID, "2025-01")
	if inst != nil {
		t.Error("no instance should exist after an assignment shortfall")
	}
}

func TestGenerateForPeriod_FrequencyKeyMismatch(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	tpl := monthlyFixedTemplate()
	tpl.Frequency = constants.FrequencyWeekly
	tpl.WindowPolicy = constants.WindowFlexible
	tpl.FlexAnchor = constants.AnchorStart
	tpl.FlexDurationDays = 2
	f.createTemplate(t, tpl)
	f.seedQueue(t, tpl.ID, 1)

	_, err := f.svc.GenerateForPeriod(ctx, tpl, "2025-01", false)
	if !errs.IsValidation(err) {
		t.Errorf("expected validation error for monthly key on weekly template, got %v", err)
	}

	res, err := f.svc.GenerateForPeriod(ctx, tpl, "2025-01-W2", false)
	if err != nil || !res.Created {
		t.Errorf("weekly key should generate: err=%v created=%v", err, res.Created)
	}
}

func TestGenerateRange_DryRun(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	tpl := f.createTemplate(t, monthlyFixedTemplate())
	f.seedQueue(t, tpl.ID, 2)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	summary, err := f.svc.GenerateRange(ctx, from, to, true)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if summary.Created != 3 {
		t.Errorf("expected 3 would-be creations, got %d", summary.Created)
	}

	inst, _ := f.tasks.GetInstanceByTemplateAndPeriod(ctx, tpl.ID, "2025-01")
	if inst != nil {
		t.Error("dry run must not write instances")
	}

	summary, err = f.svc.GenerateRange(ctx, from, to, false)
	if err != nil || summary.Created != 3 {
		t.Fatalf("real run failed: err=%v created=%d", err, summary.Created)
	}
}

func TestCompleteRequiresCurrentAssignee(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	tpl := f.createTemplate(t, monthlyFixedTemplate())
	memberIDs := f.seedQueue(t, tpl.ID, 1)

	res, _ := f.svc.GenerateForPeriod(ctx, tpl, "2025-01", false)
	inst := res.Instance

	stranger := createPerson(t, f.persons, "stranger")
	if err := f.svc.Complete(ctx, inst.ID, stranger.ID); !errs.IsValidation(err) {
		t.Errorf("expected validation error for non-assignee, got %v", err)
	}

	if err := f.svc.Complete(ctx, inst.ID, memberIDs[0]); err != nil {
		t.Fatalf("completion by assignee failed: %v", err)
	}

	got, _ := f.tasks.GetInstance(ctx, inst.ID)
	if got.Status != constants.TaskCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.CompletedByID != memberIDs[0] || got.CompletedAt == nil {
		t.Errorf("completion fields not recorded: %+v", got)
	}

	queue, _ := f.rotation.EnsureQueue(ctx, tpl.ID)
	member, _ := f.rotRepo.GetMember(ctx, queue.ID, memberIDs[0])
	if member.CompletedCount != 1 {
		t.Errorf("expected completion recorded on the queue, got %d", member.CompletedCount)
	}
}

func TestSwapApproveSemantics(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	tpl := f.createTemplate(t, monthlyFixedTemplate())
	memberIDs := f.seedQueue(t, tpl.ID, 1)
	target := createPerson(t, f.persons, "target")

	res, _ := f.svc.GenerateForPeriod(ctx, tpl, "2025-01", false)
	inst := res.Instance

	if _, err := f.svc.RequestSwap(ctx, inst.ID, target.ID, memberIDs[0], "nope"); !errs.IsValidation(err) {
		t.Errorf("non-assignee swap request should fail, got %v", err)
	}

	swap, err := f.svc.RequestSwap(ctx, inst.ID, memberIDs[0], target.ID, "conference")
	if err != nil {
		t.Fatalf("swap request failed: %v", err)
	}

	if err := f.svc.ApproveSwap(ctx, swap.ID, "pi"); err != nil {
		t.Fatalf("approval failed: %v", err)
	}

	assignees, _ := f.tasks.ListCurrentAssignees(ctx, inst.ID)
	if len(assignees) != 1 || assignees[0].PersonID != target.ID {
		t.Errorf("expected only the target as current assignee, got %+v", assignees)
	}

	originals, _ := f.tasks.ListOriginalAssignees(ctx, inst.ID)
	if len(originals) != 1 || originals[0].PersonID != memberIDs[0] {
		t.Errorf("original assignees must be immutable, got %+v", originals)
	}

	if err := f.svc.ApproveSwap(ctx, swap.ID, "pi"); !errs.IsValidation(err) {
		t.Errorf("second approval should fail, got %v", err)
	}
}

func TestExpireSwapRequests(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	tpl := f.createTemplate(t, monthlyFixedTemplate())
	memberIDs := f.seedQueue(t, tpl.ID, 1)

	res, _ := f.svc.GenerateForPeriod(ctx, tpl, "2025-01", false)
	swap, err := f.svc.RequestSwap(ctx, res.Instance.ID, memberIDs[0], "", "travel")
	if err != nil {
		t.Fatalf("swap request failed: %v", err)
	}

	f.svc.now = fixedClock(time.Now().UTC().AddDate(0, 0, 8))

	expired, err := f.svc.ExpireSwapRequests(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("expiry sweep failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired swap, got %d", expired)
	}

	got, _ := f.tasks.GetSwap(ctx, swap.ID)
	if got.Status != constants.SwapExpired {
		t.Errorf("expected expired, got %s", got.Status)
	}

	var audits int64
	f.db.Model(&model.StatusAudit{}).
		Where("entity_type = ? AND entity_id = ?", "swap_request", swap.ID).
		Count(&audits)
	if audits != 1 {
		t.Errorf("expected one audit row, got %d", audits)
	}
}

func TestMarkOverdue(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	tpl := f.createTemplate(t, monthlyFixedTemplate())
	memberIDs := f.seedQueue(t, tpl.ID, 1)

	res, _ := f.svc.GenerateForPeriod(ctx, tpl, "2025-01", false)
	inst := res.Instance

	f.svc.now = fixedClock(time.Date(2025, 2, 5, 12, 0, 0, 0, time.UTC))

	marked, err := f.svc.MarkOverdue(ctx)
	if err != nil {
		t.Fatalf("overdue sweep failed: %v", err)
	}
	if marked != 1 {
		t.Fatalf("expected 1 overdue instance, got %d", marked)
	}
	if f.dispatcher.count(notify.TemplateTaskOverdue) != 1 {
		t.Errorf("expected one overdue notification, got %d", f.dispatcher.count(notify.TemplateTaskOverdue))
	}

	got, _ := f.tasks.GetInstance(ctx, inst.ID)
	if got.Status != constants.TaskOverdue {
		t.Fatalf("expected overdue, got %s", got.Status)
	}

	// Overdue is not terminal.
	if err := f.svc.Complete(ctx, inst.ID, memberIDs[0]); err != nil {
		t.Errorf("overdue task should remain completable: %v", err)
	}

	// A second sweep finds nothing.
	marked, err = f.svc.MarkOverdue(ctx)
	if err != nil || marked != 0 {
		t.Errorf("second sweep should be a no-op: marked=%d err=%v", marked, err)
	}
}
