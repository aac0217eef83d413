package services

import (
	"context"
	"fmt"
	"testing"

	errs "lab-scheduler.com/lab-scheduler/internal/errors"
	repository "lab-scheduler.com/lab-scheduler/internal/repositories"
)

func setupRotation(t *testing.T) (*RotationService, *repository.RotationRepository) {
	t.Helper()
	db := setupTestDB(t)
	repo := repository.NewRotationRepository(db)
	return NewRotationService(repo, testLogger()), repo
}

func addMembers(t *testing.T, svc *RotationService, queueID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		personID := fmt.Sprintf("person-%02d", i)
		if _, err := svc.AddMember(context.Background(), queueID, personID); err != nil {
			t.Fatalf("failed to add member %s: %v", personID, err)
		}
		ids = append(ids, personID)
	}
	return ids
}

func TestRotationService_EnsureQueueDefaults(t *testing.T) {
	svc, _ := setupRotation(t)
	ctx := context.Background()

	queue, err := svc.EnsureQueue(ctx, "tpl-1")
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	if queue.MinGapMonths != 1 || !queue.ConsiderWorkload || queue.RandomFactor != 0.1 {
		t.Errorf("unexpected defaults: %+v", queue)
	}

	again, err := svc.EnsureQueue(ctx, "tpl-1")
	if err != nil {
		t.Fatalf("second EnsureQueue failed: %v", err)
	}
	if again.ID != queue.ID {
		t.Errorf("expected the same queue, got %s and %s", queue.ID, again.ID)
	}
}

func TestRotationService_AddMemberTwice(t *testing.T) {
	svc, _ := setupRotation(t)
	ctx := context.Background()

	queue, _ := svc.EnsureQueue(ctx, "tpl-1")
	if _, err := svc.AddMember(ctx, queue.ID, "alice"); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	_, err := svc.AddMember(ctx, queue.ID, "alice")
	if !errs.IsConflict(err) {
		t.Errorf("expected conflict error, got %v", err)
	}
}

func TestRotationService_InsufficientMembers(t *testing.T) {
	svc, _ := setupRotation(t)
	ctx := context.Background()

	queue, _ := svc.EnsureQueue(ctx, "tpl-1")
	addMembers(t, svc, queue.ID, 1)

	_, err := svc.SelectAssignees(ctx, queue, "2025-03", 2)
	if !errs.IsAssignment(err) {
		t.Errorf("expected assignment error, got %v", err)
	}
}

func TestRotationService_NeverAssignedSortsFirst(t *testing.T) {
	svc, repo := setupRotation(t)
	ctx := context.Background()

	queue, _ := svc.EnsureQueue(ctx, "tpl-1")
	queue.RandomFactor = 0
	queue.MinGapMonths = 0
	addMembers(t, svc, queue.ID, 2)

	veteran, _ := repo.GetMember(ctx, queue.ID, "person-00")
	veteran.TotalAssignments = 5
	veteran.LastAssignedPeriod = "2025-02"
	if err := repo.UpdateMember(ctx, veteran); err != nil {
		t.Fatalf("failed to update member: %v", err)
	}

	selected, err := svc.SelectAssignees(ctx, queue, "2025-03", 1)
	if err != nil {
		t.Fatalf("selection failed: %v", err)
	}
	if selected[0].PersonID != "person-01" {
		t.Errorf("expected the never-assigned member, got %s", selected[0].PersonID)
	}
}

func TestRotationService_MinGapRelaxation(t *testing.T) {
	svc, repo := setupRotation(t)
	ctx := context.Background()

	queue, _ := svc.EnsureQueue(ctx, "tpl-1")
	queue.RandomFactor = 0
	queue.MinGapMonths = 6
	addMembers(t, svc, queue.ID, 2)

	// Both members violate the 6 month gap: one by a lot, one barely.
	recent, _ := repo.GetMember(ctx, queue.ID, "person-00")
	recent.LastAssignedPeriod = "2025-02"
	if err := repo.UpdateMember(ctx, recent); err != nil {
		t.Fatalf("failed to update member: %v", err)
	}
	older, _ := repo.GetMember(ctx, queue.ID, "person-01")
	older.LastAssignedPeriod = "2024-11"
	if err := repo.UpdateMember(ctx, older); err != nil {
		t.Fatalf("failed to update member: %v", err)
	}

	selected, err := svc.SelectAssignees(ctx, queue, "2025-03", 1)
	if err != nil {
		t.Fatalf("expected relaxation, got error: %v", err)
	}
	if selected[0].PersonID != "person-01" {
		t.Errorf("expected the smaller violation (larger gap) admitted first, got %s", selected[0].PersonID)
	}
}

func TestRotationService_FairnessOverManyPeriods(t *testing.T) {
	svc, repo := setupRotation(t)
	ctx := context.Background()

	queue, _ := svc.EnsureQueue(ctx, "tpl-1")
	queue.RandomFactor = 0
	queue.MinGapMonths = 0
	const members = 4
	addMembers(t, svc, queue.ID, members)

	// Two full years of monthly selections, one assignee per period.
	for year := 2025; year <= 2026; year++ {
		for month := 1; month <= 12; month++ {
			key := fmt.Sprintf("%04d-%02d", year, month)
			selected, err := svc.SelectAssignees(ctx, queue, key, 1)
			if err != nil {
				t.Fatalf("selection failed for %s: %v", key, err)
			}
			if err := svc.RecordAssignments(ctx, queue, selected, key); err != nil {
				t.Fatalf("recording failed for %s: %v", key, err)
			}
		}
	}

	all, err := repo.ListMembers(ctx, queue.ID)
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	min, max := all[0].TotalAssignments, all[0].TotalAssignments
	total := 0
	for _, m := range all {
		total += m.TotalAssignments
		if m.TotalAssignments < min {
			min = m.TotalAssignments
		}
		if m.TotalAssignments > max {
			max = m.TotalAssignments
		}
	}
	if total != 24 {
		t.Fatalf("expected 24 assignments in total, got %d", total)
	}
	if max-min > 1 {
		t.Errorf("assignment counts diverged beyond 1: min=%d max=%d", min, max)
	}
}

func TestRotationService_RecordCompletionUpdatesRate(t *testing.T) {
	svc, repo := setupRotation(t)
	ctx := context.Background()

	queue, _ := svc.EnsureQueue(ctx, "tpl-1")
	addMembers(t, svc, queue.ID, 1)

	member, _ := repo.GetMember(ctx, queue.ID, "person-00")
	member.TotalAssignments = 2
	if err := repo.UpdateMember(ctx, member); err != nil {
		t.Fatalf("failed to update member: %v", err)
	}

	if err := svc.RecordCompletion(ctx, queue, []string{"person-00", "ghost"}); err != nil {
		t.Fatalf("recording completion failed: %v", err)
	}

	member, _ = repo.GetMember(ctx, queue.ID, "person-00")
	if member.CompletedCount != 1 {
		t.Errorf("expected completed count 1, got %d", member.CompletedCount)
	}
	if member.CompletionRate != 0.5 {
		t.Errorf("expected completion rate 0.5, got %v", member.CompletionRate)
	}
}

func TestRotationService_DeactivatedMembersExcluded(t *testing.T) {
	svc, repo := setupRotation(t)
	ctx := context.Background()

	queue, _ := svc.EnsureQueue(ctx, "tpl-1")
	queue.RandomFactor = 0
	queue.MinGapMonths = 0
	addMembers(t, svc, queue.ID, 2)

	if err := repo.DeactivateMember(ctx, queue.ID, "person-00"); err != nil {
		t.Fatalf("deactivation failed: %v", err)
	}

	_, err := svc.SelectAssignees(ctx, queue, "2025-03", 2)
	if !errs.IsAssignment(err) {
		t.Errorf("expected assignment error with one active member, got %v", err)
	}

	selected, err := svc.SelectAssignees(ctx, queue, "2025-03", 1)
	if err != nil {
		t.Fatalf("selection failed: %v", err)
	}
	if selected[0].PersonID != "person-01" {
		t.Errorf("expected the active member, got %s", selected[0].PersonID)
	}
}
