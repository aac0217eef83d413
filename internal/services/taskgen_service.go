package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"lab-scheduler.com/lab-scheduler/internal/constants"
	errs "lab-scheduler.com/lab-scheduler/internal/errors"
	model "lab-scheduler.com/lab-scheduler/internal/models"
	"lab-scheduler.com/lab-scheduler/internal/notify"
	"lab-scheduler.com/lab-scheduler/internal/period"
	repository "lab-scheduler.com/lab-scheduler/internal/repositories"
)

const assignmentAlgorithm = "rotation_priority_v1"

// TaskGenService turns active templates into periodic task instances, drives
// the instance status lifecycle and handles swap requests.
type TaskGenService struct {
	tasks         *repository.TaskRepository
	persons       *repository.PersonRepository
	rotation      *RotationService
	dispatcher    notify.Dispatcher
	notifyTimeout time.Duration
	log           zerolog.Logger
	now           func() time.Time
}

func NewTaskGenService(
	tasks *repository.TaskRepository,
	persons *repository.PersonRepository,
	rotation *RotationService,
	dispatcher notify.Dispatcher,
	notifyTimeout time.Duration,
	log zerolog.Logger,
) *TaskGenService {
	return &TaskGenService{
		tasks:         tasks,
		persons:       persons,
		rotation:      rotation,
		dispatcher:    dispatcher,
		notifyTimeout: notifyTimeout,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GenerateResult reports the outcome of one (template, period) slot.
type GenerateResult struct {
	Created    bool
	SkipReason string
	Instance   *model.PeriodicTaskInstance
}

const skipAlreadyExists = "already exists"

// GenerateForPeriod creates at most one instance of the template for the
// period. Idempotent: an existing instance (including one created by a
// concurrent run, surfaced as a duplicate-key insert) yields a skip, not an
// error. An AssignmentError also yields a skip and leaves no instance behind.
func (s *TaskGenService) GenerateForPeriod(ctx context.Context, tpl *model.TaskTemplate, periodKey string, force bool) (GenerateResult, error) {
	key, err := period.Parse(periodKey)
	if err != nil {
		return GenerateResult{}, err
	}
	if err := validateTemplatePeriod(tpl, key); err != nil {
		return GenerateResult{}, err
	}

	existing, err := s.tasks.GetInstanceByTemplateAndPeriod(ctx, tpl.ID, periodKey)
	if err != nil {
		return GenerateResult{}, err
	}
	if existing != nil {
		if !force {
			return GenerateResult{SkipReason: skipAlreadyExists, Instance: existing}, nil
		}
		if err := s.tasks.DeleteInstance(ctx, existing.ID); err != nil {
			return GenerateResult{}, err
		}
	}

	start, end, err := executionWindow(tpl, key)
	if err != nil {
		return GenerateResult{}, err
	}

	queue, err := s.rotation.EnsureQueue(ctx, tpl.ID)
	if err != nil {
		return GenerateResult{}, err
	}

	headcount := clampHeadcount(tpl)
	selected, err := s.rotation.SelectAssignees(ctx, queue, periodKey, headcount)
	if err != nil {
		if errs.IsAssignment(err) {
			return GenerateResult{SkipReason: err.Error()}, nil
		}
		return GenerateResult{}, err
	}

	status := constants.TaskScheduled
	if tpl.Type == constants.TaskTypeOneTime {
		status = constants.TaskPending
	}

	now := s.now()
	inst := &model.PeriodicTaskInstance{
		TemplateID:         tpl.ID,
		ScheduledPeriod:    periodKey,
		ExecutionStartDate: start,
		ExecutionEndDate:   end,
		Status:             status,
		Metadata: model.AssignmentMetadata{
			AssignedAt:      now,
			AssignedBy:      "system",
			PrimaryAssignee: selected[0].PersonID,
			Algorithm:       assignmentAlgorithm,
			WindowStart:     start.Format("2006-01-02"),
			WindowEnd:       end.Format("2006-01-02"),
		},
	}

	if err := s.tasks.CreateInstance(ctx, inst); err != nil {
		// A concurrent run won the insert; nothing was recorded on the queue.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return GenerateResult{SkipReason: skipAlreadyExists}, nil
		}
		return GenerateResult{}, err
	}

	for _, member := range selected {
		assignee := &model.InstanceAssignee{
			InstanceID: inst.ID,
			PersonID:   member.PersonID,
			Original:   true,
			Current:    true,
		}
		if err := s.tasks.AddAssignee(ctx, assignee); err != nil {
			return GenerateResult{}, err
		}
	}

	if err := s.rotation.RecordAssignments(ctx, queue, selected, periodKey); err != nil {
		return GenerateResult{}, err
	}

	s.notifyAssignees(ctx, inst, selected, tpl)
	return GenerateResult{Created: true, Instance: inst}, nil
}

// GenerateRange runs GenerateForPeriod for every active template and every
// period intersecting [from, to]. Per-item failures are recorded in the
// summary; the run always continues to the next slot.
func (s *TaskGenService) GenerateRange(ctx context.Context, from, to time.Time, dryRun bool) (BatchSummary, error) {
	templates, err := s.tasks.ListActiveTemplates(ctx)
	if err != nil {
		return BatchSummary{}, err
	}

	var summary BatchSummary
	for i := range templates {
		tpl := &templates[i]
		for _, key := range period.Range(tpl.Frequency, from, to) {
			itemKey := fmt.Sprintf("%s/%s", tpl.Name, key)

			if dryRun {
				existing, err := s.tasks.GetInstanceByTemplateAndPeriod(ctx, tpl.ID, key.String())
				if err != nil {
					summary.addFailed(itemKey, err)
					continue
				}
				if existing != nil {
					summary.addSkipped(itemKey, skipAlreadyExists)
				} else {
					summary.addCreated(itemKey)
				}
				continue
			}

			res, err := s.GenerateForPeriod(ctx, tpl, key.String(), false)
			switch {
			case err != nil:
				s.log.Error().Err(err).Str("template", tpl.Name).Str("period", key.String()).
					Msg("task generation failed")
				summary.addFailed(itemKey, err)
			case res.Created:
				summary.addCreated(itemKey)
			default:
				summary.addSkipped(itemKey, res.SkipReason)
			}
		}
	}
	return summary, nil
}

// Claim moves a pending one-time task (or a scheduled one) to in_progress on
// behalf of the claimer, adding them to the current assignee set if needed.
func (s *TaskGenService) Claim(ctx context.Context, instanceID, personID string) error {
	inst, err := s.mustGetInstance(ctx, instanceID)
	if err != nil {
		return err
	}

	if !inst.Status.CanTransitionTo(constants.TaskInProgress) {
		return errs.Validation(fmt.Sprintf("cannot claim a task in status %q", inst.Status))
	}

	ok, err := s.tasks.UpdateInstanceStatus(ctx, inst.ID, inst.Status, constants.TaskInProgress, nil)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Conflict("task status changed concurrently")
	}

	assignees, err := s.tasks.ListCurrentAssignees(ctx, inst.ID)
	if err != nil {
		return err
	}
	for _, a := range assignees {
		if a.PersonID == personID {
			return nil
		}
	}
	return s.tasks.AddAssignee(ctx, &model.InstanceAssignee{
		InstanceID: inst.ID,
		PersonID:   personID,
		Current:    true,
	})
}

// Complete finishes an instance. The completer must be a current assignee.
// Overdue instances remain completable.
func (s *TaskGenService) Complete(ctx context.Context, instanceID, personID string) error {
	inst, err := s.mustGetInstance(ctx, instanceID)
	if err != nil {
		return err
	}

	if !inst.Status.CanTransitionTo(constants.TaskCompleted) {
		return errs.Validation(fmt.Sprintf("cannot complete a task in status %q", inst.Status))
	}

	assignees, err := s.tasks.ListCurrentAssignees(ctx, inst.ID)
	if err != nil {
		return err
	}
	isAssignee := false
	personIDs := make([]string, 0, len(assignees))
	for _, a := range assignees {
		personIDs = append(personIDs, a.PersonID)
		if a.PersonID == personID {
			isAssignee = true
		}
	}
	if !isAssignee {
		return errs.Validation("only a current assignee can complete the task")
	}

	now := s.now()
	ok, err := s.tasks.UpdateInstanceStatus(ctx, inst.ID, inst.Status, constants.TaskCompleted, map[string]interface{}{
		"completed_by_id": personID,
		"completed_at":    &now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return errs.Conflict("task status changed concurrently")
	}

	queue, err := s.rotation.EnsureQueue(ctx, inst.TemplateID)
	if err != nil {
		return err
	}
	return s.rotation.RecordCompletion(ctx, queue, personIDs)
}

func (s *TaskGenService) Cancel(ctx context.Context, instanceID, by string) error {
	inst, err := s.mustGetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if !inst.Status.CanTransitionTo(constants.TaskCancelled) {
		return errs.Validation(fmt.Sprintf("cannot cancel a task in status %q", inst.Status))
	}

	ok, err := s.tasks.UpdateInstanceStatus(ctx, inst.ID, inst.Status, constants.TaskCancelled, nil)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Conflict("task status changed concurrently")
	}
	return s.audit(ctx, "task_instance", inst.ID, string(inst.Status), string(constants.TaskCancelled), by)
}

// RequestSwap opens a swap request for one of the requester's current slots.
func (s *TaskGenService) RequestSwap(ctx context.Context, instanceID, requesterID, targetID, reason string) (*model.TaskSwapRequest, error) {
	inst, err := s.mustGetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	assignees, err := s.tasks.ListCurrentAssignees(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	isAssignee := false
	for _, a := range assignees {
		if a.PersonID == requesterID {
			isAssignee = true
			break
		}
	}
	if !isAssignee {
		return nil, errs.Validation("only a current assignee can request a swap")
	}

	swap := &model.TaskSwapRequest{
		InstanceID:     instanceID,
		RequesterID:    requesterID,
		TargetPersonID: targetID,
		Reason:         reason,
		Status:         constants.SwapPending,
	}
	if err := s.tasks.CreateSwap(ctx, swap); err != nil {
		return nil, err
	}
	return swap, nil
}

// ApproveSwap is only legal while the request is pending. Approval removes the
// requester from the current assignees and adds the target if one was named;
// otherwise the slot is left open for claiming.
func (s *TaskGenService) ApproveSwap(ctx context.Context, swapID, approverID string) error {
	swap, err := s.mustGetSwap(ctx, swapID)
	if err != nil {
		return err
	}
	if !swap.Status.CanTransitionTo(constants.SwapApproved) {
		return errs.Validation(fmt.Sprintf("cannot approve a swap request in status %q", swap.Status))
	}

	ok, err := s.tasks.UpdateSwapStatus(ctx, swap.ID, constants.SwapPending, constants.SwapApproved, approverID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Validation("swap request is no longer pending")
	}

	if err := s.tasks.RemoveCurrentAssignee(ctx, swap.InstanceID, swap.RequesterID); err != nil {
		return err
	}
	if swap.TargetPersonID != "" {
		if err := s.tasks.AddAssignee(ctx, &model.InstanceAssignee{
			InstanceID: swap.InstanceID,
			PersonID:   swap.TargetPersonID,
			Current:    true,
		}); err != nil {
			return err
		}
	}
	return s.audit(ctx, "swap_request", swap.ID, string(constants.SwapPending), string(constants.SwapApproved), approverID)
}

func (s *TaskGenService) RejectSwap(ctx context.Context, swapID, approverID string) error {
	return s.resolveSwap(ctx, swapID, approverID, constants.SwapRejected)
}

func (s *TaskGenService) CancelSwap(ctx context.Context, swapID, by string) error {
	return s.resolveSwap(ctx, swapID, by, constants.SwapCancelled)
}

func (s *TaskGenService) resolveSwap(ctx context.Context, swapID, by string, to constants.SwapStatus) error {
	swap, err := s.mustGetSwap(ctx, swapID)
	if err != nil {
		return err
	}
	if !swap.Status.CanTransitionTo(to) {
		return errs.Validation(fmt.Sprintf("cannot move a swap request from %q to %q", swap.Status, to))
	}

	ok, err := s.tasks.UpdateSwapStatus(ctx, swap.ID, constants.SwapPending, to, by)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Validation("swap request is no longer pending")
	}
	return s.audit(ctx, "swap_request", swap.ID, string(constants.SwapPending), string(to), by)
}

// ExpireSwapRequests expires pending requests older than the window. Failures
// on single records are logged and skipped; the sweep finishes regardless.
func (s *TaskGenService) ExpireSwapRequests(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	swaps, err := s.tasks.ListPendingSwapsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, swap := range swaps {
		ok, err := s.tasks.UpdateSwapStatus(ctx, swap.ID, constants.SwapPending, constants.SwapExpired, "sweep")
		if err != nil {
			s.log.Error().Err(err).Str("swap_id", swap.ID).Msg("swap expiry failed")
			continue
		}
		if !ok {
			continue
		}
		expired++
		if err := s.audit(ctx, "swap_request", swap.ID, string(constants.SwapPending), string(constants.SwapExpired), "sweep"); err != nil {
			s.log.Error().Err(err).Str("swap_id", swap.ID).Msg("swap expiry audit failed")
		}
	}
	return expired, nil
}

// MarkOverdue flips instances whose window has closed to overdue and notifies
// the current assignees. Best-effort per record.
func (s *TaskGenService) MarkOverdue(ctx context.Context) (int, error) {
	today := s.now().Truncate(24 * time.Hour)
	candidates, err := s.tasks.ListOverdueCandidates(ctx, today)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, inst := range candidates {
		ok, err := s.tasks.UpdateInstanceStatus(ctx, inst.ID, inst.Status, constants.TaskOverdue, nil)
		if err != nil {
			s.log.Error().Err(err).Str("instance_id", inst.ID).Msg("overdue marking failed")
			continue
		}
		if !ok {
			continue
		}
		marked++

		assignees, err := s.tasks.ListCurrentAssignees(ctx, inst.ID)
		if err != nil {
			continue
		}
		recipients := s.loadPersons(ctx, assigneePersonIDs(assignees))
		notify.Fire(ctx, s.dispatcher, s.notifyTimeout, s.log, recipients, notify.TemplateTaskOverdue, map[string]interface{}{
			"instance_id": inst.ID,
			"period":      inst.ScheduledPeriod,
			"due":         inst.ExecutionEndDate.Format("2006-01-02"),
		})
	}
	return marked, nil
}

func (s *TaskGenService) CurrentAssignees(ctx context.Context, instanceID string) ([]model.InstanceAssignee, error) {
	return s.tasks.ListCurrentAssignees(ctx, instanceID)
}

func (s *TaskGenService) mustGetInstance(ctx context.Context, id string) (*model.PeriodicTaskInstance, error) {
	inst, err := s.tasks.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, errs.NotFound("task instance not found")
	}
	return inst, nil
}

func (s *TaskGenService) mustGetSwap(ctx context.Context, id string) (*model.TaskSwapRequest, error) {
	swap, err := s.tasks.GetSwap(ctx, id)
	if err != nil {
		return nil, err
	}
	if swap == nil {
		return nil, errs.NotFound("swap request not found")
	}
	return swap, nil
}

func (s *TaskGenService) notifyAssignees(ctx context.Context, inst *model.PeriodicTaskInstance, selected []model.QueueMember, tpl *model.TaskTemplate) {
	ids := make([]string, 0, len(selected))
	for _, m := range selected {
		ids = append(ids, m.PersonID)
	}
	recipients := s.loadPersons(ctx, ids)
	notify.Fire(ctx, s.dispatcher, s.notifyTimeout, s.log, recipients, notify.TemplateTaskAssigned, map[string]interface{}{
		"task":   tpl.Name,
		"period": inst.ScheduledPeriod,
		"window": fmt.Sprintf("%s .. %s", inst.Metadata.WindowStart, inst.Metadata.WindowEnd),
	})
}

func (s *TaskGenService) loadPersons(ctx context.Context, ids []string) []model.Person {
	people := make([]model.Person, 0, len(ids))
	for _, id := range ids {
		p, err := s.persons.Get(ctx, id)
		if err != nil || p == nil {
			continue
		}
		people = append(people, *p)
	}
	return people
}

func (s *TaskGenService) audit(ctx context.Context, entityType, entityID, from, to, by string) error {
	return s.tasks.CreateAudit(ctx, &model.StatusAudit{
		EntityType: entityType,
		EntityID:   entityID,
		FromStatus: from,
		ToStatus:   to,
		ChangedBy:  by,
	})
}

func assigneePersonIDs(assignees []model.InstanceAssignee) []string {
	ids := make([]string, 0, len(assignees))
	for _, a := range assignees {
		ids = append(ids, a.PersonID)
	}
	return ids
}

func clampHeadcount(tpl *model.TaskTemplate) int {
	count := tpl.DefaultPeople
	if count < tpl.MinPeople {
		count = tpl.MinPeople
	}
	if tpl.MaxPeople > 0 && count > tpl.MaxPeople {
		count = tpl.MaxPeople
	}
	if count < 1 {
		count = 1
	}
	return count
}

func validateTemplatePeriod(tpl *model.TaskTemplate, key period.Key) error {
	if !tpl.IsActive {
		return errs.Validation("template is not active")
	}
	switch tpl.Frequency {
	case constants.FrequencyWeekly:
		if !key.IsWeekly() {
			return errs.Validation("weekly template requires a weekly period key")
		}
	case constants.FrequencyMonthly:
		if key.IsWeekly() {
			return errs.Validation("monthly template requires a monthly period key")
		}
	default:
		return errs.Validation(fmt.Sprintf("unknown template frequency %q", tpl.Frequency))
	}
	return nil
}

func executionWindow(tpl *model.TaskTemplate, key period.Key) (time.Time, time.Time, error) {
	switch tpl.WindowPolicy {
	case constants.WindowFixed:
		return period.FixedWindow(key, tpl.FixedStartDay, tpl.FixedEndDay)
	case constants.WindowFlexible:
		return period.FlexibleWindow(key, tpl.FlexAnchor, tpl.FlexDurationDays)
	default:
		return time.Time{}, time.Time{}, errs.Validation(fmt.Sprintf("unknown window policy %q", tpl.WindowPolicy))
	}
}
