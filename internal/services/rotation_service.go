package services

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	errs "lab-scheduler.com/lab-scheduler/internal/errors"
	model "lab-scheduler.com/lab-scheduler/internal/models"
	"lab-scheduler.com/lab-scheduler/internal/period"
	repository "lab-scheduler.com/lab-scheduler/internal/repositories"
)

// Priority score weights. The gap term dominates so that time since the last
// assignment is the primary fairness signal; completion rate and workload only
// nudge the ordering.
const (
	gapWeight        = 10.0
	completionWeight = 5.0
	workloadWeight   = 20.0

	// Members that have never been assigned sort ahead of everyone.
	neverAssignedGapMonths = 1200
)

// RotationService is the fair-rotation assignment engine for task templates:
// it scores queue members and picks the next assignees.
type RotationService struct {
	repo *repository.RotationRepository
	log  zerolog.Logger
}

func NewRotationService(repo *repository.RotationRepository, log zerolog.Logger) *RotationService {
	return &RotationService{repo: repo, log: log}
}

// EnsureQueue returns the template's rotation queue, creating it with default
// parameters on first use.
func (s *RotationService) EnsureQueue(ctx context.Context, templateID string) (*model.TaskRotationQueue, error) {
	queue, err := s.repo.GetQueueByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if queue != nil {
		return queue, nil
	}

	queue = &model.TaskRotationQueue{
		TemplateID:       templateID,
		MinGapMonths:     1,
		ConsiderWorkload: true,
		RandomFactor:     0.1,
	}
	if err := s.repo.CreateQueue(ctx, queue); err != nil {
		return nil, err
	}
	return queue, nil
}

func (s *RotationService) AddMember(ctx context.Context, queueID, personID string) (*model.QueueMember, error) {
	existing, err := s.repo.GetMember(ctx, queueID, personID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.Conflict("person is already a member of this rotation queue")
	}

	member := &model.QueueMember{
		QueueID:        queueID,
		PersonID:       personID,
		CompletionRate: 1,
		IsActive:       true,
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

func (s *RotationService) ListMembers(ctx context.Context, queueID string) ([]model.QueueMember, error) {
	return s.repo.ListMembers(ctx, queueID)
}

// DeactivateMember takes a person out of future selections without touching
// their history.
func (s *RotationService) DeactivateMember(ctx context.Context, queueID, personID string) error {
	member, err := s.repo.GetMember(ctx, queueID, personID)
	if err != nil {
		return err
	}
	if member == nil {
		return errs.NotFound("queue member not found")
	}
	return s.repo.DeactivateMember(ctx, queueID, personID)
}

type scoredMember struct {
	member model.QueueMember
	score  float64
	gap    int
}

// SelectAssignees picks the top `count` members of the queue for the target
// period. Selection is pure: no bookkeeping is written until
// RecordAssignments, so a failed instance insert leaves the queue untouched.
//
// Members inside the minimum gap are excluded unless that would leave the
// queue short, in which case the constraint is relaxed in ascending order of
// violation (the member closest to satisfying the gap is admitted first).
func (s *RotationService) SelectAssignees(ctx context.Context, queue *model.TaskRotationQueue, periodKey string, count int) ([]model.QueueMember, error) {
	if count <= 0 {
		return nil, errs.Validation("assignee count must be positive")
	}

	target, err := period.Parse(periodKey)
	if err != nil {
		return nil, err
	}

	members, err := s.repo.ListActiveMembers(ctx, queue.ID)
	if err != nil {
		return nil, err
	}
	if len(members) < count {
		return nil, errs.Assignment(fmt.Sprintf(
			"rotation queue has %d active members, need %d", len(members), count))
	}

	var eligible, excluded []scoredMember
	for _, m := range members {
		gap := gapMonths(m, target)
		sm := scoredMember{
			member: m,
			gap:    gap,
			score:  baseScore(queue, m, gap) + rand.Float64()*queue.RandomFactor,
		}
		if gap < queue.MinGapMonths {
			excluded = append(excluded, sm)
		} else {
			eligible = append(eligible, sm)
		}
	}

	// Graceful degradation: admit gap violators, smallest violation first,
	// until the headcount is reachable.
	if len(eligible) < count {
		sort.Slice(excluded, func(i, j int) bool {
			return excluded[i].gap > excluded[j].gap
		})
		needed := count - len(eligible)
		s.log.Warn().
			Str("queue_id", queue.ID).
			Str("period", periodKey).
			Int("relaxed", needed).
			Msg("relaxing min-gap constraint to fill headcount")
		eligible = append(eligible, excluded[:needed]...)
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.member.TotalAssignments != b.member.TotalAssignments {
			return a.member.TotalAssignments < b.member.TotalAssignments
		}
		return a.member.PersonID < b.member.PersonID
	})

	selected := make([]model.QueueMember, 0, count)
	for _, sm := range eligible[:count] {
		selected = append(selected, sm.member)
	}
	return selected, nil
}

// RecordAssignments persists the bookkeeping for a committed selection and
// refreshes the cached priority scores of the whole queue.
func (s *RotationService) RecordAssignments(ctx context.Context, queue *model.TaskRotationQueue, selected []model.QueueMember, periodKey string) error {
	for i := range selected {
		selected[i].TotalAssignments++
		selected[i].LastAssignedPeriod = periodKey
		if err := s.repo.UpdateMember(ctx, &selected[i]); err != nil {
			return err
		}
	}
	return s.RecalculateScores(ctx, queue, periodKey)
}

// RecordCompletion updates completion-rate bookkeeping for the people that
// finished an instance of this queue's template.
func (s *RotationService) RecordCompletion(ctx context.Context, queue *model.TaskRotationQueue, personIDs []string) error {
	for _, personID := range personIDs {
		member, err := s.repo.GetMember(ctx, queue.ID, personID)
		if err != nil {
			return err
		}
		if member == nil {
			continue
		}
		member.CompletedCount++
		if member.TotalAssignments > 0 {
			member.CompletionRate = float64(member.CompletedCount) / float64(member.TotalAssignments)
			if member.CompletionRate > 1 {
				member.CompletionRate = 1
			}
		}
		if err := s.repo.UpdateMember(ctx, member); err != nil {
			return err
		}
	}
	return nil
}

// RecalculateScores refreshes every member's cached priority score relative to
// the given period. O(members), run after each selection.
func (s *RotationService) RecalculateScores(ctx context.Context, queue *model.TaskRotationQueue, periodKey string) error {
	target, err := period.Parse(periodKey)
	if err != nil {
		return err
	}

	members, err := s.repo.ListActiveMembers(ctx, queue.ID)
	if err != nil {
		return err
	}
	for i := range members {
		members[i].PriorityScore = baseScore(queue, members[i], gapMonths(members[i], target))
		if err := s.repo.UpdateMember(ctx, &members[i]); err != nil {
			return err
		}
	}
	return nil
}

func gapMonths(m model.QueueMember, target period.Key) int {
	if m.LastAssignedPeriod == "" {
		return neverAssignedGapMonths
	}
	last, err := period.Parse(m.LastAssignedPeriod)
	if err != nil {
		// A corrupt stored period must not break selection; treat as never.
		return neverAssignedGapMonths
	}
	gap := period.MonthsBetween(last, target)
	if gap < 0 {
		gap = 0
	}
	return gap
}

// baseScore is the deterministic part of the priority score: long gaps score
// highest, reliable completers get a small boost, and a light workload adds a
// diminishing bonus.
func baseScore(queue *model.TaskRotationQueue, m model.QueueMember, gap int) float64 {
	score := float64(gap) * gapWeight
	score += m.CompletionRate * completionWeight
	if queue.ConsiderWorkload {
		score += workloadWeight / float64(1+m.TotalAssignments)
	}
	return score
}
