package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"lab-scheduler.com/lab-scheduler/internal/constants"
	errs "lab-scheduler.com/lab-scheduler/internal/errors"
	model "lab-scheduler.com/lab-scheduler/internal/models"
	"lab-scheduler.com/lab-scheduler/internal/notify"
	repository "lab-scheduler.com/lab-scheduler/internal/repositories"
)

// MeetingService generates weekly meeting occurrences, rotates presenters and
// computes journal-club submission urgency.
type MeetingService struct {
	meetings      *repository.MeetingRepository
	persons       *repository.PersonRepository
	dispatcher    notify.Dispatcher
	notifyTimeout time.Duration
	log           zerolog.Logger
	now           func() time.Time
}

func NewMeetingService(
	meetings *repository.MeetingRepository,
	persons *repository.PersonRepository,
	dispatcher notify.Dispatcher,
	notifyTimeout time.Duration,
	log zerolog.Logger,
) *MeetingService {
	return &MeetingService{
		meetings:      meetings,
		persons:       persons,
		dispatcher:    dispatcher,
		notifyTimeout: notifyTimeout,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// DefaultMeetingTypes is the set generated by the scheduled job.
func DefaultMeetingTypes() []constants.MeetingType {
	return []constants.MeetingType{
		constants.MeetingJournalClub,
		constants.MeetingProgress,
	}
}

// GenerateMeetings creates one instance per requested type for every
// configured weekday in [start, end], skipping holidays and dates that already
// have an instance of that type. The (date, meeting_type) unique index makes
// concurrent runs safe.
func (s *MeetingService) GenerateMeetings(ctx context.Context, start, end time.Time, types []constants.MeetingType, autoAssign, dryRun bool) (BatchSummary, error) {
	cfg, err := s.meetings.GetConfiguration(ctx)
	if err != nil {
		return BatchSummary{}, err
	}
	if cfg == nil {
		return BatchSummary{}, errs.NotFound("no active meeting configuration")
	}
	if len(types) == 0 {
		return BatchSummary{}, errs.Validation("at least one meeting type is required")
	}

	var summary BatchSummary
	for date := firstWeekday(start, time.Weekday(cfg.Weekday)); !date.After(end); date = date.AddDate(0, 0, 7) {
		holiday, err := s.meetings.IsHoliday(ctx, date)
		if err != nil {
			summary.addFailed(date.Format("2006-01-02"), err)
			continue
		}

		for _, t := range types {
			itemKey := fmt.Sprintf("%s/%s", date.Format("2006-01-02"), t)

			if holiday {
				summary.addSkipped(itemKey, "holiday")
				continue
			}

			if dryRun {
				existing, err := s.meetings.GetInstanceByDateAndType(ctx, date, t)
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

			inst := &model.MeetingInstance{
				Date:        date,
				MeetingType: t,
				StartTime:   cfg.StartTime,
				Minutes:     cfg.DurationMinutes(t),
				Status:      constants.MeetingScheduled,
			}
			if err := s.meetings.CreateInstance(ctx, inst); err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					summary.addSkipped(itemKey, skipAlreadyExists)
					continue
				}
				summary.addFailed(itemKey, err)
				continue
			}
			summary.addCreated(itemKey)

			if autoAssign {
				if err := s.assignPresenter(ctx, inst); err != nil {
					s.log.Error().Err(err).Str("meeting_id", inst.ID).Msg("presenter assignment failed")
				}
			}
		}
	}
	return summary, nil
}

func (s *MeetingService) assignPresenter(ctx context.Context, inst *model.MeetingInstance) error {
	next, err := s.NextPresenter(ctx, inst.MeetingType)
	if err != nil {
		return err
	}
	if next == nil {
		// Empty rotation: the meeting stays unassigned rather than failing.
		return nil
	}

	presenter := &model.Presenter{
		MeetingID: inst.ID,
		PersonID:  next.PersonID,
		Status:    constants.PresenterAssigned,
	}
	if err := s.meetings.CreatePresenter(ctx, presenter); err != nil {
		return err
	}
	return s.AdvancePresenter(ctx, inst.MeetingType)
}

// EnsureRotation returns the per-type rotation, creating it on first use.
func (s *MeetingService) EnsureRotation(ctx context.Context, t constants.MeetingType) (*model.MeetingPresenterRotation, error) {
	rotation, err := s.meetings.GetRotation(ctx, t)
	if err != nil {
		return nil, err
	}
	if rotation != nil {
		return rotation, nil
	}

	rotation = &model.MeetingPresenterRotation{
		MeetingType:           t,
		NextPresenterIndexRaw: "0",
	}
	if err := s.meetings.CreateRotation(ctx, rotation); err != nil {
		return nil, err
	}
	return rotation, nil
}

func (s *MeetingService) AddRotationMember(ctx context.Context, t constants.MeetingType, personID string) error {
	rotation, err := s.EnsureRotation(ctx, t)
	if err != nil {
		return err
	}
	members, err := s.meetings.ListRotationMembers(ctx, rotation.ID)
	if err != nil {
		return err
	}
	return s.meetings.AddRotationMember(ctx, &model.RotationMember{
		RotationID: rotation.ID,
		PersonID:   personID,
		Position:   len(members),
	})
}

// NextPresenter returns the member the rotation currently points at, or nil
// when the rotation is empty. The persisted index is never trusted: it is
// coerced to an integer and wrapped into [0, len) before use.
func (s *MeetingService) NextPresenter(ctx context.Context, t constants.MeetingType) (*model.RotationMember, error) {
	rotation, err := s.EnsureRotation(ctx, t)
	if err != nil {
		return nil, err
	}
	members, err := s.meetings.ListRotationMembers(ctx, rotation.ID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	idx := coerceRotationIndex(rotation.NextPresenterIndexRaw, len(members))
	return &members[idx], nil
}

// AdvancePresenter moves the pointer one step, modulo the list length, using
// the same defensive coercion.
func (s *MeetingService) AdvancePresenter(ctx context.Context, t constants.MeetingType) error {
	rotation, err := s.EnsureRotation(ctx, t)
	if err != nil {
		return err
	}
	members, err := s.meetings.ListRotationMembers(ctx, rotation.ID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	idx := coerceRotationIndex(rotation.NextPresenterIndexRaw, len(members))
	next := (idx + 1) % len(members)
	return s.meetings.UpdateRotationIndex(ctx, rotation.ID, strconv.Itoa(next))
}

// coerceRotationIndex turns whatever was persisted into a usable index. The
// stored value has been observed as floats, negatives and garbage; anything
// unparsable becomes 0 and out-of-range values are clamped to the nearest end
// of [0, n). Advancement wraps; reads only clamp.
func coerceRotationIndex(raw string, n int) int {
	if n <= 0 {
		return 0
	}

	raw = strings.TrimSpace(raw)
	idx := 0
	if v, err := strconv.Atoi(raw); err == nil {
		idx = v
	} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
		idx = int(f)
	}

	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

// Deadlines returns the journal-club submission and final deadlines for a
// meeting date.
func Deadlines(cfg *model.MeetingConfiguration, meetingDate time.Time) (submission, final time.Time) {
	submission = meetingDate.AddDate(0, 0, -cfg.SubmissionOffsetDays)
	final = meetingDate.AddDate(0, 0, -cfg.FinalOffsetDays)
	return submission, final
}

// ClassifyUrgency buckets a journal-club presenter's submission state for the
// notification cadence.
func ClassifyUrgency(cfg *model.MeetingConfiguration, meetingDate time.Time, materialsSubmittedAt *time.Time, today time.Time) constants.Urgency {
	if materialsSubmittedAt != nil {
		return constants.UrgencySubmitted
	}

	submission, final := Deadlines(cfg, meetingDate)
	today = truncateDay(today)

	switch {
	case today.After(final):
		return constants.UrgencyOverdue
	case daysBetween(today, final) <= 1:
		return constants.UrgencyCritical
	case daysBetween(today, final) <= 3:
		return constants.UrgencyUrgent
	case !today.Before(submission):
		return constants.UrgencyApproachingFinal
	case daysBetween(today, submission) <= 3:
		return constants.UrgencyApproaching
	default:
		return constants.UrgencyPending
	}
}

// SubmitMaterials records a journal-club materials submission.
func (s *MeetingService) SubmitMaterials(ctx context.Context, presenterID string) error {
	return s.meetings.SetMaterialsSubmitted(ctx, presenterID, s.now())
}

// SendJournalClubReminders classifies every upcoming journal-club presenter
// and dispatches one reminder per non-quiet tier. Returns the number sent.
func (s *MeetingService) SendJournalClubReminders(ctx context.Context, horizonDays int) (int, error) {
	cfg, err := s.meetings.GetConfiguration(ctx)
	if err != nil {
		return 0, err
	}
	if cfg == nil {
		return 0, errs.NotFound("no active meeting configuration")
	}

	today := truncateDay(s.now())
	instances, err := s.meetings.ListInstancesBetween(ctx, today, today.AddDate(0, 0, horizonDays))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, inst := range instances {
		if inst.MeetingType != constants.MeetingJournalClub {
			continue
		}
		if inst.Status != constants.MeetingScheduled && inst.Status != constants.MeetingConfirmed {
			continue
		}

		presenters, err := s.meetings.ListPresenters(ctx, inst.ID)
		if err != nil {
			s.log.Error().Err(err).Str("meeting_id", inst.ID).Msg("presenter listing failed")
			continue
		}
		for _, p := range presenters {
			urgency := ClassifyUrgency(cfg, inst.Date, p.MaterialsSubmittedAt, today)
			if urgency == constants.UrgencySubmitted || urgency == constants.UrgencyPending {
				continue
			}
			recipients := s.loadPersons(ctx, []string{p.PersonID})
			notify.Fire(ctx, s.dispatcher, s.notifyTimeout, s.log, recipients, notify.TemplateJournalClubReminder, map[string]interface{}{
				"meeting_date": inst.Date.Format("2006-01-02"),
				"urgency":      string(urgency),
			})
			sent++
		}
	}
	return sent, nil
}

// SendUpcomingReminders notifies presenters of meetings happening tomorrow.
func (s *MeetingService) SendUpcomingReminders(ctx context.Context) (int, error) {
	tomorrow := truncateDay(s.now()).AddDate(0, 0, 1)
	instances, err := s.meetings.ListInstancesBetween(ctx, tomorrow, tomorrow)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, inst := range instances {
		if inst.Status == constants.MeetingCancelled {
			continue
		}
		presenters, err := s.meetings.ListPresenters(ctx, inst.ID)
		if err != nil {
			continue
		}
		for _, p := range presenters {
			recipients := s.loadPersons(ctx, []string{p.PersonID})
			notify.Fire(ctx, s.dispatcher, s.notifyTimeout, s.log, recipients, notify.TemplateMeetingReminder24h, map[string]interface{}{
				"meeting_date": inst.Date.Format("2006-01-02"),
				"meeting_type": string(inst.MeetingType),
				"start_time":   inst.StartTime,
			})
			sent++
		}
	}
	return sent, nil
}

// ConfirmMeeting, CompleteMeeting and CancelMeeting drive the instance status
// machine; transitions outside the table fail with a validation error.
func (s *MeetingService) ConfirmMeeting(ctx context.Context, meetingID string) error {
	return s.transitionMeeting(ctx, meetingID, constants.MeetingConfirmed)
}

func (s *MeetingService) CompleteMeeting(ctx context.Context, meetingID string) error {
	return s.transitionMeeting(ctx, meetingID, constants.MeetingCompleted)
}

func (s *MeetingService) CancelMeeting(ctx context.Context, meetingID string) error {
	return s.transitionMeeting(ctx, meetingID, constants.MeetingCancelled)
}

func (s *MeetingService) transitionMeeting(ctx context.Context, meetingID string, to constants.MeetingStatus) error {
	inst, err := s.meetings.GetInstance(ctx, meetingID)
	if err != nil {
		return err
	}
	if inst == nil {
		return errs.NotFound("meeting not found")
	}
	if !inst.Status.CanTransitionTo(to) {
		return errs.Validation(fmt.Sprintf("cannot move a meeting from %q to %q", inst.Status, to))
	}

	ok, err := s.meetings.UpdateInstanceStatus(ctx, meetingID, inst.Status, to)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Conflict("meeting status changed concurrently")
	}
	return nil
}

// CompletedPresentations counts a person's finished presentations. Only
// status=completed slots count; see DESIGN.md.
func (s *MeetingService) CompletedPresentations(ctx context.Context, personID string) (int64, error) {
	return s.meetings.CountCompletedPresentations(ctx, personID)
}

func (s *MeetingService) loadPersons(ctx context.Context, ids []string) []model.Person {
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

func firstWeekday(from time.Time, weekday time.Weekday) time.Time {
	date := truncateDay(from)
	for date.Weekday() != weekday {
		date = date.AddDate(0, 0, 1)
	}
	return date
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(truncateDay(to).Sub(truncateDay(from)).Hours() / 24)
}
