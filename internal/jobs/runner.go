package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"lab-scheduler.com/lab-scheduler/internal/services"
)

// Job names, used as lock keys and as the argument to the `jobs run` command.
const (
	JobGenerateTasks    = "generate_tasks"
	JobGenerateMeetings = "generate_meetings"
	JobSweepExpirations = "sweep_expirations"
	JobSendReminders    = "send_reminders"
)

// Schedule holds the cron specs and tuning for the background jobs.
type Schedule struct {
	TaskGenerationCron    string
	MeetingGenerationCron string
	SweepCron             string
	ReminderCron          string

	GenerationHorizonDays int
	SwapExpiry            time.Duration
	LockTTL               time.Duration
}

// Runner owns the cron loop. Every tick takes the per-job lock first, so
// multiple replicas sharing a redis instance never run the same job
// concurrently; generation itself is idempotent either way.
type Runner struct {
	taskGen   *services.TaskGenService
	meetings  *services.MeetingService
	equipment *services.EquipmentService
	locker    Locker
	schedule  Schedule
	log       zerolog.Logger
	cron      *cron.Cron
}

func NewRunner(
	taskGen *services.TaskGenService,
	meetings *services.MeetingService,
	equipment *services.EquipmentService,
	locker Locker,
	schedule Schedule,
	log zerolog.Logger,
) *Runner {
	return &Runner{
		taskGen:   taskGen,
		meetings:  meetings,
		equipment: equipment,
		locker:    locker,
		schedule:  schedule,
		log:       log,
		cron:      cron.New(),
	}
}

// Start registers all jobs and launches the cron loop.
func (r *Runner) Start(ctx context.Context) error {
	entries := []struct {
		spec string
		name string
	}{
		{r.schedule.TaskGenerationCron, JobGenerateTasks},
		{r.schedule.MeetingGenerationCron, JobGenerateMeetings},
		{r.schedule.SweepCron, JobSweepExpirations},
		{r.schedule.ReminderCron, JobSendReminders},
	}

	for _, e := range entries {
		name := e.name
		if _, err := r.cron.AddFunc(e.spec, func() {
			if err := r.Run(ctx, name); err != nil {
				r.log.Error().Err(err).Str("job", name).Msg("scheduled job failed")
			}
		}); err != nil {
			return fmt.Errorf("register job %s: %w", name, err)
		}
	}

	r.cron.Start()
	r.log.Info().Msg("job runner started")
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs to return.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// Run executes one named job under its lock. A held lock is not an error: the
// run is simply skipped.
func (r *Runner) Run(ctx context.Context, name string) error {
	ok, err := r.locker.TryLock(ctx, name, r.schedule.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire lock for %s: %w", name, err)
	}
	if !ok {
		r.log.Info().Str("job", name).Msg("job already running elsewhere, skipping")
		return nil
	}
	defer func() {
		if err := r.locker.Unlock(ctx, name); err != nil {
			r.log.Error().Err(err).Str("job", name).Msg("lock release failed")
		}
	}()

	started := time.Now()
	err = r.run(ctx, name)
	r.log.Info().
		Str("job", name).
		Dur("elapsed", time.Since(started)).
		Err(err).
		Msg("job finished")
	return err
}

func (r *Runner) run(ctx context.Context, name string) error {
	switch name {
	case JobGenerateTasks:
		from := time.Now().UTC()
		to := from.AddDate(0, 0, r.schedule.GenerationHorizonDays)
		summary, err := r.taskGen.GenerateRange(ctx, from, to, false)
		if err != nil {
			return err
		}
		r.log.Info().
			Int("created", summary.Created).
			Int("skipped", summary.Skipped).
			Int("failed", summary.Failed).
			Msg("task generation summary")
		return nil

	case JobGenerateMeetings:
		from := time.Now().UTC()
		to := from.AddDate(0, 0, r.schedule.GenerationHorizonDays)
		summary, err := r.meetings.GenerateMeetings(ctx, from, to, services.DefaultMeetingTypes(), true, false)
		if err != nil {
			return err
		}
		r.log.Info().
			Int("created", summary.Created).
			Int("skipped", summary.Skipped).
			Int("failed", summary.Failed).
			Msg("meeting generation summary")
		return nil

	case JobSweepExpirations:
		swaps, err := r.taskGen.ExpireSwapRequests(ctx, r.schedule.SwapExpiry)
		if err != nil {
			return err
		}
		overdue, err := r.taskGen.MarkOverdue(ctx)
		if err != nil {
			return err
		}
		entries, err := r.equipment.SweepExpiredEntries(ctx)
		if err != nil {
			return err
		}
		r.log.Info().
			Int("expired_swaps", swaps).
			Int("overdue_tasks", overdue).
			Int("expired_entries", entries).
			Msg("expiration sweep summary")
		return nil

	case JobSendReminders:
		jc, err := r.meetings.SendJournalClubReminders(ctx, r.schedule.GenerationHorizonDays)
		if err != nil {
			return err
		}
		upcoming, err := r.meetings.SendUpcomingReminders(ctx)
		if err != nil {
			return err
		}
		r.log.Info().
			Int("journal_club", jc).
			Int("upcoming", upcoming).
			Msg("reminder summary")
		return nil

	default:
		return fmt.Errorf("unknown job %q", name)
	}
}
