// Package notify is the outbound notification boundary. The scheduling engine
// only ever calls Dispatcher.Send; rendering, delivery and retries live on the
// other side of the interface.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	model "lab-scheduler.com/lab-scheduler/internal/models"
)

// Template keys passed to the dispatcher. The dispatcher owns the content.
const (
	TemplateJournalClubReminder = "journal_club_reminder"
	TemplateMeetingReminder24h  = "meeting_reminder_24h"
	TemplateEarlyFinish         = "equipment_early_finish"
	TemplateQueueExpired        = "waiting_queue_expired"
	TemplateTaskOverdue         = "task_overdue"
	TemplateTaskAssigned        = "task_assigned"
)

type Dispatcher interface {
	Send(ctx context.Context, recipients []model.Person, templateKey string, payload map[string]interface{}) error
}

// Fire delivers a notification without letting it affect the caller: it bounds
// the send with a timeout and swallows every error. State transitions must
// never roll back because a notification failed.
func Fire(ctx context.Context, d Dispatcher, timeout time.Duration, logger zerolog.Logger,
	recipients []model.Person, templateKey string, payload map[string]interface{}) {

	if d == nil || len(recipients) == 0 {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := d.Send(sendCtx, recipients, templateKey, payload); err != nil {
		logger.Warn().Err(err).
			Str("template", templateKey).
			Int("recipients", len(recipients)).
			Msg("notification dispatch failed")
	}
}

// LogDispatcher writes notifications to the log only. Used in development and
// as the fallback when Slack is not configured.
type LogDispatcher struct {
	Logger zerolog.Logger
}

func (d *LogDispatcher) Send(_ context.Context, recipients []model.Person, templateKey string, payload map[string]interface{}) error {
	names := make([]string, 0, len(recipients))
	for _, p := range recipients {
		names = append(names, p.Name)
	}
	d.Logger.Info().
		Str("template", templateKey).
		Strs("recipients", names).
		Interface("payload", payload).
		Msg("notification")
	return nil
}
