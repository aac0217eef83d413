package cmd

import (
	"time"

	"github.com/rs/zerolog"

	config "lab-scheduler.com/lab-scheduler/internal/configs"
	"lab-scheduler.com/lab-scheduler/internal/jobs"
	"lab-scheduler.com/lab-scheduler/internal/logging"
	"lab-scheduler.com/lab-scheduler/internal/notify"
	repository "lab-scheduler.com/lab-scheduler/internal/repositories"
	"lab-scheduler.com/lab-scheduler/internal/services"
)

// app is the wired object graph shared by the serve and job commands.
type app struct {
	cfg       config.Config
	log       zerolog.Logger
	rotation  *services.RotationService
	taskGen   *services.TaskGenService
	meetings  *services.MeetingService
	equipment *services.EquipmentService
	runner    *jobs.Runner
}

func buildApp() *app {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	db := config.New(cfg.DatabaseDSN)

	rotationRepo := repository.NewRotationRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	meetingRepo := repository.NewMeetingRepository(db)
	equipmentRepo := repository.NewEquipmentRepository(db)
	personRepo := repository.NewPersonRepository(db)

	var dispatcher notify.Dispatcher
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		dispatcher = notify.NewSlackDispatcher(cfg.SlackBotToken, cfg.SlackChannel)
		logger.Info().Str("channel", cfg.SlackChannel).Msg("slack notifications enabled")
	} else {
		dispatcher = &notify.LogDispatcher{Logger: logger}
	}

	notifyTimeout := time.Duration(cfg.NotifyTimeoutSeconds) * time.Second
	entryTTL := time.Duration(cfg.QueueEntryTTLMinutes) * time.Minute

	rotation := services.NewRotationService(rotationRepo, logger)
	taskGen := services.NewTaskGenService(taskRepo, personRepo, rotation, dispatcher, notifyTimeout, logger)
	meetings := services.NewMeetingService(meetingRepo, personRepo, dispatcher, notifyTimeout, logger)
	equipment := services.NewEquipmentService(equipmentRepo, personRepo, dispatcher, notifyTimeout, entryTTL, logger)

	var locker jobs.Locker
	if cfg.RedisEnabled {
		locker = jobs.NewRedisLocker(config.NewRedisClient(cfg.RedisAddr))
	} else {
		locker = jobs.NewLocalLocker()
		logger.Info().Msg("redis disabled, using in-process job locks")
	}

	runner := jobs.NewRunner(taskGen, meetings, equipment, locker, jobs.Schedule{
		TaskGenerationCron:    cfg.TaskGenerationCron,
		MeetingGenerationCron: cfg.MeetingGenerationCron,
		SweepCron:             cfg.SweepCron,
		ReminderCron:          cfg.ReminderCron,
		GenerationHorizonDays: cfg.GenerationHorizonDays,
		SwapExpiry:            time.Duration(cfg.SwapExpiryDays) * 24 * time.Hour,
		LockTTL:               time.Duration(cfg.JobLockTTLSeconds) * time.Second,
	}, logger)

	return &app{
		cfg:       cfg,
		log:       logger,
		rotation:  rotation,
		taskGen:   taskGen,
		meetings:  meetings,
		equipment: equipment,
		runner:    runner,
	}
}
