package main

import (
	"context"
	"fmt"
	"time"

	"venuebook/internal/availability"
	"venuebook/internal/booking"
	"venuebook/internal/calendar"
	"venuebook/internal/config"
	"venuebook/internal/database"
	"venuebook/internal/events"
	"venuebook/internal/jobs"
	"venuebook/internal/lock"
	"venuebook/internal/notify"
	"venuebook/internal/payments"
	"venuebook/internal/trigger"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const lockWait = 3 * time.Second

// app holds the wired engine shared by every command.
type app struct {
	cfg    *config.Config
	logger *zerolog.Logger
	loc    *time.Location

	db        *database.DB
	rdb       *redis.Client
	publisher *events.AMQPPublisher

	recorder *events.Recorder
	avail    *availability.Service
	proc     *jobs.Processor
	bookings *booking.Service
	trigger  *trigger.Trigger
}

// newApp opens the store and builds the engine. Outbound integrations
// (email, telegram, sheets, rabbitmq) are only connected when integrations
// is set; without them job handlers see unconfigured channels.
func newApp(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, integrations bool) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("venue timezone: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, loc: loc, db: db}

	bus := events.NewEventBus()
	if integrations && cfg.Events.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("RabbitMQ unavailable, events stay local")
		} else {
			a.publisher = pub
			bus.Subscribe(events.AllEvents, pub.Handle)
		}
	}
	a.recorder = events.NewRecorder(db, bus, logger)

	var notifier *notify.Router
	var syncer calendar.Syncer = calendar.Noop{}
	if integrations {
		notifier = newNotifier(cfg, logger)
		syncer = newCalendar(ctx, cfg, logger)
	} else {
		notifier = notify.NewRouter(nil, nil, logger)
	}
	pay := payments.NewClient(cfg.Payments.BaseURL, cfg.Payments.APIKey, cfg.Payments.Currency, cfg.PaymentsTimeout())

	handlers := booking.NewJobHandlers(db, pay, notifier, syncer, a.recorder, loc, logger)
	a.proc, err = jobs.NewProcessor(db, handlers.Table(), jobs.Config{
		MaxAttempts: cfg.Jobs.MaxAttempts,
		BatchSize:   cfg.Jobs.BatchSize,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.proc.SetEventRecorder(a.recorder)

	a.avail = availability.NewService(db, logger)
	a.bookings = booking.NewService(db, a.avail, a.proc, a.recorder, booking.Config{
		Location:                loc,
		MinAdvance:              cfg.BookingMinAdvance(),
		MaxAdvance:              cfg.BookingMaxAdvance(),
		PostEventGrace:          cfg.PostEventGrace(),
		BalanceLinkLead:         cfg.BalanceLinkLead(),
		HostReportReminderDelay: cfg.HostReportReminderDelay(),
		LockTTL:                 cfg.LockTTL(),
	}, logger)

	if cfg.Booking.SerializeReservations {
		a.bookings.UseReservationLock(a.newLocker())
	}

	a.trigger = trigger.New(trigger.Config{
		ProcessInterval:   cfg.ProcessInterval(),
		LifecycleInterval: cfg.LifecycleInterval(),
	}, a.proc, a.bookings, logger)
	return a, nil
}

// newLocker prefers redis and falls back to in-process locks while redis is
// unreachable.
func (a *app) newLocker() lock.Locker {
	local := lock.NewLocalLocker(lockWait)
	if a.cfg.Redis.Address == "" {
		a.logger.Info().Msg("Reservation lock is process-local")
		return local
	}
	a.rdb = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Address,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	return lock.NewFailoverLocker(lock.NewRedisLocker(a.rdb, lockWait), local, a.logger)
}

func newNotifier(cfg *config.Config, logger *zerolog.Logger) *notify.Router {
	var email notify.EmailSender
	if cfg.Email.RelayURL != "" {
		email = notify.NewEmailRelay(cfg.Email.RelayURL, cfg.Email.APIKey, cfg.Email.From, cfg.Email.RatePerSecond)
	}

	var ops notify.OpsSender
	if cfg.Telegram.BotToken != "" && cfg.Telegram.OpsChatID != 0 {
		relay, err := notify.NewTelegramRelay(cfg.Telegram.BotToken, cfg.Telegram.OpsChatID, cfg.Telegram.Debug)
		if err != nil {
			logger.Warn().Err(err).Msg("Telegram unavailable, operator reminders disabled")
		} else {
			ops = relay
		}
	}
	return notify.NewRouter(email, ops, logger)
}

func newCalendar(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) calendar.Syncer {
	if !cfg.Calendar.Enabled {
		return calendar.Noop{}
	}
	sheetsSync, err := calendar.NewSheetsSync(ctx, cfg.Calendar.CredentialsFile, cfg.Calendar.SpreadsheetID, cfg.Calendar.SheetName, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Google Sheets unavailable, calendar sync disabled")
		return calendar.Noop{}
	}
	if err := sheetsSync.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to write calendar sheet header")
	}
	return sheetsSync
}

func (a *app) Close() {
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close database")
	}
}
