package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"daily-planner/internal/bot"
	"daily-planner/internal/config"
	"daily-planner/internal/logging"
	"daily-planner/internal/notify"
	"daily-planner/internal/repository"
	"daily-planner/internal/service"
)

const jobTimeout = 5 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("planner stopped with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := repository.NewDB(cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	reminderRepo := repository.NewReminderRepository(db)

	opts := []service.Option{service.WithLocation(loc)}
	categorySvc := service.NewCategoryService(categoryRepo)
	repeatSvc := service.NewRepeatService(taskRepo, logger, cfg.RepeatWindowDays, opts...)
	reminderSvc := service.NewReminderService(reminderRepo, logger, opts...)
	taskSvc := service.NewTaskService(taskRepo, categoryRepo, repeatSvc, reminderSvc, logger, opts...)
	digestSvc := service.NewDigestService(taskRepo, categoryRepo, opts...)
	feed := service.NewReminderFeed(reminderSvc, logger, 0)

	telegramBot, err := bot.New(cfg.TelegramToken, bot.Services{
		Users:      userRepo,
		Categories: categorySvc,
		Tasks:      taskSvc,
		Reminders:  reminderSvc,
		Repeat:     repeatSvc,
		Digest:     digestSvc,
		Feed:       feed,
	}, loc, logger)
	if err != nil {
		return err
	}

	channel := notify.Router{Push: telegramBot, InApp: notify.NewLogChannel(logger)}
	checker := service.NewDeliveryChecker(reminderRepo, channel, logger, service.DeliveryConfig{
		Interval:  cfg.ReminderCheckInterval,
		CacheSize: cfg.DeliveredCacheSize,
		CacheTTL:  cfg.DeliveredCacheTTL,
	}, opts...)

	scheduler := service.NewSchedulerService(loc, logger)
	if err := checker.Start(ctx, scheduler); err != nil {
		return err
	}
	defer checker.Stop()

	jobs := []struct {
		name string
		at   string
		run  func(ctx context.Context) error
	}{
		{"fill repeat windows", cfg.WindowFillTime, func(ctx context.Context) error {
			return fillAllWindows(ctx, userRepo, repeatSvc, logger)
		}},
		{"daily digest", cfg.DigestTime, telegramBot.SendDailyDigests},
		{"purge stale reminders", cfg.CleanupTime, func(ctx context.Context) error {
			_, err := reminderSvc.PurgeStale(ctx, cfg.ReminderRetention)
			return err
		}},
	}
	for _, job := range jobs {
		if _, err := scheduler.ScheduleDaily(job.at, func() {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()
			if err := job.run(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("job failed", zap.String("job", job.name), zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	scheduler.Start()
	defer scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("daily planner bot started")
		err := telegramBot.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// fillAllWindows tops up the repeat window of every user's series. A failing
// user is logged and does not stop the others.
func fillAllWindows(ctx context.Context, users *repository.UserRepository, repeat *service.RepeatService, logger *zap.Logger) error {
	all, err := users.ListAll(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, user := range all {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if _, err := repeat.FillWindowForAllSeries(ctx, user.ID); err != nil {
			logger.Warn("fill repeat window failed", zap.Uint("user_id", user.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("user %d: %w", user.ID, err))
			continue
		}
	}
	return errors.Join(errs...)
}
