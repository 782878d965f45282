// cmd/container.go
//
// Composition root. Owns the store backend and the queue manager, and is the
// only place that knows about every package.
package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/asyncx"
	"github.com/Abraxas-365/jobqueue/pkg/config"
	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/Abraxas-365/jobqueue/pkg/jobx/jobxfiber"
	"github.com/Abraxas-365/jobqueue/pkg/jobx/jobxmemory"
	"github.com/Abraxas-365/jobqueue/pkg/jobx/jobxpostgres"
	"github.com/Abraxas-365/jobqueue/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/jobqueue/pkg/logx"
	"github.com/Abraxas-365/jobqueue/pkg/notifx"
	"github.com/Abraxas-365/jobqueue/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/jobqueue/pkg/notifx/notifxses"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

const (
	connectAttempts = 5
	connectDelay    = 500 * time.Millisecond
)

// Container holds shared infrastructure and the queue engine.
type Container struct {
	Config *config.Config

	// Infrastructure (only the selected backend is set)
	DB    *sqlx.DB
	Redis *redis.Client
	Store jobx.Store

	// Outgoing email of the email queue
	Mail *notifx.Client

	// Queue engine
	Manager       *jobx.Manager
	QueueHandlers *jobxfiber.Handlers

	engine sync.WaitGroup
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure: queue store backend
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Infof("🏗️ Initializing infrastructure (backend: %s)...", c.Config.Jobx.Backend)

	ctx := context.Background()

	switch c.Config.Jobx.Backend {
	case "redis":
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Address(),
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		_, err := asyncx.RetryWithBackoff(ctx, connectAttempts, connectDelay, func(ctx context.Context) (string, error) {
			return c.Redis.Ping(ctx).Result()
		})
		if err != nil {
			logx.Fatalf("Failed to connect to Redis: %v (Redis is required)", err)
		}
		c.Store = jobxredis.New(c.Redis, jobxredis.WithKeyPrefix(c.Config.Redis.KeyPrefix))
		logx.Infof("  ✅ Redis connected (%s, db %d)", c.Config.Redis.Address(), c.Config.Redis.DB)

	case "postgres":
		db, err := asyncx.RetryWithBackoff(ctx, connectAttempts, connectDelay, func(ctx context.Context) (*sqlx.DB, error) {
			return sqlx.ConnectContext(ctx, "postgres", c.Config.Database.DSN())
		})
		if err != nil {
			logx.Fatalf("Failed to connect to database: %v", err)
		}
		db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
		db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
		db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
		c.DB = db

		store := jobxpostgres.New(db)
		if err := store.Migrate(ctx); err != nil {
			logx.Fatalf("Failed to migrate job tables: %v", err)
		}
		c.Store = store
		logx.Info("  ✅ Database connected")

	case "memory":
		c.Store = jobxmemory.New()
		logx.Warn("  ⚠️ In-memory store: jobs are lost on restart and not shared between processes")

	default:
		logx.Fatalf("Unknown JOBX_BACKEND: %s (use 'redis', 'postgres' or 'memory')", c.Config.Jobx.Backend)
	}

	logx.Info("✅ Infrastructure initialized")
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	logx.Info("📦 Initializing modules...")

	queues, err := queueConfigs(c.Config.Jobx)
	if err != nil {
		logx.Fatalf("Invalid queue configuration: %v", err)
	}

	manager, err := jobx.NewManager(c.Store, queues, managerOptions(c.Config.Jobx)...)
	if err != nil {
		logx.Fatalf("Failed to create queue manager: %v", err)
	}
	c.Manager = manager

	c.Mail = newMailClient(c.Config.Mail)
	registerJobHandlers(manager, c.Mail)
	c.QueueHandlers = jobxfiber.NewHandlers(manager)

	logx.Infof("  ✅ Queue manager ready (%d queues)", len(queues))
}

func newMailClient(cfg config.MailConfig) *notifx.Client {
	client := notifx.NewClient(newMailProvider(cfg), cfg.From)
	for name, tmpl := range emailTemplates {
		if err := client.RegisterTemplate(name, tmpl); err != nil {
			logx.Fatalf("Failed to register email template %s: %v", name, err)
		}
	}
	return client
}

func newMailProvider(cfg config.MailConfig) notifx.EmailSender {
	switch cfg.Provider {
	case "ses":
		awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(), awsConfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config: %v", err)
		}
		logx.Infof("  ✅ SES mail provider configured (region: %s)", cfg.AWSRegion)
		return notifxses.NewSESProvider(ses.NewFromConfig(awsCfg))
	case "console", "":
		logx.Info("  ✅ Console mail provider configured")
		return notifxconsole.NewConsoleProvider()
	default:
		logx.Fatalf("Unknown MAIL_PROVIDER %q", cfg.Provider)
		return nil
	}
}

func queueConfigs(cfg config.JobxConfig) ([]jobx.QueueConfig, error) {
	out := make([]jobx.QueueConfig, 0, len(cfg.Queues))
	for _, q := range cfg.Queues {
		qc := jobx.QueueConfig{
			Name:               q.Name,
			Concurrency:        q.Concurrency,
			DefaultMaxAttempts: q.Attempts,
			DefaultBackoff:     jobx.Backoff{Type: jobx.BackoffType(q.BackoffType), Delay: q.BackoffDelay},
			KeepCompleted:      q.RemoveOnComplete,
			KeepFailed:         q.RemoveOnFail,
			MaxStalledCount:    cfg.MaxStalledCount,
		}
		if cfg.CleanupEnabled {
			qc.CompletedRetention = days(cfg.CompletedRetainDays)
			qc.FailedRetention = days(cfg.FailedRetainDays)
		}
		if err := qc.Validate(); err != nil {
			return nil, fmt.Errorf("queue %s: %w", q.Name, err)
		}
		out = append(out, qc)
	}
	return out, nil
}

func managerOptions(cfg config.JobxConfig) []jobx.ManagerOption {
	opts := []jobx.ManagerOption{
		jobx.WithPollInterval(cfg.PollInterval),
		jobx.WithLeaseTimeout(cfg.LeaseTimeout),
		jobx.WithJobTimeout(cfg.JobTimeout),
		jobx.WithStalledInterval(cfg.StalledInterval),
		jobx.WithShutdownTimeout(cfg.ShutdownTimeout),
		jobx.WithStoreRetryInterval(cfg.StoreRetryInterval),
		jobx.WithStatsInterval(cfg.StatsInterval),
		jobx.WithThresholds(jobx.Thresholds{
			WaitingWarning:  cfg.BacklogWarning,
			WaitingCritical: cfg.BacklogCritical,
			FailedCritical:  cfg.FailedCritical,
		}),
	}
	if cfg.CleanupEnabled {
		opts = append(opts, jobx.WithCleanup(cfg.CleanupSchedule, cfg.CleanupLimit))
	} else {
		opts = append(opts, jobx.WithCleanup("", 0))
	}
	return opts
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// StartBackgroundServices runs the queue engine until ctx is cancelled.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	logx.Info("🔄 Starting background services...")

	c.engine.Add(1)
	go func() {
		defer c.engine.Done()
		if err := c.Manager.Start(ctx); err != nil {
			logx.Errorf("Queue engine stopped with error: %v", err)
		}
	}()
}

// Cleanup waits for the engine to drain, then closes connections.
func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	c.engine.Wait()
	logx.Info("  ✅ Queue engine stopped")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}
