package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tallyhq/tally/internal/services"
	"github.com/tallyhq/tally/pkg/logger"
)

const (
	defaultChatKeep     = 500
	defaultResetSpec    = "@daily"
	defaultChatTrimSpec = "@daily"
)

// Cleaner coordinates background maintenance tasks: purging expired password
// reset codes and keeping workspace message boards bounded.
type Cleaner struct {
	resets *services.PasswordResetService
	chat   *services.ChatService
	cron   *cron.Cron
	now    func() time.Time
	log    *zap.Logger

	chatKeep      int
	resetSchedule string
	chatSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithChatKeep adjusts how many messages each workspace board retains.
func WithChatKeep(keep int) Option {
	return func(cleaner *Cleaner) {
		if keep > 0 {
			cleaner.chatKeep = keep
		}
	}
}

// WithResetSchedule overrides the cron specification for reset code cleanup.
func WithResetSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.resetSchedule = spec
		}
	}
}

// WithChatSchedule overrides the cron specification for message board trimming.
func WithChatSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.chatSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency results in the
// corresponding job being skipped.
func NewCleaner(resets *services.PasswordResetService, chat *services.ChatService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		resets:        resets,
		chat:          chat,
		now:           time.Now,
		chatKeep:      defaultChatKeep,
		resetSchedule: defaultResetSpec,
		chatSchedule:  defaultChatTrimSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the cleanup jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.resets != nil {
		if _, err := c.cron.AddFunc(c.resetSchedule, func() {
			if _, err := c.resets.DeleteExpired(context.Background(), c.now()); err != nil {
				c.log.Warn("reset code cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.chat != nil {
		if _, err := c.cron.AddFunc(c.chatSchedule, func() {
			if _, err := c.chat.TrimMessages(context.Background(), c.chatKeep); err != nil {
				c.log.Warn("message board trim failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Used in
// tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.resets != nil {
		if _, err := c.resets.DeleteExpired(ctx, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.chat != nil {
		if _, err := c.chat.TrimMessages(ctx, c.chatKeep); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
