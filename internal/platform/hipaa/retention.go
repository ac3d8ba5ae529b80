package hipaa

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultAuditRetentionDays keeps audit rows for six years.
const DefaultAuditRetentionDays = 2190

// Purger removes audit records older than a cutoff.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob enforces the audit log retention period.
type RetentionJob struct {
	purger        Purger
	retentionDays int
	logger        zerolog.Logger
	now           func() time.Time
}

func NewRetentionJob(p Purger, retentionDays int, logger zerolog.Logger) *RetentionJob {
	if retentionDays <= 0 {
		retentionDays = DefaultAuditRetentionDays
	}
	return &RetentionJob{
		purger:        p,
		retentionDays: retentionDays,
		logger:        logger.With().Str("component", "audit_retention").Logger(),
		now:           time.Now,
	}
}

// Cutoff returns the oldest recorded_at that is still retained.
func (j *RetentionJob) Cutoff() time.Time {
	return j.now().UTC().AddDate(0, 0, -j.retentionDays)
}

// Run performs one sweep.
func (j *RetentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.Cutoff()
	n, err := j.purger.Purge(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	j.logger.Info().
		Int64("deleted", n).
		Time("cutoff", cutoff).
		Msg("audit log retention sweep")
	return n, nil
}

// Schedule registers the sweep on a new cron scheduler using a standard
// five-field spec. The caller starts and stops the returned scheduler.
func (j *RetentionJob) Schedule(spec string, timeout time.Duration) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLogger(cronLogger{j.logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{j.logger})),
	)
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := j.Run(ctx); err != nil {
			j.logger.Error().Err(err).Msg("audit log retention sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule audit retention %q: %w", spec, err)
	}
	return c, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
