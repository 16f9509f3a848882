package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"GemFarm/internal/farm"
	"GemFarm/internal/model"
	"GemFarm/internal/notifier"
	"GemFarm/internal/recorder"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sender delivers operator messages. *notifier.TelegramNotifier satisfies it.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler manages periodic farm snapshots and reports.
type Scheduler struct {
	Cron     *cron.Cron
	Engine   *farm.Engine
	Notifier Sender
	Recorder recorder.Recorder
	Ctx      context.Context

	// Parallelism bounds how many farms are snapshotted at once.
	Parallelism int
	Now         func() time.Time

	logger *zap.Logger
}

// NewScheduler creates a new Scheduler. sender may be nil when notifications are disabled.
func NewScheduler(ctx context.Context, eng *farm.Engine, sender Sender, rec recorder.Recorder, parallelism int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &Scheduler{
		Cron:        cron.New(cron.WithSeconds()),
		Engine:      eng,
		Notifier:    sender,
		Recorder:    rec,
		Ctx:         ctx,
		Parallelism: parallelism,
		Now:         time.Now,
		logger:      logger.Named("scheduler"),
	}
}

// RegisterAll registers the snapshot and report tasks.
func (s *Scheduler) RegisterAll(snapshotCron, reportCron string) error {
	if _, err := s.Cron.AddFunc(snapshotCron, s.snapshotTask); err != nil {
		return fmt.Errorf("register snapshot task: %w", err)
	}
	if _, err := s.Cron.AddFunc(reportCron, s.reportTask); err != nil {
		return fmt.Errorf("register report task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunSnapshotNow executes the snapshot task immediately and returns the snapshots taken.
func (s *Scheduler) RunSnapshotNow() ([]*model.FarmSnapshot, error) {
	return s.snapshotAll(s.Ctx)
}

func (s *Scheduler) snapshotTask() {
	if _, err := s.snapshotAll(s.Ctx); err != nil {
		s.logger.Error("snapshot run failed", zap.Error(err))
	}
}

// snapshotAll re-reads the state file and snapshots every farm, recording each
// snapshot and checking the farm's invariants. Violations are reported but do
// not stop other farms.
func (s *Scheduler) snapshotAll(ctx context.Context) ([]*model.FarmSnapshot, error) {
	if err := s.Engine.Reload(); err != nil {
		return nil, err
	}
	ids := s.Engine.Farms()
	snaps := make([]*model.FarmSnapshot, len(ids))
	now := s.Now()

	var (
		mu         sync.Mutex
		violations []string
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Parallelism)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			snap, err := s.Engine.Snapshot(id, now)
			if err != nil {
				return fmt.Errorf("snapshot farm %s: %w", id, err)
			}
			snaps[i] = snap
			if err := s.Recorder.RecordSnapshot(snap); err != nil {
				s.logger.Warn("record snapshot failed", zap.String("farm", id), zap.Error(err))
			}
			if err := s.Engine.CheckInvariants(id); err != nil {
				s.logger.Error("farm invariant violated", zap.String("farm", id), zap.Error(err))
				mu.Lock()
				violations = append(violations, err.Error())
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("snapshots taken", zap.Int("farms", len(ids)))
	if len(violations) > 0 {
		s.notify("⚠️ <b>Invariant violation</b>\n\n" + strings.Join(violations, "\n"))
	}
	return snaps, nil
}

func (s *Scheduler) reportTask() {
	snaps, err := s.snapshotAll(s.Ctx)
	if err != nil {
		s.logger.Error("report run failed", zap.Error(err))
		return
	}
	for _, snap := range snaps {
		s.notify(notifier.FormatFarmSnapshot(snap))
	}
}

func (s *Scheduler) notify(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.logger.Error("send notification failed", zap.Error(err))
	}
}

// HandleCommand answers operator commands received over Telegram.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	if err := s.Engine.Reload(); err != nil {
		s.logger.Warn("reload state failed, answering from memory", zap.Error(err))
	}
	switch fields[0] {
	case "/farms":
		return notifier.FormatFarmList(s.Engine.Farms())
	case "/farm":
		if len(fields) < 2 {
			return "Usage: /farm &lt;id&gt;"
		}
		snap, err := s.Engine.Snapshot(fields[1], s.Now())
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		return notifier.FormatFarmSnapshot(snap)
	default:
		return helpText
	}
}

const helpText = "Commands:\n/farms - list farms\n/farm &lt;id&gt; - show farm rewards"
