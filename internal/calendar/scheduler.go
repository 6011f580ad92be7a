package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lash-studio/backoffice/internal/apperror"
	"github.com/lash-studio/backoffice/internal/config"
	"github.com/lash-studio/backoffice/internal/logging"
)

const syncTimeout = 5 * time.Minute

// Scheduler runs the calendar sync on a cron schedule.
type Scheduler struct {
	cron        *cron.Cron
	syncService *SyncService
	spec        string

	// ctx is cancelled by Stop so in-flight runs end as cancelled.
	ctx    context.Context
	cancel context.CancelFunc
	runs   sync.WaitGroup

	mu      sync.RWMutex
	entryID cron.EntryID
	started bool
}

// NewScheduler creates a scheduler for spec. An empty spec disables
// periodic runs; manual triggers still work.
func NewScheduler(syncService *SyncService, spec string) *Scheduler {
	cronLog := cron.PrintfLogger(zap.NewStdLog(logging.Log.Named("cron")))
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(config.CronParser),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		syncService: syncService,
		spec:        spec,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start registers the sync job and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spec == "" {
		logging.Log.Info("calendar sync schedule disabled")
		return nil
	}
	if !s.syncService.IsConfigured() {
		logging.Log.Warn("calendar not configured, scheduled sync will be skipped until credentials are set")
	}

	id, err := s.cron.AddFunc(s.spec, s.runSync)
	if err != nil {
		return err
	}
	s.entryID = id
	s.cron.Start()
	s.started = true

	logging.Log.Info("calendar sync scheduled", zap.String("spec", s.spec))
	return nil
}

// Stop cancels running syncs, stops the cron loop and returns once every
// scheduled or triggered run has written its sync log.
func (s *Scheduler) Stop() {
	s.cancel()

	s.mu.Lock()
	if s.started {
		<-s.cron.Stop().Done()
		s.started = false
	}
	s.mu.Unlock()

	s.runs.Wait()
	logging.Log.Info("calendar scheduler stopped")
}

// TriggerSync starts a sync in the background. Stop waits for it.
func (s *Scheduler) TriggerSync() {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.runSync()
	}()
}

// NextRun returns the next scheduled run, nil if nothing is scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return nil
	}
	entry := s.cron.Entry(s.entryID)
	if entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}

func (s *Scheduler) runSync() {
	if !s.syncService.IsConfigured() {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, syncTimeout)
	defer cancel()

	if _, err := s.syncService.SyncFromOutlook(ctx); err != nil {
		// SyncFromOutlook already logged the failure in detail.
		if apperror.CodeOf(err) == apperror.CodeValidation {
			logging.Log.Info("scheduled sync skipped", zap.String("reason", apperror.MessageOf(err)))
		}
	}
}
