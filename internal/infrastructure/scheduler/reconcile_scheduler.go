package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Reconcile Job Types
// ---------------------------------------------------------------------------

// ReconcileJobStatus represents the status of a reconciliation job
type ReconcileJobStatus string

const (
	ReconcileJobStatusPending ReconcileJobStatus = "PENDING"
	ReconcileJobStatusRunning ReconcileJobStatus = "RUNNING"
	ReconcileJobStatusSuccess ReconcileJobStatus = "SUCCESS"
	ReconcileJobStatusPartial ReconcileJobStatus = "PARTIAL"
	ReconcileJobStatusFailed  ReconcileJobStatus = "FAILED"
)

// ReconcileJob represents one scheduled channel reconciliation run
type ReconcileJob struct {
	ID          uuid.UUID
	ChannelUID  string
	Status      ReconcileJobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time

	// Run results
	Products     int
	TotalCount   int
	SuccessCount int
	FailedCount  int
	SkippedCount int
}

// NewReconcileJob creates a new reconciliation job for a channel
func NewReconcileJob(channelUID string, maxRetries int) *ReconcileJob {
	return &ReconcileJob{
		ID:         uuid.New(),
		ChannelUID: channelUID,
		Status:     ReconcileJobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *ReconcileJob) Start() {
	now := time.Now()
	j.Status = ReconcileJobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as finished with its run counts
func (j *ReconcileJob) Complete(products, total, success, failed, skipped int) {
	now := time.Now()
	j.Products = products
	j.TotalCount = total
	j.SuccessCount = success
	j.FailedCount = failed
	j.SkippedCount = skipped
	j.CompletedAt = &now

	if failed == 0 {
		j.Status = ReconcileJobStatusSuccess
	} else if success > 0 {
		j.Status = ReconcileJobStatusPartial
	} else {
		j.Status = ReconcileJobStatusFailed
	}
}

// Fail marks the job as failed
func (j *ReconcileJob) Fail(err string) {
	now := time.Now()
	j.Status = ReconcileJobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *ReconcileJob) ShouldRetry() bool {
	return j.Status == ReconcileJobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry with exponential backoff
func (j *ReconcileJob) ScheduleRetry(baseDelay time.Duration) {
	j.RetryCount++
	j.Status = ReconcileJobStatusPending
	// Exponential backoff: baseDelay * 2^(retryCount-1)
	delay := baseDelay * time.Duration(1<<(j.RetryCount-1))
	if delay > 30*time.Minute {
		delay = 30 * time.Minute // Cap at 30 minutes
	}
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// ---------------------------------------------------------------------------
// ReconcileExecutor Interface
// ---------------------------------------------------------------------------

// ReconcileExecutor runs the reconciliation for one job's channel
type ReconcileExecutor interface {
	Execute(ctx context.Context, job *ReconcileJob) error
}

// ---------------------------------------------------------------------------
// ReconcileSchedulerConfig
// ---------------------------------------------------------------------------

// ReconcileSchedulerConfig holds configuration for the reconcile scheduler
type ReconcileSchedulerConfig struct {
	// Enabled indicates if the scheduler is enabled
	Enabled bool
	// MaxConcurrentJobs is the maximum number of concurrent reconcile jobs
	MaxConcurrentJobs int
	// JobTimeout is the maximum time a job can run
	JobTimeout time.Duration
	// RetryAttempts is the number of retry attempts for failed jobs
	RetryAttempts int
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration
}

// DefaultReconcileSchedulerConfig returns default configuration
func DefaultReconcileSchedulerConfig() ReconcileSchedulerConfig {
	return ReconcileSchedulerConfig{
		Enabled:           true,
		MaxConcurrentJobs: 3,
		JobTimeout:        10 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        time.Minute,
	}
}

// Validate validates the configuration
func (c *ReconcileSchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// ReconcileScheduler
// ---------------------------------------------------------------------------

// ReconcileScheduler manages scheduled channel reconciliation jobs through a
// bounded worker pool. One slow channel occupies one worker; the rest keep
// draining other channels.
type ReconcileScheduler struct {
	config   ReconcileSchedulerConfig
	executor ReconcileExecutor
	logger   *zap.Logger

	jobs      chan *ReconcileJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// Job history for monitoring (in-memory, limited size)
	historyMu  sync.RWMutex
	history    []*ReconcileJob
	maxHistory int
}

// NewReconcileScheduler creates a new reconcile scheduler
func NewReconcileScheduler(config ReconcileSchedulerConfig, executor ReconcileExecutor, logger *zap.Logger) (*ReconcileScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &ReconcileScheduler{
		config:     config,
		executor:   executor,
		logger:     logger,
		jobs:       make(chan *ReconcileJob, 100),
		history:    make([]*ReconcileJob, 0, 100),
		maxHistory: 100,
	}, nil
}

// Start starts the scheduler
func (s *ReconcileScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Reconcile scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *ReconcileScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	// The jobs channel stays open: SubmitJob or a retry re-queue may still
	// hold a send from before the isRunning flip, and closing underneath it
	// would panic. Workers exit on context cancellation instead.
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reconcile scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Reconcile scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitJob submits a job for execution
func (s *ReconcileScheduler) SubmitJob(job *ReconcileJob) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.mu.Unlock()

	select {
	case s.jobs <- job:
		s.logger.Debug("Reconcile job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("channel_uid", job.ChannelUID),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// ScheduleChannel submits a reconcile job for a channel with configured retries
func (s *ReconcileScheduler) ScheduleChannel(channelUID string) error {
	return s.SubmitJob(NewReconcileJob(channelUID, s.config.RetryAttempts))
}

// worker processes jobs from the queue
func (s *ReconcileScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Reconcile worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Reconcile worker stopping", zap.Int("worker_id", workerID))
			return
		case job, ok := <-s.jobs:
			if !ok {
				s.logger.Debug("Reconcile job channel closed", zap.Int("worker_id", workerID))
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *ReconcileScheduler) processJob(ctx context.Context, job *ReconcileJob, workerID int) {
	// Check if job is ready to run (for retries)
	if job.NextRetryAt != nil && time.Now().Before(*job.NextRetryAt) {
		select {
		case s.jobs <- job:
		default:
			s.logger.Warn("Failed to re-queue reconcile job for retry",
				zap.String("job_id", job.ID.String()),
			)
		}
		return
	}

	job.Start()
	s.logger.Info("Processing reconcile job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("channel_uid", job.ChannelUID),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	err := s.executor.Execute(jobCtx, job)
	if err != nil {
		job.Fail(err.Error())
		s.logger.Error("Reconcile job failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.String("channel_uid", job.ChannelUID),
			zap.Error(err),
		)

		if job.ShouldRetry() {
			job.ScheduleRetry(s.config.RetryDelay)
			s.logger.Info("Reconcile job scheduled for retry",
				zap.String("job_id", job.ID.String()),
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
				zap.Time("next_retry_at", *job.NextRetryAt),
			)
			select {
			case s.jobs <- job:
			default:
				s.logger.Warn("Failed to re-queue reconcile job for retry",
					zap.String("job_id", job.ID.String()),
				)
			}
		}

		s.addToHistory(job)
		return
	}

	s.logger.Info("Reconcile job completed",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("channel_uid", job.ChannelUID),
		zap.String("status", string(job.Status)),
		zap.Int("products", job.Products),
		zap.Int("total_count", job.TotalCount),
		zap.Int("success_count", job.SuccessCount),
		zap.Int("failed_count", job.FailedCount),
		zap.Int("skipped_count", job.SkippedCount),
	)

	s.addToHistory(job)
}

// addToHistory adds a completed job to history
func (s *ReconcileScheduler) addToHistory(job *ReconcileJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*ReconcileJob{job}, s.history...)

	if len(s.history) > s.maxHistory {
		s.history = s.history[:s.maxHistory]
	}
}

// GetJobHistory returns recent job history
func (s *ReconcileScheduler) GetJobHistory(limit int) []*ReconcileJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}

	result := make([]*ReconcileJob, limit)
	copy(result, s.history[:limit])
	return result
}

// GetJobHistoryByChannel returns job history for a specific channel
func (s *ReconcileScheduler) GetJobHistoryByChannel(channelUID string, limit int) []*ReconcileJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	result := make([]*ReconcileJob, 0, limit)
	for _, job := range s.history {
		if job.ChannelUID == channelUID {
			result = append(result, job)
			if len(result) >= limit {
				break
			}
		}
	}
	return result
}
