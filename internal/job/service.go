package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/mediagen/internal/generation"
)

// Static errors for job service operations.
var (
	// ErrJobTerminal is returned when cancelling a job that already finished.
	ErrJobTerminal = errors.New("job already finished")
	// ErrShuttingDown is returned when a job is submitted during shutdown.
	ErrShuttingDown = errors.New("job service is shutting down")
)

// DefaultCancelCheckInterval is how often a running job re-reads its record
// to notice a cancel issued through another instance.
const DefaultCancelCheckInterval = 2 * time.Second

// Generator produces and delivers one asset per request.
// *generation.Orchestrator satisfies it.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (generation.DeliveredAsset, error)
}

// Service runs generation requests synchronously or as background jobs,
// deduplicating by idempotency key.
type Service struct {
	repo      Repository
	generator Generator
	cache     ResultCache
	logger    *slog.Logger
	// cancelCheck is the remote cancel polling interval; <= 0 disables it.
	cancelCheck time.Duration

	mu       sync.Mutex
	running  map[string]*runningJob
	closing  bool
	inflight sync.WaitGroup
}

// runningJob is a job executing in this process.
type runningJob struct {
	job    *Job
	cancel context.CancelFunc
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithResultCache sets the idempotency cache.
func WithResultCache(c ResultCache) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCancelCheckInterval sets how often running jobs look for a cancel
// recorded by another instance. A value <= 0 disables the check.
func WithCancelCheckInterval(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.cancelCheck = d
	}
}

// NewService creates a new Service. Without WithResultCache an in-memory
// cache with DefaultTTL is used.
func NewService(repo Repository, generator Generator, opts ...ServiceOption) *Service {
	s := &Service{
		repo:        repo,
		generator:   generator,
		cache:       NewMemoryResultCache(DefaultTTL),
		logger:      slog.Default(),
		cancelCheck: DefaultCancelCheckInterval,
		running:     make(map[string]*runningJob),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob persists a QUEUED job for req and starts generation in the
// background. The returned job is a snapshot; poll GetJob for progress.
// A request whose idempotency key has a cached result completes immediately.
func (s *Service) CreateJob(ctx context.Context, req generation.Request) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, generation.NewError(generation.KindInvalidRequest, "", "validate", err)
	}

	job := New(req)
	if asset, ok := s.cache.Get(ctx, req.IdempotencyKey); ok {
		s.logger.Info("idempotent request served from cache",
			slog.String("generation_id", job.ID),
			slog.String("idempotency_key", req.IdempotencyKey),
		)
		_ = job.Complete(asset)
		if err := s.repo.Save(ctx, job); err != nil {
			return nil, err
		}
		return job.Clone(), nil
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if err := s.repo.Save(ctx, job); err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to save job",
			slog.String("generation_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.running[job.ID] = &runningJob{job: job, cancel: cancel}
	s.inflight.Add(1)
	s.mu.Unlock()

	if s.cancelCheck > 0 {
		go s.watchRemoteCancel(runCtx, job.ID, cancel)
	}

	s.logger.Info("job created",
		slog.String("generation_id", job.ID),
		slog.String("kind", string(req.Kind)),
	)

	snapshot := job.Clone()
	go s.run(runCtx, job, req)
	return snapshot, nil
}

// run drives one job to a terminal state.
func (s *Service) run(ctx context.Context, job *Job, req generation.Request) {
	defer s.inflight.Done()
	defer s.release(job.ID)

	// Writes must land even after the job's context is cancelled.
	saveCtx := context.WithoutCancel(ctx)

	if err := job.Start(); err != nil {
		return
	}
	if !s.save(saveCtx, job) {
		return
	}

	asset, err := s.generate(ctx, req)
	if err != nil {
		_ = job.Fail(err)
		s.logger.Warn("job failed",
			slog.String("generation_id", job.ID),
			slog.String("status", string(job.GetStatus())),
			slog.String("error_kind", string(generation.KindOf(err))),
		)
	} else {
		_ = job.Complete(asset)
		s.logger.Info("job completed",
			slog.String("generation_id", job.ID),
			slog.String("provider", asset.Provider),
			slog.String("delivery_method", string(asset.Method)),
		)
	}

	s.save(saveCtx, job)
}

// save persists job unless another instance already recorded it as
// CANCELLED. It reports whether the job should keep running.
func (s *Service) save(ctx context.Context, job *Job) bool {
	if s.cancelledRemotely(ctx, job.ID) {
		s.logger.Info("job cancelled through another instance, keeping cancelled record",
			slog.String("generation_id", job.ID),
			slog.String("local_status", string(job.GetStatus())),
		)
		return false
	}
	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("generation_id", job.ID),
			slog.String("status", string(job.GetStatus())),
			slog.String("error", err.Error()),
		)
	}
	return true
}

func (s *Service) cancelledRemotely(ctx context.Context, id string) bool {
	stored, err := s.repo.FindByID(ctx, id)
	return err == nil && stored.GetStatus() == StatusCancelled
}

// watchRemoteCancel cancels a running job once its stored record turns
// CANCELLED. It stops when the job's context ends.
func (s *Service) watchRemoteCancel(ctx context.Context, id string, cancel context.CancelFunc) {
	ticker := time.NewTicker(s.cancelCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.cancelledRemotely(ctx, id) {
				s.logger.Info("remote cancel observed", slog.String("generation_id", id))
				cancel()
				return
			}
		}
	}
}

func (s *Service) release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.running[jobID]; ok {
		r.cancel()
		delete(s.running, jobID)
	}
}

// GenerateSync runs req to completion on the caller's context.
func (s *Service) GenerateSync(ctx context.Context, req generation.Request) (generation.DeliveredAsset, error) {
	if asset, ok := s.cache.Get(ctx, req.IdempotencyKey); ok {
		return asset, nil
	}
	return s.generate(ctx, req)
}

func (s *Service) generate(ctx context.Context, req generation.Request) (generation.DeliveredAsset, error) {
	asset, err := s.generator.Generate(ctx, req)
	if err != nil {
		return generation.DeliveredAsset{}, err
	}
	s.cache.Set(context.WithoutCancel(ctx), req.IdempotencyKey, asset)
	return asset, nil
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// Cancel stops an in-flight job. A job running in this process is
// cancelled through its context and reaches CANCELLED on its own; a job
// owned by another instance is marked CANCELLED directly.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	r, local := s.running[id]
	s.mu.Unlock()

	if local {
		if r.job.IsTerminal() {
			return ErrJobTerminal
		}
		s.logger.Info("cancelling job", slog.String("generation_id", id))
		r.cancel()
		return nil
	}

	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return ErrJobTerminal
	}
	if err := job.Cancel(); err != nil {
		return err
	}
	return s.repo.Save(ctx, job)
}

// Shutdown cancels every in-flight job and waits for them to record their
// final state, or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for _, r := range s.running {
		r.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
