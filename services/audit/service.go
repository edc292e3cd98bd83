package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/upb/persona-router/models"
	"github.com/upb/persona-router/repositories"
	"github.com/upb/persona-router/services"
)

// AuditService persists route events asynchronously
type AuditService struct {
	repo        repositories.RouteEventRepository
	logger      *zap.Logger
	eventChan   chan *models.RouteEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	started     bool
	stopped     bool
	mu          sync.Mutex
	written     atomic.Uint64
	dropped     atomic.Uint64
	failed      atomic.Uint64
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repositories.RouteEventRepository, logger *zap.Logger, config Config) *AuditService {
	if config.BufferSize < 1 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount < 1 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}

	return &AuditService{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *models.RouteEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits up to timeout for pending ones to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully",
			zap.Uint64("written", s.written.Load()),
			zap.Uint64("dropped", s.dropped.Load()))
		return nil
	case <-timer.C:
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking.
// A full buffer drops the event and returns ErrAuditQueueFull.
func (s *AuditService) LogEvent(event *models.RouteEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		s.dropped.Add(1)
		return fmt.Errorf("audit service not running")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("persona", event.Persona),
			zap.String("outcome", string(event.Outcome)),
			zap.String("request_id", event.RequestID))
		return services.ErrAuditQueueFull
	}
}

// RecordRoute implements routing.Recorder
func (s *AuditService) RecordRoute(_ context.Context, event *models.RouteEvent) {
	if err := s.LogEvent(event); err != nil {
		s.logger.Debug("route event not recorded", zap.Error(err))
	}
}

// worker processes events from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.failed.Add(1)
			s.logger.Error("failed to process route event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("persona", event.Persona),
				zap.String("request_id", event.RequestID))
			continue
		}
		s.written.Add(1)
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent writes a single event
func (s *AuditService) processEvent(event *models.RouteEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert route event: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
		Written:       s.written.Load(),
		Dropped:       s.dropped.Load(),
		Failed:        s.failed.Load(),
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int    `json:"buffer_size"`
	PendingEvents int    `json:"pending_events"`
	WorkerCount   int    `json:"worker_count"`
	Started       bool   `json:"started"`
	Written       uint64 `json:"written"`
	Dropped       uint64 `json:"dropped"`
	Failed        uint64 `json:"failed"`
}
