package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tokenops/capguard/ledger"
	"github.com/tokenops/capguard/models"
	"github.com/tokenops/capguard/repositories"
	"github.com/tokenops/capguard/services/guard"
	"go.uber.org/zap"
)

// Service records audit events asynchronously. Governance mutations write
// their events synchronously inside the governance transaction; this service
// exists for the transfer hot path, where a rejected transfer must not wait
// on the audit insert.
type Service struct {
	auditRepo   repositories.AuditRepository
	clock       ledger.Clock
	logger      *zap.Logger
	eventChan   chan *models.AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	mu          sync.Mutex
}

// Config holds configuration for the audit Service
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 2,
	}
}

// NewService creates a new audit Service instance
func NewService(auditRepo repositories.AuditRepository, clock ledger.Clock, logger *zap.Logger, config Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		auditRepo:   auditRepo,
		clock:       clock,
		logger:      logger,
		eventChan:   make(chan *models.AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
		started:     false,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
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

// Stop gracefully stops the audit service.
// Waits for all pending events to be inserted.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	// Close the event channel (no more events will be accepted)
	close(s.eventChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Enqueue queues an event for background insertion (non-blocking).
// When the buffer is full the event is dropped with a warning; transfer
// decisions never block on the audit trail.
func (s *Service) Enqueue(event *models.AuditEvent) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.mu.Unlock()

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Action)),
			zap.String("token", event.Token.String()))
		return fmt.Errorf("audit event buffer full")
	}
}

// worker processes events from the channel
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Action)),
				zap.String("token", event.Token.String()))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent inserts a single audit event
func (s *Service) processEvent(event *models.AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// RecordRejectedTransfer records a transfer denial. Satisfies the guard
// service's DecisionRecorder.
func (s *Service) RecordRejectedTransfer(req guard.TransferRequest, reason guard.RejectReason, path string) {
	event := models.NewAuditEvent(req.Token, models.AuditActionTransferRejected, s.clock.Now().Unix()).
		WithDetails(map[string]interface{}{
			"source":      req.Source.String(),
			"destination": req.Destination.String(),
			"amount":      req.Amount,
			"reason":      string(reason),
			"path":        path,
		})

	if err := s.Enqueue(event); err != nil {
		s.logger.Warn("rejected transfer not recorded on audit trail",
			zap.Error(err),
			zap.String("token", req.Token.String()),
			zap.String("reason", string(reason)),
			zap.String("path", path))
	}
}
