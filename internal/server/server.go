package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/dubbing"
	"github.com/scwf/open-dubbing/internal/logging"
	"github.com/scwf/open-dubbing/internal/task"
)

const pollInterval = 500 * time.Millisecond

// Server exposes the dubbing pipeline over HTTP and runs queued tasks on a
// bounded worker pool. Single-instance execution is enforced with a file lock.
type Server struct {
	cfg          *config.Config
	store        *task.Store
	orchestrator *dubbing.Orchestrator
	logger       *slog.Logger

	lockPath string
	lock     *flock.Flock

	listener   net.Listener
	httpServer *http.Server

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	pending chan *task.Task
}

// New constructs a server. The orchestrator runs every accepted task.
func New(cfg *config.Config, store *task.Store, orc *dubbing.Orchestrator, logger *slog.Logger) (*Server, error) {
	if cfg == nil || store == nil || orc == nil {
		return nil, errors.New("server requires config, store, and orchestrator")
	}
	lockPath := filepath.Join(cfg.Paths.StateDir, "opendub.lock")
	srv := &Server{
		cfg:          cfg,
		store:        store,
		orchestrator: orc,
		logger:       logging.NewComponentLogger(logger, "server"),
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
		active:       make(map[string]context.CancelFunc),
		pending:      make(chan *task.Task),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", srv.handleHealth)
	mux.HandleFunc("/api/dubbing", srv.handleSubmit)
	mux.HandleFunc("/api/dubbing/status/", srv.handleStatus)
	mux.HandleFunc("/api/dubbing/cancel/", srv.handleCancel)
	mux.HandleFunc("/api/dubbing/options", srv.handleOptions)
	srv.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Start acquires the instance lock, requeues tasks stranded in processing by
// a previous run, and begins serving and working.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another opendub server instance is already running")
	}

	if requeued, err := s.store.ResetStuckProcessing(ctx); err != nil {
		_ = s.lock.Unlock()
		return fmt.Errorf("requeue stuck tasks: %w", err)
	} else if requeued > 0 {
		s.logger.Info("requeued tasks from previous run", logging.Int64("count", requeued))
	}

	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		_ = s.lock.Unlock()
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.dispatch(runCtx)

	workers := s.cfg.Server.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.work(runCtx)
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.running.Store(true)
	s.logger.Info("server listening",
		logging.String("address", listener.Addr().String()),
		logging.Int("workers", workers))
	return nil
}

// Addr reports the bound listen address, usable after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop drains the worker pool, cancels queued tasks, and releases the lock.
// In-flight tasks get their contexts cancelled and finish as cancelled.
func (s *Server) Stop() {
	if !s.running.Load() {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = s.httpServer.Shutdown(shutdownCtx)
	s.wg.Wait()

	if count, err := s.store.CancelQueued(context.Background()); err != nil {
		s.logger.Warn("failed to cancel queued tasks", logging.Error(err))
	} else if count > 0 {
		s.logger.Info("cancelled queued tasks on shutdown", logging.Int64("count", count))
	}

	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed to release lock", logging.Error(err))
	}
	s.running.Store(false)
	s.logger.Info("server stopped")
}

// dispatch polls for queued tasks and feeds the worker pool. A single
// dispatcher avoids two workers claiming the same task.
func (s *Server) dispatch(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.pending)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		next, err := s.store.NextQueued(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("queue poll failed", logging.Error(err))
		} else if next != nil {
			// Claim before handing off so the next poll cannot dispatch the
			// same task to a second worker.
			next.Status = task.StatusProcessing
			next.SetProgress("queued", "Waiting for worker", 0)
			if err := s.store.Update(ctx, next); err != nil {
				s.logger.Warn("failed to claim task", logging.Error(err))
			} else {
				select {
				case s.pending <- next:
					continue
				case <-ctx.Done():
					return
				}
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) work(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case item, ok := <-s.pending:
			if !ok {
				return
			}
			s.runOne(ctx, item)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) runOne(ctx context.Context, item *task.Task) {
	// Skip tasks cancelled between dispatch and pickup.
	current, err := s.store.GetByID(ctx, item.ID)
	if err != nil || current == nil || current.Status != task.StatusProcessing {
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.active[item.ID] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.active, item.ID)
		s.mu.Unlock()
	}()

	if err := s.orchestrator.RunTask(taskCtx, s.store, current); err != nil {
		s.logger.Error("task failed",
			logging.String(logging.FieldTaskID, item.ID),
			logging.Error(err))
	}
}

// cancelActive cancels the context of a running task, if any.
func (s *Server) cancelActive(id string) {
	s.mu.Lock()
	cancel, ok := s.active[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}
