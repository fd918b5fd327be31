package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"murmur/internal/api"
	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/workflow"
)

const (
	lockFileName = "murmur.lock"
	pidFileName  = "murmur.pid"

	shutdownTimeout = 5 * time.Second
)

// ErrAlreadyRunning reports that another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("another murmur daemon instance is already running")

// LockFilePath returns the instance lock location for the given config.
func LockFilePath(cfg *config.Config) string {
	if cfg == nil {
		return lockFileName
	}
	return filepath.Join(cfg.Paths.LogDir, lockFileName)
}

// PIDFilePath returns the PID file location for the given config.
func PIDFilePath(cfg *config.Config) string {
	if cfg == nil {
		return pidFileName
	}
	return filepath.Join(cfg.Paths.LogDir, pidFileName)
}

// Daemon owns the background processing lifecycle: the instance lock, the
// PID file, the workflow manager, and the optional HTTP API server.
type Daemon struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	workflow *workflow.Manager
	server   *api.Server

	lockPath string
	lock     *flock.Flock
	pidPath  string

	running atomic.Bool
}

// New constructs a daemon. The API server may be nil when the bind address
// is not configured; everything else is required. The queue store stays
// owned by the caller.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, server *api.Server) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := LockFilePath(cfg)
	return &Daemon{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		workflow: wf,
		server:   server,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		pidPath:  PIDFilePath(cfg),
	}, nil
}

// Start acquires the instance lock, writes the PID file, and launches the
// workflow manager and API server. It fails without side effects when
// another instance holds the lock.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", d.lockPath, err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if err := WritePIDFile(d.pidPath); err != nil {
		d.unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	if err := d.workflow.Start(ctx); err != nil {
		d.removePID()
		d.unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	if d.server != nil {
		if err := d.server.Start(); err != nil {
			d.workflow.Stop()
			d.removePID()
			d.unlock()
			return fmt.Errorf("start api server: %w", err)
		}
	}

	d.running.Store(true)
	d.logger.Info("murmur daemon started",
		logging.String("lock", d.lockPath),
		logging.String("queue_db", d.store.Path()),
	)
	return nil
}

// Stop halts processing, shuts the API server down, and releases the lock
// and PID file. Safe to call more than once.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.workflow.Stop()

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("api server shutdown", logging.Error(err))
		}
		cancel()
	}

	d.removePID()
	d.unlock()
	d.running.Store(false)
	d.logger.Info("murmur daemon stopped")
}

// Close stops the daemon. The queue store stays open; its owner closes it.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Running reports whether Start succeeded and Stop has not yet run.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the bound API listener address, or empty when the server
// is disabled or not started.
func (d *Daemon) APIAddr() string {
	if d.server == nil {
		return ""
	}
	return d.server.Addr()
}

func (d *Daemon) unlock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

func (d *Daemon) removePID() {
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
}

// WritePIDFile records the current process ID at path.
func WritePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPIDFile parses the process ID recorded at path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("pid file %s holds invalid pid %d", path, pid)
	}
	return pid, nil
}

// ProcessAlive reports whether a process with the given ID exists. EPERM
// counts as alive: the process exists, it just belongs to someone else.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}
