// Package orchestrator runs one pass over the watch directory.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/csvevents/internal/archiver"
	"github.com/brensch/csvevents/internal/config"
	"github.com/brensch/csvevents/internal/db"
	"github.com/brensch/csvevents/internal/emitter"
	"github.com/brensch/csvevents/internal/lock"
	"github.com/brensch/csvevents/internal/mapping"
	"github.com/brensch/csvevents/internal/processor"
	"github.com/brensch/csvevents/internal/util"
)

var (
	// ErrAlreadyRunning is returned when another instance holds the PID lock.
	// It is a normal outcome, not a failure.
	ErrAlreadyRunning = errors.New("an instance of csvEvents is already running")
	// ErrConfig wraps every problem found before the watch directory is scanned.
	ErrConfig = errors.New("configuration error")
)

// Options controls a single run.
type Options struct {
	Config config.Config

	// Testing writes events to local files instead of forwarding them.
	Testing      bool
	OutputDir    string
	OutputFormat string

	// RestartCounter and RestartModule are recorded with the run and
	// otherwise unused.
	RestartCounter string
	RestartModule  string

	// Progress, when set, receives per-file updates and is closed when Run returns.
	Progress chan<- processor.Progress

	// NewEmitter replaces emitter.New.
	NewEmitter func(emitter.Options) (emitter.Emitter, error)
	// Mirror replaces the S3 mirror built from the archive settings.
	Mirror archiver.Mirror
	Now    func() time.Time
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	// LastRun is the start of the previous completed run, or StartedAt
	// minus the default lookback when there was none.
	LastRun time.Time
	State   State
	Status  string
	db.RunStats
	Files []processor.FileResult
}

// Run locks, validates configuration, then processes every file in the
// watch directory once. File-level failures are logged and counted; the
// returned error is only set for lock contention, configuration problems,
// a failed directory listing or cancellation.
func Run(ctx context.Context, opts Options, logger *slog.Logger) (Summary, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewEmitter == nil {
		opts.NewEmitter = emitter.New
	}
	if opts.Progress != nil {
		defer close(opts.Progress)
	}

	r := &run{opts: opts, cfg: opts.Config, logger: logger}
	r.summary.State = StateIdle
	r.summary.RunID = uuid.NewString()
	r.summary.StartedAt = opts.Now().UTC()
	r.logger = logger.With(slog.String("run_id", r.summary.RunID))
	defer r.enter(StateDone)

	r.enter(StateLocking)
	pidLock, err := lock.Acquire(r.cfg.PidFile)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			r.logger.Info("An instance of csvEvents is already running")
			return r.summary, ErrAlreadyRunning
		}
		r.logger.Error("Failed to acquire lock.", slog.String("pid_file", r.cfg.PidFile), slog.Any("error", err))
		return r.summary, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	defer func() {
		if err := pidLock.Release(); err != nil {
			r.logger.Warn("Failed to release lock.", slog.Any("error", err))
		}
	}()

	r.enter(StateConfigValidating)
	if err := r.setup(ctx); err != nil {
		r.logger.Error("Configuration is invalid, nothing was processed.", slog.Any("error", err))
		r.teardown()
		return r.summary, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	defer r.teardown()

	if opts.RestartCounter != "" {
		r.logger.Info("Restart values supplied; they are recorded only.",
			slog.String("counter", opts.RestartCounter), slog.String("module", opts.RestartModule))
	}
	if err := db.StartRun(ctx, r.conn, r.summary.RunID, r.summary.StartedAt, opts.RestartCounter, opts.RestartModule); err != nil {
		r.logger.Error("Failed to record run start.", slog.Any("error", err))
		return r.summary, err
	}

	r.enter(StateScanning)
	runErr := r.scan(ctx)

	status := db.RunCompleted
	switch {
	case ctx.Err() != nil:
		status = db.RunInterrupted
	case runErr != nil || r.summary.FilesFailed > 0:
		status = db.RunFailed
	}
	r.summary.Status = status
	r.summary.FinishedAt = opts.Now().UTC()

	// The run log must be written even when ctx was cancelled.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := db.FinishRun(finishCtx, r.conn, r.summary.RunID, status, r.summary.RunStats); err != nil {
		r.logger.Error("Failed to record run end.", slog.Any("error", err))
		runErr = errors.Join(runErr, err)
	}

	r.logger.Info("Run finished.",
		slog.String("status", status),
		slog.Int("files_seen", r.summary.FilesSeen),
		slog.Int("files_processed", r.summary.FilesProcessed),
		slog.Int("files_skipped", r.summary.FilesSkipped),
		slog.Int("files_failed", r.summary.FilesFailed),
		slog.Int64("events_emitted", r.summary.EventsEmitted),
		slog.Duration("duration", r.summary.FinishedAt.Sub(r.summary.StartedAt)))
	return r.summary, runErr
}

// run holds what a single pass needs once configuration is validated.
type run struct {
	opts    Options
	cfg     config.Config
	logger  *slog.Logger
	summary Summary

	conn       *sql.DB
	mappings   mapping.FieldMappings
	classifier *mapping.Classifier
	localizer  *util.Localizer
	emitter    emitter.Emitter
	archiver   *archiver.Archiver
}

func (r *run) enter(s State) {
	r.logger.Debug("Run state.", slog.String("from", r.summary.State.String()), slog.String("to", s.String()))
	r.summary.State = s
}

// setup validates configuration, loads mapping tables and opens the state
// database, the emitter and the archiver.
func (r *run) setup(ctx context.Context) error {
	if err := r.cfg.Validate(); err != nil {
		return err
	}

	var markers []config.Marker
	switch r.cfg.Variant {
	case config.VariantEventMappings:
		m, err := mapping.LoadEventMappings(r.cfg.EventMappingsFile)
		if err != nil {
			return err
		}
		markers = m
		r.localizer = util.NewLocalizer(r.cfg.TimezoneName, r.cfg.TimezoneFields, r.logger)
	default:
		markers = r.cfg.PrefixMarkers()
		r.localizer = util.NewLocalizer("", nil, r.logger)
	}
	r.classifier = mapping.NewClassifier(markers)

	mappings, err := mapping.LoadFieldMappings(r.cfg.FieldMappingsFile)
	if err != nil {
		return err
	}
	if err := mappings.Require(r.classifier.DataTypes()...); err != nil {
		return err
	}
	r.mappings = mappings

	if err := os.MkdirAll(r.cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir %s: %w", r.cfg.StateDir, err)
	}
	conn, err := db.Open(ctx, r.cfg.StateDBPath())
	if err != nil {
		return err
	}
	r.conn = conn
	if err := db.InitializeSchema(conn); err != nil {
		return err
	}

	last, found, err := db.GetLastRun(ctx, conn)
	if err != nil {
		return err
	}
	if !found {
		last = r.summary.StartedAt.Add(-config.DefaultLookback)
	}
	r.summary.LastRun = last
	r.logger.Info("Starting run.",
		slog.String("last_run", last.Format(config.TimestampLayout)),
		slog.Bool("last_run_recorded", found),
		slog.String("watch_dir", r.cfg.WatchDir),
		slog.Bool("testing", r.opts.Testing))

	em, err := r.opts.NewEmitter(emitter.Options{
		Testing:      r.opts.Testing,
		OutputDir:    r.opts.OutputDir,
		OutputFormat: r.opts.OutputFormat,
		Forwarder:    r.cfg.Forwarder,
		Mappings:     mappings,
		Now:          r.opts.Now,
		Logger:       r.logger,
	})
	if err != nil {
		return err
	}
	r.emitter = em

	archiveOpts := []archiver.Option{archiver.WithClock(r.opts.Now)}
	mirror := r.opts.Mirror
	if mirror == nil && r.cfg.Archive.S3Bucket != "" {
		s3m, err := archiver.NewS3Mirror(ctx, r.cfg.Archive.S3Bucket, r.cfg.Archive.S3Prefix, r.cfg.Archive.S3Region)
		if err != nil {
			r.logger.Error("S3 mirror unavailable, archived files stay local only.", slog.Any("error", err))
		} else {
			mirror = s3m
		}
	}
	if mirror != nil {
		archiveOpts = append(archiveOpts, archiver.WithMirror(mirror))
	}
	r.archiver = archiver.New(r.cfg.WatchDir, r.cfg.BackupDir, r.logger, archiveOpts...)
	return nil
}

func (r *run) teardown() {
	if r.emitter != nil {
		if err := r.emitter.Close(); err != nil {
			r.logger.Error("Failed to close emitter.", slog.Any("error", err))
		}
		r.emitter = nil
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.logger.Warn("Failed to close state db.", slog.Any("error", err))
		}
		r.conn = nil
	}
}
