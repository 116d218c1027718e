// Package app wires historian stores, the migration steps and the report
// outputs into the commands the CLI exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/histsync/internal/adapters/archive"
	"github.com/okian/histsync/internal/adapters/http/api"
	"github.com/okian/histsync/internal/adapters/notify"
	"github.com/okian/histsync/internal/adapters/repository"
	"github.com/okian/histsync/internal/config"
	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/internal/report"
	"github.com/okian/histsync/pkg/logger"
	"github.com/okian/histsync/pkg/retry"
)

// Command names recorded in reports.
const (
	CommandMigrate = "migrate"
	CommandPoints  = "points"
)

// Run phases exposed through GetStats.
const (
	phaseIdle    = "idle"
	phaseCatalog = "catalog"
	phaseValues  = "values"
	phasePublish = "publish"
	phaseDone    = "done"
)

const serverShutdownTimeout = 5 * time.Second

// progress is the live state of the current or last run.
type progress struct {
	runID             string
	command           string
	phase             string
	startedAt         time.Time
	sourcePoints      int
	destinationPoints int
	created           int
	pairs             int
	pointsDone        int
	valuesCopied      int
	failures          int
}

// Engine runs migrations and the maintenance commands. It holds the
// configuration and everything derived from it; there is no global state.
type Engine struct {
	cfg     *config.Config
	log     logger.Logger
	now     func() time.Time
	open    OpenFunc
	retryer *retry.Retryer

	// Injected stores; nil means open from the configuration.
	source      repository.Historian
	destination repository.Historian

	archiver *archive.Archiver
	notifier notify.Notifier

	running atomic.Bool

	mu   sync.RWMutex
	live progress
}

// New creates an Engine for cfg. Archive and mail outputs are built from the
// configuration unless replaced by options.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.New(ctx)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:  cfg,
		log:  logger.Nop(),
		now:  time.Now,
		open: repository.Open,
		live: progress{phase: phaseIdle},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.retryer = retry.New(
		retry.WithMaxAttempts(cfg.RetryMaxAttempts),
		retry.WithInitialBackoff(cfg.RetryInitialBackoff()),
		retry.WithRetryIf(retry.IsTransient),
	)

	if e.archiver == nil {
		a, err := e.buildArchiver(ctx)
		if err != nil {
			return nil, err
		}
		e.archiver = a
	}
	if e.notifier == nil {
		n, err := e.buildNotifier()
		if err != nil {
			return nil, err
		}
		if n != nil {
			e.notifier = n
		}
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

func (e *Engine) buildArchiver(ctx context.Context) (*archive.Archiver, error) {
	var backends []archive.Backend
	if e.cfg.ReportDir != "" {
		backends = append(backends, archive.NewLocalBackend(e.cfg.ReportDir))
	}
	if e.cfg.ArchiveBucket != "" {
		s3, err := archive.NewS3Backend(ctx, archive.S3Config{
			Bucket:          e.cfg.ArchiveBucket,
			Region:          e.cfg.ArchiveRegion,
			Endpoint:        e.cfg.ArchiveEndpoint,
			Prefix:          e.cfg.ArchivePrefix,
			AccessKeyID:     e.cfg.ArchiveAccessKeyID,
			SecretAccessKey: e.cfg.ArchiveSecretAccessKey,
			UsePathStyle:    e.cfg.ArchiveEndpoint != "",
		}, archive.WithRetryer(retry.New(
			retry.WithMaxAttempts(e.cfg.RetryMaxAttempts),
			retry.WithInitialBackoff(e.cfg.RetryInitialBackoff()),
		)))
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		backends = append(backends, s3)
	}
	if len(backends) == 0 {
		return nil, nil
	}
	return archive.New(backends, archive.WithLogger(e.log.Named("archive")))
}

// buildNotifier returns a nil Mailer when mail is not configured.
func (e *Engine) buildNotifier() (*notify.Mailer, error) {
	to := config.Recipients(e.cfg.MailTo)
	if e.cfg.MailFrom == "" || len(to) == 0 {
		return nil, nil
	}
	if e.cfg.SMTPAddr == "" && e.cfg.MailPickupDir == "" {
		return nil, nil
	}

	opts := []notify.Option{
		notify.WithCC(config.Recipients(e.cfg.MailCC)...),
		notify.WithLogger(e.log.Named("notify")),
		notify.WithClock(e.now),
		notify.WithSendTimeout(time.Duration(e.cfg.SMTPTimeoutMS) * time.Millisecond),
	}
	if e.cfg.SMTPAddr != "" {
		opts = append(opts, notify.WithSMTP(e.cfg.SMTPAddr, e.cfg.SMTPUsername, e.cfg.SMTPPassword))
	}
	if e.cfg.MailPickupDir != "" {
		opts = append(opts, notify.WithPickupDir(e.cfg.MailPickupDir))
	}
	m, err := notify.NewMailer(e.cfg.MailFrom, to, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	return m, nil
}

// ParseSide maps a store name to a migration side.
func ParseSide(s string) (model.Side, error) {
	switch model.Side(s) {
	case model.SideSource, model.SideDestination:
		return model.Side(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSide, s)
	}
}

func (e *Engine) endpoint(side model.Side) (driver, dsn string) {
	if side == model.SideSource {
		return e.cfg.SourceDriver, e.cfg.SourceDSN
	}
	return e.cfg.DestinationDriver, e.cfg.DestinationDSN
}

// store opens one side. The returned release func closes what was opened.
func (e *Engine) store(ctx context.Context, side model.Side) (repository.Historian, func() error, error) {
	injected := e.source
	if side == model.SideDestination {
		injected = e.destination
	}
	if injected != nil {
		return repository.Instrument(injected, string(side)), func() error { return nil }, nil
	}

	driver, dsn := e.endpoint(side)
	h, err := e.open(ctx, driver, dsn,
		repository.WithLogger(e.log.Named(string(side))),
		repository.WithRetryer(e.retryer),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", side, err)
	}
	e.log.Debug(ctx, "store opened",
		logger.String("side", string(side)),
		logger.String("driver", driver),
		logger.String("dsn", dsn))
	return repository.Instrument(h, string(side)), h.Close, nil
}

// stores opens both sides.
func (e *Engine) stores(ctx context.Context) (src, dst repository.Historian, release func() error, err error) {
	src, closeSrc, err := e.store(ctx, model.SideSource)
	if err != nil {
		return nil, nil, nil, err
	}
	dst, closeDst, err := e.store(ctx, model.SideDestination)
	if err != nil {
		return nil, nil, nil, errors.Join(err, closeSrc())
	}
	return src, dst, func() error { return errors.Join(closeDst(), closeSrc()) }, nil
}

// begin claims the engine for one run and starts its report.
func (e *Engine) begin(command string) (*report.Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	rep := report.New(id.String(), command, e.now())

	e.mu.Lock()
	e.live = progress{runID: rep.RunID, command: command, phase: phaseIdle, startedAt: rep.StartedAt}
	e.mu.Unlock()
	return rep, nil
}

func (e *Engine) end() {
	e.setPhase(phaseDone)
	e.running.Store(false)
}

func (e *Engine) setPhase(phase string) {
	e.mu.Lock()
	e.live.phase = phase
	e.mu.Unlock()
}

func (e *Engine) update(fn func(p *progress)) {
	e.mu.Lock()
	fn(&e.live)
	e.mu.Unlock()
}

// serve starts the side server when metrics_addr is set. A bind failure is
// logged and the run goes on without it.
func (e *Engine) serve(ctx context.Context) func() {
	if e.cfg.MetricsAddr == "" {
		return func() {}
	}
	l, err := api.Listen(ctx, e.cfg.MetricsAddr, api.NewServer(e).Handler(), e.log.Named("http"))
	if err != nil {
		e.log.Warn(ctx, "side server not started", logger.String("addr", e.cfg.MetricsAddr), logger.Error(err))
		return func() {}
	}
	return func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
		defer cancel()
		if err := l.Shutdown(sctx); err != nil {
			e.log.Warn(sctx, "side server shutdown failed", logger.Error(err))
		}
	}
}

// GetStats returns live run statistics for monitoring.
func (e *Engine) GetStats() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	l := e.live
	stats := map[string]any{
		"running":     e.running.Load(),
		"phase":       l.phase,
		"workerCount": e.cfg.WorkerCount,
		"pageSize":    e.cfg.PageSize,
	}
	if l.runID == "" {
		return stats
	}
	stats["runId"] = l.runID
	stats["command"] = l.command
	stats["startedAt"] = l.startedAt.Format(time.RFC3339)
	stats["sourcePoints"] = l.sourcePoints
	stats["destinationPoints"] = l.destinationPoints
	stats["pointsCreated"] = l.created
	stats["pairs"] = l.pairs
	stats["pointsDone"] = l.pointsDone
	stats["valuesCopied"] = l.valuesCopied
	stats["failures"] = l.failures
	return stats
}
