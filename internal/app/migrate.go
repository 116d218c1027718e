package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/histsync/internal/adapters/mq/queue"
	"github.com/okian/histsync/internal/adapters/mq/worker"
	"github.com/okian/histsync/internal/adapters/repository"
	"github.com/okian/histsync/internal/domain/catalog"
	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/internal/domain/pager"
	"github.com/okian/histsync/internal/domain/values"
	"github.com/okian/histsync/internal/report"
	"github.com/okian/histsync/pkg/logger"
	"github.com/okian/histsync/pkg/metrics"
)

// Migrate reconciles the catalog and then copies the configured range. The
// report is returned even when the run fails; it is archived and mailed
// before Migrate returns.
func (e *Engine) Migrate(ctx context.Context) (*report.Report, error) {
	return e.run(ctx, CommandMigrate, true)
}

// Points reconciles the catalog only.
func (e *Engine) Points(ctx context.Context) (*report.Report, error) {
	return e.run(ctx, CommandPoints, false)
}

func (e *Engine) run(ctx context.Context, command string, copyValues bool) (*report.Report, error) {
	rep, err := e.begin(command)
	if err != nil {
		return nil, err
	}
	defer e.end()

	stop := e.serve(ctx)
	defer stop()

	e.log.Info(ctx, "run started",
		logger.String("run_id", rep.RunID),
		logger.String("command", command),
		logger.String("query", e.cfg.PointQuery))

	runErr := e.execute(ctx, rep, copyValues)
	rep.Finish(e.now(), runErr)
	metrics.RecordRun(string(rep.Outcome), rep.Duration())

	fields := []logger.Field{
		logger.String("run_id", rep.RunID),
		logger.String("outcome", string(rep.Outcome)),
		logger.Int("points_created", rep.PointsCreated),
		logger.Int("points_copied", rep.PointsCopied),
		logger.Int("values_copied", rep.ValuesCopied),
		logger.Int("failures", len(rep.Failures)),
		logger.Duration("duration", rep.Duration()),
	}
	if runErr != nil {
		e.log.Error(ctx, "run failed", append(fields, logger.Error(runErr))...)
	} else {
		e.log.Info(ctx, "run finished", fields...)
	}

	// A cancelled run still reports what it did.
	e.publish(context.WithoutCancel(ctx), rep)
	return rep, runErr
}

func (e *Engine) execute(ctx context.Context, rep *report.Report, copyValues bool) (err error) {
	srcDriver, srcDSN := e.endpoint(model.SideSource)
	dstDriver, dstDSN := e.endpoint(model.SideDestination)
	rep.Source = srcDriver + ":" + srcDSN
	rep.Destination = dstDriver + ":" + dstDSN
	rep.Query = e.cfg.PointQuery

	var r model.TimeRange
	if copyValues {
		start, end, err := e.cfg.Range(e.now())
		if err != nil {
			return err
		}
		if r, err = model.NewTimeRange(start, end); err != nil {
			return err
		}
		rep.RangeStart, rep.RangeEnd = r.Start, r.End
		rep.Filter = e.cfg.ValueFilter
	}

	src, dst, release, err := e.stores(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, release())
	}()

	corr, err := e.reconcile(ctx, src, dst, rep)
	if err != nil || !copyValues {
		return err
	}
	return e.copyValues(ctx, src, dst, corr, r, rep)
}

func (e *Engine) reconcile(ctx context.Context, src, dst repository.Historian,
	rep *report.Report) (*model.CorrespondenceMap, error) {
	e.setPhase(phaseCatalog)

	syncer, err := catalog.NewSyncer(src, dst,
		catalog.WithPageSize(e.cfg.PageSize),
		catalog.WithLogger(e.log.Named("catalog")),
		catalog.WithProgress(e.onListing),
		catalog.WithCreated(e.onCreated),
	)
	if err != nil {
		return nil, err
	}
	corr, sum, err := syncer.Reconcile(ctx, model.MigrationQuery{
		Filter:     e.cfg.PointQuery,
		Attributes: e.cfg.PointAttributes,
	})
	rep.ApplyCatalog(sum)
	if err != nil {
		return nil, fmt.Errorf("reconcile catalog: %w", err)
	}
	return corr, nil
}

func (e *Engine) copyValues(ctx context.Context, src, dst repository.Historian, corr *model.CorrespondenceMap,
	r model.TimeRange, rep *report.Report) error {
	e.setPhase(phaseValues)
	e.update(func(p *progress) { p.pairs = corr.Len() })

	var filter *string
	if e.cfg.ValueFilter != "" {
		f := e.cfg.ValueFilter
		filter = &f
	}

	syncer, err := values.NewSyncer(src, dst,
		values.WithLogger(e.log.Named("values")),
		values.WithObserver(e.onPoint),
	)
	if err != nil {
		return err
	}

	var vr *values.Report
	if e.cfg.WorkerCount <= 1 {
		vr, err = syncer.SyncRange(ctx, corr, r, filter)
	} else {
		vr, err = e.syncParallel(ctx, syncer, corr, r, filter)
	}
	rep.ApplyValues(vr.Totals())
	if err != nil {
		return fmt.Errorf("copy values: %w", err)
	}
	return nil
}

// syncParallel spreads the pairs over a worker pool. A point failure stays in
// the report; the first fatal error stops the remaining workers.
func (e *Engine) syncParallel(ctx context.Context, syncer *values.Syncer, corr *model.CorrespondenceMap,
	r model.TimeRange, filter *string) (*values.Report, error) {
	rep := &values.Report{}
	pairs := corr.Pairs()

	q := queue.NewInMemoryQueue(queue.WithCapacity(max(len(pairs), 1)))
	for i, p := range pairs {
		if err := q.Enqueue(ctx, queue.Job{Seq: i, Pair: p}); err != nil {
			_ = q.Close()
			return rep, err
		}
	}
	_ = q.Close()

	proc := worker.ProcessorFunc(func(ctx context.Context, j queue.Job) error {
		_, err := syncer.SyncPoint(ctx, j.Pair, r, filter, rep)
		return err
	})
	pool := worker.NewPool(e.cfg.WorkerCount, q, proc,
		worker.WithName("values"),
		worker.WithLogger(e.log),
	)
	e.log.Info(ctx, "copying values in parallel",
		logger.Int("workers", pool.Size()),
		logger.Int("points", len(pairs)))

	pool.Start(ctx)
	if err := pool.Wait(); err != nil {
		return rep, err
	}
	return rep, ctx.Err()
}

func (e *Engine) onListing(side model.Side, p pager.Progress) {
	metrics.RecordPageFetched(string(side))
	metrics.UpdatePointsFound(string(side), p.Total)
	e.update(func(l *progress) {
		if side == model.SideSource {
			l.sourcePoints = p.Total
		} else {
			l.destinationPoints = p.Total
		}
	})
}

func (e *Engine) onCreated(batch, total int) {
	metrics.RecordPointsCreated(batch)
	e.update(func(l *progress) { l.created = total })
}

func (e *Engine) onPoint(o values.Outcome, d time.Duration) {
	metrics.RecordPointCopyLatency(float64(d.Microseconds()) / 1000)
	switch {
	case o.Skipped:
		metrics.RecordPointSkipped()
	case o.Failure != nil:
		metrics.RecordPointWriteFailure()
		metrics.RecordValuesCopied(o.Written)
	default:
		metrics.RecordPointCopied()
		metrics.RecordValuesCopied(o.Written)
	}
	e.update(func(l *progress) {
		l.pointsDone++
		l.valuesCopied += o.Written
		if o.Failure != nil {
			l.failures++
		}
	})
}
