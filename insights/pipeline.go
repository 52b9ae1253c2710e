/*
pipeline.go - Trigger/query orchestration

PURPOSE:
  Runs load -> aggregate -> detect -> export on demand and publishes the
  resulting Snapshot for readers.

CONCURRENCY:
  - One run at a time. A trigger that arrives while a run is in flight is
    rejected immediately with ErrBusy; it is not queued.
  - The current snapshot sits behind an atomic pointer. A run builds its
    snapshot completely, saves it to the store, and only then swaps the
    pointer. Readers never observe a half-built result.
  - A failed run publishes nothing. The previous snapshot stays current in
    memory and in the store.
  - Exclusive holds the same guard for callers that rewrite the source
    directory (scenario loading), so a run never sees a half-written set.

USAGE:
  p := insights.New(insights.NewLoader(norm, logger), insights.Options{Store: store})
  _ = p.Restore(ctx)                  // pick up the last persisted snapshot
  run, err := p.Trigger(ctx, "./data")
  snap, run, ok := p.Latest()

SEE ALSO:
  - loader.go, aggregate.go, anomaly.go, export.go: The stages
  - store/memory.go, ../store/sqlite, ../store/file: SnapshotStore implementations
*/
package insights

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("github.com/warp/insights-engine/insights")

// RecordLoader produces the unified record batch for a source directory.
// *Loader is the production implementation.
type RecordLoader interface {
	Load(ctx context.Context, dir string) (*Batch, error)
}

// RunObserver is notified once per trigger attempt. err is nil on success;
// rejected triggers report ErrBusy with a zero Run.
type RunObserver interface {
	RunFinished(run Run, err error)
}

// Options configures a Pipeline. Every field is optional.
type Options struct {
	Detect   DetectOptions
	Store    SnapshotStore
	Observer RunObserver
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Pipeline owns the current snapshot.
type Pipeline struct {
	loader   RecordLoader
	detect   DetectOptions
	store    SnapshotStore
	observer RunObserver
	logger   *slog.Logger
	clock    func() time.Time

	guard   *semaphore.Weighted
	current atomic.Pointer[published]
}

type published struct {
	snap Snapshot
	run  Run
}

// New creates a pipeline around loader.
func New(loader RecordLoader, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Pipeline{
		loader:   loader,
		detect:   opts.Detect.withDefaults(),
		store:    opts.Store,
		observer: opts.Observer,
		logger:   logger.With(slog.String("component", "pipeline")),
		clock:    clock,
		guard:    semaphore.NewWeighted(1),
	}
}

// Trigger runs the pipeline over dir and blocks until it finishes. On success
// the new snapshot becomes current and its Run is returned.
func (p *Pipeline) Trigger(ctx context.Context, dir string) (*Run, error) {
	if !p.guard.TryAcquire(1) {
		p.logger.WarnContext(ctx, "Trigger rejected, run in flight", slog.String("dir", dir))
		p.notify(Run{}, ErrBusy)
		return nil, ErrBusy
	}
	defer p.guard.Release(1)

	ctx, span := tracer.Start(ctx, "insights.trigger")
	span.SetAttributes(attribute.String("source_dir", dir))
	defer span.End()

	run := Run{ID: uuid.New(), SourceDir: dir, StartedAt: p.clock().UTC()}
	p.logger.InfoContext(ctx, "Pipeline run started",
		slog.String("run_id", run.ID.String()),
		slog.String("dir", dir))

	snap, err := p.execute(ctx, &run)
	run.FinishedAt = p.clock().UTC()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.ErrorContext(ctx, "Pipeline run failed",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()))
		p.notify(run, err)
		return nil, err
	}

	if p.store != nil {
		if err := p.store.Save(ctx, snap, run); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.notify(run, err)
			return nil, err
		}
	}
	p.current.Store(&published{snap: snap, run: run})

	p.logger.InfoContext(ctx, "Pipeline run completed",
		slog.String("run_id", run.ID.String()),
		slog.Int("records", run.Records),
		slog.Int("anomalies", run.Anomalies),
		slog.Duration("duration", run.Duration()))
	p.notify(run, nil)

	out := run
	return &out, nil
}

// Exclusive runs fn while holding the in-flight guard, so no run can read
// the source directory while fn changes it. Like Trigger it does not wait:
// when a run is in flight it returns ErrBusy without calling fn.
func (p *Pipeline) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if !p.guard.TryAcquire(1) {
		p.logger.WarnContext(ctx, "Exclusive section rejected, run in flight")
		return ErrBusy
	}
	defer p.guard.Release(1)
	return fn(ctx)
}

func (p *Pipeline) execute(ctx context.Context, run *Run) (Snapshot, error) {
	loadCtx, span := tracer.Start(ctx, "insights.load")
	batch, err := p.loader.Load(loadCtx, run.SourceDir)
	span.End()
	if err != nil {
		return Snapshot{}, err
	}

	run.Archives = append([]string(nil), batch.Archives...)
	run.Files = len(batch.Files)
	run.Records = len(batch.Records)

	_, span = tracer.Start(ctx, "insights.aggregate")
	snap, det := Compute(batch.Records, p.detect)
	span.SetAttributes(
		attribute.Int("records", len(batch.Records)),
		attribute.Int("anomalies", len(det.Flags)))
	span.End()

	run.Anomalies = len(det.Flags)
	return snap, nil
}

// Compute is the pure part of a run: aggregation, detection and export over
// an already loaded record set.
func Compute(records []CanonicalRecord, opts DetectOptions) (Snapshot, Detection) {
	periods := AggregateByPeriod(records)
	aggs := AggregateByEntity(records)
	det := Detect(aggs, opts)
	return BuildSnapshot(periods, det.Flags, len(records), Summarize(records, aggs, det)), det
}

// Latest returns the current snapshot and the run that produced it. ok is
// false until a run has completed (or Restore found a stored snapshot). The
// returned values are shared and must not be modified.
func (p *Pipeline) Latest() (*Snapshot, *Run, bool) {
	cur := p.current.Load()
	if cur == nil {
		return nil, nil, false
	}
	return &cur.snap, &cur.run, true
}

// Restore publishes the snapshot held by the store, if any. It is meant for
// start-up; an empty store is not an error.
func (p *Pipeline) Restore(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	snap, run, err := p.store.Load(ctx)
	if errors.Is(err, ErrNotTriggered) {
		return nil
	}
	if err != nil {
		return err
	}
	p.current.CompareAndSwap(nil, &published{snap: *snap, run: *run})
	p.logger.InfoContext(ctx, "Restored snapshot",
		slog.String("run_id", run.ID.String()),
		slog.Time("finished_at", run.FinishedAt))
	return nil
}

func (p *Pipeline) notify(run Run, err error) {
	if p.observer != nil {
		p.observer.RunFinished(run, err)
	}
}
