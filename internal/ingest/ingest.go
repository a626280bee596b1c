// Package ingest turns twarc page files into rows of the target store. Pages
// are decoded by a worker pool, written by a single writer into in-memory
// staging generations, and merged into the target by a background flush
// coordinator whenever a generation grows past its size limit.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"twittersphere/internal/decode"
	"twittersphere/internal/spheredb"
)

const (
	DefaultWorkers      = 4
	DefaultBatchBytes   = 1 << 20
	DefaultStagingBytes = 2 << 30
)

// ErrorPolicy decides what happens to a page that fails to decode or insert.
type ErrorPolicy string

const (
	// PolicyAbort fails the whole job on the first bad page.
	PolicyAbort ErrorPolicy = "abort"
	// PolicySkip rolls back the bad page, logs its position and carries on.
	PolicySkip ErrorPolicy = "skip"
)

func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch p := ErrorPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyAbort, nil
	case PolicyAbort, PolicySkip:
		return p, nil
	}
	return "", fmt.Errorf("unknown error policy %q (want abort or skip)", s)
}

// Stage names the part of the pipeline an error came from.
type Stage string

const (
	StageSchema Stage = "schema"
	StageRead   Stage = "read"
	StageDecode Stage = "decode"
	StageInsert Stage = "insert"
	StageFlush  Stage = "flush"
)

// StageError is returned by Run for any failure that ends the job.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PageError locates a page that could not be decoded or inserted.
type PageError struct {
	Source string
	Line   int
	Err    error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Options configure one Run. Zero values fall back to the defaults above.
type Options struct {
	Inputs       []string
	DatabasePath string
	Workers      int
	BatchBytes   int64
	StagingBytes int64
	OnError      ErrorPolicy

	Logger *zap.Logger
	// Decode replaces the page decoder, mostly for tests.
	Decode Decoder
	// Progress, when set, is called from the writer after every drained batch
	// and once more when the job ends.
	Progress func(Progress)
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.BatchBytes <= 0 {
		o.BatchBytes = DefaultBatchBytes
	}
	if o.StagingBytes <= 0 {
		o.StagingBytes = DefaultStagingBytes
	}
	if o.OnError == "" {
		o.OnError = PolicyAbort
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Decode == nil {
		o.Decode = decode.Decode
	}
	return o
}

// Progress is a point-in-time view of a running job.
type Progress struct {
	BytesRead  int64
	BytesTotal int64
	Pages      int
	Bundles    int
	Skipped    int
	Flushes    int
	Done       bool
}

// Summary describes a finished job.
type Summary struct {
	RunID       string
	Pages       int
	Bundles     int
	Skipped     int
	Batches     int
	Generations int
	Flushes     int
	Duration    time.Duration
}

// Run ingests every input file into the store at opts.DatabasePath. It returns
// only after the last generation has been merged or the job has failed; a
// failure is always a *StageError.
func Run(ctx context.Context, opts Options) (Summary, error) {
	opts = opts.withDefaults()
	runID := uuid.NewString()
	w := &writer{
		opts:    opts,
		logger:  opts.Logger.With(zap.String("run", runID)),
		started: time.Now(),
	}
	w.summary.RunID = runID

	store, err := spheredb.Open(ctx, opts.DatabasePath)
	if err != nil {
		return w.summary, &StageError{Stage: StageSchema, Err: err}
	}
	// Merges attach the file from each staging connection, so the guard's
	// own handle is not needed past the version check.
	if err := store.Close(); err != nil {
		return w.summary, &StageError{Stage: StageSchema, Err: err}
	}

	for _, in := range opts.Inputs {
		if fi, err := os.Stat(in); err == nil {
			w.progress.BytesTotal += fi.Size()
		}
	}
	w.logger.Info("prepare started",
		zap.Strings("inputs", opts.Inputs),
		zap.String("database", opts.DatabasePath),
		zap.Int("workers", opts.Workers),
		zap.String("batch_size", humanize.IBytes(uint64(opts.BatchBytes))),
		zap.String("staging_size", humanize.IBytes(uint64(opts.StagingBytes))),
		zap.String("on_error", string(opts.OnError)))

	w.pool = newPool(opts.Workers, opts.Decode)
	w.coord = NewFlushCoordinator(ctx, opts.DatabasePath, w.logger)
	if err := w.rotate(ctx); err != nil {
		w.pool.stop()
		w.coord.Close() //nolint:errcheck
		return w.summary, err
	}

	err = w.ingest(ctx)
	w.pool.stop()
	var serr *StageError
	if err != nil && !errors.As(err, &serr) {
		// Cancellation surfaces while reading or waiting on the pool.
		err = &StageError{Stage: StageRead, Err: err}
	}
	if err == nil {
		err = w.finish(ctx)
	} else if w.gen != nil {
		w.gen.discard()
		w.gen = nil
	}
	if cerr := w.coord.Close(); cerr != nil && err == nil {
		err = &StageError{Stage: StageFlush, Err: cerr}
	}

	w.summary.Flushes = w.coord.Flushes()
	w.summary.Duration = time.Since(w.started)
	w.progress.Done = true
	w.report()

	if err != nil {
		w.logger.Error("prepare failed", zap.Error(err))
		return w.summary, err
	}
	w.logger.Info("prepare finished",
		zap.Int("pages", w.summary.Pages),
		zap.Int("bundles", w.summary.Bundles),
		zap.Int("skipped", w.summary.Skipped),
		zap.Int("generations", w.summary.Generations),
		zap.Int("flushes", w.summary.Flushes),
		zap.Duration("duration", w.summary.Duration))
	return w.summary, nil
}

// writer is the single goroutine that owns the open generation.
type writer struct {
	opts    Options
	logger  *zap.Logger
	started time.Time

	pool  *pool
	coord *FlushCoordinator
	gen   *Generation
	genID int

	reader   *PageReader
	readDone int64

	summary  Summary
	progress Progress
}

func (w *writer) ingest(ctx context.Context) error {
	var cur batch
	seq := 0
	for _, path := range w.opts.Inputs {
		pr, err := OpenPages(path)
		if err != nil {
			return &StageError{Stage: StageRead, Err: err}
		}
		w.reader = pr
		w.logger.Debug("reading input", zap.String("file", path))

		for {
			pg, err := pr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				pr.Close()
				return &StageError{Stage: StageRead, Err: err}
			}
			w.summary.Pages++
			cur.add(pg)
			if int64(cur.bytes) >= w.opts.BatchBytes {
				cur.seq = seq
				seq++
				if err := w.submit(ctx, cur); err != nil {
					pr.Close()
					return err
				}
				cur = batch{}
			}
		}
		w.readDone += pr.BytesRead()
		w.reader = nil
		pr.Close()
	}

	if len(cur.pages) > 0 {
		cur.seq = seq
		if err := w.submit(ctx, cur); err != nil {
			return err
		}
	}
	for w.pool.inFlight() > 0 {
		r, err := w.pool.next(ctx)
		if err != nil {
			return err
		}
		if err := w.absorb(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// submit hands b to the pool, first draining completed batches whenever the
// in-flight limit has been reached.
func (w *writer) submit(ctx context.Context, b batch) error {
	if w.pool.full() {
		r, err := w.pool.next(ctx)
		if err != nil {
			return err
		}
		if err := w.absorb(ctx, r); err != nil {
			return err
		}
		for _, r := range w.pool.ready() {
			if err := w.absorb(ctx, r); err != nil {
				return err
			}
		}
	}
	return w.pool.submit(ctx, b)
}

// absorb applies one completed batch to the open generation, then rotates the
// generation if it has outgrown the staging limit.
func (w *writer) absorb(ctx context.Context, r batchResult) error {
	w.summary.Batches++
	batchesTotal.Inc()
	if r.err != nil {
		return &StageError{Stage: StageDecode, Err: r.err}
	}

	skip := w.opts.OnError == PolicySkip
	good := make([]decodedPage, 0, len(r.pages))
	for _, pg := range r.pages {
		pagesDecoded.Inc()
		if pg.Err != nil {
			perr := &PageError{Source: pg.Source, Line: pg.Line, Err: pg.Err}
			if !skip {
				return &StageError{Stage: StageDecode, Err: perr}
			}
			w.skipped(StageDecode, perr)
			continue
		}
		good = append(good, pg)
	}

	out, err := w.gen.Apply(ctx, good, skip, func(_ decodedPage, err error) {
		w.skipped(StageInsert, err)
	})
	if err != nil {
		return &StageError{Stage: StageInsert, Err: err}
	}
	w.summary.Bundles += out.applied
	bundlesApplied.Add(float64(out.applied))

	size, err := w.gen.Size(ctx)
	if err != nil {
		return &StageError{Stage: StageInsert, Err: errors.Wrap(err, "measure staging size")}
	}
	stagingBytes.Set(float64(size))
	w.logger.Debug("batch applied",
		zap.Int("batch", r.seq),
		zap.Int("generation", w.gen.ID),
		zap.Int("pages", len(r.pages)),
		zap.Int("bytes", r.bytes),
		zap.Int64("staging_bytes", size))

	if size >= w.opts.StagingBytes {
		if err := w.rotate(ctx); err != nil {
			return err
		}
	}
	if err := w.coord.Err(); err != nil {
		return &StageError{Stage: StageFlush, Err: err}
	}
	w.report()
	return nil
}

func (w *writer) skipped(stage Stage, err error) {
	w.summary.Skipped++
	bundlesSkipped.WithLabelValues(string(stage)).Inc()
	fields := []zap.Field{zap.String("stage", string(stage)), zap.Error(err)}
	var perr *PageError
	if errors.As(err, &perr) {
		fields = append(fields, zap.String("file", perr.Source), zap.Int("line", perr.Line))
	}
	w.logger.Warn("page skipped", fields...)
}

// rotate seals the open generation, opens its successor and hands the sealed
// one to the flush coordinator. With no open generation it only opens one.
func (w *writer) rotate(ctx context.Context) error {
	sealed := w.gen
	if sealed != nil {
		if err := sealed.Seal(); err != nil {
			return &StageError{Stage: StageFlush, Err: err}
		}
		w.summary.Generations++
	}

	w.genID++
	g, err := newGeneration(ctx, w.genID)
	if err != nil {
		w.gen = nil
		if sealed != nil {
			sealed.retire()
		}
		return &StageError{Stage: StageInsert, Err: err}
	}
	w.gen = g
	stagingBytes.Set(0)

	if sealed == nil {
		return nil
	}
	w.logger.Info("generation sealed",
		zap.Int("generation", sealed.ID),
		zap.Int("pages", sealed.Pages()))
	if err := w.coord.Submit(ctx, sealed); err != nil {
		return &StageError{Stage: StageFlush, Err: err}
	}
	return nil
}

// finish seals the last generation and queues it, unless it is empty.
func (w *writer) finish(ctx context.Context) error {
	g := w.gen
	w.gen = nil
	if g.Pages() == 0 {
		g.discard()
		return nil
	}
	if err := g.Seal(); err != nil {
		return &StageError{Stage: StageFlush, Err: err}
	}
	w.summary.Generations++
	w.logger.Info("final generation sealed", zap.Int("generation", g.ID), zap.Int("pages", g.Pages()))
	if err := w.coord.Submit(ctx, g); err != nil {
		return &StageError{Stage: StageFlush, Err: err}
	}
	return nil
}

func (w *writer) report() {
	if w.opts.Progress == nil {
		return
	}
	w.progress.BytesRead = w.readDone
	if w.reader != nil {
		w.progress.BytesRead += w.reader.BytesRead()
	}
	w.progress.Pages = w.summary.Pages
	w.progress.Bundles = w.summary.Bundles
	w.progress.Skipped = w.summary.Skipped
	w.progress.Flushes = w.coord.Flushes()
	w.opts.Progress(w.progress)
}
