package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"twittersphere/internal/spheredb"
)

// GenerationState is the lifecycle position of a staging generation.
type GenerationState int32

const (
	StateOpen GenerationState = iota
	StateSealed
	StateMerging
	StateRetired
)

func (s GenerationState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateSealed:
		return "SEALED"
	case StateMerging:
		return "MERGING"
	case StateRetired:
		return "RETIRED"
	}
	return fmt.Sprintf("GenerationState(%d)", int32(s))
}

// Generation is an in-memory staging store. Only the writer touches it while
// OPEN; once sealed it belongs to the flush coordinator.
type Generation struct {
	ID    int
	db    *sql.DB
	state atomic.Int32
	pages int
}

func newGeneration(ctx context.Context, id int) (*Generation, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// An in-memory database lives and dies with its connection, so the pool
	// must hold exactly one and never recycle it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := spheredb.InstallSchema(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "install staging schema for generation %d", id)
	}
	return &Generation{ID: id, db: db}, nil
}

func (g *Generation) State() GenerationState {
	return GenerationState(g.state.Load())
}

func (g *Generation) transition(from, to GenerationState) error {
	if !g.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("generation %d: cannot move to %s from %s", g.ID, to, g.State())
	}
	return nil
}

// applyOutcome tallies one applied batch.
type applyOutcome struct {
	applied int
	skipped int
}

// Apply writes the decoded pages of one batch inside a single transaction, one
// savepoint per bundle. With skip set, a bundle that fails is rolled back and
// reported to onSkip; otherwise the whole transaction is rolled back and the
// page's error returned.
func (g *Generation) Apply(ctx context.Context, pages []decodedPage, skip bool, onSkip func(decodedPage, error)) (applyOutcome, error) {
	var out applyOutcome
	if s := g.State(); s != StateOpen {
		return out, fmt.Errorf("generation %d is %s, writes need OPEN", g.ID, s)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return out, errors.Wrap(err, "begin staging transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	ri := newRecordInserter(tx)
	defer ri.Close() //nolint:errcheck

	for _, pg := range pages {
		if pg.Bundle == nil {
			continue
		}
		if err := ri.Apply(ctx, pg.Bundle); err != nil {
			perr := &PageError{Source: pg.Source, Line: pg.Line, Err: err}
			if !skip {
				return applyOutcome{}, perr
			}
			out.skipped++
			if onSkip != nil {
				onSkip(pg, perr)
			}
			continue
		}
		out.applied++
	}

	if err := ri.Close(); err != nil {
		return applyOutcome{}, errors.Wrap(err, "close statements")
	}
	if err := tx.Commit(); err != nil {
		return applyOutcome{}, errors.Wrap(err, "commit staging transaction")
	}
	g.pages += out.applied
	return out, nil
}

// Size is the allocated size of the staging store in bytes.
func (g *Generation) Size(ctx context.Context) (int64, error) {
	return spheredb.SizeBytes(ctx, g.db)
}

// Pages is the number of bundles applied so far.
func (g *Generation) Pages() int {
	return g.pages
}

// Seal freezes the generation. The caller must not use it afterwards except to
// hand it to the flush coordinator.
func (g *Generation) Seal() error {
	return g.transition(StateOpen, StateSealed)
}

// mergeStats describes one completed merge.
type mergeStats struct {
	Rows     int64
	Duration time.Duration
}

// merge copies every table into the store at targetPath, one table at a time in
// key order, inside a single transaction on the target. The generation is
// retired and its memory released whether or not the merge succeeds.
func (g *Generation) merge(ctx context.Context, targetPath string, logger *zap.Logger) (mergeStats, error) {
	var st mergeStats
	if err := g.transition(StateSealed, StateMerging); err != nil {
		return st, err
	}
	defer g.retire()
	start := time.Now()

	if g.pages == 0 {
		return st, nil
	}

	if _, err := g.db.ExecContext(ctx, `ATTACH DATABASE ? AS target`, targetPath); err != nil {
		return st, errors.Wrap(err, "attach target")
	}
	defer g.db.ExecContext(context.WithoutCancel(ctx), `DETACH DATABASE target`) //nolint:errcheck

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return st, errors.Wrap(err, "begin merge")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, t := range spheredb.Tables {
		res, err := tx.ExecContext(ctx, t.MergeSQL("main", "target"))
		if err != nil {
			return st, errors.Wrapf(err, "merge %s", t.Name)
		}
		n, _ := res.RowsAffected()
		st.Rows += n
		logger.Debug("merged table", zap.Int("generation", g.ID), zap.String("table", t.Name), zap.Int64("rows", n))
	}
	if err := tx.Commit(); err != nil {
		return st, errors.Wrap(err, "commit merge")
	}
	st.Duration = time.Since(start)
	return st, nil
}

func (g *Generation) retire() {
	g.db.Close()
	g.state.Store(int32(StateRetired))
}

// discard releases an OPEN generation without merging it.
func (g *Generation) discard() {
	g.retire()
}
