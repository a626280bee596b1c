package ingest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"twittersphere/internal/models"
)

// Decoder turns one raw page into a bundle.
type Decoder func(raw []byte) (*models.Bundle, error)

// batch is a run of consecutive pages handed to one worker.
type batch struct {
	seq   int
	pages []RawPage
	bytes int
}

func (b *batch) add(p RawPage) {
	b.pages = append(b.pages, p)
	b.bytes += len(p.Data)
}

// decodedPage carries either a bundle or the decode error for one page.
type decodedPage struct {
	Source string
	Line   int
	Bundle *models.Bundle
	Err    error
}

// batchResult is the future of one submitted batch. Err is set when the batch
// as a whole failed; per-page decode failures live on the pages.
type batchResult struct {
	seq   int
	bytes int
	pages []decodedPage
	err   error
}

// pool is a fixed set of stateless decode workers. Results arrive on results in
// completion order, not submission order.
type pool struct {
	decode  Decoder
	tasks   chan batch
	results chan batchResult
	limit   int
	pending int
	g       errgroup.Group
}

// newPool starts workers goroutines. At most workers+1 batches may be in
// flight: one per worker plus one queued. results is sized so that workers
// never block delivering one.
func newPool(workers int, decode Decoder) *pool {
	if workers < 1 {
		workers = 1
	}
	p := &pool{
		decode:  decode,
		tasks:   make(chan batch, 1),
		results: make(chan batchResult, workers+1),
		limit:   workers + 1,
	}
	for i := 0; i < workers; i++ {
		p.g.Go(p.work)
	}
	return p
}

func (p *pool) work() error {
	for b := range p.tasks {
		p.results <- p.run(b)
	}
	return nil
}

func (p *pool) run(b batch) (res batchResult) {
	res = batchResult{seq: b.seq, bytes: b.bytes}
	defer func() {
		if r := recover(); r != nil {
			res.pages = nil
			res.err = fmt.Errorf("decode worker panic in batch %d: %v", b.seq, r)
		}
	}()

	res.pages = make([]decodedPage, 0, len(b.pages))
	for _, pg := range b.pages {
		bundle, err := p.decode(pg.Data)
		res.pages = append(res.pages, decodedPage{Source: pg.Source, Line: pg.Line, Bundle: bundle, Err: err})
	}
	return res
}

// full reports whether the in-flight limit has been reached.
func (p *pool) full() bool {
	return p.pending >= p.limit
}

// submit hands b to a worker. Callers must drain a result first when full.
func (p *pool) submit(ctx context.Context, b batch) error {
	if p.full() {
		return fmt.Errorf("submit batch %d: %d batches already in flight", b.seq, p.pending)
	}
	select {
	case p.tasks <- b:
		p.pending++
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// next blocks for one completed batch.
func (p *pool) next(ctx context.Context) (batchResult, error) {
	select {
	case r := <-p.results:
		p.pending--
		return r, nil
	case <-ctx.Done():
		return batchResult{}, ctx.Err()
	}
}

// ready returns completed batches without blocking.
func (p *pool) ready() []batchResult {
	var out []batchResult
	for {
		select {
		case r := <-p.results:
			p.pending--
			out = append(out, r)
		default:
			return out
		}
	}
}

func (p *pool) inFlight() int {
	return p.pending
}

// stop closes the task queue and waits for the workers to exit. Undrained
// results are discarded.
func (p *pool) stop() {
	close(p.tasks)
	p.g.Wait() //nolint:errcheck
}
