package ingest

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twittersphere/internal/models"
)

func pagesOf(lines ...string) batch {
	var b batch
	for i, l := range lines {
		b.add(RawPage{Source: "in.jsonl", Line: i + 1, Data: []byte(l)})
	}
	return b
}

func TestPoolIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	errBad := errors.New("bad page")
	p := newPool(2, func(raw []byte) (*models.Bundle, error) {
		switch string(raw) {
		case "bad":
			return nil, errBad
		case "panic":
			panic("decoder blew up")
		}
		return &models.Bundle{}, nil
	})
	defer p.stop()

	batches := []batch{pagesOf("ok", "bad", "ok"), pagesOf("panic"), pagesOf("ok")}
	for i, b := range batches {
		b.seq = i
		require.NoError(t, p.submit(ctx, b))
	}

	var results []batchResult
	for p.inFlight() > 0 {
		r, err := p.next(ctx)
		require.NoError(t, err)
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].seq < results[j].seq })
	require.Len(t, results, 3)

	first := results[0]
	require.NoError(t, first.err)
	require.Len(t, first.pages, 3)
	assert.NoError(t, first.pages[0].Err)
	assert.ErrorIs(t, first.pages[1].Err, errBad)
	assert.Equal(t, 2, first.pages[1].Line)
	assert.NotNil(t, first.pages[2].Bundle)

	assert.ErrorContains(t, results[1].err, "decoder blew up")
	assert.Nil(t, results[1].pages)

	// The pool keeps working after a panic.
	require.NoError(t, results[2].err)
	assert.Len(t, results[2].pages, 1)
}

func TestPoolBoundsInFlightBatches(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	p := newPool(1, func(raw []byte) (*models.Bundle, error) {
		<-release
		return &models.Bundle{}, nil
	})

	require.NoError(t, p.submit(ctx, pagesOf("a")))
	require.NoError(t, p.submit(ctx, pagesOf("b")))
	assert.True(t, p.full())
	assert.Equal(t, 2, p.inFlight())
	assert.Error(t, p.submit(ctx, pagesOf("c")), "a full pool must be drained first")

	close(release)
	_, err := p.next(ctx)
	require.NoError(t, err)
	assert.False(t, p.full())
	require.NoError(t, p.submit(ctx, pagesOf("c")))

	for p.inFlight() > 0 {
		_, err := p.next(ctx)
		require.NoError(t, err)
	}
	assert.Empty(t, p.ready())
	p.stop()
}

func TestBatchAccumulatesBytes(t *testing.T) {
	b := pagesOf("abc", "de")
	assert.Equal(t, 5, b.bytes)
	assert.Len(t, b.pages, 2)
}
