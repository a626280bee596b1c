package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failOnHashtag makes any insert of the hashtag "boom" fail inside the
// generation, after the page's context, users and posts were already written.
func failOnHashtag(t *testing.T, g *Generation) {
	t.Helper()
	_, err := g.db.Exec(`CREATE TRIGGER fail_boom BEFORE INSERT ON tweet_hashtag
WHEN NEW.hashtag = 'boom'
BEGIN
    SELECT RAISE(ABORT, 'injected hashtag failure');
END`)
	require.NoError(t, err)
}

func stagingCount(t *testing.T, g *Generation, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, g.db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestApplyWritesEveryTable(t *testing.T) {
	ctx := context.Background()
	g, err := newGeneration(ctx, 1)
	require.NoError(t, err)
	defer g.discard()

	page := `{"data": [{"id": "100", "author_id": "1", "text": "hi", "conversation_id": "100",
		"attachments": {"poll_ids": ["5"], "media_keys": ["3_1"]}, "geo": {"place_id": "pl"},
		"entities": {"hashtags": [{"tag": "a"}], "cashtags": [{"tag": "B"}], "mentions": [{"id": "2", "username": "two"}],
			"urls": [{"url": "https://t.co/1", "expanded_url": "https://example.com"}]},
		"context_annotations": [{"domain": {"id": "10", "name": "D"}, "entity": {"id": "20", "name": "E"}}]}],
		"includes": {
			"users": [{"id": "1", "username": "one"}],
			"tweets": [{"id": "99", "author_id": "2", "text": "ref"}],
			"polls": [{"id": "5", "options": [{"position": 1, "label": "x", "votes": 2}, {"position": 2, "label": "y", "votes": 0}]}],
			"places": [{"id": "pl", "full_name": "Somewhere", "geo": {"type": "Feature", "bbox": [1.5, 2, 3, 4]}}],
			"media": [{"media_key": "3_1", "type": "photo"}]
		},
		"__twarc": {"url": "u", "version": "v", "retrieved_at": "` + atFirst + `"}}`

	out, err := g.Apply(ctx, decoded(t, page), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.applied)
	assert.Equal(t, 1, g.Pages())

	want := map[string]int{
		"collection_context":       1,
		"user_at_time":             1,
		"directly_collected_user":  0,
		"tweet_at_time":            2,
		"directly_collected_tweet": 1,
		"tweet_hashtag":            1,
		"tweet_cashtag":            1,
		"tweet_mention":            1,
		"url":                      1,
		"tweet_url":                1,
		"poll":                     1,
		"poll_option":              2,
		"place":                    1,
		"media":                    1,
		"tweet_media":              1,
		"domain":                   1,
		"entity":                   1,
		"tweet_entity_domain":      1,
	}
	for table, n := range want {
		assert.Equal(t, n, stagingCount(t, g, "SELECT count(*) FROM "+table), table)
	}

	var bbox1 float64
	require.NoError(t, g.db.QueryRow(`SELECT geo_bbox_1 FROM place WHERE place_id = 'pl'`).Scan(&bbox1))
	assert.Equal(t, 1.5, bbox1)

	// Every fact row points at the page's context.
	assert.Equal(t, 0, stagingCount(t, g, `SELECT count(*) FROM tweet_at_time t
		LEFT JOIN collection_context c ON c.context_id = t.context_id
		WHERE c.retrieved_at IS NULL OR c.retrieved_at != t.retrieved_at`))
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g, err := newGeneration(ctx, 1)
	require.NoError(t, err)
	defer g.discard()

	page := tweetPage(atFirst, tweet("1", "1", "go"))
	_, err = g.Apply(ctx, decoded(t, page, page), false, nil)
	require.NoError(t, err)
	_, err = g.Apply(ctx, decoded(t, page), false, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, stagingCount(t, g, `SELECT count(*) FROM collection_context`))
	assert.Equal(t, 1, stagingCount(t, g, `SELECT count(*) FROM tweet_at_time`))
	assert.Equal(t, 1, stagingCount(t, g, `SELECT count(*) FROM tweet_hashtag`))
}

func TestApplyRollsBackFailedBundle(t *testing.T) {
	ctx := context.Background()
	g, err := newGeneration(ctx, 1)
	require.NoError(t, err)
	defer g.discard()
	failOnHashtag(t, g)

	good := tweetPage(atFirst, tweet("1", "1", "fine"))
	bad := tweetPage(atSecond, tweet("2", "1", "ok", "boom"))

	t.Run("abort", func(t *testing.T) {
		_, err := g.Apply(ctx, decoded(t, good, bad), false, nil)
		require.Error(t, err)
		var perr *PageError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, 2, perr.Line)
		assert.Contains(t, err.Error(), "injected hashtag failure")

		// The batch transaction is rolled back as a whole.
		assert.Equal(t, 0, stagingCount(t, g, `SELECT count(*) FROM tweet_at_time`))
		assert.Equal(t, 0, stagingCount(t, g, `SELECT count(*) FROM collection_context`))
		assert.Equal(t, 0, g.Pages())
	})

	t.Run("skip", func(t *testing.T) {
		var skipped []int
		out, err := g.Apply(ctx, decoded(t, good, bad), true, func(pg decodedPage, err error) {
			skipped = append(skipped, pg.Line)
		})
		require.NoError(t, err)
		assert.Equal(t, applyOutcome{applied: 1, skipped: 1}, out)
		assert.Equal(t, []int{2}, skipped)

		// Nothing of the failed page survives: not its context, its author
		// snapshot, its post nor the hashtag that preceded the failing one.
		assert.Equal(t, 1, stagingCount(t, g, `SELECT count(*) FROM collection_context`))
		assert.Equal(t, 0, stagingCount(t, g, `SELECT count(*) FROM collection_context WHERE retrieved_at = ?`, atSecond))
		assert.Equal(t, 0, stagingCount(t, g, `SELECT count(*) FROM user_at_time WHERE retrieved_at = ?`, atSecond))
		assert.Equal(t, 0, stagingCount(t, g, `SELECT count(*) FROM tweet_at_time WHERE tweet_id = 2`))
		assert.Equal(t, 0, stagingCount(t, g, `SELECT count(*) FROM directly_collected_tweet WHERE tweet_id = 2`))
		assert.Equal(t, 0, stagingCount(t, g, `SELECT count(*) FROM tweet_hashtag WHERE tweet_id = 2`))
		assert.Equal(t, 0, stagingCount(t, g, `SELECT count(*) FROM tweet_mention WHERE tweet_id = 2`))

		assert.Equal(t, 1, stagingCount(t, g, `SELECT count(*) FROM tweet_at_time WHERE tweet_id = 1`))
		assert.Equal(t, 1, stagingCount(t, g, `SELECT count(*) FROM tweet_hashtag WHERE tweet_id = 1`))
	})
}
