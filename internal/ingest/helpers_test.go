package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"twittersphere/internal/decode"
	"twittersphere/internal/spheredb"
)

const (
	searchURL = "https://api.twitter.com/2/tweets/search/all"
	atFirst   = "2023-03-01T10:00:00+00:00"
	atSecond  = "2023-03-02T10:00:00+00:00"
)

// tweet renders one tweet object with the given hashtags.
func tweet(id, author string, tags ...string) string {
	hs := make([]string, len(tags))
	for i, tag := range tags {
		hs[i] = fmt.Sprintf(`{"tag": %q}`, tag)
	}
	return fmt.Sprintf(`{"id": %q, "author_id": %q, "text": "tweet %s", "lang": "en",
"public_metrics": {"like_count": 1}, "entities": {"hashtags": [%s], "mentions": [{"id": "7", "username": "seven"}]}}`,
		id, author, id, strings.Join(hs, ", "))
}

// tweetPage renders one twarc page of tweets retrieved at at. The page always
// includes the author 1.
func tweetPage(at string, tweets ...string) string {
	page := fmt.Sprintf(`{"data": [%s], "includes": {"users": [{"id": "1", "username": "one", "name": "One"}]},
"__twarc": {"url": %q, "version": "2.14.0", "retrieved_at": %q}}`,
		strings.Join(tweets, ", "), searchURL, at)
	return strings.ReplaceAll(page, "\n", " ")
}

func userPage(at string, ids ...string) string {
	us := make([]string, len(ids))
	for i, id := range ids {
		us[i] = fmt.Sprintf(`{"id": %q, "username": "user%s", "name": "User %s", "public_metrics": {"followers_count": %d}}`, id, id, id, i)
	}
	return fmt.Sprintf(`{"data": [%s], "__twarc": {"url": "https://api.twitter.com/2/users", "version": "2.14.0", "retrieved_at": %q}}`,
		strings.Join(us, ", "), at)
}

func writeInput(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func decoded(t *testing.T, lines ...string) []decodedPage {
	t.Helper()
	out := make([]decodedPage, len(lines))
	for i, l := range lines {
		b, err := decode.Decode([]byte(l))
		require.NoError(t, err)
		out[i] = decodedPage{Source: "test.jsonl", Line: i + 1, Bundle: b}
	}
	return out
}

func counts(t *testing.T, path string) map[string]int64 {
	t.Helper()
	s, err := spheredb.OpenExisting(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	return countsOf(t, s)
}

func countsOf(t *testing.T, s *spheredb.Store) map[string]int64 {
	t.Helper()
	tc, err := spheredb.TableCounts(context.Background(), s.DB)
	require.NoError(t, err)
	out := make(map[string]int64, len(tc))
	for _, c := range tc {
		out[c.Table] = c.Rows
	}
	return out
}

// dump returns the sorted rows of every table, leaving out surrogate context
// ids so that stores built in different orders can be compared.
func dump(t *testing.T, path string) map[string][]string {
	t.Helper()
	s, err := spheredb.OpenExisting(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	out := make(map[string][]string, len(spheredb.Tables))
	for _, tbl := range spheredb.Tables {
		var cols []string
		for _, c := range tbl.Columns {
			if c != "context_id" {
				cols = append(cols, "quote("+c+")")
			}
		}
		rows, err := s.DB.Query(fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, " || '|' || "), tbl.Name))
		require.NoError(t, err)
		var lines []string
		for rows.Next() {
			var l string
			require.NoError(t, rows.Scan(&l))
			lines = append(lines, l)
		}
		require.NoError(t, rows.Err())
		rows.Close()
		sort.Strings(lines)
		out[tbl.Name] = lines
	}
	return out
}
