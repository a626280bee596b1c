package spheredb

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// TableCount is the number of rows in one table.
type TableCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// TableCounts counts rows in every schema table, in schema order.
func TableCounts(ctx context.Context, db *sql.DB) ([]TableCount, error) {
	out := make([]TableCount, 0, len(Tables))
	for _, t := range Tables {
		var n int64
		if err := db.QueryRowContext(ctx, "SELECT count(*) FROM "+t.Name).Scan(&n); err != nil {
			return nil, errors.Wrapf(err, "count %s", t.Name)
		}
		out = append(out, TableCount{Table: t.Name, Rows: n})
	}
	return out, nil
}

// Context is a stored collection context.
type Context struct {
	ID           int64  `json:"context_id"`
	RetrievedAt  string `json:"retrieved_at"`
	TwitterURL   string `json:"twitter_url"`
	TwarcVersion string `json:"twarc_version"`
}

// Contexts returns collection contexts, most recent first. limit <= 0 returns
// all of them.
func Contexts(ctx context.Context, db *sql.DB, limit int) ([]Context, error) {
	// CAST keeps the stored text; the driver would otherwise parse DATETIME
	// columns into time.Time and reformat them.
	q := `SELECT context_id, CAST(retrieved_at AS TEXT), twitter_url, twarc_version
FROM collection_context ORDER BY retrieved_at DESC, context_id DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Context
	for rows.Next() {
		var c Context
		if err := rows.Scan(&c.ID, &c.RetrievedAt, &c.TwitterURL, &c.TwarcVersion); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UserSnapshot is the latest observed version of a user profile.
type UserSnapshot struct {
	UserID          int64          `json:"user_id"`
	RetrievedAt     string         `json:"retrieved_at"`
	Username        sql.NullString `json:"-"`
	Name            sql.NullString `json:"-"`
	Description     sql.NullString `json:"-"`
	Location        sql.NullString `json:"-"`
	FollowersCount  int64          `json:"followers_count"`
	FollowingCount  int64          `json:"following_count"`
	TweetCount      int64          `json:"tweet_count"`
	Verified        bool           `json:"verified"`
	Protected       bool           `json:"protected"`
	DirectCollected bool           `json:"directly_collected"`
	Versions        int64          `json:"versions"`
}

// LatestUser returns the most recent snapshot of a user, or nil if the user
// was never observed.
func LatestUser(ctx context.Context, db *sql.DB, userID int64) (*UserSnapshot, error) {
	row := db.QueryRowContext(ctx, `SELECT u.user_id, u.latest_retrieved_at, u.username, u.name, u.description, u.location,
    coalesce(u.followers_count, 0), coalesce(u.following_count, 0), coalesce(u.tweet_count, 0),
    coalesce(u.verified, 0), coalesce(u.protected, 0),
    EXISTS (SELECT 1 FROM directly_collected_user d WHERE d.user_id = u.user_id),
    (SELECT count(*) FROM user_at_time v WHERE v.user_id = u.user_id)
FROM user_latest u WHERE u.user_id = ?`, userID)
	var u UserSnapshot
	err := row.Scan(&u.UserID, &u.RetrievedAt, &u.Username, &u.Name, &u.Description, &u.Location,
		&u.FollowersCount, &u.FollowingCount, &u.TweetCount, &u.Verified, &u.Protected,
		&u.DirectCollected, &u.Versions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// PostSnapshot is the latest observed version of a tweet with its entities at
// that retrieval time.
type PostSnapshot struct {
	TweetID         int64          `json:"tweet_id"`
	RetrievedAt     string         `json:"retrieved_at"`
	UserID          int64          `json:"user_id"`
	Text            sql.NullString `json:"-"`
	CreatedAt       sql.NullString `json:"-"`
	LikeCount       int64          `json:"like_count"`
	RetweetCount    int64          `json:"retweet_count"`
	ReplyCount      int64          `json:"reply_count"`
	QuoteCount      int64          `json:"quote_count"`
	DirectCollected bool           `json:"directly_collected"`
	Hashtags        []string       `json:"hashtags"`
	Mentions        []string       `json:"mentions"`
}

// LatestPost returns the most recent snapshot of a tweet, or nil if the tweet
// was never observed.
func LatestPost(ctx context.Context, db *sql.DB, tweetID int64) (*PostSnapshot, error) {
	row := db.QueryRowContext(ctx, `SELECT t.tweet_id, t.latest_retrieved_at, coalesce(t.user_id, 0), t.text, t.created_at,
    coalesce(t.like_count, 0), coalesce(t.retweet_count, 0), coalesce(t.reply_count, 0), coalesce(t.quote_count, 0),
    EXISTS (SELECT 1 FROM directly_collected_tweet d WHERE d.tweet_id = t.tweet_id)
FROM tweet_latest t WHERE t.tweet_id = ?`, tweetID)
	var p PostSnapshot
	err := row.Scan(&p.TweetID, &p.RetrievedAt, &p.UserID, &p.Text, &p.CreatedAt,
		&p.LikeCount, &p.RetweetCount, &p.ReplyCount, &p.QuoteCount, &p.DirectCollected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if p.Hashtags, err = stringColumn(ctx, db,
		`SELECT hashtag FROM tweet_hashtag WHERE tweet_id = ? AND retrieved_at = ? ORDER BY hashtag`,
		p.TweetID, p.RetrievedAt); err != nil {
		return nil, err
	}
	if p.Mentions, err = stringColumn(ctx, db,
		`SELECT mentioned_username FROM tweet_mention WHERE tweet_id = ? AND retrieved_at = ? ORDER BY mentioned_username`,
		p.TweetID, p.RetrievedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func stringColumn(ctx context.Context, db *sql.DB, q string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s sql.NullString
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if s.Valid {
			out = append(out, s.String)
		}
	}
	return out, rows.Err()
}
