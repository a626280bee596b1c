package ingest

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"twittersphere/internal/models"
)

const (
	insertContext = `INSERT OR IGNORE INTO collection_context (retrieved_at, twitter_url, twarc_version) VALUES (?, ?, ?)`
	selectContext = `SELECT context_id FROM collection_context WHERE retrieved_at = ? AND twitter_url = ? AND twarc_version = ?`

	insertUser = `INSERT OR IGNORE INTO user_at_time (
    user_id, context_id, retrieved_at, name, profile_image_url, created_at, protected, description,
    location, pinned_tweet_id, verified, url, username, followers_count, following_count, tweet_count,
    listed_count, withheld_country_codes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertDirectUser = `INSERT OR IGNORE INTO directly_collected_user (user_id) VALUES (?)`

	insertPost = `INSERT OR IGNORE INTO tweet_at_time (
    tweet_id, context_id, user_id, created_at, retrieved_at, conversation_id, retweeted_tweet_id,
    quoted_tweet_id, replied_to_tweet_id, text, lang, source, possibly_sensitive, reply_settings,
    like_count, quote_count, reply_count, retweet_count, withheld_copyright, withheld_country_codes,
    poll_id, place_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertDirectPost = `INSERT OR IGNORE INTO directly_collected_tweet (tweet_id) VALUES (?)`

	insertHashtag    = `INSERT OR IGNORE INTO tweet_hashtag (tweet_id, retrieved_at, hashtag) VALUES (?, ?, ?)`
	insertCashtag    = `INSERT OR IGNORE INTO tweet_cashtag (tweet_id, retrieved_at, cashtag) VALUES (?, ?, ?)`
	insertMention    = `INSERT OR IGNORE INTO tweet_mention (tweet_id, retrieved_at, mentioned_user_id, mentioned_username) VALUES (?, ?, ?, ?)`
	insertURL        = `INSERT OR IGNORE INTO url (url, retrieved_at, description, display_url, expanded_url, images, media_key, status, title, unwound_url) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertPostURL    = `INSERT OR IGNORE INTO tweet_url (tweet_id, retrieved_at, url) VALUES (?, ?, ?)`
	insertPostMedia  = `INSERT OR IGNORE INTO tweet_media (tweet_id, retrieved_at, media_key) VALUES (?, ?, ?)`
	insertDomain     = `INSERT OR IGNORE INTO domain (domain_id, name, description) VALUES (?, ?, ?)`
	insertEntity     = `INSERT OR IGNORE INTO entity (entity_id, name, description) VALUES (?, ?, ?)`
	insertAnnotation = `INSERT OR IGNORE INTO tweet_entity_domain (tweet_id, retrieved_at, entity_id, domain_id) VALUES (?, ?, ?, ?)`

	insertPoll       = `INSERT OR IGNORE INTO poll (poll_id, retrieved_at, duration_minutes, end_datetime, voting_status) VALUES (?, ?, ?, ?, ?)`
	insertPollOption = `INSERT OR IGNORE INTO poll_option (poll_id, retrieved_at, position, label, votes) VALUES (?, ?, ?, ?, ?)`
	insertPlace      = `INSERT OR IGNORE INTO place (
    place_id, retrieved_at, country, country_code, full_name, geo_type,
    geo_bbox_1, geo_bbox_2, geo_bbox_3, geo_bbox_4, name, place_type
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertMedia = `INSERT OR IGNORE INTO media (
    media_key, retrieved_at, alt_text, duration_ms, preview_image_url, view_count, type, url, width, height
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// recordInserter applies bundles inside one open transaction. Statements are
// prepared on first use and reused for every bundle of the transaction.
type recordInserter struct {
	tx    *sql.Tx
	stmts map[string]*sql.Stmt
}

func newRecordInserter(tx *sql.Tx) *recordInserter {
	return &recordInserter{tx: tx, stmts: make(map[string]*sql.Stmt)}
}

func (ri *recordInserter) Close() error {
	var first error
	for _, s := range ri.stmts {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	ri.stmts = nil
	return first
}

func (ri *recordInserter) stmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if s, ok := ri.stmts[query]; ok {
		return s, nil
	}
	s, err := ri.tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	ri.stmts[query] = s
	return s, nil
}

func (ri *recordInserter) exec(ctx context.Context, query string, args ...any) error {
	s, err := ri.stmt(ctx, query)
	if err != nil {
		return err
	}
	_, err = s.ExecContext(ctx, args...)
	return err
}

// Apply writes one bundle under a savepoint. On any error the savepoint is
// rolled back, so none of the bundle's rows remain, and the error is returned.
func (ri *recordInserter) Apply(ctx context.Context, b *models.Bundle) (err error) {
	if _, err := ri.tx.ExecContext(ctx, "SAVEPOINT bundle"); err != nil {
		return errors.Wrap(err, "savepoint")
	}
	defer func() {
		if err != nil {
			if _, rerr := ri.tx.ExecContext(ctx, "ROLLBACK TO bundle"); rerr != nil {
				err = errors.Wrapf(err, "rollback to savepoint also failed (%v)", rerr)
				return
			}
		}
		if _, rerr := ri.tx.ExecContext(ctx, "RELEASE bundle"); rerr != nil && err == nil {
			err = errors.Wrap(rerr, "release savepoint")
		}
	}()

	return ri.insertBundle(ctx, b)
}

// insertBundle writes in dependency order: context, users, direct users,
// posts, direct posts, then every table keyed off posts.
func (ri *recordInserter) insertBundle(ctx context.Context, b *models.Bundle) error {
	contextID, err := ri.contextID(ctx, b.Context)
	if err != nil {
		return errors.Wrap(err, "collection_context")
	}
	at := b.Context.RetrievedAt

	for _, u := range b.AllUsers() {
		if err := ri.exec(ctx, insertUser, userRow(u, contextID, at)...); err != nil {
			return errors.Wrapf(err, "user_at_time %s", u.ID)
		}
	}
	for _, u := range b.Users {
		if err := ri.exec(ctx, insertDirectUser, u.ID); err != nil {
			return errors.Wrapf(err, "directly_collected_user %s", u.ID)
		}
	}

	posts := b.AllPosts()
	for _, p := range posts {
		if err := ri.exec(ctx, insertPost, postRow(p, contextID, at)...); err != nil {
			return errors.Wrapf(err, "tweet_at_time %s", p.ID)
		}
	}
	for _, p := range b.Posts {
		if err := ri.exec(ctx, insertDirectPost, p.ID); err != nil {
			return errors.Wrapf(err, "directly_collected_tweet %s", p.ID)
		}
	}
	for _, p := range posts {
		if err := ri.insertPostEntities(ctx, p, at); err != nil {
			return errors.Wrapf(err, "entities of tweet %s", p.ID)
		}
	}

	for _, poll := range b.Includes.Polls {
		if err := ri.exec(ctx, insertPoll, poll.ID, at, poll.DurationMinutes, poll.EndDatetime, poll.VotingStatus); err != nil {
			return errors.Wrapf(err, "poll %s", poll.ID)
		}
		for _, o := range poll.Options {
			if err := ri.exec(ctx, insertPollOption, poll.ID, at, o.Position, o.Label, o.Votes); err != nil {
				return errors.Wrapf(err, "poll_option %s/%d", poll.ID, o.Position)
			}
		}
	}
	for _, pl := range b.Includes.Places {
		if err := ri.exec(ctx, insertPlace, placeRow(pl, at)...); err != nil {
			return errors.Wrapf(err, "place %s", pl.ID)
		}
	}
	for _, m := range b.Includes.Media {
		err := ri.exec(ctx, insertMedia, m.MediaKey, at, m.AltText, m.DurationMS, m.PreviewImageURL,
			m.ViewCount, m.Type, m.URL, m.Width, m.Height)
		if err != nil {
			return errors.Wrapf(err, "media %s", m.MediaKey)
		}
	}
	return nil
}

func (ri *recordInserter) insertPostEntities(ctx context.Context, p models.Post, at string) error {
	for _, tag := range p.Hashtags {
		if err := ri.exec(ctx, insertHashtag, p.ID, at, tag); err != nil {
			return errors.Wrap(err, "tweet_hashtag")
		}
	}
	for _, tag := range p.Cashtags {
		if err := ri.exec(ctx, insertCashtag, p.ID, at, tag); err != nil {
			return errors.Wrap(err, "tweet_cashtag")
		}
	}
	for _, m := range p.Mentions {
		if err := ri.exec(ctx, insertMention, p.ID, at, m.UserID, m.Username); err != nil {
			return errors.Wrap(err, "tweet_mention")
		}
	}
	for _, u := range p.URLs {
		err := ri.exec(ctx, insertURL, u.URL, at, u.Description, u.DisplayURL, u.ExpandedURL,
			u.Images, u.MediaKey, u.Status, u.Title, u.UnwoundURL)
		if err != nil {
			return errors.Wrap(err, "url")
		}
		if err := ri.exec(ctx, insertPostURL, p.ID, at, u.URL); err != nil {
			return errors.Wrap(err, "tweet_url")
		}
	}
	for _, key := range p.MediaKeys {
		if err := ri.exec(ctx, insertPostMedia, p.ID, at, key); err != nil {
			return errors.Wrap(err, "tweet_media")
		}
	}
	for _, a := range p.Annotations {
		if err := ri.exec(ctx, insertDomain, a.DomainID, a.DomainName, a.DomainDescription); err != nil {
			return errors.Wrap(err, "domain")
		}
		if err := ri.exec(ctx, insertEntity, a.EntityID, a.EntityName, a.EntityDescription); err != nil {
			return errors.Wrap(err, "entity")
		}
		if err := ri.exec(ctx, insertAnnotation, p.ID, at, a.EntityID, a.DomainID); err != nil {
			return errors.Wrap(err, "tweet_entity_domain")
		}
	}
	return nil
}

// contextID looks up the surrogate id of c, creating it first if needed.
func (ri *recordInserter) contextID(ctx context.Context, c models.CollectionContext) (int64, error) {
	if err := ri.exec(ctx, insertContext, c.RetrievedAt, c.TwitterURL, c.TwarcVersion); err != nil {
		return 0, err
	}
	s, err := ri.stmt(ctx, selectContext)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.QueryRowContext(ctx, c.RetrievedAt, c.TwitterURL, c.TwarcVersion).Scan(&id)
	return id, err
}

func userRow(u models.User, contextID int64, at string) []any {
	return []any{
		u.ID, contextID, at, u.Name, u.ProfileImageURL, u.CreatedAt, u.Protected, u.Description,
		u.Location, u.PinnedTweetID, u.Verified, u.URL, u.Username, u.FollowersCount, u.FollowingCount,
		u.TweetCount, u.ListedCount, u.WithheldCountryCodes,
	}
}

func postRow(p models.Post, contextID int64, at string) []any {
	return []any{
		p.ID, contextID, p.AuthorID, p.CreatedAt, at, nullIfEmpty(p.ConversationID), p.RetweetedID,
		p.QuotedID, p.RepliedToID, p.Text, p.Lang, p.Source, p.PossiblySensitive, p.ReplySettings,
		p.LikeCount, p.QuoteCount, p.ReplyCount, p.RetweetCount, p.WithheldCopyright, p.WithheldCountryCodes,
		p.PollID, p.PlaceID,
	}
}

func placeRow(pl models.Place, at string) []any {
	bbox := make([]any, 4)
	if len(pl.BBox) == 4 {
		for i, v := range pl.BBox {
			bbox[i] = v
		}
	}
	return []any{
		pl.ID, at, pl.Country, pl.CountryCode, pl.FullName, pl.GeoType,
		bbox[0], bbox[1], bbox[2], bbox[3], pl.Name, pl.PlaceType,
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
