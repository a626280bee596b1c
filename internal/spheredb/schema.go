package spheredb

import (
	"fmt"
	"strings"
)

// CurrentSchemaVersion is stamped into the metadata table on install. Stores
// with any other version are refused; there is no migration path.
const CurrentSchemaVersion = 13

// SchemaVersionKey is the metadata key holding the installed schema version.
const SchemaVersionKey = "twittersphere_schema_version"

// Table describes how rows of one table are merged from a staging store into
// the target store. Rows are copied in Key order with INSERT OR IGNORE.
type Table struct {
	Name    string
	Columns []string
	Key     []string
	// ContextRef marks tables whose context_id column must be re-mapped to the
	// target's collection_context ids during a merge.
	ContextRef bool
}

// Tables lists every table in the schema, in merge order. collection_context
// comes first so that re-mapped context ids exist before facts reference them.
// Its surrogate context_id is deliberately absent from Columns: contexts are
// merged on their natural key.
var Tables = []Table{
	{
		Name:    "collection_context",
		Columns: []string{"retrieved_at", "twitter_url", "twarc_version"},
		Key:     []string{"retrieved_at", "twitter_url", "twarc_version"},
	},
	{
		Name: "user_at_time",
		Columns: []string{
			"user_id", "context_id", "retrieved_at", "name", "profile_image_url", "created_at",
			"protected", "description", "location", "pinned_tweet_id", "verified", "url", "username",
			"followers_count", "following_count", "tweet_count", "listed_count", "withheld_country_codes",
		},
		Key:        []string{"user_id", "retrieved_at"},
		ContextRef: true,
	},
	{Name: "directly_collected_user", Columns: []string{"user_id"}, Key: []string{"user_id"}},
	{
		Name: "tweet_at_time",
		Columns: []string{
			"tweet_id", "context_id", "user_id", "created_at", "retrieved_at", "conversation_id",
			"retweeted_tweet_id", "quoted_tweet_id", "replied_to_tweet_id", "text", "lang", "source",
			"possibly_sensitive", "reply_settings", "like_count", "quote_count", "reply_count",
			"retweet_count", "withheld_copyright", "withheld_country_codes", "poll_id", "place_id",
		},
		Key:        []string{"tweet_id", "retrieved_at"},
		ContextRef: true,
	},
	{Name: "directly_collected_tweet", Columns: []string{"tweet_id"}, Key: []string{"tweet_id"}},
	{
		Name:    "tweet_hashtag",
		Columns: []string{"tweet_id", "retrieved_at", "hashtag"},
		Key:     []string{"tweet_id", "retrieved_at", "hashtag"},
	},
	{
		Name:    "tweet_cashtag",
		Columns: []string{"tweet_id", "retrieved_at", "cashtag"},
		Key:     []string{"tweet_id", "retrieved_at", "cashtag"},
	},
	{
		Name:    "tweet_mention",
		Columns: []string{"tweet_id", "retrieved_at", "mentioned_user_id", "mentioned_username"},
		Key:     []string{"tweet_id", "retrieved_at", "mentioned_user_id"},
	},
	{
		Name: "url",
		Columns: []string{
			"url", "retrieved_at", "description", "display_url", "expanded_url", "images",
			"media_key", "status", "title", "unwound_url",
		},
		Key: []string{"url", "retrieved_at"},
	},
	{
		Name:    "tweet_url",
		Columns: []string{"tweet_id", "retrieved_at", "url"},
		Key:     []string{"tweet_id", "retrieved_at", "url"},
	},
	{
		Name:    "poll",
		Columns: []string{"poll_id", "retrieved_at", "duration_minutes", "end_datetime", "voting_status"},
		Key:     []string{"poll_id", "retrieved_at"},
	},
	{
		Name:    "poll_option",
		Columns: []string{"poll_id", "retrieved_at", "position", "label", "votes"},
		Key:     []string{"poll_id", "retrieved_at", "position"},
	},
	{
		Name: "place",
		Columns: []string{
			"place_id", "retrieved_at", "country", "country_code", "full_name", "geo_type",
			"geo_bbox_1", "geo_bbox_2", "geo_bbox_3", "geo_bbox_4", "name", "place_type",
		},
		Key: []string{"place_id", "retrieved_at"},
	},
	{
		Name: "media",
		Columns: []string{
			"media_key", "retrieved_at", "alt_text", "duration_ms", "preview_image_url",
			"view_count", "type", "url", "width", "height",
		},
		Key: []string{"media_key", "retrieved_at"},
	},
	{
		Name:    "tweet_media",
		Columns: []string{"tweet_id", "retrieved_at", "media_key"},
		Key:     []string{"tweet_id", "retrieved_at", "media_key"},
	},
	{Name: "domain", Columns: []string{"domain_id", "name", "description"}, Key: []string{"domain_id"}},
	{Name: "entity", Columns: []string{"entity_id", "name", "description"}, Key: []string{"entity_id"}},
	{
		Name:    "tweet_entity_domain",
		Columns: []string{"tweet_id", "retrieved_at", "entity_id", "domain_id"},
		Key:     []string{"tweet_id", "retrieved_at", "entity_id", "domain_id"},
	},
	{
		Name:    "user_matching_ruleset",
		Columns: []string{"ruleset_name", "user_id"},
		Key:     []string{"ruleset_name", "user_id"},
	},
	{
		Name:    "user_ruleset_ngram_count",
		Columns: []string{"ruleset_name", "field", "first_token", "second_token", "third_token", "profile_count"},
		Key:     []string{"ruleset_name", "field", "first_token", "second_token", "third_token"},
	},
	{Name: "metadata", Columns: []string{"key", "value"}, Key: []string{"key"}},
}

// MergeSQL returns the statement that copies this table from schema src into
// schema dst, skipping rows whose key already exists in dst.
func (t Table) MergeSQL(src, dst string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT OR IGNORE INTO %s.%s (%s)\nSELECT ", dst, t.Name, strings.Join(t.Columns, ", "))

	sel := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		if t.ContextRef && c == "context_id" {
			sel[i] = "tc.context_id"
		} else {
			sel[i] = "s." + c
		}
	}
	sb.WriteString(strings.Join(sel, ", "))
	fmt.Fprintf(&sb, "\nFROM %s.%s AS s", src, t.Name)

	if t.ContextRef {
		fmt.Fprintf(&sb, "\nJOIN %s.collection_context AS sc ON sc.context_id = s.context_id", src)
		fmt.Fprintf(&sb, "\nJOIN %s.collection_context AS tc ON tc.retrieved_at = sc.retrieved_at"+
			" AND tc.twitter_url = sc.twitter_url AND tc.twarc_version = sc.twarc_version", dst)
	}

	order := make([]string, len(t.Key))
	for i, k := range t.Key {
		order[i] = "s." + k
	}
	fmt.Fprintf(&sb, "\nORDER BY %s", strings.Join(order, ", "))
	return sb.String()
}

// SchemaStatements is the full DDL, executed in order inside one transaction.
// No foreign keys are declared: a post's author or place may be observed at a
// different time than the post itself, so edges are resolved at read time
// through the *_latest views.
var SchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS collection_context (
        context_id INTEGER PRIMARY KEY,
        retrieved_at DATETIME NOT NULL,
        twitter_url TEXT NOT NULL,
        twarc_version TEXT NOT NULL,
        UNIQUE (retrieved_at, twitter_url, twarc_version)
    )`,
	`CREATE TABLE IF NOT EXISTS user_at_time (
        user_id INTEGER,
        context_id INTEGER,
        retrieved_at DATETIME,
        name TEXT,
        profile_image_url TEXT,
        created_at TEXT,
        protected INTEGER,
        description TEXT,
        location TEXT,
        pinned_tweet_id INTEGER,
        verified INTEGER,
        url TEXT,
        username TEXT,
        followers_count INTEGER,
        following_count INTEGER,
        tweet_count INTEGER,
        listed_count INTEGER,
        withheld_country_codes TEXT,
        PRIMARY KEY (user_id, retrieved_at)
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS directly_collected_user (
        user_id INTEGER PRIMARY KEY
    )`,
	`CREATE TABLE IF NOT EXISTS tweet_at_time (
        tweet_id INTEGER,
        context_id INTEGER,
        user_id INTEGER,
        created_at TEXT,
        retrieved_at DATETIME,
        conversation_id INTEGER,
        retweeted_tweet_id INTEGER,
        quoted_tweet_id INTEGER,
        replied_to_tweet_id INTEGER,
        text TEXT,
        lang TEXT,
        source TEXT,
        possibly_sensitive INTEGER,
        reply_settings TEXT,
        like_count INTEGER,
        quote_count INTEGER,
        reply_count INTEGER,
        retweet_count INTEGER,
        withheld_copyright INTEGER,
        withheld_country_codes TEXT,
        poll_id INTEGER,
        place_id TEXT,
        PRIMARY KEY (tweet_id, retrieved_at)
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS directly_collected_tweet (
        tweet_id INTEGER PRIMARY KEY
    )`,
	`CREATE TABLE IF NOT EXISTS tweet_hashtag (
        tweet_id INTEGER,
        retrieved_at DATETIME,
        hashtag TEXT,
        PRIMARY KEY (tweet_id, retrieved_at, hashtag)
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS tweet_cashtag (
        tweet_id INTEGER,
        retrieved_at DATETIME,
        cashtag TEXT,
        PRIMARY KEY (tweet_id, retrieved_at, cashtag)
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS tweet_mention (
        tweet_id INTEGER,
        retrieved_at DATETIME,
        mentioned_user_id TEXT,
        mentioned_username TEXT,
        PRIMARY KEY (tweet_id, retrieved_at, mentioned_user_id)
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS url (
        url TEXT,
        retrieved_at DATETIME,
        description TEXT,
        display_url TEXT,
        expanded_url TEXT,
        images TEXT,
        media_key TEXT,
        status INTEGER,
        title TEXT,
        unwound_url TEXT,
        PRIMARY KEY (url, retrieved_at)
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS tweet_url (
        tweet_id INTEGER,
        retrieved_at DATETIME,
        url TEXT,
        PRIMARY KEY (tweet_id, retrieved_at, url)
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS poll (
        poll_id INTEGER,
        retrieved_at DATETIME,
        duration_minutes INTEGER,
        end_datetime DATETIME,
        voting_status TEXT,
        PRIMARY KEY (poll_id, retrieved_at)
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS poll_option (
        poll_id INTEGER,
        retrieved_at DATETIME,
        position INTEGER,
        label TEXT,
        votes INTEGER,
        PRIMARY KEY (poll_id, retrieved_at, position)
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS place (
        place_id TEXT,
        retrieved_at DATETIME,
        country TEXT,
        country_code TEXT,
        full_name TEXT,
        geo_type TEXT,
        geo_bbox_1 REAL,
        geo_bbox_2 REAL,
        geo_bbox_3 REAL,
        geo_bbox_4 REAL,
        name TEXT,
        place_type TEXT,
        PRIMARY KEY (place_id, retrieved_at)
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS media (
        media_key TEXT,
        retrieved_at DATETIME,
        alt_text TEXT,
        duration_ms INTEGER,
        preview_image_url TEXT,
        view_count INTEGER,
        type TEXT,
        url TEXT,
        width INTEGER,
        height INTEGER,
        PRIMARY KEY (media_key, retrieved_at)
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS tweet_media (
        tweet_id INTEGER,
        retrieved_at DATETIME,
        media_key TEXT,
        PRIMARY KEY (tweet_id, retrieved_at, media_key)
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS domain (
        domain_id TEXT PRIMARY KEY,
        name TEXT,
        description TEXT
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS entity (
        entity_id TEXT PRIMARY KEY,
        name TEXT,
        description TEXT
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS tweet_entity_domain (
        tweet_id INTEGER,
        retrieved_at DATETIME,
        entity_id TEXT,
        domain_id TEXT,
        PRIMARY KEY (tweet_id, retrieved_at, entity_id, domain_id)
    ) WITHOUT ROWID`,
	// Written by the downstream rule classifier, never by ingestion.
	`CREATE TABLE IF NOT EXISTS user_matching_ruleset (
        ruleset_name TEXT,
        user_id INTEGER,
        PRIMARY KEY (ruleset_name, user_id)
    )`,
	`CREATE TABLE IF NOT EXISTS user_ruleset_ngram_count (
        ruleset_name TEXT,
        field TEXT,
        first_token TEXT,
        second_token TEXT,
        third_token TEXT,
        profile_count INTEGER DEFAULT 0,
        PRIMARY KEY (ruleset_name, field, first_token, second_token, third_token)
    ) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS metadata (
        key TEXT PRIMARY KEY,
        value
    )`,
	// SQLite returns the row holding max(retrieved_at) for the bare columns.
	`CREATE VIEW IF NOT EXISTS user_latest AS
        SELECT max(retrieved_at) AS latest_retrieved_at, *
        FROM user_at_time
        GROUP BY user_id`,
	`CREATE VIEW IF NOT EXISTS tweet_latest AS
        SELECT max(retrieved_at) AS latest_retrieved_at, *
        FROM tweet_at_time
        GROUP BY tweet_id`,
	fmt.Sprintf(`INSERT OR IGNORE INTO metadata VALUES ('%s', %d)`, SchemaVersionKey, CurrentSchemaVersion),
}
