// Package models holds the normalized records produced by decoding one page of
// Twitter API v2 data. Rows are written to the store exactly as described here;
// the context id and retrieval time are attached by the inserter.
package models

// CollectionContext identifies one collection request: when it ran, which
// endpoint it hit and which twarc version produced the page.
type CollectionContext struct {
	RetrievedAt  string
	TwitterURL   string
	TwarcVersion string
}

// User is a profile snapshot.
type User struct {
	ID                   string
	CreatedAt            string
	Username             string
	Name                 string
	Description          string
	Location             *string
	PinnedTweetID        *string
	ProfileImageURL      string
	Protected            bool
	Verified             bool
	URL                  string
	FollowersCount       int64
	FollowingCount       int64
	ListedCount          int64
	TweetCount           int64
	WithheldCountryCodes *string
}

// Post is a tweet snapshot together with its one-to-many entities.
type Post struct {
	ID                   string
	ConversationID       string
	AuthorID             string
	CreatedAt            string
	Text                 string
	Lang                 string
	Source               string
	PossiblySensitive    bool
	ReplySettings        string
	LikeCount            int64
	QuoteCount           int64
	ReplyCount           int64
	RetweetCount         int64
	WithheldCopyright    *bool
	WithheldCountryCodes *string

	RetweetedID *string
	QuotedID    *string
	RepliedToID *string

	PollID    *string
	PlaceID   *string
	MediaKeys []string

	Hashtags    []string
	Cashtags    []string
	Mentions    []Mention
	URLs        []URL
	Annotations []Annotation
}

type Mention struct {
	UserID   string
	Username string
}

// URL is one entities.urls entry. Card fields are optional; Images holds the
// raw JSON array when present.
type URL struct {
	URL         string
	ExpandedURL *string
	DisplayURL  *string
	UnwoundURL  *string
	Title       *string
	Description *string
	Status      *int64
	MediaKey    *string
	Images      *string
}

// Annotation is a topical context annotation (domain + entity pair).
type Annotation struct {
	DomainID          string
	DomainName        string
	DomainDescription *string
	EntityID          string
	EntityName        string
	EntityDescription *string
}

type Poll struct {
	ID              string
	DurationMinutes int64
	EndDatetime     string
	VotingStatus    string
	Options         []PollOption
}

type PollOption struct {
	Position int64
	Label    string
	Votes    int64
}

type Place struct {
	ID          string
	FullName    string
	Name        string
	Country     string
	CountryCode string
	PlaceType   string
	GeoType     *string
	BBox        []float64
}

type Media struct {
	MediaKey        string
	Type            string
	URL             *string
	PreviewImageURL *string
	AltText         *string
	DurationMS      *int64
	ViewCount       *int64
	Width           *int64
	Height          *int64
}

// Includes are entities referenced by the primary payload but not directly
// collected.
type Includes struct {
	Users  []User
	Posts  []Post
	Polls  []Poll
	Places []Place
	Media  []Media
}

// Bundle is the normalized form of one page. Users and Posts are the primary
// payload and are marked as directly collected.
type Bundle struct {
	Context  CollectionContext
	Users    []User
	Posts    []Post
	Includes Includes
}

// AllUsers returns the primary users followed by the included ones.
func (b *Bundle) AllUsers() []User {
	out := make([]User, 0, len(b.Users)+len(b.Includes.Users))
	out = append(out, b.Users...)
	return append(out, b.Includes.Users...)
}

// AllPosts returns the primary posts followed by the included ones.
func (b *Bundle) AllPosts() []Post {
	out := make([]Post, 0, len(b.Posts)+len(b.Includes.Posts))
	out = append(out, b.Posts...)
	return append(out, b.Includes.Posts...)
}

// Empty reports whether the bundle carries no records at all.
func (b *Bundle) Empty() bool {
	i := b.Includes
	return len(b.Users)+len(b.Posts)+len(i.Users)+len(i.Posts)+len(i.Polls)+len(i.Places)+len(i.Media) == 0
}
