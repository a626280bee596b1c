package decode

import jsoniter "github.com/json-iterator/go"

// Wire shapes of a twarc v2 page. Pointers mark fields whose absence must be
// distinguishable from their zero value.

type rawPage struct {
	Data     jsoniter.RawMessage `json:"data"`
	Includes rawIncludes         `json:"includes"`
	Twarc    *rawTwarc           `json:"__twarc"`
}

type rawTwarc struct {
	URL         string `json:"url"`
	Version     string `json:"version"`
	RetrievedAt string `json:"retrieved_at"`
}

type rawIncludes struct {
	Users  []rawUser  `json:"users"`
	Tweets []rawTweet `json:"tweets"`
	Polls  []rawPoll  `json:"polls"`
	Places []rawPlace `json:"places"`
	Media  []rawMedia `json:"media"`
}

// rawProbe is decoded first to tell users from tweets.
type rawProbe struct {
	Username *string `json:"username"`
	Text     *string `json:"text"`
}

type rawWithheld struct {
	Copyright    *bool    `json:"copyright"`
	CountryCodes []string `json:"country_codes"`
}

type rawUser struct {
	ID              string  `json:"id"`
	CreatedAt       string  `json:"created_at"`
	Username        string  `json:"username"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Location        *string `json:"location"`
	PinnedTweetID   *string `json:"pinned_tweet_id"`
	ProfileImageURL string  `json:"profile_image_url"`
	Protected       bool    `json:"protected"`
	Verified        bool    `json:"verified"`
	URL             string  `json:"url"`
	PublicMetrics   struct {
		FollowersCount int64 `json:"followers_count"`
		FollowingCount int64 `json:"following_count"`
		ListedCount    int64 `json:"listed_count"`
		TweetCount     int64 `json:"tweet_count"`
	} `json:"public_metrics"`
	Withheld *rawWithheld `json:"withheld"`
}

type rawTweet struct {
	ID                string  `json:"id"`
	ConversationID    string  `json:"conversation_id"`
	AuthorID          string  `json:"author_id"`
	CreatedAt         string  `json:"created_at"`
	Text              *string `json:"text"`
	Lang              string  `json:"lang"`
	Source            string  `json:"source"`
	PossiblySensitive bool    `json:"possibly_sensitive"`
	ReplySettings     string  `json:"reply_settings"`
	PublicMetrics     struct {
		LikeCount    int64 `json:"like_count"`
		QuoteCount   int64 `json:"quote_count"`
		ReplyCount   int64 `json:"reply_count"`
		RetweetCount int64 `json:"retweet_count"`
	} `json:"public_metrics"`
	Withheld         *rawWithheld `json:"withheld"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
	Attachments struct {
		PollIDs   []string `json:"poll_ids"`
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
	Geo struct {
		PlaceID *string `json:"place_id"`
	} `json:"geo"`
	Entities struct {
		Hashtags []struct {
			Tag string `json:"tag"`
		} `json:"hashtags"`
		Cashtags []struct {
			Tag string `json:"tag"`
		} `json:"cashtags"`
		Mentions []struct {
			Username string `json:"username"`
			ID       string `json:"id"`
		} `json:"mentions"`
		URLs []rawURL `json:"urls"`
	} `json:"entities"`
	ContextAnnotations []struct {
		Domain rawNamed `json:"domain"`
		Entity rawNamed `json:"entity"`
	} `json:"context_annotations"`
}

type rawNamed struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type rawURL struct {
	URL         string              `json:"url"`
	ExpandedURL *string             `json:"expanded_url"`
	DisplayURL  *string             `json:"display_url"`
	UnwoundURL  *string             `json:"unwound_url"`
	Title       *string             `json:"title"`
	Description *string             `json:"description"`
	Status      *int64              `json:"status"`
	MediaKey    *string             `json:"media_key"`
	Images      jsoniter.RawMessage `json:"images"`
}

type rawPoll struct {
	ID              string `json:"id"`
	DurationMinutes int64  `json:"duration_minutes"`
	EndDatetime     string `json:"end_datetime"`
	VotingStatus    string `json:"voting_status"`
	Options         []struct {
		Position int64  `json:"position"`
		Label    string `json:"label"`
		Votes    int64  `json:"votes"`
	} `json:"options"`
}

type rawPlace struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name"`
	Name        string `json:"name"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	PlaceType   string `json:"place_type"`
	Geo         struct {
		Type *string   `json:"type"`
		BBox []float64 `json:"bbox"`
	} `json:"geo"`
}

type rawMedia struct {
	MediaKey        string  `json:"media_key"`
	Type            string  `json:"type"`
	URL             *string `json:"url"`
	PreviewImageURL *string `json:"preview_image_url"`
	AltText         *string `json:"alt_text"`
	DurationMS      *int64  `json:"duration_ms"`
	ViewCount       *int64  `json:"view_count"`
	PublicMetrics   *struct {
		ViewCount *int64 `json:"view_count"`
	} `json:"public_metrics"`
	Width  *int64 `json:"width"`
	Height *int64 `json:"height"`
}
