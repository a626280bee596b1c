// Package decode maps one page of Twitter API v2 JSON, as written by twarc,
// into a models.Bundle.
//
// A page's primary payload is either a list of users, a list of tweets or a
// single tweet (filtered and sampled streams). Anything else is reported as a
// ShapeError rather than treated as an empty page.
package decode

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"twittersphere/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ShapeError is returned when a page does not have any of the recognised
// shapes, or lacks a field the mapping requires.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string {
	return "unrecognised page shape: " + e.Reason
}

func shapeErrorf(format string, args ...any) error {
	return &ShapeError{Reason: fmt.Sprintf(format, args...)}
}

// Decode parses a raw page and normalizes it.
func Decode(raw []byte) (*models.Bundle, error) {
	var page rawPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, errors.Wrap(err, "parse page json")
	}

	if page.Twarc == nil {
		return nil, shapeErrorf("missing __twarc metadata")
	}
	if page.Twarc.RetrievedAt == "" || page.Twarc.URL == "" || page.Twarc.Version == "" {
		return nil, shapeErrorf("incomplete __twarc metadata")
	}

	b := &models.Bundle{
		Context: models.CollectionContext{
			RetrievedAt:  page.Twarc.RetrievedAt,
			TwitterURL:   page.Twarc.URL,
			TwarcVersion: page.Twarc.Version,
		},
	}

	if err := decodePrimary(page.Data, b); err != nil {
		return nil, err
	}

	var err error
	if b.Includes.Users, err = mapUsers(page.Includes.Users, "includes.users"); err != nil {
		return nil, err
	}
	if b.Includes.Posts, err = mapTweets(page.Includes.Tweets, "includes.tweets"); err != nil {
		return nil, err
	}
	if b.Includes.Polls, err = mapPolls(page.Includes.Polls); err != nil {
		return nil, err
	}
	if b.Includes.Places, err = mapPlaces(page.Includes.Places); err != nil {
		return nil, err
	}
	if b.Includes.Media, err = mapMedia(page.Includes.Media); err != nil {
		return nil, err
	}
	return b, nil
}

func decodePrimary(data jsoniter.RawMessage, b *models.Bundle) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return shapeErrorf("missing data payload")
	}

	switch trimmed[0] {
	case '[':
		var probes []rawProbe
		if err := json.Unmarshal(trimmed, &probes); err != nil {
			return shapeErrorf("data is not a list of objects: %v", err)
		}
		if len(probes) == 0 {
			return nil
		}
		switch {
		case probes[0].Username != nil:
			var users []rawUser
			if err := json.Unmarshal(trimmed, &users); err != nil {
				return errors.Wrap(err, "parse users")
			}
			mapped, err := mapUsers(users, "data")
			if err != nil {
				return err
			}
			b.Users = mapped
		case probes[0].Text != nil:
			var tweets []rawTweet
			if err := json.Unmarshal(trimmed, &tweets); err != nil {
				return errors.Wrap(err, "parse tweets")
			}
			mapped, err := mapTweets(tweets, "data")
			if err != nil {
				return err
			}
			b.Posts = mapped
		default:
			return shapeErrorf("data items are neither users nor tweets")
		}
	case '{':
		var tweet rawTweet
		if err := json.Unmarshal(trimmed, &tweet); err != nil {
			return errors.Wrap(err, "parse tweet")
		}
		mapped, err := mapTweets([]rawTweet{tweet}, "data")
		if err != nil {
			return err
		}
		b.Posts = mapped
	default:
		return shapeErrorf("data is neither an object nor a list")
	}
	return nil
}

func mapUsers(in []rawUser, where string) ([]models.User, error) {
	out := make([]models.User, 0, len(in))
	for i, u := range in {
		if u.ID == "" || u.Username == "" {
			return nil, shapeErrorf("%s[%d]: user without id or username", where, i)
		}
		out = append(out, models.User{
			ID:                   u.ID,
			CreatedAt:            u.CreatedAt,
			Username:             u.Username,
			Name:                 u.Name,
			Description:          u.Description,
			Location:             u.Location,
			PinnedTweetID:        u.PinnedTweetID,
			ProfileImageURL:      u.ProfileImageURL,
			Protected:            u.Protected,
			Verified:             u.Verified,
			URL:                  u.URL,
			FollowersCount:       u.PublicMetrics.FollowersCount,
			FollowingCount:       u.PublicMetrics.FollowingCount,
			ListedCount:          u.PublicMetrics.ListedCount,
			TweetCount:           u.PublicMetrics.TweetCount,
			WithheldCountryCodes: countryCodes(u.Withheld),
		})
	}
	return out, nil
}

func mapTweets(in []rawTweet, where string) ([]models.Post, error) {
	out := make([]models.Post, 0, len(in))
	for i, t := range in {
		if t.ID == "" || t.Text == nil || t.AuthorID == "" {
			return nil, shapeErrorf("%s[%d]: tweet without id, text or author_id", where, i)
		}
		p := models.Post{
			ID:                   t.ID,
			ConversationID:       t.ConversationID,
			AuthorID:             t.AuthorID,
			CreatedAt:            t.CreatedAt,
			Text:                 *t.Text,
			Lang:                 t.Lang,
			Source:               t.Source,
			PossiblySensitive:    t.PossiblySensitive,
			ReplySettings:        t.ReplySettings,
			LikeCount:            t.PublicMetrics.LikeCount,
			QuoteCount:           t.PublicMetrics.QuoteCount,
			ReplyCount:           t.PublicMetrics.ReplyCount,
			RetweetCount:         t.PublicMetrics.RetweetCount,
			WithheldCountryCodes: countryCodes(t.Withheld),
			PlaceID:              t.Geo.PlaceID,
			MediaKeys:            t.Attachments.MediaKeys,
		}
		if t.Withheld != nil {
			p.WithheldCopyright = t.Withheld.Copyright
		}
		for _, ref := range t.ReferencedTweets {
			id := ref.ID
			switch ref.Type {
			case "retweeted":
				p.RetweetedID = &id
			case "quoted":
				p.QuotedID = &id
			case "replied_to":
				p.RepliedToID = &id
			}
		}
		// A tweet carries at most one poll even though the API models a list.
		if len(t.Attachments.PollIDs) > 0 {
			id := t.Attachments.PollIDs[0]
			p.PollID = &id
		}
		for _, h := range t.Entities.Hashtags {
			p.Hashtags = append(p.Hashtags, h.Tag)
		}
		for _, c := range t.Entities.Cashtags {
			p.Cashtags = append(p.Cashtags, c.Tag)
		}
		for _, m := range t.Entities.Mentions {
			p.Mentions = append(p.Mentions, models.Mention{UserID: m.ID, Username: m.Username})
		}
		for _, u := range t.Entities.URLs {
			p.URLs = append(p.URLs, models.URL{
				URL:         u.URL,
				ExpandedURL: u.ExpandedURL,
				DisplayURL:  u.DisplayURL,
				UnwoundURL:  u.UnwoundURL,
				Title:       u.Title,
				Description: u.Description,
				Status:      u.Status,
				MediaKey:    u.MediaKey,
				Images:      rawText(u.Images),
			})
		}
		for _, a := range t.ContextAnnotations {
			p.Annotations = append(p.Annotations, models.Annotation{
				DomainID:          a.Domain.ID,
				DomainName:        a.Domain.Name,
				DomainDescription: a.Domain.Description,
				EntityID:          a.Entity.ID,
				EntityName:        a.Entity.Name,
				EntityDescription: a.Entity.Description,
			})
		}
		out = append(out, p)
	}
	return out, nil
}

func mapPolls(in []rawPoll) ([]models.Poll, error) {
	out := make([]models.Poll, 0, len(in))
	for i, p := range in {
		if p.ID == "" {
			return nil, shapeErrorf("includes.polls[%d]: poll without id", i)
		}
		poll := models.Poll{
			ID:              p.ID,
			DurationMinutes: p.DurationMinutes,
			EndDatetime:     p.EndDatetime,
			VotingStatus:    p.VotingStatus,
		}
		for _, o := range p.Options {
			poll.Options = append(poll.Options, models.PollOption{Position: o.Position, Label: o.Label, Votes: o.Votes})
		}
		out = append(out, poll)
	}
	return out, nil
}

func mapPlaces(in []rawPlace) ([]models.Place, error) {
	out := make([]models.Place, 0, len(in))
	for i, p := range in {
		if p.ID == "" {
			return nil, shapeErrorf("includes.places[%d]: place without id", i)
		}
		if n := len(p.Geo.BBox); n != 0 && n != 4 {
			return nil, shapeErrorf("includes.places[%d]: bbox has %d coordinates", i, n)
		}
		out = append(out, models.Place{
			ID:          p.ID,
			FullName:    p.FullName,
			Name:        p.Name,
			Country:     p.Country,
			CountryCode: p.CountryCode,
			PlaceType:   p.PlaceType,
			GeoType:     p.Geo.Type,
			BBox:        p.Geo.BBox,
		})
	}
	return out, nil
}

func mapMedia(in []rawMedia) ([]models.Media, error) {
	out := make([]models.Media, 0, len(in))
	for i, m := range in {
		if m.MediaKey == "" {
			return nil, shapeErrorf("includes.media[%d]: media without media_key", i)
		}
		views := m.ViewCount
		if views == nil && m.PublicMetrics != nil {
			views = m.PublicMetrics.ViewCount
		}
		out = append(out, models.Media{
			MediaKey:        m.MediaKey,
			Type:            m.Type,
			URL:             m.URL,
			PreviewImageURL: m.PreviewImageURL,
			AltText:         m.AltText,
			DurationMS:      m.DurationMS,
			ViewCount:       views,
			Width:           m.Width,
			Height:          m.Height,
		})
	}
	return out, nil
}

// countryCodes keeps the withheld country list as JSON text, or nil.
func countryCodes(w *rawWithheld) *string {
	if w == nil || w.CountryCodes == nil {
		return nil
	}
	b, err := json.Marshal(w.CountryCodes)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

func rawText(m jsoniter.RawMessage) *string {
	t := bytes.TrimSpace(m)
	if len(t) == 0 || bytes.Equal(t, []byte("null")) {
		return nil
	}
	s := string(t)
	return &s
}
