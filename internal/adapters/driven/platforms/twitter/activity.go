package twitter

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-social/internal/adapters/driven/platforms"
	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

const (
	// X accepts max_results between 5 and 100 on timeline endpoints.
	minResults = 5
	maxResults = 100

	tweetFields = "created_at,public_metrics,author_id"
)

// Activity returns the user's recent tweets and mentions with their
// public metrics. The two timelines are fetched concurrently.
func (c *Client) Activity(ctx context.Context, accessToken string, max int) (*domain.Activity, error) {
	me, err := c.Me(ctx, accessToken)
	if err != nil {
		return nil, c.activityErr("users/me", err)
	}

	query := url.Values{}
	query.Set("max_results", strconv.Itoa(clampResults(max)))
	query.Set("tweet.fields", tweetFields)

	var posts, mentions []domain.Post
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := c.get(gctx, accessToken, "/users/"+url.PathEscape(me.PlatformUserID)+"/tweets", query)
		if err != nil {
			return c.activityErr("tweets", err)
		}
		posts = parseTweets(doc)
		return nil
	})
	g.Go(func() error {
		doc, err := c.get(gctx, accessToken, "/users/"+url.PathEscape(me.PlatformUserID)+"/mentions", query)
		if err != nil {
			return c.activityErr("mentions", err)
		}
		mentions = parseTweets(doc)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.Activity{
		Platform:  domain.PlatformX,
		User:      *me,
		Posts:     posts,
		Mentions:  mentions,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// activityErr keeps rate limit errors intact so callers can report the
// reset time. Everything else collapses to ErrActivityFailed.
func (c *Client) activityErr(op string, err error) error {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return platforms.Fail(c.logger, domain.PlatformX, op, domain.ErrActivityFailed, err)
}

func clampResults(n int) int {
	switch {
	case n <= 0:
		return 10
	case n < minResults:
		return minResults
	case n > maxResults:
		return maxResults
	}
	return n
}

func parseTweets(doc gjson.Result) []domain.Post {
	items := doc.Get("data").Array()
	posts := make([]domain.Post, 0, len(items))
	for _, t := range items {
		p := domain.Post{
			ID:       t.Get("id").String(),
			Text:     t.Get("text").String(),
			AuthorID: t.Get("author_id").String(),
			Metrics: domain.PostMetrics{
				Likes:       t.Get("public_metrics.like_count").Int(),
				Replies:     t.Get("public_metrics.reply_count").Int(),
				Reposts:     t.Get("public_metrics.retweet_count").Int(),
				Quotes:      t.Get("public_metrics.quote_count").Int(),
				Impressions: t.Get("public_metrics.impression_count").Int(),
			},
		}
		if ts, err := time.Parse(time.RFC3339, t.Get("created_at").String()); err == nil {
			p.CreatedAt = &ts
		}
		posts = append(posts, p)
	}
	return posts
}
