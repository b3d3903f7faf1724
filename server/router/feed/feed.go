// Package feed serves the cached items of one account as an Atom feed,
// so a screen's collection can be followed from a feed reader. Feeds
// are served purely from the cache and never trigger a fetch.
package feed

import (
	"fmt"
	"net/http"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"

	"github.com/pulsedesk/pulsedesk/plugin/upstream"
	"github.com/pulsedesk/pulsedesk/syncer"
)

// FeedService renders account feeds from the sync cache.
type FeedService struct {
	Syncer *syncer.Syncer[upstream.Item]
}

// NewFeedService creates the feed service.
func NewFeedService(s *syncer.Syncer[upstream.Item]) *FeedService {
	return &FeedService{Syncer: s}
}

// RegisterRoutes registers the feed routes with the given Echo instance.
func (s *FeedService) RegisterRoutes(echoServer *echo.Echo) {
	echoServer.GET("/feeds/:account", s.GetAccountFeed)
}

// GetAccountFeed returns the cached items of one account as Atom.
// GET /feeds/:account
func (s *FeedService) GetAccountFeed(c echo.Context) error {
	account := c.Param("account")

	items, fetchedAt, ok := s.Syncer.Peek(account)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no cached items for account")
	}

	feed := &feeds.Feed{
		Title:   fmt.Sprintf("pulsedesk: %s", account),
		Link:    &feeds.Link{Href: c.Request().URL.String()},
		Updated: fetchedAt,
	}
	for _, item := range items {
		updated := item.UpdatedAt
		if updated.IsZero() {
			updated = fetchedAt
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          item.ID,
			Title:       item.Title,
			Description: item.Snippet,
			Updated:     updated,
		})
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "render feed")
	}
	return c.Blob(http.StatusOK, "application/atom+xml; charset=utf-8", []byte(atom))
}
