// Package scrapers implements the three discovery sub-modules of C8:
// ProductFeed.List, TeamExtractor.Extract, and ProfileFinder.Find.
package scrapers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/errkind"
	"github.com/ignite/prospectai/internal/httpclient"
)

// ProductFeed lists candidate companies from a public product-launch
// feed, consumed as an RSS/Atom feed.
type ProductFeed struct {
	client  *httpclient.Client
	feedURL string
	parser  *gofeed.Parser
}

// NewProductFeed builds a ProductFeed reading cfg.ProductFeedURL.
func NewProductFeed(client *httpclient.Client, cfg config.ScrapingConfig) *ProductFeed {
	parser := gofeed.NewParser()
	parser.UserAgent = cfg.UserAgent
	return &ProductFeed{client: client, feedURL: cfg.ProductFeedURL, parser: parser}
}

// List returns up to limit candidate Company stubs from a single fetch
// of the feed, in feed order, skipping items without a title. It does
// not request further or older pages, so a feed holding fewer titled
// items than limit yields fewer companies. Deduplication is out of scope
// here; the Orchestrator and Store own that.
func (f *ProductFeed) List(ctx context.Context, limit int) ([]domain.Company, error) {
	if limit <= 0 {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.feedURL, nil)
	if err != nil {
		return nil, errkind.New(errkind.Permanent, err)
	}

	resp, err := f.client.Do(ctx, "scraper", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, errkind.New(errkind.ParseError, fmt.Errorf("scrapers: parse feed: %w", err))
	}

	out := make([]domain.Company, 0, limit)
	for _, item := range feed.Items {
		if len(out) >= limit {
			break
		}
		company := domain.Company{
			Name:        item.Title,
			ProductURL:  item.Link,
			Description: item.Description,
		}
		if item.PublishedParsed != nil {
			company.LaunchTimestamp = *item.PublishedParsed
		} else {
			company.LaunchTimestamp = time.Now()
		}
		if company.Name == "" {
			continue
		}
		out = append(out, company)
	}
	return out, nil
}
