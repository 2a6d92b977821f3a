package main

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	companyURLPattern = regexp.MustCompile(`^https?://[^/]+/owners-managers/[^/]+/[^/]+/?$`)
	pageParamPattern  = regexp.MustCompile(`page=(\d+)`)
)

// DirectoryCrawler walks the paginated owners-managers listing for one
// country and feeds discovered companies into the store. It reuses the same
// session machinery as the pipeline so listing traffic carries the same
// fingerprint and pacing as everything else.
type DirectoryCrawler struct {
	session *SessionContext
	store   *Store
	logger  Logger
}

func NewDirectoryCrawler(session *SessionContext, store *Store, logger Logger) *DirectoryCrawler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &DirectoryCrawler{session: session, store: store, logger: logger}
}

// Crawl fetches every listing page for the country and returns how many new
// companies were recorded.
func (c *DirectoryCrawler) Crawl(ctx context.Context, country string) (int, error) {
	firstPage := c.listingURL(country, 1)

	body, err := c.session.Navigate(ctx, firstPage, c.session.baseURL)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch first listing page: %w", err)
	}

	totalPages := TotalPages(body)
	c.logger.Log("Found %d listing page(s) for %s", totalPages, country)

	inserted := 0
	for page := 1; page <= totalPages; page++ {
		if page > 1 {
			if err := sleepCtx(ctx, c.session.delays.PageDelay); err != nil {
				return inserted, err
			}
			body, err = c.session.Navigate(ctx, c.listingURL(country, page), firstPage)
			if err != nil {
				return inserted, fmt.Errorf("failed to fetch listing page %d: %w", page, err)
			}
		}

		entries := ParseDirectoryPage(body, c.session.baseURL)
		c.logger.Log("Page %d/%d: %d company card(s)", page, totalPages, len(entries))

		n, err := c.store.InsertDirectoryEntries(entries)
		if err != nil {
			return inserted, fmt.Errorf("failed to record directory entries: %w", err)
		}
		inserted += n
	}

	return inserted, nil
}

func (c *DirectoryCrawler) listingURL(country string, page int) string {
	u := fmt.Sprintf("%s/owners-managers?country[]=%s", strings.TrimRight(c.session.baseURL, "/"), url.QueryEscape(country))
	if page > 1 {
		u += fmt.Sprintf("&page=%d", page)
	}
	return u
}

// TotalPages reads the highest page number out of the pagination footer.
// A page without pagination is a single-page listing.
func TotalPages(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 1
	}

	max := 1
	doc.Find("ul.pagination li.pagination__item").Each(func(_ int, item *goquery.Selection) {
		if href, ok := item.Find("a.pagination__item-link").Attr("href"); ok {
			if m := pageParamPattern.FindStringSubmatch(href); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil && n > max {
					max = n
				}
			}
		}
		active := strings.TrimSpace(item.Find("span.pagination__item-link--active").Text())
		if n, err := strconv.Atoi(active); err == nil && n > max {
			max = n
		}
	})
	return max
}

// ParseDirectoryPage extracts the company cards from one listing page. Cards
// without a valid detail URL or a name are skipped.
func ParseDirectoryPage(html, base string) []DirectoryEntry {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	baseParsed, _ := url.Parse(base)

	var entries []DirectoryEntry
	doc.Find("li.col-12").Each(func(_ int, item *goquery.Selection) {
		card := item.Find("a[href]").First()
		href, ok := card.Attr("href")
		if !ok || href == "" {
			return
		}

		companyURL := href
		if baseParsed != nil {
			if ref, err := url.Parse(href); err == nil {
				companyURL = baseParsed.ResolveReference(ref).String()
			}
		}
		if !companyURLPattern.MatchString(companyURL) {
			return
		}

		name := strings.TrimSpace(card.Find(`h3[class*="card__title"]`).First().Text())
		if name == "" {
			return
		}

		title, _ := card.Attr("title")
		entries = append(entries, DirectoryEntry{
			Name:      name,
			Country:   strings.TrimSpace(card.Find(`span[class*="badge--gray"]`).First().Text()),
			FleetSize: strings.TrimSpace(card.Find(`span[class*="badge--warning"]`).First().Text()),
			Title:     strings.TrimSpace(title),
			URL:       companyURL,
		})
	})
	return entries
}
