package main

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Credentials is what the data fetch needs from the company page markup.
// Both fields are always set; a page yielding only one of them is a total
// extraction failure, since a token without a route (or vice versa) is unusable.
type Credentials struct {
	CSRFToken   string
	EndpointURL string
}

// CompanyInfo is the company header block scraped off the target page.
type CompanyInfo struct {
	Name         string
	Address      string
	Country      string
	TotalVessels string
	TotalDWT     string
	Website      string
}

var companyPagePattern = regexp.MustCompile(`/owners-managers/([^/]+)/([^/?#]+)/?`)

// ExtractCredentials pulls the CSRF token and the fleet data route out of a
// company page document. Pure: no network, no side effects.
//
// The token is taken from the first csrf-bearing element in document order,
// trying the Laravel meta tag first, then the _token variant, then hidden
// form inputs. The route is the first data-route attribute ending in /fleets,
// falling back to any data-route that mentions fleet, vessel or ship.
func ExtractCredentials(html string) (*Credentials, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	token := extractCSRFToken(doc)
	if token == "" {
		return nil, &ExtractionError{Missing: MissingCSRFToken}
	}

	route := extractFleetRoute(doc)
	if route == "" {
		return nil, &ExtractionError{Missing: MissingFleetRoute}
	}

	return &Credentials{CSRFToken: token, EndpointURL: route}, nil
}

// CSRFTokenFromPage returns just the token, for callers that recover the
// fleet route from the page URL instead of the markup.
func CSRFTokenFromPage(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return extractCSRFToken(doc)
}

func extractCSRFToken(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[name="csrf-token"]`).First().Attr("content"); ok && v != "" {
		return v
	}
	if v, ok := doc.Find(`meta[name="_token"]`).First().Attr("content"); ok && v != "" {
		return v
	}
	if v, ok := doc.Find(`input[name*="csrf"], input[name*="_token"]`).First().Attr("value"); ok && v != "" {
		return v
	}
	return ""
}

func extractFleetRoute(doc *goquery.Document) string {
	var exact, similar string
	doc.Find("[data-route]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		route, _ := sel.Attr("data-route")
		if route == "" {
			return true
		}
		if strings.HasSuffix(strings.TrimRight(route, "/"), "/fleets") {
			exact = route
			return false
		}
		lower := strings.ToLower(route)
		if similar == "" && (strings.Contains(lower, "fleet") || strings.Contains(lower, "vessel") || strings.Contains(lower, "ship")) {
			similar = route
		}
		return true
	})
	if exact != "" {
		return exact
	}
	return similar
}

// FleetRouteFromPageURL constructs the fleet endpoint from the company page
// URL as a last resort when the markup carries no data-route at all. The
// route convention is <base>/owners-managers/<country>/<company>/fleets.
func FleetRouteFromPageURL(base, pageURL string) (string, bool) {
	m := companyPagePattern.FindStringSubmatch(pageURL)
	if m == nil {
		return "", false
	}
	return strings.TrimRight(base, "/") + "/owners-managers/" + m[1] + "/" + m[2] + "/fleets", true
}

// AbsoluteURL resolves a possibly-relative route against the site origin.
// The data-route attribute comes out of the markup as a bare path.
func AbsoluteURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// CompanySlugFromURL derives the slug used in artifact file names.
func CompanySlugFromURL(pageURL string) string {
	m := companyPagePattern.FindStringSubmatch(pageURL)
	if m == nil {
		return "company"
	}
	return m[2]
}

// ExtractCompanyInfo scrapes the company header: name from the page title,
// vessel and DWT totals from the stats cards, website and address from the
// contact list, country from the URL path. Missing pieces stay empty, this
// never fails the run.
func ExtractCompanyInfo(html, pageURL string) *CompanyInfo {
	info := &CompanyInfo{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return info
	}

	info.Name = strings.TrimSpace(doc.Find("h1.single__header-title").First().Text())

	doc.Find(".card--stats-2").Each(func(_ int, card *goquery.Selection) {
		title := card.Find("h3").First().Text()
		counter, _ := card.Find("[data-counter]").First().Attr("data-counter")
		if counter == "" {
			return
		}
		switch {
		case strings.Contains(title, "Total Vessels"):
			info.TotalVessels = counter
		case strings.Contains(title, "Total DWT"):
			info.TotalDWT = counter
		}
	})

	doc.Find("li.list__item").Each(func(_ int, item *goquery.Selection) {
		icon, _ := item.Find("svg use").First().Attr("xlink:href")
		label := strings.TrimSpace(item.Find(".list__item-label").First().Text())
		if label == "" {
			return
		}
		switch {
		case strings.Contains(icon, "world") || strings.HasPrefix(label, "http"):
			info.Website = label
		case strings.Contains(icon, "map"):
			info.Address = label
		}
	})

	if m := companyPagePattern.FindStringSubmatch(pageURL); m != nil {
		info.Country = titleCase(strings.ReplaceAll(m[1], "-", " "))
	}

	return info
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
