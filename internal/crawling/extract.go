package crawling

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/feed-copilot/internal/fetch"
	"github.com/jonathan/feed-copilot/internal/types"
)

// LinkedAttr marks anchors already handed to a discovery pass on a live page.
const LinkedAttr = "data-copilot-linked"

// DiscoverProfileLinks returns the profile links on the page in document order.
// Links are trimmed, lower-cased, resolved against baseURL and deduplicated.
// Anchors are marked so a later pass over the same live page skips them.
func DiscoverProfileLinks(doc *goquery.Document, baseURL string, anchorSelector string) ([]types.ProfileLink, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &LinkExtractionError{
			Message: "failed to parse base URL",
			Cause:   err,
		}
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, &LinkExtractionError{
			Message: fmt.Sprintf("invalid base URL: %s (must have scheme and host)", baseURL),
		}
	}
	if anchorSelector == "" {
		anchorSelector = fetch.DefaultSelectors().ProfileAnchors
	}

	seen := make(map[types.ProfileLink]bool)
	links := make([]types.ProfileLink, 0)

	doc.Find(anchorSelector).Each(func(_ int, s *goquery.Selection) {
		if _, marked := s.Attr(LinkedAttr); marked {
			return
		}
		s.SetAttr(LinkedAttr, "true")

		href, exists := s.Attr("href")
		if !exists {
			return
		}
		link, ok := normalize(base, href)
		if !ok || seen[link] {
			return
		}
		seen[link] = true
		links = append(links, link)
	})

	return links, nil
}

// ExtractProfileLinks parses htmlContent and discovers its profile links.
func ExtractProfileLinks(htmlContent string, baseURL string) ([]types.ProfileLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, &LinkExtractionError{
			Message: "failed to parse HTML",
			Cause:   err,
		}
	}
	return DiscoverProfileLinks(doc, baseURL, "")
}

// normalize lower-cases href and makes it absolute against base.
func normalize(base *url.URL, href string) (types.ProfileLink, bool) {
	href = strings.ToLower(strings.TrimSpace(href))
	if href == "" {
		return "", false
	}

	linkURL, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	// The site uses relative links; resolve them against the page origin.
	absoluteURL := base.ResolveReference(linkURL)
	if absoluteURL.Scheme != "http" && absoluteURL.Scheme != "https" {
		return "", false
	}
	absoluteURL.Fragment = ""

	return types.ProfileLink(strings.ToLower(absoluteURL.String())), true
}
