// Package parsing turns scraped profile markup into structured profile records.
package parsing

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/feed-copilot/internal/fetch"
	"github.com/jonathan/feed-copilot/internal/types"
)

// Extractor reads profile records using a fixed selector table.
type Extractor struct {
	sel fetch.SiteSelectors
}

// NewExtractor creates an extractor for the given selectors.
func NewExtractor(sel fetch.SiteSelectors) *Extractor {
	return &Extractor{sel: sel}
}

// ExtractProfile parses markup with the default selectors.
func ExtractProfile(markup string) *types.Profile {
	return NewExtractor(fetch.DefaultSelectors()).Extract(markup)
}

// Extract returns the profile found in markup, or nil unless both the name
// and the title are present. Partial records are discarded.
func (e *Extractor) Extract(markup string) *types.Profile {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	user := strings.TrimSpace(doc.Find(e.sel.Name).Text())
	titles := strings.TrimSpace(doc.Find(e.sel.Titles).Text())
	if user == "" || titles == "" {
		return nil
	}

	return &types.Profile{
		User:   user,
		Titles: titles,
		Posts:  e.posts(doc),
	}
}

// posts collects the expanded text of each activity item, in order.
// Items without text are skipped; nil means nothing was found.
func (e *Extractor) posts(doc *goquery.Document) []string {
	var posts []string
	doc.Find(e.sel.ActivityItems).Each(func(_ int, item *goquery.Selection) {
		post := strings.TrimSpace(item.Find(e.sel.ShowMoreText).Text())
		if post == "" {
			return
		}
		posts = append(posts, post)
	})
	return posts
}
