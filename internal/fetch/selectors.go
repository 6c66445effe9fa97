// Package fetch - selectors.go holds the site-specific selectors for the profile layout.
package fetch

import "strings"

const (
	// SiteOrigin is prepended to relative profile links.
	SiteOrigin = "https://www.linkedin.com"
	// ProfilePathMarker identifies anchors that point at profile pages.
	ProfilePathMarker = "/in/"
	// ProfileURLPrefix is the URL prefix of a single profile page.
	ProfileURLPrefix = SiteOrigin + ProfilePathMarker
)

// SiteSelectors groups the CSS selectors used to read and decorate profile pages.
type SiteSelectors struct {
	ProfileAnchors string // anchors linking to profile pages
	Name           string // display name on a profile page
	Titles         string // headline / biography under the name
	ActivityItems  string // activity list items
	ShowMoreText   string // expanded text inside an activity item
	ActivityRegion string // region rendered by a dynamic script
	Heading        string // profile heading on the visible page
	GhostEntity    string // placeholder entity without a resolved image
	GhostImage     string // placeholder avatar image
	GhostClass     string // class marking placeholder images
	TextTargets    string // elements considered for text decoration
}

// DefaultSelectors returns the selectors for the current profile layout.
func DefaultSelectors() SiteSelectors {
	return SiteSelectors{
		ProfileAnchors: `a[href*="` + ProfilePathMarker + `"]`,
		Name:           "main h1",
		Titles:         "main div.text-body-medium",
		ActivityItems:  "ul.pvs-list li",
		ShowMoreText:   "div.inline-show-more-text",
		ActivityRegion: ".pvs-list",
		Heading:        "h1.text-heading-xlarge",
		GhostEntity:    "div.ivm-view-attr__ghost-entity",
		GhostImage:     "img.ghost-person",
		GhostClass:     "ghost-person",
		TextTargets:    "h1.text-heading-xlarge, div, span, a",
	}
}

// IsProfilePage reports whether pageURL is a single profile page.
func IsProfilePage(pageURL string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(pageURL)), ProfileURLPrefix)
}
