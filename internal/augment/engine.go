// Package augment decorates a parsed page with classification results: name
// labels, avatar images and ghost placeholders. Every pass is idempotent.
package augment

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/feed-copilot/internal/fetch"
	"github.com/jonathan/feed-copilot/internal/types"
	"go.uber.org/zap"
)

// ScannedAttr marks elements whose text has already been decorated.
const ScannedAttr = "data-copilot-scanned"

// GhostPhotoClass is the class set on images created for ghost placeholders.
const GhostPhotoClass = "EntityPhoto-circle-3 evi-image"

// Assets addresses the per-label images.
type Assets struct {
	BaseURL string
}

// URL returns the image for label.
func (a Assets) URL(label string) string {
	return strings.TrimRight(a.BaseURL, "/") + "/" + label + ".png"
}

// Stats counts the elements changed by one Apply.
type Stats struct {
	Text   int `json:"text"`
	Images int `json:"images"`
	Ghosts int `json:"ghosts"`
}

// Total is the number of mutated elements.
func (s Stats) Total() int {
	return s.Text + s.Images + s.Ghosts
}

// Add sums two Stats.
func (s Stats) Add(o Stats) Stats {
	return Stats{Text: s.Text + o.Text, Images: s.Images + o.Images, Ghosts: s.Ghosts + o.Ghosts}
}

// Engine applies the decoration passes.
type Engine struct {
	sel    fetch.SiteSelectors
	assets Assets
	logger *zap.Logger
}

// NewEngine creates an engine.
func NewEngine(sel fetch.SiteSelectors, assets Assets, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{sel: sel, assets: assets, logger: logger}
}

// Apply runs the text, image and placeholder passes for one profile.
// A profile with no matching elements changes nothing.
func (e *Engine) Apply(doc *goquery.Document, profile types.Profile, result types.ClassificationResult) Stats {
	var stats Stats
	name := strings.TrimSpace(profile.User)
	if doc == nil || name == "" || !result.Annotatable() {
		return stats
	}

	stats.Ghosts = e.ghosts(doc, name, result.Label)
	stats.Images = e.images(doc, name, result.Label)
	stats.Text = e.text(doc, name, result)

	e.logger.Debug("profile augmented",
		zap.String("user", name),
		zap.String("label", result.Label),
		zap.Int("proba", result.Proba),
		zap.Int("text", stats.Text),
		zap.Int("images", stats.Images),
		zap.Int("ghosts", stats.Ghosts))

	return stats
}

// Suffix is the text appended to a matching name.
func Suffix(result types.ClassificationResult) string {
	return fmt.Sprintf(" [%d%% as %s]", result.Proba, result.Label)
}

// text appends the result to elements whose trimmed text is exactly the name.
// When a nested text target carries the same text that element is decorated
// instead, so the surrounding markup survives.
func (e *Engine) text(doc *goquery.Document, name string, result types.ClassificationResult) int {
	count := 0
	doc.Find(e.sel.TextTargets).Each(func(_ int, s *goquery.Selection) {
		if _, scanned := s.Attr(ScannedAttr); scanned {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text != name {
			return
		}
		if s.Find(e.sel.TextTargets).FilterFunction(func(_ int, c *goquery.Selection) bool {
			return strings.TrimSpace(c.Text()) == name
		}).Length() > 0 {
			return
		}

		s.SetText(text + Suffix(result))
		s.SetAttr(ScannedAttr, "true")
		count++
	})
	return count
}

// nameMatches reports whether alt text refers to a photo, a profile or the name.
func nameMatches(alt, lowerName string) bool {
	return strings.Contains(alt, "photo") || strings.Contains(alt, "profile") || strings.Contains(alt, lowerName)
}

// pointAtAsset swaps src and href to url when a token of the name occurs in
// the image's alt text. It returns whether the element changed.
func pointAtAsset(img *goquery.Selection, name, url string) bool {
	alt, ok := img.Attr("alt")
	if !ok {
		return false
	}
	alt = strings.ToLower(strings.TrimSpace(alt))
	if alt == "" {
		return false
	}
	lowerName := strings.ToLower(name)
	if !nameMatches(alt, lowerName) {
		return false
	}

	for _, tok := range strings.Fields(lowerName) {
		if !strings.Contains(alt, tok) {
			continue
		}
		src, _ := img.Attr("src")
		href, _ := img.Attr("href")
		if src == url && href == url {
			return false
		}
		img.SetAttr("src", url)
		img.SetAttr("href", url)
		return true
	}
	return false
}

// images rewrites avatars of the profile, skipping placeholder images.
func (e *Engine) images(doc *goquery.Document, name, label string) int {
	url := e.assets.URL(label)
	count := 0
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if _, ghost := img.Attr(e.sel.GhostClass); ghost || img.HasClass(e.sel.GhostClass) {
			return
		}
		if pointAtAsset(img, name, url) {
			count++
		}
	})
	return count
}

// ghosts fills placeholder entities that mention the profile and points
// placeholder avatars of the profile at the label image.
func (e *Engine) ghosts(doc *goquery.Document, name, label string) int {
	url := e.assets.URL(label)
	count := 0

	doc.Find(e.sel.GhostEntity).Each(func(_ int, entity *goquery.Selection) {
		found := entity.Find("div").FilterFunction(func(_ int, d *goquery.Selection) bool {
			return strings.Contains(d.Text(), name)
		}).First()
		if found.Length() == 0 {
			return
		}
		entity.SetHtml(ghostImage(name, url))
		count++
	})

	doc.Find(e.sel.GhostImage).Each(func(_ int, img *goquery.Selection) {
		if pointAtAsset(img, name, url) {
			count++
		}
	})

	return count
}

func ghostImage(name, url string) string {
	u := html.EscapeString(url)
	return fmt.Sprintf(`<img src="%s" alt="%s" class="%s" href="%s">`,
		u, html.EscapeString(name+"'s photo"), GhostPhotoClass, u)
}

// Body renders the document's body element.
func Body(doc *goquery.Document) (string, error) {
	body := doc.Find("body")
	if body.Length() == 0 {
		return "", fmt.Errorf("document has no body")
	}
	return goquery.OuterHtml(body)
}
