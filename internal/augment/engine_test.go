package augment

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/feed-copilot/internal/fetch"
	"github.com/jonathan/feed-copilot/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const assetBase = "https://assets.example.com/labels"

var (
	ada    = types.Profile{User: "Ada Lovelace", Titles: "Engineer", Link: "https://www.linkedin.com/in/ada"}
	grover = types.ClassificationResult{Label: types.LabelGrover, Proba: 92}
)

func parse(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func newEngine() *Engine {
	return NewEngine(fetch.DefaultSelectors(), Assets{BaseURL: assetBase + "/"}, nil)
}

func render(t *testing.T, doc *goquery.Document) string {
	t.Helper()
	out, err := Body(doc)
	require.NoError(t, err)
	return out
}

func TestAssets_URL(t *testing.T) {
	assert.Equal(t, assetBase+"/grover.png", Assets{BaseURL: assetBase}.URL("grover"))
	assert.Equal(t, assetBase+"/count.png", Assets{BaseURL: assetBase + "/"}.URL("count"))
}

func TestApply_Text(t *testing.T) {
	doc := parse(t, `<html><body>
		<h1 class="text-heading-xlarge">Ada Lovelace</h1>
		<div><span>  Ada Lovelace </span></div>
		<a href="/in/ada">Ada Lovelace</a>
		<span>Ada Lovelace, Engineer</span>
		<p>Ada Lovelace</p>
	</body></html>`)

	stats := newEngine().Apply(doc, ada, grover)
	assert.Equal(t, 3, stats.Text)

	assert.Equal(t, "Ada Lovelace [92% as grover]", doc.Find("h1").Text())
	assert.Equal(t, "Ada Lovelace [92% as grover]", doc.Find("div > span").Text())
	assert.Equal(t, "Ada Lovelace [92% as grover]", doc.Find("a").Text())
	assert.Equal(t, "Ada Lovelace, Engineer", doc.Find("body > span").Text(), "partial match is left alone")
	assert.Equal(t, "Ada Lovelace", doc.Find("p").Text(), "not a text target")

	_, marked := doc.Find("div").Attr(ScannedAttr)
	assert.False(t, marked, "wrapper keeps its markup and is not marked")
	_, marked = doc.Find("div > span").Attr(ScannedAttr)
	assert.True(t, marked)
}

func TestApply_TextWrapsNonTargetChild(t *testing.T) {
	doc := parse(t, `<html><body>
		<a href="/in/ada"><strong>Ada Lovelace</strong></a>
		<div id="outer"><p>Ada Lovelace</p></div>
		<section><div id="deep"><p><span>Ada Lovelace</span></p></div></section>
	</body></html>`)

	stats := newEngine().Apply(doc, ada, grover)
	assert.Equal(t, 3, stats.Text)

	assert.Equal(t, "Ada Lovelace [92% as grover]", doc.Find("a").Text())
	assert.Equal(t, "Ada Lovelace [92% as grover]", doc.Find("#outer").Text())
	assert.Equal(t, "Ada Lovelace [92% as grover]", doc.Find("#deep span").Text())
	_, marked := doc.Find("#deep").Attr(ScannedAttr)
	assert.False(t, marked, "nested target is decorated, not its wrapper")
}

func TestApply_TextIdempotent(t *testing.T) {
	doc := parse(t, `<html><body>
		<h1 class="text-heading-xlarge">Ada Lovelace</h1>
		<div class="ivm-view-attr__ghost-entity"><div>Ada Lovelace</div></div>
		<img alt="Ada Lovelace's profile photo" src="a.png">
	</body></html>`)
	engine := newEngine()

	first := engine.Apply(doc, ada, grover)
	once := render(t, doc)
	second := engine.Apply(doc, ada, grover)

	assert.Equal(t, once, render(t, doc))
	assert.Greater(t, first.Total(), 0)
	assert.Equal(t, Stats{}, second)
}

func TestApply_SkipsAlreadyScanned(t *testing.T) {
	doc := parse(t, `<html><body><span data-copilot-scanned="true">Ada Lovelace</span></body></html>`)

	stats := newEngine().Apply(doc, ada, grover)
	assert.Equal(t, 0, stats.Text)
	assert.Equal(t, "Ada Lovelace", doc.Find("span").Text())
}

func TestApply_NotAnnotatable(t *testing.T) {
	markup := `<html><body><span>Ada Lovelace</span><img alt="Ada photo" src="x"></body></html>`

	tests := []struct {
		name   string
		result types.ClassificationResult
	}{
		{"negative proba", types.ClassificationResult{Label: types.LabelGrover, Proba: -1}},
		{"empty label", types.ClassificationResult{Proba: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, markup)
			assert.Equal(t, Stats{}, newEngine().Apply(doc, ada, tt.result))
			assert.Equal(t, "Ada Lovelace", doc.Find("span").Text())
		})
	}
}

func TestApply_Images(t *testing.T) {
	doc := parse(t, `<html><body>
		<img id="mine" alt="Ada Lovelace" src="orig.png">
		<img id="photo" alt="Photo of Lovelace" src="orig.png">
		<img id="other" alt="Bob's profile photo" src="orig.png">
		<img id="unrelated" alt="Company logo of Ada Corp" src="orig.png">
		<img id="noalt" src="orig.png">
		<img id="ghostattr" ghost-person="true" alt="Ada Lovelace" src="orig.png">
	</body></html>`)

	stats := newEngine().Apply(doc, ada, grover)
	want := assetBase + "/grover.png"

	src := func(id string) string {
		v, _ := doc.Find("#" + id).Attr("src")
		return v
	}
	assert.Equal(t, want, src("mine"))
	href, _ := doc.Find("#mine").Attr("href")
	assert.Equal(t, want, href)
	assert.Equal(t, want, src("photo"))
	assert.Equal(t, "orig.png", src("other"), "photo context but no name token")
	assert.Equal(t, "orig.png", src("unrelated"), "token without photo or profile context")
	assert.Equal(t, "orig.png", src("noalt"))
	assert.Equal(t, "orig.png", src("ghostattr"))
	assert.Equal(t, 2, stats.Images)
}

func TestApply_GhostEntity(t *testing.T) {
	doc := parse(t, `<html><body>
		<div class="ivm-view-attr__ghost-entity" id="match"><div><div>Ada Lovelace</div></div></div>
		<div class="ivm-view-attr__ghost-entity" id="miss"><div>Someone Else</div></div>
	</body></html>`)

	stats := newEngine().Apply(doc, ada, grover)
	assert.Equal(t, 1, stats.Ghosts)

	img := doc.Find("#match > img")
	require.Equal(t, 1, img.Length())
	src, _ := img.Attr("src")
	alt, _ := img.Attr("alt")
	assert.Equal(t, assetBase+"/grover.png", src)
	assert.Equal(t, "Ada Lovelace's photo", alt)
	assert.True(t, img.HasClass("evi-image"))

	assert.Equal(t, "Someone Else", doc.Find("#miss").Text())
}

func TestApply_GhostImage(t *testing.T) {
	doc := parse(t, `<html><body>
		<img class="ghost-person" id="g1" alt="Ada Lovelace's photo" src="ghost.svg">
		<img class="ghost-person" id="g2" alt="Bob" src="ghost.svg">
	</body></html>`)

	stats := newEngine().Apply(doc, ada, grover)
	assert.Equal(t, 1, stats.Ghosts)
	assert.Equal(t, 0, stats.Images, "placeholders are not regular avatars")

	src, _ := doc.Find("#g1").Attr("src")
	assert.Equal(t, assetBase+"/grover.png", src)
	src, _ = doc.Find("#g2").Attr("src")
	assert.Equal(t, "ghost.svg", src)
}

func TestApply_EscapesName(t *testing.T) {
	evil := types.Profile{User: `Eve "<script>"`, Titles: "x"}
	doc := parse(t, `<html><body><div class="ivm-view-attr__ghost-entity"><div>Eve "&lt;script&gt;"</div></div></body></html>`)

	stats := newEngine().Apply(doc, evil, grover)
	require.Equal(t, 1, stats.Ghosts)
	assert.Equal(t, 0, doc.Find("script").Length())
	alt, _ := doc.Find("img").Attr("alt")
	assert.Equal(t, `Eve "<script>"'s photo`, alt)
}

func TestApply_NoMatches(t *testing.T) {
	doc := parse(t, `<html><body><p>nothing here</p></body></html>`)
	before := render(t, doc)

	stats := newEngine().Apply(doc, ada, grover)
	assert.Equal(t, Stats{}, stats)
	assert.Equal(t, before, render(t, doc))

	assert.Equal(t, Stats{}, newEngine().Apply(nil, ada, grover))
	assert.Equal(t, Stats{}, newEngine().Apply(doc, types.Profile{}, grover))
}

func TestStats(t *testing.T) {
	s := Stats{Text: 1, Images: 2}.Add(Stats{Ghosts: 3, Text: 1})
	assert.Equal(t, Stats{Text: 2, Images: 2, Ghosts: 3}, s)
	assert.Equal(t, 7, s.Total())
}

func TestSuffix(t *testing.T) {
	assert.Equal(t, " [92% as grover]", Suffix(grover))
}
