// Package fetch - browser.go drives a headless browser: the visible page and
// the short-lived hidden tabs used for scraping.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// DefaultSettleDelay is how long a hidden tab waits when the activity region is missing.
const DefaultSettleDelay = 400 * time.Millisecond

// DefaultScrapeTimeout bounds a single hidden-tab scrape.
const DefaultScrapeTimeout = 45 * time.Second

// ErrBrowserClosed is returned when the browser has already been shut down.
var ErrBrowserClosed = errors.New("browser closed")

// BrowserOptions configures the browser allocator and tab behavior.
type BrowserOptions struct {
	Headless      bool
	UserAgent     string
	UserDataDir   string // reuse a profile directory so the site session survives
	ScrapeTimeout time.Duration
	SettleDelay   time.Duration
	Selectors     SiteSelectors
}

// DefaultBrowserOptions returns sensible defaults.
func DefaultBrowserOptions() BrowserOptions {
	return BrowserOptions{
		Headless:      true,
		UserAgent:     DefaultUserAgent,
		ScrapeTimeout: DefaultScrapeTimeout,
		SettleDelay:   DefaultSettleDelay,
		Selectors:     DefaultSelectors(),
	}
}

// Browser owns one Chrome process shared by the visible page and every hidden tab.
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	opts        BrowserOptions
	logger      *zap.Logger
}

// NewBrowser starts Chrome. Requires Chrome/Chromium to be installed on the system.
func NewBrowser(ctx context.Context, opts BrowserOptions, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ScrapeTimeout <= 0 {
		opts.ScrapeTimeout = DefaultScrapeTimeout
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Selectors.ActivityRegion == "" {
		opts.Selectors = DefaultSelectors()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Start the browser process now so failures surface at construction.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Info("browser started",
		zap.Bool("headless", opts.Headless),
		zap.String("user_data_dir", opts.UserDataDir))

	return &Browser{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		opts:        opts,
		logger:      logger,
	}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.cancel()
	b.allocCancel()
	b.logger.Info("browser stopped")
}

// newTab opens a new target in the shared browser, bounded by ctx and timeout.
// The returned cancel closes the tab.
func (b *Browser) newTab(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if b.ctx.Err() != nil {
		return nil, nil, ErrBrowserClosed
	}

	tabCtx, closeTab := chromedp.NewContext(b.ctx)
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		tabCtx, cancelTimeout = context.WithTimeout(tabCtx, timeout)
		prev := closeTab
		closeTab = func() {
			cancelTimeout()
			prev()
		}
	}
	// The tab derives from the browser, so the caller's ctx is linked by hand.
	stop := context.AfterFunc(ctx, closeTab)
	return tabCtx, func() {
		stop()
		closeTab()
	}, nil
}

// Scrape renders link in a hidden tab and returns the body markup.
// The tab is closed on every path.
func (b *Browser) Scrape(ctx context.Context, link string) (markup string, err error) {
	tabCtx, closeTab, err := b.newTab(ctx, b.opts.ScrapeTimeout)
	if err != nil {
		return "", err
	}
	defer closeTab()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scrape panicked: %v", r)
		}
	}()

	start := time.Now()
	var activity []*cdp.Node
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(link),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// Activity is loaded by a dynamic script; look once, never wait on it.
		chromedp.Nodes(b.opts.Selectors.ActivityRegion, &activity, chromedp.ByQueryAll, chromedp.AtLeast(0)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(activity) > 0 {
				return nil
			}
			return chromedp.Sleep(b.opts.SettleDelay).Do(ctx)
		}),
		chromedp.InnerHTML("body", &markup, chromedp.ByQuery),
	)
	if err != nil {
		return "", &Error{URL: link, Message: "browser scrape failed", Cause: err}
	}

	b.logger.Debug("scraped profile tab",
		zap.String("link", link),
		zap.Bool("has_activity", len(activity) > 0),
		zap.Int("bytes", len(markup)),
		zap.Duration("elapsed", time.Since(start)))

	return markup, nil
}

// Page is the visible tab the copilot reads and decorates.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// OpenPage navigates a new visible tab to pageURL and waits for the body.
func (b *Browser) OpenPage(ctx context.Context, pageURL string) (*Page, error) {
	tabCtx, closeTab, err := b.newTab(ctx, 0)
	if err != nil {
		return nil, err
	}

	err = chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		closeTab()
		return nil, &Error{URL: pageURL, Message: "failed to open page", Cause: err}
	}

	return &Page{ctx: tabCtx, cancel: closeTab, logger: b.logger}, nil
}

// URL returns the page's current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read page location: %w", err)
	}
	return loc, nil
}

// HTML returns the page's full rendered document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page markup: %w", err)
	}
	return html, nil
}

// ReplaceBody swaps the live body element for bodyHTML (a full <body> element).
func (p *Page) ReplaceBody(ctx context.Context, bodyHTML string) error {
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		root, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		bodyID, err := dom.QuerySelector(root.NodeID, "body").Do(ctx)
		if err != nil {
			return err
		}
		return dom.SetOuterHTML(bodyID, bodyHTML).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to replace page body: %w", err)
	}
	p.logger.Debug("page body replaced", zap.Int("bytes", len(bodyHTML)))
	return nil
}

// Close closes the tab.
func (p *Page) Close() {
	p.cancel()
}

// run executes actions in the page tab while honoring the caller's ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	// A cancelled caller closes the page.
	stop := context.AfterFunc(ctx, p.cancel)
	defer stop()
	return chromedp.Run(p.ctx, actions...)
}
