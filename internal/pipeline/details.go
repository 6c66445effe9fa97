package pipeline

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/jonathan/feed-copilot/internal/messaging"
	"github.com/jonathan/feed-copilot/internal/parsing"
	"github.com/jonathan/feed-copilot/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxNew caps the number of uncached links scraped per run.
const DefaultMaxNew = 15

// DefaultMaxDelay is the ceiling of the randomized wait before each scrape.
const DefaultMaxDelay = 3200 * time.Millisecond

// Prober issues a liveness request for a link.
type Prober interface {
	Probe(ctx context.Context, link string) error
}

// DetailOptions configures the detail pipeline.
type DetailOptions struct {
	MaxNew   int
	MaxDelay time.Duration
}

// DetailResult is the outcome of one detail pass.
type DetailResult struct {
	// Profiles holds cached hits in discovery order, then new profiles in dispatch order.
	Profiles   []types.Profile `json:"profiles"`
	Cached     int             `json:"cached"`
	Dispatched int             `json:"dispatched"`
	Scraped    int             `json:"scraped"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
}

// Details turns discovered links into profiles, reusing cached ones and
// scraping the rest through the background bus.
type Details struct {
	bus       messaging.Sender
	prober    Prober
	extractor *parsing.Extractor
	opts      DetailOptions
	logger    *zap.Logger

	// jitter returns a delay in [0, max); wait sleeps honoring ctx.
	jitter func(max time.Duration) time.Duration
	wait   func(ctx context.Context, d time.Duration) error
}

// NewDetails creates a detail pipeline. prober may be nil.
func NewDetails(bus messaging.Sender, prober Prober, extractor *parsing.Extractor, opts DetailOptions, logger *zap.Logger) *Details {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxNew <= 0 {
		opts.MaxNew = DefaultMaxNew
	}
	if opts.MaxDelay < 0 {
		opts.MaxDelay = 0
	}
	return &Details{
		bus:       bus,
		prober:    prober,
		extractor: extractor,
		opts:      opts,
		logger:    logger,
		jitter:    randomDelay,
		wait:      sleep,
	}
}

// Run visits links in order. Cached links are reused without any network
// work; at most MaxNew uncached links are scraped and the rest are counted as
// skipped. Scrapes resolve concurrently and are all joined before Run returns.
// A cancelled ctx stops dispatching; profiles already scraped are still returned.
func (d *Details) Run(ctx context.Context, links []types.ProfileLink, cached types.CachedProfileSet) (*DetailResult, error) {
	res := &DetailResult{}
	var hits []types.Profile

	capacity := min(len(links), d.opts.MaxNew)
	scraped := make([]*types.Profile, capacity)
	var failed atomic.Int32
	var g errgroup.Group

	var stopErr error
	for _, link := range links {
		if p, ok := cached.Lookup(link); ok {
			hits = append(hits, p.WithLink(link))
			res.Cached++
			continue
		}
		// Past the cap only network work stops; later cached links are still reused.
		if res.Dispatched >= d.opts.MaxNew {
			res.Skipped++
			continue
		}

		if err := d.wait(ctx, d.jitter(d.opts.MaxDelay)); err != nil {
			stopErr = err
			break
		}

		if d.prober != nil {
			g.Go(func() error {
				if err := d.prober.Probe(ctx, link.String()); err != nil {
					d.logger.Warn("liveness probe failed", zap.String("link", link.String()), zap.Error(err))
				}
				return nil
			})
		}

		idx := res.Dispatched
		res.Dispatched++
		g.Go(func() error {
			p := d.scrape(ctx, link)
			if p == nil {
				failed.Add(1)
				return nil
			}
			scraped[idx] = p
			return nil
		})
	}

	_ = g.Wait()

	res.Profiles = append(res.Profiles, hits...)
	for _, p := range scraped {
		if p != nil {
			res.Profiles = append(res.Profiles, *p)
			res.Scraped++
		}
	}
	res.Failed = int(failed.Load())

	d.logger.Info("profile details collected",
		zap.Int("links", len(links)),
		zap.Int("cached", res.Cached),
		zap.Int("scraped", res.Scraped),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped))

	return res, stopErr
}

// scrape requests markup for link and extracts its profile; nil on any failure.
func (d *Details) scrape(ctx context.Context, link types.ProfileLink) *types.Profile {
	log := d.logger.With(zap.String("link", link.String()))

	resp, err := messaging.Scrape(ctx, d.bus, link)
	if err != nil {
		log.Warn("scrape request failed", zap.Error(err))
		return nil
	}
	if resp.Failed || resp.Markup == "" {
		log.Warn("scrape returned no markup")
		return nil
	}

	p := d.extractor.Extract(resp.Markup)
	if p == nil {
		log.Debug("no profile in scraped markup")
		return nil
	}
	tagged := p.WithLink(link)
	return &tagged
}

func randomDelay(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
