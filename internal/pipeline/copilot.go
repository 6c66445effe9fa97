package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/jonathan/feed-copilot/internal/augment"
	"github.com/jonathan/feed-copilot/internal/cache"
	"github.com/jonathan/feed-copilot/internal/crawling"
	"github.com/jonathan/feed-copilot/internal/fetch"
	"github.com/jonathan/feed-copilot/internal/messaging"
	"github.com/jonathan/feed-copilot/internal/parsing"
	"github.com/jonathan/feed-copilot/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultStartDelay is the ceiling of the randomized wait before reading the page.
const DefaultStartDelay = 1200 * time.Millisecond

// DefaultClassifyConcurrency bounds in-flight classify requests.
const DefaultClassifyConcurrency = 4

// Farewell acknowledges a run request.
const Farewell = "goodbye"

// Page is the visible tab.
type Page interface {
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	ReplaceBody(ctx context.Context, bodyHTML string) error
}

// Outreach suggests a first message for a profile.
type Outreach interface {
	Suggest(ctx context.Context, titles string) (string, error)
}

// Options configures a Copilot.
type Options struct {
	StartDelay          time.Duration
	Details             DetailOptions
	ClassifyConcurrency int
	Selectors           fetch.SiteSelectors
	Assets              augment.Assets
	OnProgress          ProgressCallback
	// OnRunComplete receives the outcome of runs started through Handle.
	OnRunComplete func(*Report, error)
}

// Report summarizes one run.
type Report struct {
	RunID        uuid.UUID                 `json:"run_id"`
	PageURL      string                    `json:"page_url"`
	Links        int                       `json:"links"`
	Cached       int                       `json:"cached"`
	Scraped      int                       `json:"scraped"`
	Failed       int                       `json:"failed"`
	Skipped      int                       `json:"skipped"`
	Unclassified int                       `json:"unclassified"`
	Profiles     []types.ClassifiedProfile `json:"profiles"`
	Augmented    augment.Stats             `json:"augmented"`
	Suggestion   string                    `json:"suggestion,omitempty"`
	Duration     time.Duration             `json:"duration"`
}

// Copilot owns the foreground state: the page, the cache and the pipeline.
type Copilot struct {
	page     Page
	bus      messaging.Sender
	store    cache.Store
	details  *Details
	engine   *augment.Engine
	outreach Outreach
	opts     Options
	logger   *zap.Logger

	mu   sync.Mutex // one run at a time
	runs sync.WaitGroup
}

// NewCopilot wires a copilot. prober and outreach may be nil.
func NewCopilot(page Page, bus messaging.Sender, store cache.Store, prober Prober, outreach Outreach, opts Options, logger *zap.Logger) *Copilot {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Selectors.ProfileAnchors == "" {
		opts.Selectors = fetch.DefaultSelectors()
	}
	if opts.ClassifyConcurrency <= 0 {
		opts.ClassifyConcurrency = DefaultClassifyConcurrency
	}
	if opts.StartDelay < 0 {
		opts.StartDelay = 0
	}
	extractor := parsing.NewExtractor(opts.Selectors)
	return &Copilot{
		page:     page,
		bus:      bus,
		store:    store,
		details:  NewDetails(bus, prober, extractor, opts.Details, logger),
		engine:   augment.NewEngine(opts.Selectors, opts.Assets, logger),
		outreach: outreach,
		opts:     opts,
		logger:   logger,
	}
}

func (c *Copilot) emit(runID uuid.UUID, step, message string, content any) {
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(ProgressEvent{Step: step, Message: message, RunID: runID.String(), Content: content})
	}
}

// Run executes one full pass over the page. Only reading the page is fatal;
// cache, scrape, classify and outreach failures degrade the report.
func (c *Copilot) Run(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	report := &Report{RunID: uuid.New()}
	log := c.logger.With(zap.String("run_id", report.RunID.String()))

	if err := c.details.wait(ctx, c.details.jitter(c.opts.StartDelay)); err != nil {
		return nil, err
	}

	pageURL, err := c.page.URL(ctx)
	if err != nil {
		return nil, err
	}
	report.PageURL = pageURL

	doc, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	heading := strings.TrimSpace(doc.Find(c.opts.Selectors.Heading).First().Text())

	links, err := crawling.DiscoverProfileLinks(doc, pageURL, c.opts.Selectors.ProfileAnchors)
	if err != nil {
		return nil, err
	}
	report.Links = len(links)
	c.emit(report.RunID, StepDiscover, fmt.Sprintf("found %d profile links", len(links)), links)

	cached, err := c.store.Load(ctx)
	if err != nil {
		log.Warn("cache unavailable, scraping everything", zap.Error(err))
		cached = types.CachedProfileSet{}
	}
	c.emit(report.RunID, StepCache, fmt.Sprintf("%d cached profiles", len(cached)), nil)

	details, detailErr := c.details.Run(ctx, links, cached)
	report.Cached = details.Cached
	report.Scraped = details.Scraped
	report.Failed = details.Failed
	report.Skipped = details.Skipped
	c.emit(report.RunID, StepDetails, fmt.Sprintf("%d profiles (%d skipped)", len(details.Profiles), details.Skipped), details.Profiles)

	if details.Scraped > 0 {
		if err := c.store.Save(ctx, cached.Merge(details.Profiles)); err != nil {
			log.Warn("failed to save cache", zap.Error(err))
		} else {
			c.emit(report.RunID, StepSave, "cache saved", nil)
		}
	}
	if detailErr != nil {
		report.Duration = time.Since(start)
		return report, detailErr
	}

	var outreachWG sync.WaitGroup
	if target := c.outreachTarget(pageURL, heading, details.Profiles); target != nil {
		outreachWG.Add(1)
		go func() {
			defer outreachWG.Done()
			report.Suggestion = c.suggest(ctx, log, *target)
		}()
	}

	report.Profiles = c.classify(ctx, log, details.Profiles)
	report.Unclassified = len(details.Profiles) - len(report.Profiles)
	c.emit(report.RunID, StepClassify, fmt.Sprintf("%d profiles classified", len(report.Profiles)), report.Profiles)

	// The page kept loading while profiles were scraped; decorate what it shows now.
	if live, err := c.snapshot(ctx); err != nil {
		log.Warn("failed to re-read page, skipping augmentation", zap.Error(err))
	} else {
		for _, cp := range report.Profiles {
			report.Augmented = report.Augmented.Add(c.engine.Apply(live, cp.Profile, cp.Result))
		}
		c.emit(report.RunID, StepAugment, fmt.Sprintf("%d elements augmented", report.Augmented.Total()), report.Augmented)

		if report.Augmented.Total() > 0 {
			if err := c.publish(ctx, live); err != nil {
				log.Warn("failed to update page", zap.Error(err))
			} else {
				c.emit(report.RunID, StepPublish, "page updated", nil)
			}
		}
	}

	outreachWG.Wait()
	if report.Suggestion != "" {
		c.emit(report.RunID, StepOutreach, report.Suggestion, nil)
	}

	report.Duration = time.Since(start)
	log.Info("run complete",
		zap.String("page", pageURL),
		zap.Int("links", report.Links),
		zap.Int("classified", len(report.Profiles)),
		zap.Int("augmented", report.Augmented.Total()),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// classify sends each profile to the background; profiles that do not get a
// result are left out. Output keeps the input order.
func (c *Copilot) classify(ctx context.Context, log *zap.Logger, profiles []types.Profile) []types.ClassifiedProfile {
	results := make([]*types.ClassificationResult, len(profiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.ClassifyConcurrency)
	for i, p := range profiles {
		g.Go(func() error {
			resp, err := messaging.Classify(gctx, c.bus, p.Descriptions())
			if err != nil {
				log.Warn("classification unavailable", zap.String("user", p.User), zap.Error(err))
				return nil
			}
			r := resp.Result()
			results[i] = &r
			log.Debug("classified", zap.String("user", p.User), zap.String("label", r.Label), zap.Int("proba", r.Proba))
			return nil
		})
	}
	_ = g.Wait()

	out := make([]types.ClassifiedProfile, 0, len(profiles))
	for i, r := range results {
		if r != nil {
			out = append(out, types.ClassifiedProfile{Profile: profiles[i], Result: *r})
		}
	}
	return out
}

// snapshot reads and parses the page's current markup.
func (c *Copilot) snapshot(ctx context.Context) (*goquery.Document, error) {
	markup, err := c.page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}

// publish pushes the decorated body back into the visible page.
func (c *Copilot) publish(ctx context.Context, doc *goquery.Document) error {
	body, err := augment.Body(doc)
	if err != nil {
		return err
	}
	return c.page.ReplaceBody(ctx, body)
}

// outreachTarget returns the profile shown on a profile page, if it was collected.
func (c *Copilot) outreachTarget(pageURL, heading string, profiles []types.Profile) *types.Profile {
	if c.outreach == nil || !fetch.IsProfilePage(pageURL) || heading == "" {
		return nil
	}
	for i := range profiles {
		if strings.EqualFold(heading, strings.TrimSpace(profiles[i].User)) {
			return &profiles[i]
		}
	}
	return nil
}

func (c *Copilot) suggest(ctx context.Context, log *zap.Logger, p types.Profile) string {
	msg, err := c.outreach.Suggest(ctx, p.Titles)
	if err != nil {
		log.Warn("outreach suggestion failed", zap.String("user", p.User), zap.Error(err))
		return ""
	}
	log.Info("outreach suggestion", zap.String("user", p.User), zap.String("message", msg))
	return msg
}

// Handle implements messaging.Handler for the foreground bus. A run request is
// acknowledged at once and the run continues in the background of the caller.
func (c *Copilot) Handle(ctx context.Context, env messaging.Envelope, r *messaging.Responder) bool {
	req, ok := env.Request.(messaging.RunRequest)
	if !ok {
		c.logger.Warn("unrecognized request", zap.String("id", env.ID.String()), zap.String("kind", env.Request.Kind()))
		return false
	}

	_ = r.Reply(messaging.RunResponse{Farewell: Farewell})
	c.logger.Info("run requested", zap.String("id", env.ID.String()), zap.String("reason", req.Reason))

	c.runs.Add(1)
	go func() {
		defer c.runs.Done()
		report, err := c.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("run failed", zap.Error(err))
		}
		if c.opts.OnRunComplete != nil {
			c.opts.OnRunComplete(report, err)
		}
	}()
	return false
}

// Wait blocks until runs started through Handle have finished.
func (c *Copilot) Wait() {
	c.runs.Wait()
}
