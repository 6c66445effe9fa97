// Package background is the privileged side of the copilot: it owns the
// browser used for hidden-tab scrapes and the classification dispatcher, and
// answers requests arriving on the background bus.
package background

import (
	"context"
	"sync"
	"time"

	"github.com/jonathan/feed-copilot/internal/messaging"
	"github.com/jonathan/feed-copilot/internal/types"
	"go.uber.org/zap"
)

// Scraper renders a link in a hidden tab and returns its markup.
type Scraper interface {
	Scrape(ctx context.Context, link string) (string, error)
}

// Classifier labels a profile's descriptions.
type Classifier interface {
	Classify(ctx context.Context, text string) (types.ClassificationResult, error)
}

// DefaultClassifyTimeout bounds how long a classify request may wait for the models.
const DefaultClassifyTimeout = 2 * time.Minute

// Options configures a Worker.
type Options struct {
	ClassifyTimeout time.Duration
}

// Worker routes background requests.
type Worker struct {
	scraper    Scraper
	classifier Classifier
	opts       Options
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewWorker creates a worker.
func NewWorker(scraper Scraper, classifier Classifier, opts Options, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ClassifyTimeout <= 0 {
		opts.ClassifyTimeout = DefaultClassifyTimeout
	}
	return &Worker{scraper: scraper, classifier: classifier, opts: opts, logger: logger}
}

// Handle implements messaging.Handler. Scrape and classify requests are
// answered asynchronously; anything else is logged and left unanswered.
func (w *Worker) Handle(ctx context.Context, env messaging.Envelope, r *messaging.Responder) bool {
	switch req := env.Request.(type) {
	case messaging.ScrapeRequest:
		w.spawn(func() { w.scrape(ctx, env, req, r) })
		return true
	case messaging.ClassifyRequest:
		w.spawn(func() { w.classify(ctx, env, req, r) })
		return true
	default:
		w.logger.Warn("unrecognized request",
			zap.String("id", env.ID.String()),
			zap.String("kind", env.Request.Kind()))
		return false
	}
}

// Wait blocks until every in-flight request has been answered.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) spawn(fn func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

func (w *Worker) scrape(ctx context.Context, env messaging.Envelope, req messaging.ScrapeRequest, r *messaging.Responder) {
	start := time.Now()
	log := w.logger.With(zap.String("id", env.ID.String()), zap.String("link", req.Link.String()))

	if w.scraper == nil {
		log.Error("no scraper available")
		_ = r.Reply(messaging.ScrapeResponse{Failed: true})
		return
	}

	markup, err := w.scraper.Scrape(ctx, req.Link.String())
	if err != nil {
		log.Warn("scrape failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		_ = r.Reply(messaging.ScrapeResponse{Failed: true})
		return
	}

	log.Debug("scrape complete", zap.Int("bytes", len(markup)), zap.Duration("elapsed", time.Since(start)))
	if err := r.Reply(messaging.ScrapeResponse{Markup: markup}); err != nil {
		log.Error("reply failed", zap.Error(err))
	}
}

func (w *Worker) classify(ctx context.Context, env messaging.Envelope, req messaging.ClassifyRequest, r *messaging.Responder) {
	log := w.logger.With(zap.String("id", env.ID.String()))

	if w.classifier == nil {
		log.Error("no classifier available")
		_ = r.Reply(nil)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.ClassifyTimeout)
	defer cancel()

	result, err := w.classifier.Classify(ctx, req.Descriptions)
	if err != nil {
		log.Warn("classification failed", zap.Error(err))
		_ = r.Reply(nil)
		return
	}

	log.Debug("classified", zap.String("label", result.Label), zap.Int("proba", result.Proba))
	if err := r.Reply(messaging.ClassifyResponse{Label: result.Label, Proba: result.Proba}); err != nil {
		log.Error("reply failed", zap.Error(err))
	}
}
