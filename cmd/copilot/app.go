package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jonathan/feed-copilot/internal/augment"
	"github.com/jonathan/feed-copilot/internal/background"
	"github.com/jonathan/feed-copilot/internal/cache"
	"github.com/jonathan/feed-copilot/internal/classify"
	"github.com/jonathan/feed-copilot/internal/config"
	"github.com/jonathan/feed-copilot/internal/fetch"
	"github.com/jonathan/feed-copilot/internal/llm"
	"github.com/jonathan/feed-copilot/internal/messaging"
	"github.com/jonathan/feed-copilot/internal/observability"
	"github.com/jonathan/feed-copilot/internal/outreach"
	"github.com/jonathan/feed-copilot/internal/pipeline"
	"go.uber.org/zap"
)

// defaultPageURL is opened when neither an argument nor page_url is given.
const defaultPageURL = fetch.SiteOrigin + "/feed/"

// app carries the configuration and ambient services of one invocation.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	printer *observability.Printer
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.Verbose)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, printer: observability.NewPrinter(os.Stdout)}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func (a *app) pageURL(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	if a.cfg.PageURL != "" {
		return a.cfg.PageURL
	}
	return defaultPageURL
}

func (a *app) browserOptions() fetch.BrowserOptions {
	opts := fetch.DefaultBrowserOptions()
	opts.Headless = a.cfg.Browser.Headless
	opts.UserDataDir = a.cfg.Browser.UserDataDir
	opts.ScrapeTimeout = a.cfg.Browser.ScrapeTimeout
	opts.SettleDelay = a.cfg.Browser.SettleDelay
	if a.cfg.Browser.UserAgent != "" {
		opts.UserAgent = a.cfg.Browser.UserAgent
	}
	return opts
}

func (a *app) newLLM(ctx context.Context) (llm.Client, error) {
	lc, err := llm.ConfigFor(llm.Provider(a.cfg.Classifier.Provider))
	if err != nil {
		return nil, err
	}
	if a.cfg.Classifier.EmbeddingModel != "" {
		lc = lc.WithEmbeddingModel(a.cfg.Classifier.EmbeddingModel)
	}
	lc.BaseURL = a.cfg.Classifier.BaseURL

	client, err := llm.NewClient(ctx, lc, a.cfg.Classifier.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", lc.Provider, err)
	}
	return client, nil
}

// newDispatcher wires the embedder and the classifier descriptor at model_url
// (the bundled descriptor when model_url is "builtin").
func (a *app) newDispatcher(embedder classify.Embedder) *classify.Dispatcher {
	location := a.cfg.Classifier.ModelURL
	loader := func(ctx context.Context) (classify.Model, error) {
		model, err := classify.LoadModel(ctx, location, embedder, nil)
		if err != nil {
			return nil, err
		}
		return model, nil
	}
	return classify.NewDispatcher(embedder, loader, classify.Options{
		RetryDelay: a.cfg.Classifier.RetryDelay,
	}, a.logger.Named("classify"))
}

func (a *app) openStore(ctx context.Context) (cache.Store, error) {
	return cache.Open(ctx, cache.Options{
		Backend:     a.cfg.Cache.Backend,
		Path:        a.cfg.Cache.Path,
		DatabaseURL: a.cfg.Cache.DatabaseURL,
	})
}

// backgroundContext is the browser and model side of the copilot, served
// over its own bus.
type backgroundContext struct {
	bus        *messaging.Bus
	worker     *background.Worker
	dispatcher *classify.Dispatcher
	done       chan struct{}
}

// startBackground serves scraper and dispatcher on a new bus and starts
// loading the models. Either may be nil; its requests are then refused.
func (a *app) startBackground(ctx context.Context, scraper background.Scraper, dispatcher *classify.Dispatcher) *backgroundContext {
	logger := a.logger.Named("background")
	bg := &backgroundContext{
		bus:        messaging.NewBus("background", 16, logger),
		dispatcher: dispatcher,
		done:       make(chan struct{}),
	}
	var classifier background.Classifier
	if dispatcher != nil {
		classifier = dispatcher
		go func() {
			if err := dispatcher.Load(ctx); err != nil {
				logger.Error("classifier unavailable", zap.Error(err))
			}
		}()
	}
	bg.worker = background.NewWorker(scraper, classifier, background.Options{
		ClassifyTimeout: a.cfg.Classifier.ClassifyTimeout,
	}, logger)

	go func() {
		defer close(bg.done)
		if err := bg.bus.Serve(ctx, bg.worker); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("background bus stopped", zap.Error(err))
		}
	}()
	return bg
}

func (bg *backgroundContext) stop() {
	bg.bus.Close()
	<-bg.done
	bg.worker.Wait()
}

// session is everything a foreground run needs: the browser, the visible
// page, the background context and the cache.
type session struct {
	browser *fetch.Browser
	page    *fetch.Page
	llm     llm.Client
	bg      *backgroundContext
	store   cache.Store
	copilot *pipeline.Copilot
}

// openSession starts the browser on pageURL and wires a copilot over it.
// onComplete receives runs started through the foreground bus.
func (a *app) openSession(ctx context.Context, pageURL string, onComplete func(*pipeline.Report, error)) (*session, error) {
	s := &session{}
	ok := false
	defer func() {
		if !ok {
			s.close()
		}
	}()

	var err error
	if s.llm, err = a.newLLM(ctx); err != nil {
		return nil, err
	}
	if s.store, err = a.openStore(ctx); err != nil {
		return nil, err
	}
	if s.browser, err = fetch.NewBrowser(ctx, a.browserOptions(), a.logger.Named("browser")); err != nil {
		return nil, err
	}
	if s.page, err = s.browser.OpenPage(ctx, pageURL); err != nil {
		return nil, err
	}

	s.bg = a.startBackground(ctx, s.browser, a.newDispatcher(s.llm))

	var out pipeline.Outreach
	if a.cfg.Outreach.Enabled {
		out = outreach.NewClient(a.cfg.Outreach.Endpoint, nil)
	}

	s.copilot = pipeline.NewCopilot(s.page, s.bg.bus, s.store, fetch.NewProber(nil), out, pipeline.Options{
		StartDelay: a.cfg.Pipeline.StartDelay,
		Details: pipeline.DetailOptions{
			MaxNew:   a.cfg.Pipeline.MaxNew,
			MaxDelay: a.cfg.Pipeline.MaxDelay,
		},
		ClassifyConcurrency: a.cfg.Pipeline.ClassifyConcurrency,
		Assets:              augment.Assets{BaseURL: a.cfg.Assets.BaseURL},
		OnProgress:          a.progress(),
		OnRunComplete:       onComplete,
	}, a.logger.Named("copilot"))

	ok = true
	return s, nil
}

// progress prints pipeline steps in verbose mode.
func (a *app) progress() pipeline.ProgressCallback {
	if !a.cfg.Verbose {
		return nil
	}
	return a.printer.PrintProgress
}

func (s *session) close() {
	if s.copilot != nil {
		s.copilot.Wait()
	}
	if s.bg != nil {
		s.bg.stop()
	}
	if s.page != nil {
		s.page.Close()
	}
	if s.browser != nil {
		s.browser.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.llm != nil {
		_ = s.llm.Close()
	}
}
