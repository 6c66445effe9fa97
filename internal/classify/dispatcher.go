package classify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonathan/feed-copilot/internal/types"
	"go.uber.org/zap"
)

// DefaultRetryDelay is how long a classify call waits before re-checking readiness.
const DefaultRetryDelay = 2 * time.Second

// WarmupText is classified once during Load to initialize both models.
const WarmupText = "Test descriptions"

// State is the model lifecycle. Transitions are monotonic:
// Unloaded -> Loading -> Ready | Failed.
type State int32

// Model states.
const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Embedder maps texts to vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelLoader produces the classifier head.
type ModelLoader func(ctx context.Context) (Model, error)

// Options configures a Dispatcher.
type Options struct {
	Labels     []string
	RetryDelay time.Duration
}

// Dispatcher owns the embedding and classifier models and serves classify calls.
type Dispatcher struct {
	embedder Embedder
	loadFn   ModelLoader
	labels   []string
	retry    time.Duration
	logger   *zap.Logger

	state   atomic.Int32
	once    sync.Once
	model   Model
	loadErr error
	readyCh chan struct{}
}

// NewDispatcher creates a dispatcher in the Unloaded state.
func NewDispatcher(embedder Embedder, loader ModelLoader, opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if len(opts.Labels) == 0 {
		opts.Labels = types.DefaultLabels()
	}
	return &Dispatcher{
		embedder: embedder,
		loadFn:   loader,
		labels:   opts.Labels,
		retry:    opts.RetryDelay,
		logger:   logger,
		readyCh:  make(chan struct{}),
	}
}

// State returns the current model state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Err returns the load failure once the state is Failed.
func (d *Dispatcher) Err() error {
	if d.State() != StateFailed {
		return nil
	}
	return d.loadErr
}

// Load brings both models up. It runs at most once; later calls return
// the outcome of the first. Failure is logged and leaves the dispatcher Failed.
func (d *Dispatcher) Load(ctx context.Context) error {
	d.once.Do(func() {
		d.state.Store(int32(StateLoading))
		d.logger.Info("loading classification models")
		start := time.Now()

		model, err := d.load(ctx)
		if err != nil {
			d.loadErr = err
			d.state.Store(int32(StateFailed))
			d.logger.Error("classification models failed to load", zap.Error(err))
			close(d.readyCh)
			return
		}

		d.model = model
		d.state.Store(int32(StateReady))
		close(d.readyCh)
		d.logger.Info("classification models ready", zap.Duration("elapsed", time.Since(start)))
	})
	return d.Err()
}

func (d *Dispatcher) load(ctx context.Context) (Model, error) {
	if d.embedder == nil {
		return nil, &ModelError{Message: "no embedding model configured"}
	}
	if d.loadFn == nil {
		return nil, &ModelError{Message: "no classifier model configured"}
	}

	model, err := d.loadFn(ctx)
	if err != nil {
		return nil, err
	}
	if labeled, ok := model.(interface{ Labels() []string }); ok && len(labeled.Labels()) > 0 {
		d.labels = labeled.Labels()
	}

	if _, err := d.run(ctx, model, WarmupText); err != nil {
		return nil, &ModelError{Message: "warm-up inference failed", Cause: err}
	}
	return model, nil
}

// Classify labels text. Until the models are ready the call waits, re-checking
// every retry delay, for as long as ctx allows. A Failed dispatcher returns
// ErrModelFailed immediately.
func (d *Dispatcher) Classify(ctx context.Context, text string) (types.ClassificationResult, error) {
	if strings.TrimSpace(text) == "" {
		return types.ClassificationResult{}, ErrNoDescriptions
	}

	for {
		switch d.State() {
		case StateReady:
			return d.run(ctx, d.model, text)
		case StateFailed:
			return types.ClassificationResult{}, fmt.Errorf("%w: %v", ErrModelFailed, d.loadErr)
		}

		d.logger.Debug("model not ready, deferring classification",
			zap.Stringer("state", d.State()),
			zap.Duration("retry_in", d.retry))

		timer := time.NewTimer(d.retry)
		select {
		case <-timer.C:
		case <-d.readyCh:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return types.ClassificationResult{}, ctx.Err()
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, model Model, text string) (types.ClassificationResult, error) {
	vectors, err := d.embedder.Embed(ctx, []string{text})
	if err != nil {
		return types.ClassificationResult{}, &ModelError{Message: "embedding failed", Cause: err}
	}
	if len(vectors) == 0 {
		return types.ClassificationResult{}, &ModelError{Message: "embedding returned no vectors"}
	}

	dist, err := model.Predict(vectors[0])
	if err != nil {
		return types.ClassificationResult{}, err
	}

	return Decide(dist, d.labels), nil
}
