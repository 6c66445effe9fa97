package classify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonathan/feed-copilot/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func (f *fakeEmbedder) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fixedModel struct {
	dist []float64
	err  error
}

func (m fixedModel) Predict([]float32) ([]float64, error) {
	return m.dist, m.err
}

var groverDist = []float64{0.00236707, 0.00669724, 0.9246539, 0.06278326, 0.00349861}

func loaderOf(m Model) ModelLoader {
	return func(context.Context) (Model, error) { return m, nil }
}

func TestDispatcher_LoadAndClassify(t *testing.T) {
	emb := &fakeEmbedder{}
	d := NewDispatcher(emb, loaderOf(fixedModel{dist: groverDist}), Options{}, nil)
	assert.Equal(t, StateUnloaded, d.State())

	require.NoError(t, d.Load(context.Background()))
	assert.Equal(t, StateReady, d.State())
	assert.Equal(t, []string{WarmupText}, emb.seen())

	res, err := d.Classify(context.Background(), "posts and titles")
	require.NoError(t, err)
	assert.Equal(t, types.ClassificationResult{Label: "grover", Proba: 92}, res)
}

func TestDispatcher_LoadRunsOnce(t *testing.T) {
	var loads atomic.Int32
	loader := func(context.Context) (Model, error) {
		loads.Add(1)
		return fixedModel{dist: groverDist}, nil
	}
	d := NewDispatcher(&fakeEmbedder{}, loader, Options{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Load(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, StateReady, d.State())
}

func TestDispatcher_LoadFailures(t *testing.T) {
	boom := errors.New("descriptor unreachable")

	tests := []struct {
		name     string
		embedder Embedder
		loader   ModelLoader
	}{
		{"no embedder", nil, loaderOf(fixedModel{dist: groverDist})},
		{"no loader", &fakeEmbedder{}, nil},
		{"loader error", &fakeEmbedder{}, func(context.Context) (Model, error) { return nil, boom }},
		{"warm-up embed error", &fakeEmbedder{err: boom}, loaderOf(fixedModel{dist: groverDist})},
		{"warm-up predict error", &fakeEmbedder{}, loaderOf(fixedModel{err: boom})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(tt.embedder, tt.loader, Options{}, nil)
			err := d.Load(context.Background())
			require.Error(t, err)
			assert.Equal(t, StateFailed, d.State())

			_, err = d.Classify(context.Background(), "text")
			assert.ErrorIs(t, err, ErrModelFailed)
		})
	}
}

func TestDispatcher_ClassifyDefersUntilReady(t *testing.T) {
	release := make(chan struct{})
	loader := func(context.Context) (Model, error) {
		<-release
		return fixedModel{dist: groverDist}, nil
	}
	d := NewDispatcher(&fakeEmbedder{}, loader, Options{RetryDelay: 5 * time.Millisecond}, nil)
	go func() { _ = d.Load(context.Background()) }()

	type result struct {
		res types.ClassificationResult
		err error
	}
	out := make(chan result, 1)
	go func() {
		res, err := d.Classify(context.Background(), "deferred")
		out <- result{res, err}
	}()

	select {
	case <-out:
		t.Fatal("classification served before the models were ready")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case got := <-out:
		require.NoError(t, got.err)
		assert.Equal(t, "grover", got.res.Label)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred classification never resolved")
	}
}

func TestDispatcher_ClassifyHonorsContext(t *testing.T) {
	d := NewDispatcher(&fakeEmbedder{}, loaderOf(fixedModel{dist: groverDist}), Options{RetryDelay: time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Classify(ctx, "never loaded")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateUnloaded, d.State())
}

func TestDispatcher_EmptyText(t *testing.T) {
	d := NewDispatcher(&fakeEmbedder{}, loaderOf(fixedModel{dist: groverDist}), Options{}, nil)
	require.NoError(t, d.Load(context.Background()))

	_, err := d.Classify(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNoDescriptions)
}

func TestDispatcher_UsesDescriptorLabels(t *testing.T) {
	model, err := ParseDescriptor([]byte(identityDescriptor))
	require.NoError(t, err)

	emb := embedFunc(func(texts []string) [][]float32 {
		return [][]float32{{1, 3}}
	})
	d := NewDispatcher(emb, loaderOf(model), Options{}, nil)
	require.NoError(t, d.Load(context.Background()))

	res, err := d.Classify(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "grover", res.Label)
}

type embedFunc func(texts []string) [][]float32

func (f embedFunc) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return f(texts), nil
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unloaded", StateUnloaded.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
