package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unknownRequest is a request variant no handler routes.
type unknownRequest struct{ ScrapeRequest }

func (unknownRequest) Kind() string { return "unknown" }

func serve(t *testing.T, h Handler) *Bus {
	t.Helper()
	bus := NewBus("test", 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Serve(ctx, h)
	}()
	t.Cleanup(func() {
		cancel()
		bus.Close()
		<-done
	})
	return bus
}

func TestBus_SynchronousReply(t *testing.T) {
	bus := serve(t, HandlerFunc(func(_ context.Context, env Envelope, r *Responder) bool {
		require.NoError(t, r.Reply(RunResponse{Farewell: "goodbye"}))
		return false
	}))

	resp, err := Run(context.Background(), bus, "test")
	require.NoError(t, err)
	assert.Equal(t, "goodbye", resp.Farewell)
}

func TestBus_AsynchronousReplyKeepsCallerPending(t *testing.T) {
	release := make(chan struct{})
	bus := serve(t, HandlerFunc(func(_ context.Context, env Envelope, r *Responder) bool {
		req := env.Request.(ClassifyRequest)
		go func() {
			<-release
			_ = r.Reply(ClassifyResponse{Label: req.Descriptions, Proba: 92})
		}()
		return true
	}))

	type result struct {
		resp ClassifyResponse
		err  error
	}
	out := make(chan result, 1)
	go func() {
		resp, err := Classify(context.Background(), bus, "grover")
		out <- result{resp, err}
	}()

	select {
	case <-out:
		t.Fatal("caller resolved before the asynchronous reply")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	got := <-out
	require.NoError(t, got.err)
	assert.Equal(t, ClassifyResponse{Label: "grover", Proba: 92}, got.resp)
}

func TestBus_NoReplyResolvesWithErrNoResponse(t *testing.T) {
	bus := serve(t, HandlerFunc(func(context.Context, Envelope, *Responder) bool {
		return false
	}))

	_, err := bus.Send(context.Background(), unknownRequest{})
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestBus_AtMostOneResponse(t *testing.T) {
	secondErr := make(chan error, 1)
	bus := serve(t, HandlerFunc(func(_ context.Context, _ Envelope, r *Responder) bool {
		_ = r.Reply(ScrapeResponse{Markup: "<main></main>"})
		secondErr <- r.Reply(ScrapeResponse{Failed: true})
		return true
	}))

	resp, err := Scrape(context.Background(), bus, "https://www.linkedin.com/in/ada")
	require.NoError(t, err)
	assert.Equal(t, "<main></main>", resp.Markup)
	assert.False(t, resp.Failed)
	assert.ErrorIs(t, <-secondErr, ErrAlreadyReplied)
}

func TestBus_NilReplyIsNoResponse(t *testing.T) {
	bus := serve(t, HandlerFunc(func(_ context.Context, _ Envelope, r *Responder) bool {
		_ = r.Reply(nil)
		return true
	}))

	_, err := bus.Send(context.Background(), RunRequest{})
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestBus_PanickingHandlerDoesNotStopServe(t *testing.T) {
	calls := 0
	bus := serve(t, HandlerFunc(func(_ context.Context, _ Envelope, r *Responder) bool {
		calls++
		if calls == 1 {
			panic("boom")
		}
		_ = r.Reply(RunResponse{Farewell: "goodbye"})
		return false
	}))

	_, err := bus.Send(context.Background(), RunRequest{})
	assert.ErrorIs(t, err, ErrNoResponse)

	resp, err := Run(context.Background(), bus, "")
	require.NoError(t, err)
	assert.Equal(t, "goodbye", resp.Farewell)
}

func TestBus_CallerContextBoundsWait(t *testing.T) {
	bus := serve(t, HandlerFunc(func(context.Context, Envelope, *Responder) bool {
		return true // never answers
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := bus.Send(ctx, ScrapeRequest{Link: "https://www.linkedin.com/in/stuck"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_ClosedBus(t *testing.T) {
	bus := NewBus("closed", 0, nil)
	bus.Close()
	bus.Close()

	_, err := bus.Send(context.Background(), RunRequest{})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBus_NilRequest(t *testing.T) {
	bus := NewBus("nil", 1, nil)
	_, err := bus.Send(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilRequest)
}

func TestBus_UnexpectedResponseKind(t *testing.T) {
	bus := serve(t, HandlerFunc(func(_ context.Context, _ Envelope, r *Responder) bool {
		_ = r.Reply(RunResponse{Farewell: "goodbye"})
		return false
	}))

	_, err := Classify(context.Background(), bus, "text")
	var unexpected *UnexpectedResponseError
	require.True(t, errors.As(err, &unexpected))
	assert.Equal(t, "classify", unexpected.Request)
}

func TestBus_EnvelopeCarriesCorrelationID(t *testing.T) {
	ids := make(chan string, 2)
	bus := serve(t, HandlerFunc(func(_ context.Context, env Envelope, r *Responder) bool {
		assert.Equal(t, env.ID, r.ID())
		ids <- env.ID.String()
		_ = r.Reply(RunResponse{})
		return false
	}))

	_, err := bus.Send(context.Background(), RunRequest{})
	require.NoError(t, err)
	_, err = bus.Send(context.Background(), RunRequest{})
	require.NoError(t, err)

	assert.NotEqual(t, <-ids, <-ids)
}
