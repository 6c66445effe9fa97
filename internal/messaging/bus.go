package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/feed-copilot/internal/types"
	"go.uber.org/zap"
)

var (
	// ErrNoResponse is returned when the receiver finished without answering.
	ErrNoResponse = errors.New("receiver closed the request without a response")
	// ErrAlreadyReplied is returned by a second Reply on the same request.
	ErrAlreadyReplied = errors.New("response already sent for this request")
	// ErrBusClosed is returned when sending on, or waiting on, a closed bus.
	ErrBusClosed = errors.New("message bus closed")
	// ErrNilRequest is returned when Send is called without a request.
	ErrNilRequest = errors.New("nil request")
)

// UnexpectedResponseError is returned when a reply does not match its request kind.
type UnexpectedResponseError struct {
	Request  string
	Response Response
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response %T for %s request", e.Response, e.Request)
}

// Sender is the caller side of a bus.
type Sender interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// Envelope is a request with its correlation metadata.
type Envelope struct {
	ID      uuid.UUID
	Request Request
	SentAt  time.Time
}

// Responder answers exactly one request.
type Responder struct {
	id      uuid.UUID
	reply   chan Response
	replied atomic.Bool
}

func newResponder(id uuid.UUID) *Responder {
	return &Responder{id: id, reply: make(chan Response, 1)}
}

// Reply delivers resp to the caller. Only the first call is delivered.
func (r *Responder) Reply(resp Response) error {
	if !r.replied.CompareAndSwap(false, true) {
		return ErrAlreadyReplied
	}
	if resp == nil {
		close(r.reply)
		return nil
	}
	r.reply <- resp
	return nil
}

// ID returns the correlation ID of the request being answered.
func (r *Responder) ID() uuid.UUID {
	return r.id
}

// Replied reports whether the request has been answered or abandoned.
func (r *Responder) Replied() bool {
	return r.replied.Load()
}

// abandon resolves the caller with ErrNoResponse unless a reply was sent.
func (r *Responder) abandon() {
	if r.replied.CompareAndSwap(false, true) {
		close(r.reply)
	}
}

// Handler receives requests on a bus. Handle must decide synchronously:
// returning true keeps the caller pending until the Responder is used;
// returning false without replying resolves the caller with ErrNoResponse.
type Handler interface {
	Handle(ctx context.Context, env Envelope, r *Responder) (async bool)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env Envelope, r *Responder) bool

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, env Envelope, r *Responder) bool {
	return f(ctx, env, r)
}

type delivery struct {
	env       Envelope
	responder *Responder
}

// Bus carries requests into one receiving context.
type Bus struct {
	name      string
	inbox     chan delivery
	closed    chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewBus creates a bus named after its receiving context.
func NewBus(name string, buffer int, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Bus{
		name:   name,
		inbox:  make(chan delivery, buffer),
		closed: make(chan struct{}),
		logger: logger.With(zap.String("bus", name)),
	}
}

// Send delivers req and waits for its response.
func (b *Bus) Send(ctx context.Context, req Request) (Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	env := Envelope{ID: uuid.New(), Request: req, SentAt: time.Now()}
	r := newResponder(env.ID)

	select {
	case b.inbox <- delivery{env: env, responder: r}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.closed:
		return nil, ErrBusClosed
	}

	select {
	case resp, ok := <-r.reply:
		if !ok {
			return nil, ErrNoResponse
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.closed:
		return nil, ErrBusClosed
	}
}

// Serve runs the receiving loop until ctx ends or the bus is closed.
// Requests are handed to h one at a time, in arrival order.
func (b *Bus) Serve(ctx context.Context, h Handler) error {
	b.logger.Debug("listening")
	for {
		select {
		case d := <-b.inbox:
			b.dispatch(ctx, h, d)
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closed:
			return nil
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, d delivery) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("handler panicked",
				zap.String("id", d.env.ID.String()),
				zap.String("kind", d.env.Request.Kind()),
				zap.Any("panic", rec))
			d.responder.abandon()
		}
	}()

	b.logger.Debug("message received",
		zap.String("id", d.env.ID.String()),
		zap.String("kind", d.env.Request.Kind()))

	if async := h.Handle(ctx, d.env, d.responder); !async {
		d.responder.abandon()
	}
}

// Close stops Serve and fails pending and future sends with ErrBusClosed.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}

// Scrape sends a ScrapeRequest and checks the response kind.
func Scrape(ctx context.Context, s Sender, link types.ProfileLink) (ScrapeResponse, error) {
	req := ScrapeRequest{Link: link}
	resp, err := s.Send(ctx, req)
	if err != nil {
		return ScrapeResponse{}, err
	}
	out, ok := resp.(ScrapeResponse)
	if !ok {
		return ScrapeResponse{}, &UnexpectedResponseError{Request: req.Kind(), Response: resp}
	}
	return out, nil
}

// Classify sends a ClassifyRequest and checks the response kind.
func Classify(ctx context.Context, s Sender, descriptions string) (ClassifyResponse, error) {
	req := ClassifyRequest{Descriptions: descriptions}
	resp, err := s.Send(ctx, req)
	if err != nil {
		return ClassifyResponse{}, err
	}
	out, ok := resp.(ClassifyResponse)
	if !ok {
		return ClassifyResponse{}, &UnexpectedResponseError{Request: req.Kind(), Response: resp}
	}
	return out, nil
}

// Run sends a RunRequest and checks the response kind.
func Run(ctx context.Context, s Sender, reason string) (RunResponse, error) {
	req := RunRequest{Reason: reason}
	resp, err := s.Send(ctx, req)
	if err != nil {
		return RunResponse{}, err
	}
	out, ok := resp.(RunResponse)
	if !ok {
		return RunResponse{}, &UnexpectedResponseError{Request: req.Kind(), Response: resp}
	}
	return out, nil
}
