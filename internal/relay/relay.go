// Package relay forwards the session gateway event stream to the in-process
// event hub.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/memohai/wagate/internal/message"
	"github.com/memohai/wagate/internal/message/event"
	"github.com/memohai/wagate/internal/session"
)

// Source opens the gateway event stream.
type Source interface {
	Events(ctx context.Context) (<-chan session.Event, error)
}

// Relay keeps one event stream open and reconnects with exponential backoff
// when it drops.
type Relay struct {
	source     Source
	publisher  event.Publisher
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
	encode     func(any) ([]byte, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a relay.
func New(log *slog.Logger, source Source, publisher event.Publisher) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		source:     source,
		publisher:  publisher,
		logger:     log.With(slog.String("component", "relay")),
		newBackOff: defaultBackOff,
		encode:     json.Marshal,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Start runs the relay in the background until Stop.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		r.Run(ctx)
	}(r.done)
}

// Stop ends the relay and waits for it to exit.
func (r *Relay) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run relays events until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	b := r.newBackOff()
	for ctx.Err() == nil {
		events, err := r.source.Events(ctx)
		if err != nil {
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				wait = time.Minute
			}
			r.logger.Warn("event stream unavailable", slog.Any("error", err), slog.Duration("retry_in", wait))
			if !sleep(ctx, wait) {
				return
			}
			continue
		}
		r.logger.Info("event stream connected")
		received := r.drain(ctx, events)
		if received {
			b.Reset()
		}
		if ctx.Err() != nil {
			return
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = time.Minute
		}
		r.logger.Warn("event stream closed", slog.Duration("retry_in", wait))
		if !sleep(ctx, wait) {
			return
		}
	}
}

func (r *Relay) drain(ctx context.Context, events <-chan session.Event) bool {
	received := false
	for {
		select {
		case <-ctx.Done():
			return received
		case evt, ok := <-events:
			if !ok {
				return received
			}
			received = true
			r.forward(evt)
		}
	}
}

type stateData struct {
	State string `json:"state"`
}

func (r *Relay) forward(evt session.Event) {
	var (
		typ    event.Type
		chatID string
		body   any
	)
	switch evt.Type {
	case session.EventMessage:
		if evt.Message == nil {
			return
		}
		typ, chatID, body = event.TypeMessageCreated, evt.Message.ChatID, message.FromSession(*evt.Message)
	case session.EventState:
		typ, body = event.TypeSessionState, stateData{State: evt.State}
	default:
		r.logger.Debug("ignoring session event", slog.String("type", evt.Type))
		return
	}
	data, err := r.encode(body)
	if err != nil {
		r.logger.Warn("encode event failed", slog.String("type", string(typ)), slog.Any("error", err))
		return
	}
	r.publisher.Publish(event.Event{Type: typ, ChatID: chatID, Data: data})
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
