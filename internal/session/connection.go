package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const DefaultPollInterval = 5 * time.Second

// StatusChecker reports the gateway state.
type StatusChecker interface {
	Status(ctx context.Context) (Status, error)
}

// Connection is the readiness handle of the session. It polls the gateway and
// lets callers wait for the session to become ready instead of assuming it.
type Connection struct {
	checker  StatusChecker
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	status  Status
	readyCh chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewConnection creates a readiness handle. Call Start to begin polling.
func NewConnection(log *slog.Logger, checker StatusChecker, interval time.Duration) *Connection {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Connection{
		checker:  checker,
		interval: interval,
		logger:   log.With(slog.String("component", "session_connection")),
		status:   Status{State: "starting"},
		readyCh:  make(chan struct{}),
	}
}

// Start polls the gateway until Stop is called.
func (c *Connection) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			c.Refresh(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends polling and waits for the poller to exit.
func (c *Connection) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Refresh asks the gateway for its state once.
func (c *Connection) Refresh(ctx context.Context) Status {
	checkCtx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()
	st, err := c.checker.Status(checkCtx)
	if err != nil {
		if ctx.Err() != nil {
			return c.Status()
		}
		st = Status{Ready: false, State: "unreachable"}
		c.logger.Debug("session status check failed", slog.Any("error", err))
	}
	c.set(st)
	return st
}

func (c *Connection) set(st Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.status.Ready
	c.status = st
	switch {
	case st.Ready && !was:
		close(c.readyCh)
		c.logger.Info("session ready", slog.String("state", st.State))
	case !st.Ready && was:
		c.readyCh = make(chan struct{})
		c.logger.Warn("session no longer ready", slog.String("state", st.State))
	}
}

// Status returns the last observed state.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Ready reports whether the session is currently ready.
func (c *Connection) Ready() bool {
	return c.Status().Ready
}

// AwaitReady blocks until the session is ready or ctx is done.
func (c *Connection) AwaitReady(ctx context.Context) error {
	c.mu.Lock()
	ready, ch := c.status.Ready, c.readyCh
	c.mu.Unlock()
	if ready {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
	}
}
