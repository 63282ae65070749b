package msgrelay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const stopMargin = time.Second

// Server accepts messages on a Channel, queues them in memory and forwards them to a Store.
// Each Server owns its queue, slot pool and configuration; independent servers share nothing.
type Server struct {
	store   Store
	channel Channel
	cfg     Config
	queue   *Queue

	supervising atomic.Bool
	forwarding  atomic.Bool
	// gate orders the supervising check in a slot against Stop clearing the flag,
	// so no slot enqueues after the flag is observed cleared.
	gate sync.RWMutex

	mu            sync.Mutex
	started       bool
	stopped       bool
	cancel        context.CancelFunc
	monitorCancel context.CancelFunc
	forwardCancel context.CancelFunc
	monitorDone   chan struct{}
	forwardDone   chan struct{}
	slots         sync.WaitGroup

	tickMu sync.Mutex
	// headRetries counts Retry outcomes for the current head message. Guarded by tickMu.
	headRetries int

	subsMu  sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// NewServer constructs a Server with defaults and optional settings.
func NewServer(store Store, channel Channel, opts ...Option) *Server {
	if store == nil {
		panic("msgrelay: nil Store")
	}
	if channel == nil {
		panic("msgrelay: nil Channel")
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Server{
		store:   store,
		channel: channel,
		cfg:     cfg,
		queue:   NewQueue(cfg.MaxQueueLength),
		subs:    make(map[int]chan struct{}),
	}
}

// Start launches the supervisor, which spawns the listener pool, and the forwarder.
// The loops are detached from ctx cancellation; end them with Stop, or use Run.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if s.cfg.ConnectionString == "" {
		s.cfg.Logger.Error("relay server could not start, missing connection string", "code", CodeStarting)

		return ErrConnectionStringRequired
	}

	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	monitorCtx, monitorCancel := context.WithCancel(base)
	forwardCtx, forwardCancel := context.WithCancel(base)

	s.cancel = cancel
	s.monitorCancel = monitorCancel
	s.forwardCancel = forwardCancel
	s.monitorDone = make(chan struct{})
	s.forwardDone = make(chan struct{})
	s.started = true

	s.supervising.Store(true)
	s.forwarding.Store(true)

	go s.supervise(monitorCtx, base)
	go s.forward(forwardCtx)

	s.cfg.Logger.Info("relay server started",
		"pool_size", s.cfg.PoolSize,
		"monitor_interval", s.cfg.MonitorInterval,
		"forward_interval", s.cfg.ForwardInterval,
	)

	return nil
}

// Stop ends the forwarder, then the supervisor, then unblocks and joins the listener slots.
// Messages still queued afterwards are reported and lost.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()

		return ErrNotStarted
	}
	if s.stopped {
		s.mu.Unlock()

		return nil
	}
	s.stopped = true
	s.mu.Unlock()
	defer s.cancel()

	var errs []error

	s.forwarding.Store(false)
	if err := s.join(ctx, "forwarder", s.forwardDone, s.forwardCancel, 2*s.cfg.ForwardInterval); err != nil {
		errs = append(errs, err)
	}

	s.gate.Lock()
	s.supervising.Store(false)
	s.gate.Unlock()
	supervisorErr := s.join(ctx, "supervisor", s.monitorDone, s.monitorCancel, 2*s.cfg.MonitorInterval)

	if err := s.channel.Close(); err != nil {
		s.cfg.Logger.Warn("channel close failed", "code", CodeStopping, "err", err)
	}
	if supervisorErr != nil {
		// The supervisor may still spawn slots, so they cannot be joined.
		s.reportQueueLength()

		return errors.Join(append(errs, supervisorErr)...)
	}
	if err := s.joinSlots(ctx); err != nil {
		errs = append(errs, err)
	}

	s.reportQueueLength()

	return errors.Join(errs...)
}

// Run starts the server, blocks until ctx is done and stops it within a bounded window.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	grace := 2*s.cfg.ForwardInterval + 2*s.cfg.MonitorInterval + s.cfg.SlotJoinTimeout + stopMargin
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()

	return s.Stop(stopCtx)
}

// QueueLength returns the number of messages waiting to be forwarded.
func (s *Server) QueueLength() int {
	return s.queue.Len()
}

// LastQueued returns the newest queued message, if any.
func (s *Server) LastQueued() (string, bool) {
	return s.queue.Last()
}

// Subscribe registers for "queue has pending work" signals, raised once per forwarder
// tick that finds work. Signals coalesce; a slow subscriber never blocks the forwarder.
// The returned func unsubscribes and closes the channel.
func (s *Server) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			close(ch)
		})
	}
}

func (s *Server) notifyPending() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Server) join(ctx context.Context, loop string, done <-chan struct{}, cancel context.CancelFunc, grace time.Duration) error {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	s.cfg.Logger.Warn("loop did not stop in time, cancelling", "code", CodeStopping, "loop", loop, "grace", grace)
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.cfg.Logger.Warn("loop did not stop after cancel", "code", CodeStopping, "loop", loop)

		return fmt.Errorf("%w: %s", ErrShutdownTimeout, loop)
	}
}

func (s *Server) joinSlots(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.slots.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.cfg.SlotJoinTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	s.cfg.Logger.Warn("listener slots did not stop in time", "code", CodeStopping)

	return fmt.Errorf("%w: listener slots", ErrShutdownTimeout)
}

func (s *Server) reportQueueLength() {
	length := s.queue.Len()
	s.cfg.Metrics.SetQueueLength(length)
	s.cfg.Logger.Warn("relay server stopped", "code", CodeQueueLength, "queue_length", length)
}

// guard runs fn and turns a panic into a logged error so one bad tick cannot kill a loop.
func (s *Server) guard(loop string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("%w: %v", ErrWorkerPanic, rec)
			s.cfg.Logger.Error("relay worker panic", "code", CodeThreading, "loop", loop, "err", err)
		}
	}()
	fn()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
