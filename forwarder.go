package msgrelay

import (
	"context"
	"time"
)

// forward drains the queue into the store once per forwarder tick while forwarding is set.
func (s *Server) forward(ctx context.Context) {
	defer close(s.forwardDone)

	for s.forwarding.Load() {
		if s.queue.Len() > 0 {
			s.guard("forwarder", func() {
				_, _ = s.process(ctx, s.forwarding.Load)
			})
		}
		if err := sleep(ctx, s.cfg.ForwardInterval); err != nil {
			return
		}
	}
}

// ProcessOnce runs a single forwarder tick: it opens a store session and inserts queued
// messages head first until the queue is empty or a failure interrupts the tick.
// It returns how many messages left the queue, persisted or dropped, and the error that
// stopped the tick early, if any. Failures are logged where they occur.
// Cancelling ctx stops the tick before the next insert and leaves the head message queued.
func (s *Server) ProcessOnce(ctx context.Context) (int, error) {
	return s.process(ctx, nil)
}

// process implements ProcessOnce. A non-nil running func is checked before every insert,
// which lets Stop end a long drain after the insert in flight.
func (s *Server) process(ctx context.Context, running func() bool) (int, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.queue.Len() == 0 {
		return 0, nil
	}

	start := time.Now()
	s.notifyPending()

	var persisted, dropped int
	defer func() {
		s.cfg.Metrics.ObserveTickDuration(time.Since(start))
		s.cfg.Metrics.AddPersisted(persisted)
		s.cfg.Metrics.AddDropped(dropped)
		s.cfg.Metrics.SetQueueLength(s.queue.Len())
	}()

	session, err := s.store.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		s.cfg.Metrics.AddConnectFailures(1)
		s.cfg.Logger.Error("store connection open failed", "code", CodeStoreConnect, "queue_length", s.queue.Len(), "err", err)

		return 0, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			s.cfg.Logger.Warn("store session close failed", "code", CodeStoreConnect, "err", closeErr)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return persisted + dropped, err
		}
		if running != nil && !running() {
			return persisted + dropped, nil
		}

		message, ok := s.queue.Peek()
		if !ok {
			return persisted + dropped, nil
		}

		err := session.Insert(ctx, message)
		if err == nil {
			s.pop()
			persisted++

			continue
		}
		if ctx.Err() != nil {
			return persisted + dropped, ctx.Err()
		}

		if s.cfg.FailureClassifier(ctx, message, err) == FailureRetry {
			s.headRetries++
			if s.headRetries <= s.cfg.MaxInsertRetries {
				s.cfg.Metrics.AddConnectFailures(1)
				s.cfg.Logger.Error("store insert failed, message kept for next tick",
					"code", CodeStoreConnect,
					"queue_length", s.queue.Len(),
					"attempt", s.headRetries,
					"err", err,
				)

				return persisted + dropped, err
			}
		}

		retries := s.headRetries
		s.pop()
		dropped++
		s.cfg.Logger.Error("store insert failed, message dropped",
			"code", CodeStoreExecute,
			"payload", message,
			"retries", retries,
			"err", err,
		)
	}
}

// pop removes the head message and resets its retry count. Callers hold tickMu.
func (s *Server) pop() {
	s.queue.Pop()
	s.headRetries = 0
}
