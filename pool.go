package msgrelay

import (
	"context"
	"fmt"
)

type slotState int

const (
	slotTerminated slotState = iota
	slotActive
)

// supervise spawns the listener pool and, every monitor tick, restarts slots whose worker exited.
// The slot array is owned by this goroutine; workers report their exit on done.
func (s *Server) supervise(ctx, slotCtx context.Context) {
	defer close(s.monitorDone)

	slots := make([]slotState, s.cfg.PoolSize)
	done := make(chan int, s.cfg.PoolSize)

	s.guard("supervisor", func() {
		for i := range slots {
			s.startSlot(ctx, slotCtx, i, slots, done)
		}
	})

	for s.supervising.Load() {
		if err := sleep(ctx, s.cfg.MonitorInterval); err != nil {
			return
		}
		if !s.supervising.Load() {
			return
		}
		s.guard("supervisor", func() {
			s.respawn(ctx, slotCtx, slots, done)
		})
	}
}

func (s *Server) respawn(ctx, slotCtx context.Context, slots []slotState, done chan int) {
	for drained := false; !drained; {
		select {
		case index := <-done:
			slots[index] = slotTerminated
		default:
			drained = true
		}
	}

	restarted := 0
	for i, state := range slots {
		if state != slotTerminated {
			continue
		}
		if s.startSlot(ctx, slotCtx, i, slots, done) {
			restarted++
		}
	}
	if restarted > 0 {
		s.cfg.Metrics.AddRespawns(restarted)
	}
}

// startSlot binds a new listener instance for slot index and runs its worker.
// A failure leaves the slot terminated; the next tick retries it.
func (s *Server) startSlot(ctx, slotCtx context.Context, index int, slots []slotState, done chan<- int) bool {
	listener, err := s.channel.Listen(ctx)
	if err != nil {
		s.cfg.Logger.Error("listener slot could not be started", "code", CodeThreading, "slot", index, "err", err)

		return false
	}

	slots[index] = slotActive
	s.slots.Add(1)
	go s.serveSlot(slotCtx, index, listener, done)

	return true
}

// serveSlot handles exactly one connection and then exits.
func (s *Server) serveSlot(ctx context.Context, index int, listener Listener, done chan<- int) {
	defer s.slots.Done()
	defer func() {
		done <- index
	}()
	defer func() {
		if err := listener.Close(); err != nil {
			s.cfg.Logger.Debug("listener close failed", "slot", index, "err", err)
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("%w: %v", ErrWorkerPanic, rec)
			s.cfg.Logger.Error("listener slot panic", "code", CodeThreading, "slot", index, "err", err)
		}
	}()

	message, err := listener.Receive(ctx)
	if err != nil {
		if !s.supervising.Load() || ctx.Err() != nil {
			return
		}
		s.cfg.Logger.Error("listener receive failed", "code", CodeThreading, "slot", index, "err", err)

		return
	}

	s.gate.RLock()
	defer s.gate.RUnlock()

	if !s.supervising.Load() {
		s.cfg.Logger.Debug("message discarded during shutdown", "slot", index)

		return
	}
	if !s.queue.Push(message) {
		s.cfg.Metrics.AddDropped(1)
		s.cfg.Logger.Warn("queue full, message dropped",
			"code", CodeQueueLength,
			"slot", index,
			"payload", message,
			"err", ErrQueueFull,
		)

		return
	}
	s.cfg.Metrics.AddReceived(1)
}
