package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"matchbot/internal/eventbus"
	"matchbot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, q <-chan queuedTask) {
	for {
		// a cancelled context wins over queued work
		select {
		case <-ctx.Done():
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case qt := <-q:
			s.inFlight.Add(1)
			s.execOne(ctx, qt)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	if qt.state != nil {
		defer qt.state.release()
	}
	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if qt.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, qt.timeout)
	}
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("task panic", logx.String("task", qt.task.Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		err = qt.task.Run(runCtx)
	}()
	cancel()

	dur := time.Since(start)
	item := HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task failed", logx.String("task", qt.task.Name), logx.Err(err), logx.Duration("dur", dur))
		eventbus.Publish(s.bus, eventbus.TypeTaskFailed, TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Duration: dur, Error: item.Error})
	} else if dur >= 750*time.Millisecond {
		s.log.Info("task completed", logx.String("task", qt.task.Name), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
	} else {
		s.log.Trace("task completed", logx.String("task", qt.task.Name), logx.Duration("dur", dur))
	}
	s.record(item)
}
