package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"matchbot/pkg/logx"
	"matchbot/pkg/metrics"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// ErrHandlerPanic wraps a recovered panic value.
var ErrHandlerPanic = errors.New("command handler panicked")

// slowCommand promotes a successful request log line from debug to info.
const slowCommand = 750 * time.Millisecond

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func requestLogger(fallback logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback
}

// Deadline bounds a handler by its command's Timeout. Zero means unbounded.
func Deadline(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if req == nil || req.Command.Timeout <= 0 {
			return next(ctx, req)
		}
		cctx, cancel := context.WithTimeout(ctx, req.Command.Timeout)
		defer cancel()
		return next(cctx, req)
	}
}

// Recover turns a handler panic into ErrHandlerPanic and logs the stack.
func Recover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					requestLogger(log, req).Error("command panicked",
						logx.Any("panic", r), logx.Stack(string(debug.Stack())))
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// Observe logs each command once it returns and counts it by outcome:
// ok, timeout, panic or error.
func Observe(log logx.Logger, m *metrics.Manager) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			outcome := commandOutcome(err)
			m.Command(req.Command.Name, outcome)

			l := requestLogger(log, req).With(
				logx.Recipient(req.Recipient),
				logx.String("cmd", req.Command.Name),
				logx.Int("args", len(req.Args)),
				logx.Duration("took", took),
				logx.String("outcome", outcome),
			)
			switch {
			case err != nil:
				l.Warn("command failed", logx.Err(err))
			case took >= slowCommand:
				l.Info("command slow")
			default:
				l.Debug("command done")
			}
			return err
		}
	}
}

func commandOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrHandlerPanic):
		return "panic"
	}
	return "error"
}
