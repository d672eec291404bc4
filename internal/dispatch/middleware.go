package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/mcoot/gamelobby/internal/protocol"
)

// Middleware wraps a Handler
type Middleware func(Handler) Handler

// Chain applies middlewares so the first one listed runs outermost
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Logging logs every request with its command, outcome and duration
func Logging(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, peer Peer, frame []byte) (Response, error) {
			start := time.Now()

			resp, err := next.Handle(ctx, peer, frame)

			attrs := []any{
				slog.String("conn", peer.ID()),
				slog.String("command", commandOf(frame)),
				slog.Duration("duration", time.Since(start)),
			}
			switch {
			case err != nil:
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.Warn("protocol error", attrs...)
			case resp.Reply != nil:
				attrs = append(attrs, slog.String("status", resp.Reply.Status))
				if len(resp.Stream) > 0 {
					attrs = append(attrs, slog.Int("stream_bytes", len(resp.Stream)))
				}
				logger.Info("request", attrs...)
			}
			return resp, err
		})
	}
}

// Recovery turns a panicking handler into an ERROR reply so one bad request
// does not take the connection down
func Recovery(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, peer Peer, frame []byte) (resp Response, err error) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						slog.Any("error", rec),
						slog.String("stack", string(debug.Stack())),
						slog.String("conn", peer.ID()),
						slog.String("command", commandOf(frame)),
					)
					resp, err = reply(protocol.ErrorReply(internalMessage)), nil
				}
			}()

			return next.Handle(ctx, peer, frame)
		})
	}
}

// commandOf extracts the command name for logging; garbage yields ""
func commandOf(frame []byte) string {
	var env struct {
		Command string `json:"command"`
	}
	_ = json.Unmarshal(frame, &env)
	return env.Command
}
