package ipc

import (
	"context"
	"fmt"
	"time"

	"github.com/kbirk/pipecall/pkg/log"
	"golang.org/x/time/rate"
)

// Request is a decoded call as seen by middleware.
type Request struct {
	ClientID int64
	Class    string
	Function string
	Args     []Value
}

func (r *Request) Name() string {
	return r.Class + "::" + r.Function
}

type Handler func(context.Context, *Request) ([]Value, error)
type Middleware func(context.Context, *Request, Handler) ([]Value, error)

func buildHandlerFunction(middleware []Middleware, final Handler) Handler {

	// start with the final handler
	chain := final

	// wrap from the innermost middleware outwards so the first registered
	// middleware runs first
	for i := len(middleware) - 1; i >= 0; i-- {
		m := middleware[i]
		next := chain
		chain = func(ctx context.Context, req *Request) ([]Value, error) {
			return m(ctx, req, next)
		}
	}

	return chain
}

// RateLimit rejects calls beyond r per second with bursts of up to burst.
// Rejected calls are answered with an error reply.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(ctx context.Context, req *Request, next Handler) ([]Value, error) {
		if !limiter.Allow() {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, req.Name())
		}
		return next(ctx, req)
	}
}

// Logging logs every call with its duration at debug level, and failures at
// warn level. A nil logger discards everything.
func Logging(logger log.Logger) Middleware {
	if logger == nil {
		logger = log.Nop()
	}
	return func(ctx context.Context, req *Request, next Handler) ([]Value, error) {
		start := time.Now()
		values, err := next(ctx, req)
		elapsed := time.Since(start)
		if err != nil {
			logger.Warn(fmt.Sprintf("client %d: %s failed after %s: %v", req.ClientID, req.Name(), elapsed, err))
		} else {
			logger.Debug(fmt.Sprintf("client %d: %s returned %d values in %s", req.ClientID, req.Name(), len(values), elapsed))
		}
		return values, err
	}
}
