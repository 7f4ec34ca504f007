package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Runner executes agent logic and returns the response.
type Runner interface {
	Run(ctx context.Context) (Response, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context) (Response, error)

// Run calls the underlying function.
func (f RunnerFunc) Run(ctx context.Context) (Response, error) {
	return f(ctx)
}

// Middleware wraps a Runner, returning a new Runner with added behaviour.
type Middleware func(next Runner) Runner

// --- Timeout middleware ---

// Timeout returns a Middleware that wraps the runner's context with a deadline.
func Timeout(d time.Duration) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (Response, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			return next.Run(ctx)
		})
	}
}

// --- Recovery middleware ---

// Recovery returns a Middleware that catches panics and converts them to errors.
func Recovery() Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (resp Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = Response{}
					err = fmt.Errorf("agent panicked: %v", r)
				}
			}()

			return next.Run(ctx)
		})
	}
}

// --- Logger middleware ---

// Logger returns a Middleware that logs agent start, duration, and error.
func Logger(log *slog.Logger, name string) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (Response, error) {
			log.InfoContext(ctx, "agent started", "agent", name)

			start := time.Now()

			resp, err := next.Run(ctx)

			duration := time.Since(start)

			if err != nil {
				log.ErrorContext(ctx, "agent finished with error",
					"agent", name,
					"duration", duration,
					"error", err,
				)
			} else {
				log.InfoContext(ctx, "agent finished",
					"agent", name,
					"duration", duration,
					"model", resp.Model,
					"fallback", resp.Fallback,
				)
			}

			return resp, err
		})
	}
}

// --- OutputGuardrail middleware ---

// OutputGuardrail returns a Middleware that validates the final response. If
// check returns an error, that error is returned instead of the response.
func OutputGuardrail(check func(Response) error) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (Response, error) {
			resp, err := next.Run(ctx)
			if err != nil {
				return resp, err
			}

			if checkErr := check(resp); checkErr != nil {
				return Response{}, checkErr
			}

			return resp, nil
		})
	}
}

// NonEmpty is an OutputGuardrail check rejecting blank responses.
func NonEmpty(resp Response) error {
	if strings.TrimSpace(resp.Text) != "" {
		return nil
	}
	return fmt.Errorf("agent: empty response from %s", resp.Model)
}
