package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Middleware decorates a Generator.
type Middleware func(Generator) Generator

// Chain wraps g so that the first middleware is the outermost.
func Chain(g Generator, mws ...Middleware) Generator {
	for i := len(mws) - 1; i >= 0; i-- {
		g = mws[i](g)
	}
	return g
}

// ErrTimeout is returned when a call exceeds its deadline.
var ErrTimeout = errors.New("generation timed out")

// WithTimeout bounds every call. A zero duration disables the bound.
func WithTimeout(d time.Duration) Middleware {
	return func(next Generator) Generator {
		if d <= 0 {
			return next
		}
		return GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			out, err := next.Generate(ctx, req)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%w after %s: %w", ErrTimeout, d, err)
			}
			return out, err
		})
	}
}

// NewLimiter returns a limiter allowing rpm calls per minute, or nil for no limit.
func NewLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}

// WithRateLimit paces calls through l. A nil limiter disables pacing.
func WithRateLimit(l *rate.Limiter) Middleware {
	return func(next Generator) Generator {
		if l == nil {
			return next
		}
		return GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
			if err := l.Wait(ctx); err != nil {
				return "", fmt.Errorf("waiting for rate limiter: %w", err)
			}
			return next.Generate(ctx, req)
		})
	}
}

// WithChainOfThought asks CoT models for the THOUGHT/SAY template and
// strips the reasoning from their replies.
func WithChainOfThought() Middleware {
	return func(next Generator) Generator {
		return GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
			if !req.CoT {
				return next.Generate(ctx, req)
			}
			req.System += CoTTemplate
			out, err := next.Generate(ctx, req)
			if err != nil {
				return "", err
			}
			return StripThought(out), nil
		})
	}
}

// WithValidation trims replies and rejects empty ones.
func WithValidation() Middleware {
	return func(next Generator) Generator {
		return GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
			out, err := next.Generate(ctx, req)
			if err != nil {
				return "", err
			}
			out = strings.TrimSpace(out)
			if out == "" {
				return "", ErrEmptyResponse
			}
			return out, nil
		})
	}
}

// WithLogging records model, duration and outcome of every call.
func WithLogging(logger *slog.Logger) Middleware {
	return func(next Generator) Generator {
		return GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
			start := time.Now()
			out, err := next.Generate(ctx, req)
			attrs := []any{
				"model", req.Model,
				"messages", len(req.Messages),
				"duration", time.Since(start),
			}
			if err != nil {
				logger.Warn("generation failed", append(attrs, "error", err)...)
				return "", err
			}
			logger.Debug("generation complete", append(attrs, "chars", len(out))...)
			return out, nil
		})
	}
}
