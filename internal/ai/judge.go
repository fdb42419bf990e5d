package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/placement-engine/internal/logger"
	"github.com/spigell/placement-engine/internal/placement"
	"github.com/spigell/placement-engine/internal/utils"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultBackoffBase = 2 * time.Second
	defaultBackoffMax  = 30 * time.Second
)

// Judge is a text-completion service used as an oracle for structured verdicts.
type Judge interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// JudgeFunc adapts a function to Judge.
type JudgeFunc func(ctx context.Context, prompt string) (string, error)

func (f JudgeFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type boundedJudge struct {
	next    Judge
	timeout time.Duration
}

// Bounded limits every call to timeout and converts failures into JudgeError:
// transport errors, deadlines and empty output alike.
func Bounded(next Judge, timeout time.Duration) Judge {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &boundedJudge{next: next, timeout: timeout}
}

func (b *boundedJudge) Complete(ctx context.Context, prompt string) (string, error) {
	const op = "judge.complete"

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := b.next.Complete(callCtx, prompt)
	if err != nil {
		if errors.Is(err, placement.ErrJudge) {
			return "", err
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", placement.Errorf(placement.KindJudge, op, "timed out after %s: %w", b.timeout, err)
		}
		return "", placement.Errorf(placement.KindJudge, op, "judge call failed: %w", err)
	}

	if strings.TrimSpace(out) == "" {
		return "", placement.Errorf(placement.KindJudge, op, "judge returned empty output")
	}

	return out, nil
}

// RetryPolicy bounds caller-side retries of judge calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
}

type retryingJudge struct {
	next   Judge
	policy RetryPolicy
	logger *zap.Logger
}

// Retrying re-issues failed calls with exponential backoff. It belongs to the
// calling layer; matcher and feedback generator never retry on their own.
func Retrying(next Judge, policy RetryPolicy, log *zap.Logger) Judge {
	if policy.MaxAttempts <= 1 {
		return next
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = defaultBackoffBase
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = defaultBackoffMax
	}
	return &retryingJudge{next: next, policy: policy, logger: logger.OrNop(log)}
}

func (r *retryingJudge) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		out, err := r.next.Complete(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if r.policy.Retryable != nil && !r.policy.Retryable(err) {
			return "", err
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := utils.Backoff(attempt, r.policy.BaseDelay, r.policy.MaxDelay)
		r.logger.Warn("judge call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := utils.WaitFor(ctx, delay); err != nil {
			return "", lastErr
		}
	}

	return "", lastErr
}
