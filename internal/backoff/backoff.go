// Package backoff implements BackoffPolicy: computing the instant at which
// a failed Step becomes eligible for its next attempt (spec §4.3).
package backoff

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/mrz1836/flowcore/internal/constants"
	"github.com/mrz1836/flowcore/internal/eventsink"
	flowerrors "github.com/mrz1836/flowcore/internal/errors"
)

// Config holds BackoffPolicy tuning parameters (spec §4.3 "Inputs").
type Config struct {
	BaseDelay           time.Duration
	Multiplier          float64
	JitterEnabled       bool
	JitterMaxPercentage float64
	MaxDelay            time.Duration
	MinDelay            time.Duration
}

// DefaultConfig constructs a Config seeded with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseDelay:           constants.DefaultBaseDelay,
		Multiplier:          constants.DefaultMultiplier,
		JitterEnabled:       false,
		JitterMaxPercentage: constants.DefaultJitterMaxPercentage,
		MaxDelay:            constants.DefaultMaxDelay,
		MinDelay:            constants.DefaultMinDelay,
	}
}

// Outcome is the result of a Policy.Compute call: the instant to store as
// backoff_until plus the classification emitted with step.backoff.
type Outcome struct {
	BackoffUntil time.Time
	Type         string // "server_requested" or "exponential"
	Seconds      float64
	Attempt      int
}

// Policy computes backoff_until for a failed Step, applying the priority
// order from spec §4.3: server-directed hint, then exponential, then
// jitter, then floor.
type Policy struct {
	cfg  Config
	sink eventsink.EventSink
	now  func() time.Time
	rand func() float64
}

// Option configures a Policy.
type Option func(*Policy)

// WithEventSink overrides the EventSink used for the step.backoff event.
func WithEventSink(sink eventsink.EventSink) Option {
	return func(p *Policy) { p.sink = sink }
}

// WithNow overrides the clock function, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// WithRandSource overrides the jitter random source, for deterministic tests.
// f must return a value in [0, 1).
func WithRandSource(f func() float64) Option {
	return func(p *Policy) { p.rand = f }
}

// NewPolicy constructs a Policy.
func NewPolicy(cfg Config, opts ...Option) *Policy {
	p := &Policy{cfg: cfg, sink: eventsink.Nop{}, now: time.Now, rand: rand.Float64}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Compute returns the next-retry instant for a Step that has made attempts
// executions, given an optional server-directed retry_after hint (empty
// string means no hint).
func (p *Policy) Compute(ctx context.Context, attempts int, retryAfter string) (Outcome, error) {
	if retryAfter != "" {
		until, err := ParseRetryAfter(retryAfter, p.now())
		if err != nil || until.Before(p.now()) {
			// InvalidBackoff (unparseable hint or negative delay) is never
			// fatal: fall back to the exponential computation (spec §7
			// propagation policy).
			out := p.exponential(ctx, attempts)
			p.emit(ctx, out)
			return out, nil
		}
		maxDelay := p.cfg.MaxDelay
		if maxDelay <= 0 {
			maxDelay = constants.MaxServerBackoff
		}
		maxUntil := p.now().Add(maxDelay)
		if until.After(maxUntil) {
			until = maxUntil
		}
		out := Outcome{BackoffUntil: until, Type: "server_requested", Seconds: until.Sub(p.now()).Seconds(), Attempt: attempts}
		p.emit(ctx, out)
		return out, nil
	}

	out := p.exponential(ctx, attempts)
	p.emit(ctx, out)
	return out, nil
}

func (p *Policy) exponential(_ context.Context, attempts int) Outcome {
	n := attempts
	if n < 0 {
		n = 0
	}
	delay := float64(p.cfg.BaseDelay) * pow(p.cfg.Multiplier, n)

	if p.cfg.JitterEnabled && p.cfg.JitterMaxPercentage > 0 {
		sign := 1.0
		if p.rand() < 0.5 {
			sign = -1.0
		}
		factor := 1 + sign*p.rand()*p.cfg.JitterMaxPercentage
		delay *= factor
	}

	d := time.Duration(delay)
	if p.cfg.MaxDelay > 0 && d > p.cfg.MaxDelay {
		d = p.cfg.MaxDelay
	}
	floor := p.cfg.MinDelay
	if floor <= 0 {
		floor = p.cfg.BaseDelay / 2
	}
	if d < floor {
		d = floor
	}

	return Outcome{
		BackoffUntil: p.now().Add(d),
		Type:         "exponential",
		Seconds:      d.Seconds(),
		Attempt:      attempts,
	}
}

func (p *Policy) emit(ctx context.Context, out Outcome) {
	p.sink.Emit(ctx, constants.EventStepBackoff, map[string]any{
		"type":    out.Type,
		"seconds": out.Seconds,
		"attempt": out.Attempt,
	})
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// ParseRetryAfter accepts either an integer-seconds string or an HTTP-date
// (time.RFC1123, matching the Retry-After header grammar), returning the
// absolute instant it designates relative to now.
func ParseRetryAfter(value string, now time.Time) (time.Time, error) {
	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil {
		if fmt.Sprintf("%d", seconds) == value {
			if seconds < 0 {
				return time.Time{}, &flowerrors.InvalidBackoffError{Hint: value, Reason: "negative seconds"}
			}
			return now.Add(time.Duration(seconds) * time.Second), nil
		}
	}

	if t, err := http.ParseTime(value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC1123, value); err == nil {
		return t, nil
	}

	return time.Time{}, &flowerrors.InvalidBackoffError{Hint: value, Reason: "not an integer-seconds value or an HTTP-date"}
}

// ClassifyHTTPStatus maps an HTTP status code to a retry classification per
// spec §4.4.3: {429,503} retryable-with-hint, {400,401,403,404,422}
// permanent, other 5xx retryable-without-forced-backoff, everything else
// (2xx/3xx, unmapped 4xx) is treated as not an error signal at all and
// returns retryable=true since the core never sees those as failures.
func ClassifyHTTPStatus(status int) (retryable bool, forcedBackoff bool) {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true, true
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity:
		return false, false
	}
	if status >= 500 && status < 600 {
		return true, false
	}
	return true, false
}
