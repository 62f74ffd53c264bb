package job

import (
	"errors"
	"math"
	"time"
)

// Default polling backoff.
const (
	DefaultPollInitial    = 3 * time.Second
	DefaultPollMax        = 15 * time.Second
	DefaultPollMultiplier = 1.2
)

// ErrInvalidBackoff is returned by Backoff.Validate.
var ErrInvalidBackoff = errors.New("job: invalid backoff policy")

// Backoff is the polling policy shared by every job: the delay starts at
// Initial and grows by Multiplier after each non-terminal poll, capped at Max.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff returns the default polling policy (3s, x1.2, 15s).
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    DefaultPollInitial,
		Max:        DefaultPollMax,
		Multiplier: DefaultPollMultiplier,
	}
}

// Validate checks that the policy can only produce non-decreasing delays.
func (b Backoff) Validate() error {
	switch {
	case b.Initial <= 0:
		return errors.Join(ErrInvalidBackoff, errors.New("initial interval must be positive"))
	case b.Max < b.Initial:
		return errors.Join(ErrInvalidBackoff, errors.New("max interval must not be below initial interval"))
	case math.IsNaN(b.Multiplier) || math.IsInf(b.Multiplier, 0):
		return errors.Join(ErrInvalidBackoff, errors.New("multiplier must be finite"))
	case b.Multiplier < 1:
		return errors.Join(ErrInvalidBackoff, errors.New("multiplier must be at least 1"))
	}
	return nil
}

// First returns the delay before the first poll.
func (b Backoff) First() time.Duration {
	return min(b.Initial, b.Max)
}

// Next returns the delay that follows current. It is never below current
// and never above Max.
func (b Backoff) Next(current time.Duration) time.Duration {
	next := time.Duration(math.Round(float64(current) * b.Multiplier))
	if next < current {
		next = current
	}
	return min(next, b.Max)
}
