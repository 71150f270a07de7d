package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxCommitRounds bounds the Committing and RollingBack fixpoint loops.
const DefaultMaxCommitRounds = 64

// roundQuota counts notification rounds of one commit or rollback call.
//
// The notified set guarantees that each record is only renotified after an
// explicit re-registration; the quota catches observers that re-register on
// every round and would otherwise never converge.
type roundQuota struct {
	phase     string
	maxRounds int
	current   int
}

func newRoundQuota(phase string, maxRounds int) *roundQuota {
	return &roundQuota{phase: phase, maxRounds: maxRounds}
}

// Check counts one more round and fails once the limit is exceeded.
func (q *roundQuota) Check() error {
	q.current++
	if q.current > q.maxRounds {
		return &RoundsExceededError{Phase: q.phase, Rounds: q.current, Limit: q.maxRounds}
	}
	return nil
}

// Current returns the number of rounds started so far.
func (q *roundQuota) Current() int { return q.current }

// RoundsExceededError is returned when a Committing or RollingBack loop does
// not reach its fixpoint within the configured number of rounds.
type RoundsExceededError struct {
	Phase  string // "commit" or "rollback"
	Rounds int
	Limit  int
}

// Error implements the error interface.
func (e *RoundsExceededError) Error() string {
	return fmt.Sprintf("%s exceeded max rounds: %d rounds > %d limit", e.Phase, e.Rounds, e.Limit)
}

// IsRoundsExceeded reports whether err is a RoundsExceededError.
func IsRoundsExceeded(err error) bool {
	var re *RoundsExceededError
	return errors.As(err, &re)
}
