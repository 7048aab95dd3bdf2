package statecache

import (
	"context"
	"slices"
	"time"
)

// WaitFor suspends the calling goroutine until the entity's state enters
// accepted and, when minDuration is positive, remains there continuously
// for at least that long. An intervening update that leaves the accepted
// set resets the duration clock. It returns ErrWaitTimeout if timeout
// elapses first (a zero timeout means wait forever), or the context's error
// if the context is cancelled. No registry lock is held while suspended.
func (c *Cache) WaitFor(ctx context.Context, entityID string, accepted []string, minDuration, timeout time.Duration) error {
	updates, cancel := c.Subscribe()
	defer cancel()

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	// hold fires once the state has been continuously accepted for
	// minDuration. A nil channel never fires.
	var hold *time.Timer
	var holdC <-chan time.Time
	stopHold := func() {
		if hold != nil {
			hold.Stop()
			hold = nil
			holdC = nil
		}
	}
	defer stopHold()

	armed := false
	arm := func(heldFor time.Duration) bool {
		if minDuration <= 0 || heldFor >= minDuration {
			return true
		}
		stopHold()
		hold = time.NewTimer(minDuration - heldFor)
		holdC = hold.C
		armed = true
		return false
	}

	// The current value may already satisfy the wait, crediting time the
	// entity has already spent in the accepted state.
	if e, err := c.GetFull(entityID); err == nil && slices.Contains(accepted, e.State) {
		if arm(e.TimeInState(time.Now())) {
			return nil
		}
	}

	for {
		select {
		case change, ok := <-updates:
			if !ok {
				return ctx.Err()
			}
			if change.EntityID != entityID {
				continue
			}
			in := change.New != nil && slices.Contains(accepted, change.New.State)
			switch {
			case in && !armed:
				if arm(0) {
					return nil
				}
			case !in && armed:
				stopHold()
				armed = false
			}
		case <-holdC:
			return nil
		case <-deadline:
			return ErrWaitTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
