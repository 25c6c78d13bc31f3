package vault

import (
	"errors"
	"time"

	"github.com/vinayprograms/tandem/item"
)

// SweepTerminal removes done and rejected records whose last activity
// is older than retention. A zero retention keeps everything. The scan
// is idempotent, so concurrent sweeps from both agents are safe.
func (v *Vault) SweepTerminal(retention time.Duration, now time.Time) ([]string, error) {
	if retention <= 0 {
		return nil, nil
	}
	var removed []string
	for _, state := range []item.State{item.StateDone, item.StateRejected} {
		loc := Location{State: state}
		ids, err := v.List(loc)
		if err != nil {
			return removed, err
		}
		for _, id := range ids {
			it, err := v.Load(id, loc)
			if err != nil {
				if errors.Is(err, ErrMissing) {
					continue
				}
				return removed, err
			}
			if now.Sub(lastActivity(it)) <= retention {
				continue
			}
			if err := v.Remove(id, loc); err != nil {
				if errors.Is(err, ErrMissing) {
					continue
				}
				return removed, err
			}
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func lastActivity(it *item.Item) time.Time {
	if n := len(it.Decisions); n > 0 {
		return it.Decisions[n-1].Timestamp
	}
	return it.CreatedAt
}
