package order

import (
	"fmt"
	"time"
)

// Legal lifecycle transitions. Terminal states have no outgoing
// edges; any attempt to leave one is an internal consistency error,
// not a user-facing rejection.
var transitions = map[Status][]Status{
	Pending:         {Resting, PartiallyFilled, Filled, Cancelled, Rejected},
	Resting:         {PartiallyFilled, Filled, Cancelled, Expired},
	PartiallyFilled: {PartiallyFilled, Filled, Cancelled, Expired},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the order to a new status, enforcing the state
// machine. Callers observe the previous status via the return value.
func (o *Order) TransitionTo(to Status) (from Status, err error) {
	from = o.Status
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: order %s %s -> %s", ErrInternal, o.ID, from, to)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return from, nil
}
