package order

import "slices"

// transitions lists the legal next statuses. Completed and Cancelled are
// terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusPicked, StatusCancelled},
	StatusPicked:     {StatusCompleted},
}

// shopTransitions is the subset a shop owner may apply directly. Picked and
// Completed belong to the delivery workflow.
var shopTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPicked, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Transition returns an InvalidTransitionError when from → to is illegal.
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// ShopTransition is Transition restricted to the moves a shop owner makes.
func ShopTransition(from, to Status) error {
	if !slices.Contains(shopTransitions[from], to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
