package planner

import "errors"

var (
	// ErrGoalNotFound is returned when no view has been loaded for a goal
	ErrGoalNotFound = errors.New("goal not found")

	// ErrInvalidGoal is returned when a goal detail carries no goal id
	ErrInvalidGoal = errors.New("invalid goal")

	// ErrInvalidStatus is returned for a status outside the allowed set
	ErrInvalidStatus = errors.New("invalid status")

	// ErrStaleView is returned when a newer collection for the same goal was
	// committed while this one was being rendered
	ErrStaleView = errors.New("stale view")
)
