package automation

import "errors"

// Domain errors for the automation package.
//
//	if errors.Is(err, automation.ErrSceneNotFound) {
//	    // handle not found case
//	}
var (
	// ErrSceneNotFound is returned when no scene has the alias.
	ErrSceneNotFound = errors.New("automation: scene not found")

	// ErrInvalidRule is returned when an automation rule fails validation.
	ErrInvalidRule = errors.New("automation: invalid rule")

	// ErrInvalidScene is returned when a scene fails validation.
	ErrInvalidScene = errors.New("automation: invalid scene")

	// ErrInvalidCondition is returned when a condition does not compile.
	ErrInvalidCondition = errors.New("automation: invalid condition")

	// ErrConditionFailed is returned when a condition errors at run time.
	ErrConditionFailed = errors.New("automation: condition failed")

	// ErrTargetNotFound is returned when an action targets an unknown item.
	ErrTargetNotFound = errors.New("automation: target not found")
)
