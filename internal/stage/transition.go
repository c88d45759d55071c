package stage

import (
	"fmt"

	"github.com/pesio-ai/be-exp-cases/internal/errors"
)

// ProgressionType classifies an accepted transition.
type ProgressionType string

// Progression types.
const (
	Forward  ProgressionType = "FORWARD"
	Backward ProgressionType = "BACKWARD"
	Jump     ProgressionType = "JUMP"
)

// Classify applies the transition policy to a (current, target) stage pair
// and returns the progression type, or an INVALID_TRANSITION error with a
// human-readable reason. An unknown target stage yields NOT_FOUND.
//
// The policy, in evaluation order:
//  1. Any stage may transition into a special holding stage (JUMP).
//  2. SUSPENDED may only resume into a main stage; CANCELLED may only
//     reopen into the first main stage (both FORWARD).
//  3. The terminal closure stage only exits into SUSPENDED, already
//     covered by rule 1; every ordinary target is rejected.
//  4. Between main stages the sequence order decides: higher is FORWARD,
//     lower is BACKWARD, equal is a degenerate same-stage JUMP.
func (r *Registry) Classify(current, target ID) (ProgressionType, error) {
	targetStage, ok := r.stages[target]
	if !ok {
		return "", errors.NotFound("stage", string(target))
	}
	currentStage, ok := r.stages[current]
	if !ok {
		return "", errors.NotFound("stage", string(current))
	}

	// Rule 1: special targets are holding states reachable from anywhere.
	if targetStage.Special {
		return Jump, nil
	}

	// Rule 2: exits from special stages.
	if currentStage.Special {
		switch currentStage.ID {
		case Suspended:
			if targetStage.SequenceOrder < 1 {
				return "", errors.New(errors.ErrCodeInvalidTransition,
					fmt.Sprintf("cannot resume a suspended case into %s", target))
			}
			return Forward, nil
		case Cancelled:
			if targetStage.ID != r.First().ID {
				return "", errors.New(errors.ErrCodeInvalidTransition,
					fmt.Sprintf("a cancelled case can only be reopened into %s", r.First().ID))
			}
			return Forward, nil
		default:
			return "", errors.New(errors.ErrCodeInvalidTransition,
				fmt.Sprintf("no exits defined from special stage %s", current))
		}
	}

	// Rule 3: the closure stage only exits into SUSPENDED (rule 1).
	if currentStage.ID == r.Terminal().ID {
		return "", errors.New(errors.ErrCodeInvalidTransition,
			fmt.Sprintf("case is closed; only a transition to %s is allowed", Suspended))
	}

	// Rule 4: ordinary main-to-main movement.
	switch {
	case targetStage.SequenceOrder > currentStage.SequenceOrder:
		return Forward, nil
	case targetStage.SequenceOrder < currentStage.SequenceOrder:
		return Backward, nil
	default:
		// Same-stage request: accepted as a degenerate JUMP.
		return Jump, nil
	}
}
