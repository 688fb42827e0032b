// Package validation provides composable pre-write checks for item
// mutations (§4.5 step 1's "validate" stage), grounded on the teacher's
// internal/validation/issue.go Chain-of-IssueValidator idiom, generalized
// from bd's issue-lifecycle rules (NotTemplate, NotPinned, NotHooked...)
// to Sparkle's item-lifecycle rules (exists, has an allowed status, is
// not itself when naming a dependency).
package validation

import (
	"fmt"

	"github.com/sparklehq/sparkle/internal/types"
)

// Lookup resolves an item id to its current aggregate.
type Lookup func(id string) (types.Aggregate, bool)

// ItemValidator checks one precondition against itemID, returning a
// descriptive error on failure.
type ItemValidator func(itemID string, get Lookup) error

// Chain composes validators, short-circuiting on the first failure.
func Chain(validators ...ItemValidator) ItemValidator {
	return func(itemID string, get Lookup) error {
		for _, validate := range validators {
			if err := validate(itemID, get); err != nil {
				return err
			}
		}
		return nil
	}
}

// Exists requires itemID to name a known item.
func Exists() ItemValidator {
	return func(itemID string, get Lookup) error {
		if _, ok := get(itemID); !ok {
			return fmt.Errorf("item %s does not exist", itemID)
		}
		return nil
	}
}

// NotCompleted requires itemID to not already be in the completed
// status, used to reject redundant status transitions.
func NotCompleted() ItemValidator {
	return func(itemID string, get Lookup) error {
		agg, ok := get(itemID)
		if !ok {
			return fmt.Errorf("item %s does not exist", itemID)
		}
		if agg.Status == types.StatusCompleted {
			return fmt.Errorf("item %s is already completed", itemID)
		}
		return nil
	}
}

// HasStatus requires itemID's current status to be one of allowed.
func HasStatus(allowed ...string) ItemValidator {
	return func(itemID string, get Lookup) error {
		agg, ok := get(itemID)
		if !ok {
			return fmt.Errorf("item %s does not exist", itemID)
		}
		for _, s := range allowed {
			if agg.Status == s {
				return nil
			}
		}
		return fmt.Errorf("item %s has status %q, expected one of %v", itemID, agg.Status, allowed)
	}
}

// NotIgnored requires itemID to not currently be ignored.
func NotIgnored() ItemValidator {
	return func(itemID string, get Lookup) error {
		agg, ok := get(itemID)
		if !ok {
			return fmt.Errorf("item %s does not exist", itemID)
		}
		if agg.Ignored {
			return fmt.Errorf("item %s is ignored", itemID)
		}
		return nil
	}
}

// NotSelf rejects itemID when it equals other, used to validate
// dependency edges before the cycle check runs (a self-dependency is
// always a one-node cycle, but this gives a clearer message).
func NotSelf(other string) ItemValidator {
	return func(itemID string, get Lookup) error {
		if itemID == other {
			return fmt.Errorf("item %s cannot depend on itself", itemID)
		}
		return nil
	}
}

// ForStatusUpdate is the validator chain run before accepting a status
// transition (§4.5): the item must exist.
func ForStatusUpdate() ItemValidator {
	return Chain(Exists())
}

// ForDependencyEdge is the validator chain run before linking itemID to
// neededID: both must exist and be distinct. Cycle prevention itself
// lives in package graph, since it needs both endpoints' lookup at once.
func ForDependencyEdge(neededID string) ItemValidator {
	return Chain(Exists(), NotSelf(neededID))
}
