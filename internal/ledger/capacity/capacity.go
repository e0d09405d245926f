// Package capacity implements the storage-capacity guard applied to every
// balance-increasing ledger operation. The caller is responsible for running
// the check inside the same transaction as the write it protects.
package capacity

import "fmt"

// ExceededError carries the diagnostics a caller needs to understand a
// capacity rejection.
type ExceededError struct {
	LocationID    string
	Capacity      int64
	CurrentStored int64
	Requested     int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("location %s capacity exceeded: capacity=%d currentStored=%d requested=%d",
		e.LocationID, e.Capacity, e.CurrentStored, e.Requested)
}

// Check compares a location's configured capacity against the projected
// stored quantity. A nil capacity means the location is unconstrained.
// currentStored is the sum of available+reserved across all batches at the
// location, incoming the quantity about to be added.
func Check(locationID string, limit *int64, currentStored, incoming int64) error {
	if limit == nil {
		return nil
	}
	if currentStored+incoming > *limit {
		return &ExceededError{
			LocationID:    locationID,
			Capacity:      *limit,
			CurrentStored: currentStored,
			Requested:     incoming,
		}
	}
	return nil
}
