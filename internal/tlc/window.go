package tlc

import "fmt"

// CheckWindow enforces the time-range rule for a category: the lookup
// category takes no bounds, every other category needs both with start <= end.
// Violations wrap ErrInvalidRequest.
func CheckWindow(c Category, start, end *int64) error {
	if c.IsLookup() {
		if start != nil || end != nil {
			return fmt.Errorf("%w: category %s is not time partitioned; start and end must be absent", ErrInvalidRequest, c)
		}
		return nil
	}
	if start == nil || end == nil {
		return fmt.Errorf("%w: category %s requires both start and end timestamps", ErrInvalidRequest, c)
	}
	if *start > *end {
		return fmt.Errorf("%w: start %d is after end %d", ErrInvalidRequest, *start, *end)
	}
	return nil
}
