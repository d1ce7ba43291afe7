package tracking

import (
	"math"
	"time"
)

// DelayMinutes returns the signed distance between the planned and the real
// end of an activity, in whole minutes. Positive means late, negative early.
//
// A nil plannedEnd yields nil: with no baseline the delay is unknown, which
// must stay distinguishable from an on-time zero. Rounding is to the nearest
// minute (half away from zero), so 89.999s maps to 1 and 90s to 2; truncation
// would systematically under-report small delays.
func DelayMinutes(plannedEnd *time.Time, realEnd time.Time) *int {
	if plannedEnd == nil {
		return nil
	}
	minutes := int(math.Round(realEnd.Sub(*plannedEnd).Minutes()))
	return &minutes
}
