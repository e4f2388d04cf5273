package automod

import (
	"time"

	"sbmod/internal/config"
)

// PunishmentFor maps a user's accumulated violation count to a timeout
// duration. Counts below the short threshold go unpunished beyond the
// message deletion and warning.
func PunishmentFor(count int, tuning config.AutomodTuning) time.Duration {
	switch {
	case count >= tuning.LongThreshold:
		return time.Duration(tuning.TimeoutLongMin) * time.Minute
	case count >= tuning.ShortThreshold:
		return time.Duration(tuning.TimeoutShortMin) * time.Minute
	default:
		return 0
	}
}
