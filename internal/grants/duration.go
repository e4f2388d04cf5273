package grants

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

// Permanent is the duration used for "perm" grants. Grants always carry
// an expiry, so permanent means one year out.
const Permanent = 365 * 24 * time.Hour

var durationPattern = regexp.MustCompile(`^(\d+)([mhd])$`)

var ErrBadDuration = errors.New("duration must look like 10m, 2h, 1d, or perm")

// ParseDuration accepts minute, hour, and day suffixes plus the literal
// "perm".
func ParseDuration(raw string) (time.Duration, error) {
	if raw == "perm" {
		return Permanent, nil
	}

	match := durationPattern.FindStringSubmatch(raw)
	if match == nil {
		return 0, ErrBadDuration
	}
	amount, err := strconv.Atoi(match[1])
	if err != nil || amount <= 0 {
		return 0, ErrBadDuration
	}

	switch match[2] {
	case "m":
		return time.Duration(amount) * time.Minute, nil
	case "h":
		return time.Duration(amount) * time.Hour, nil
	case "d":
		return time.Duration(amount) * 24 * time.Hour, nil
	}
	return 0, ErrBadDuration
}
