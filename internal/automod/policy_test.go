package automod

import (
	"testing"
	"time"

	"sbmod/internal/config"
)

func TestPunishmentThresholds(t *testing.T) {
	tuning := config.AutomodTuning{
		TimeoutShortMin: 10,
		TimeoutLongMin:  60,
		ShortThreshold:  3,
		LongThreshold:   5,
	}

	cases := []struct {
		count int
		want  time.Duration
	}{
		{0, 0},
		{2, 0},
		{3, 10 * time.Minute},
		{4, 10 * time.Minute},
		{5, time.Hour},
		{12, time.Hour},
	}
	for _, tc := range cases {
		if got := PunishmentFor(tc.count, tuning); got != tc.want {
			t.Fatalf("count %d: got %v, want %v", tc.count, got, tc.want)
		}
	}
}
