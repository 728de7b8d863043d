package parking

import "time"

// Factors are expressed in hundredths: 110 means 1.10.
const (
	FactorLow      int64 = 90
	FactorStandard int64 = 100
	FactorBusy     int64 = 110
	FactorPeak     int64 = 125
)

// FreeMinutes is the grace period charged at zero.
const FreeMinutes = 30

// DynamicFactor maps an occupancy ratio in hundredths (0..100) to the
// price multiplier stamped on a session at entry.  Upper bounds are
// inclusive: exactly 50 is still the standard tier.
func DynamicFactor(ratio int64) int64 {
	switch {
	case ratio < 25:
		return FactorLow
	case ratio <= 50:
		return FactorStandard
	case ratio <= 75:
		return FactorBusy
	default:
		return FactorPeak
	}
}

// Charge prices a stay.  Stays up to FreeMinutes cost nothing; longer
// stays pay base × factor for every started hour, rounded half-up to the
// cent.  An exit before the entry counts as zero minutes.
func Charge(basePriceCents, factor int64, entry, exit time.Time) int64 {
	minutes := int64(exit.Sub(entry) / time.Minute)
	if minutes <= FreeMinutes {
		return 0
	}
	hours := (minutes + 59) / 60
	// factor is in hundredths, so divide once with half-up rounding.
	return (basePriceCents*factor*hours + 50) / 100
}
