// Package ledger computes the fee/settlement split for a paid order.
package ledger

import "math"

// Split is the three-way breakdown of a gross charge in minor units.
type Split struct {
	GatewayFee   int64
	PlatformFee  int64
	OrganizerNet int64
}

// ComputeLedger splits grossMinor between the gateway, the platform
// and the organizer. Both fees round half-up on minor units; the
// organizer net is the exact remainder, so the three parts always sum
// back to grossMinor.
func ComputeLedger(grossMinor int64, gatewayFeeRate, platformFeeRate float64) Split {
	gatewayFee := roundHalfUp(float64(grossMinor) * gatewayFeeRate)
	platformFee := roundHalfUp(float64(grossMinor) * platformFeeRate)

	return Split{
		GatewayFee:   gatewayFee,
		PlatformFee:  platformFee,
		OrganizerNet: grossMinor - gatewayFee - platformFee,
	}
}

func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
