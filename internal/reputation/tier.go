package reputation

import "encoding/json"

// Tier is a badge level derived from a verified-referral count.
type Tier int

const (
	TierNone Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
)

// Minimum verified counts per tier, highest first.
var thresholds = []struct {
	min  int
	tier Tier
}{
	{20, TierPlatinum},
	{15, TierGold},
	{10, TierSilver},
	{5, TierBronze},
}

// Compute maps a verified-referral count to its tier. The highest threshold
// the count reaches wins.
func Compute(verifiedCount int) Tier {
	for _, t := range thresholds {
		if verifiedCount >= t.min {
			return t.tier
		}
	}
	return TierNone
}

func (t Tier) String() string {
	switch t {
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	case TierPlatinum:
		return "platinum"
	default:
		return "none"
	}
}

// MarshalJSON encodes TierNone as null, matching the profile payload where a
// user without a badge has no status.
func (t Tier) MarshalJSON() ([]byte, error) {
	if t == TierNone {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}
