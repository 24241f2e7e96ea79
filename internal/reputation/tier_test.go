package reputation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_Boundaries(t *testing.T) {
	cases := map[int]Tier{
		0:    TierNone,
		4:    TierNone,
		5:    TierBronze,
		9:    TierBronze,
		10:   TierSilver,
		14:   TierSilver,
		15:   TierGold,
		19:   TierGold,
		20:   TierPlatinum,
		1000: TierPlatinum,
	}
	for count, want := range cases {
		assert.Equal(t, want, Compute(count), "count=%d", count)
	}
}

func TestCompute_Monotonic(t *testing.T) {
	prev := Compute(0)
	for c := 1; c <= 100; c++ {
		cur := Compute(c)
		assert.GreaterOrEqual(t, int(cur), int(prev), "tier dropped at count=%d", c)
		prev = cur
	}
}

func TestTier_JSON(t *testing.T) {
	b, err := json.Marshal(Status{Tier: TierGold, Count: 16})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"gold","count":16}`, string(b))

	b, err = json.Marshal(Status{Tier: TierNone, Count: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":null,"count":2}`, string(b))
}
