package position

import (
	"testing"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/stretchr/testify/require"
)

func TestStageOf_DerivesStageFromFlags(t *testing.T) {
	cases := []struct {
		name      string
		partial   bool
		breakeven bool
		trailing  bool
		want      Stage
	}{
		{"fresh entry", false, false, false, StageEntered},
		{"trail armed", false, false, true, StageTrailing},
		{"partial taken", true, true, false, StagePartialClosed},
		{"partial then trail", true, true, true, StagePartialTrailing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stage, err := StageOf(core.Position{
				Symbol:          "BTCUSDT",
				PartialTPTaken:  tc.partial,
				BreakevenActive: tc.breakeven,
				TrailingActive:  tc.trailing,
			})
			require.NoError(t, err)
			require.Equal(t, tc.want, stage)
		})
	}
}

func TestStageOf_RejectsUnreachableFlags(t *testing.T) {
	cases := []struct {
		name      string
		partial   bool
		breakeven bool
		trailing  bool
	}{
		{"breakeven without partial", false, true, false},
		{"breakeven and trail without partial", false, true, true},
		{"partial without breakeven", true, false, false},
		{"partial and trail without breakeven", true, false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := StageOf(core.Position{
				Symbol:          "BTCUSDT",
				PartialTPTaken:  tc.partial,
				BreakevenActive: tc.breakeven,
				TrailingActive:  tc.trailing,
			})
			require.ErrorIs(t, err, core.ErrInvariant)
		})
	}
}

func TestStageString(t *testing.T) {
	require.Equal(t, "ENTERED", StageEntered.String())
	require.Equal(t, "TRAILING", StageTrailing.String())
	require.Equal(t, "PARTIAL_CLOSED", StagePartialClosed.String())
	require.Equal(t, "PARTIAL_TRAILING", StagePartialTrailing.String())
	require.Equal(t, "UNKNOWN", Stage(42).String())
}

func TestArmTrailing_AnchorsPeak(t *testing.T) {
	p := core.Position{AvgEntryPrice: 100, HighestPrice: 100}

	armTrailing(&p, 103)
	require.True(t, p.TrailingActive)
	require.InDelta(t, 103.0, p.HighestPrice, 1e-12)

	// Re-arming with a lower price never lowers the anchor
	armTrailing(&p, 101)
	require.True(t, p.TrailingActive)
	require.InDelta(t, 103.0, p.HighestPrice, 1e-12)
}

func TestTakePartial_PromotesStopToEntry(t *testing.T) {
	p := core.Position{AvgEntryPrice: 200, StopLoss: 190}

	takePartial(&p)
	require.True(t, p.PartialTPTaken)
	require.True(t, p.BreakevenActive)
	require.InDelta(t, 200.0, p.StopLoss, 1e-12)

	stage, err := StageOf(p)
	require.NoError(t, err)
	require.Equal(t, StagePartialClosed, stage)
}
