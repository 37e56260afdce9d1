package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "savings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func sampleRecord(userID string) Record {
	return Record{
		OriginalModelID:    "big",
		OriginalModelName:  "Big Model",
		SuggestedModelID:   "small",
		SuggestedModelName: "Small Model",
		CostSavedInput:     2.5,
		CostSavedOutput:    12.0,
		CO2Saved:           1.2,
		ComplexityLevel:    3,
		QueryPreview:       "what is the capital of",
		UserID:             userID,
	}
}

func TestRecordAssignsIDs(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	first, err := l.Record(ctx, sampleRecord("u1"))
	require.NoError(t, err)
	second, err := l.Record(ctx, sampleRecord("u1"))
	require.NoError(t, err)

	assert.Greater(t, second, first)
}

func TestTotalsAggregation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Record(ctx, sampleRecord("u1"))
	require.NoError(t, err)
	_, err = l.Record(ctx, sampleRecord("u1"))
	require.NoError(t, err)
	_, err = l.Record(ctx, sampleRecord("other"))
	require.NoError(t, err)

	totals, err := l.Totals(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, totals.TotalSwitches)
	assert.InDelta(t, 5.0, totals.TotalCostInput, 1e-9)
	assert.InDelta(t, 24.0, totals.TotalCostOutput, 1e-9)
	assert.InDelta(t, 29.0, totals.TotalCost, 1e-9)
	assert.InDelta(t, 2.4, totals.TotalCO2, 1e-9)
}

func TestTotalsUnknownUserIsZero(t *testing.T) {
	l := newTestLedger(t)

	totals, err := l.Totals(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, Totals{}, totals)
}

func TestDefaultUserFallback(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// Empty user on write and read both resolve to the default user.
	_, err := l.Record(ctx, sampleRecord(""))
	require.NoError(t, err)

	totals, err := l.Totals(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, totals.TotalSwitches)

	totals, err = l.Totals(ctx, DefaultUserID)
	require.NoError(t, err)
	assert.Equal(t, 1, totals.TotalSwitches)
}

func TestByPeriod(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Record(ctx, sampleRecord("u1"))
	require.NoError(t, err)
	_, err = l.Record(ctx, sampleRecord("u1"))
	require.NoError(t, err)

	daily, err := l.ByPeriod(ctx, 7, "u1")
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, 2, daily[0].DailySwitches)
	assert.InDelta(t, 29.0, daily[0].DailyCostSaved, 1e-9)
	assert.InDelta(t, 2.4, daily[0].DailyCO2Saved, 1e-9)
}

func TestByPeriodEmptyHistory(t *testing.T) {
	l := newTestLedger(t)

	daily, err := l.ByPeriod(context.Background(), 30, "nobody")
	require.NoError(t, err)
	assert.Empty(t, daily)
}

func TestSwitchStatsGrouping(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	rec := sampleRecord("u1")
	_, err := l.Record(ctx, rec)
	require.NoError(t, err)
	_, err = l.Record(ctx, rec)
	require.NoError(t, err)

	other := rec
	other.OriginalModelName = "Other Model"
	_, err = l.Record(ctx, other)
	require.NoError(t, err)

	stats, err := l.SwitchStats(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, stats, 2)

	// Most frequent pair first.
	assert.Equal(t, "Big Model", stats[0].OriginalModelName)
	assert.Equal(t, 2, stats[0].SwitchCount)
	assert.InDelta(t, 29.0, stats[0].TotalCostSaved, 1e-9)
	assert.Equal(t, 1, stats[1].SwitchCount)
}

func TestOpenEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
