package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rightsledger/pkg/domain-errors"
)

func TestParsePercentage(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"1", false},
		{"0.4", false},
		{"0.0001", false},
		{"0", true},
		{"-0.1", true},
		{"1.0001", true},
		{"0.00001", true},
		{"abc", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParsePercentage(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestExceedsWholeUsesEpsilon(t *testing.T) {
	assert.False(t, ExceedsWhole(decimal.RequireFromString("1.0000005")))
	assert.True(t, ExceedsWhole(decimal.RequireFromString("1.0001")))
}

func TestNormalizeTerritory(t *testing.T) {
	tests := map[string]string{
		"":              TerritoryWorldwide,
		"Worldwide":     TerritoryWorldwide,
		"us":            "US",
		"fr, de ,FR":    "DE,FR",
		"eu":            "EU",
		"US,worldwide":  TerritoryWorldwide,
		" dach , gb  ": "DACH,GB",
	}
	for in, want := range tests {
		got, err := NormalizeTerritory(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := NormalizeTerritory("Atlantis")
	assert.Error(t, err)
}

func TestTerritoriesOverlap(t *testing.T) {
	assert.True(t, TerritoriesOverlap(TerritoryWorldwide, "US"))
	assert.True(t, TerritoriesOverlap("EU", "DE,US"))
	assert.True(t, TerritoriesOverlap("DACH", "CH"))
	assert.False(t, TerritoriesOverlap("NA", "EU"))
	assert.False(t, TerritoriesOverlap("GB", "FR"))

	assert.True(t, TerritoryCovers(TerritoryWorldwide, RestOfWorld))
	assert.False(t, TerritoryCovers("EU", RestOfWorld))
	assert.True(t, TerritoryCovers("EU", "FR"))
}

func TestRecordStatusTransitions(t *testing.T) {
	assert.True(t, RecordPending.CanTransitionTo(RecordActive))
	assert.True(t, RecordActive.CanTransitionTo(RecordTransferred))
	assert.True(t, RecordDisputed.CanTransitionTo(RecordActive))
	assert.False(t, RecordTransferred.CanTransitionTo(RecordActive))
	assert.False(t, RecordExpired.CanTransitionTo(RecordActive))
	assert.True(t, RecordExpired.IsTerminal())
}

func TestTransferStatusIsMonotonic(t *testing.T) {
	for _, next := range []TransferStatus{TransferExecuted, TransferCancelled, TransferDisputed} {
		assert.True(t, TransferPending.CanTransitionTo(next))
		for _, from := range []TransferStatus{TransferExecuted, TransferCancelled, TransferDisputed} {
			assert.False(t, from.CanTransitionTo(next), "%s -> %s", from, next)
		}
	}
}

func TestTransferCancelAfterExecute(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := &OwnershipTransfer{Status: TransferPending, Percentage: decimal.RequireFromString("0.4")}
	require.NoError(t, tr.MarkExecuted("rec-2", decimal.NewFromInt(1), now))

	err := tr.Cancel(now)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	assert.Equal(t, TransferExecuted, tr.Status)
}

func TestRecordConsume(t *testing.T) {
	now := time.Now()
	r := &OwnershipRecord{Status: RecordActive, Percentage: decimal.RequireFromString("0.6")}

	require.NoError(t, r.Consume(decimal.RequireFromString("0.2"), now))
	assert.True(t, r.Percentage.Equal(decimal.RequireFromString("0.4")))
	assert.Equal(t, RecordActive, r.Status)

	require.NoError(t, r.Consume(decimal.RequireFromString("0.4"), now))
	assert.True(t, r.Percentage.IsZero())
	assert.Equal(t, RecordTransferred, r.Status)

	err := r.Consume(decimal.RequireFromString("0.1"), now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestWindowOverlaps(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }
	exp := func(d int) *time.Time { v := day(d); return &v }

	a := &OwnershipRecord{EffectiveDate: day(1), ExpirationDate: exp(10)}
	b := &OwnershipRecord{EffectiveDate: day(10)}
	c := &OwnershipRecord{EffectiveDate: day(5), ExpirationDate: exp(6)}
	open := &OwnershipRecord{EffectiveDate: day(2)}

	assert.False(t, a.WindowOverlaps(b), "half-open windows touching at the boundary")
	assert.True(t, a.WindowOverlaps(c))
	assert.True(t, open.WindowOverlaps(b))
	assert.True(t, c.WindowOverlaps(open))
}

func TestConflictKeyIsOrderIndependent(t *testing.T) {
	k1, ids := ConflictKey(ConflictPercentageMismatch, []string{"b", "a", "b"})
	k2, _ := ConflictKey(ConflictPercentageMismatch, []string{"a", "b"})

	assert.Equal(t, k1, k2)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestNewOwnershipRecordDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scope := Scope{Subject: Subject{Type: SubjectTrack, ID: "trackA"}, RightsCategory: RightsMaster}

	rec, err := NewOwnershipRecord("r1", scope, "U1", One, RecordActive, time.Time{}, nil, now)
	require.NoError(t, err)
	assert.Equal(t, TerritoryWorldwide, rec.Territory)
	assert.Equal(t, now, rec.EffectiveDate)

	_, err = NewOwnershipRecord("r2", scope, "U1", One, RecordTransferred, now, nil, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}
