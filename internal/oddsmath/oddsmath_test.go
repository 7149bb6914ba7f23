package oddsmath_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsync/internal/domain"
	"github.com/alanyoungcy/oddsync/internal/oddsmath"
)

func TestAmericanToDecimal(t *testing.T) {
	tests := []struct {
		american int
		want     float64
	}{
		{100, 2.0},
		{150, 2.5},
		{-110, 1.909090909},
		{-200, 1.5},
	}
	for _, tt := range tests {
		got, err := oddsmath.AmericanToDecimal(tt.american)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-6, "american %d", tt.american)
	}

	_, err := oddsmath.AmericanToDecimal(0)
	assert.ErrorIs(t, err, oddsmath.ErrZeroAmerican)
}

func TestDecimalToAmerican(t *testing.T) {
	tests := []struct {
		decimal float64
		want    int
	}{
		{2.0, 100},
		{2.5, 150},
		{1.909, -110},
		{1.5, -200},
	}
	for _, tt := range tests {
		got, err := oddsmath.DecimalToAmerican(tt.decimal)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "decimal %v", tt.decimal)
	}

	_, err := oddsmath.DecimalToAmerican(0.5)
	assert.ErrorIs(t, err, oddsmath.ErrDecimalRange)
}

func TestCalculateEdge(t *testing.T) {
	edge, err := oddsmath.CalculateEdge(0.55, 0.50)
	require.NoError(t, err)
	assert.InDelta(t, 0.10, edge, 1e-9)

	_, err = oddsmath.CalculateEdge(1.2, 0.5)
	assert.Error(t, err)
}

func TestNormalizeFillsDerivedFields(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	nv := 0.5
	rec := domain.OutcomeRecord{
		EventID: "evt", MarketKey: "h2h", BookKey: "fanduel", OutcomeName: "Lakers",
		Price:            150,
		NoVigProbability: &nv,
	}

	require.NoError(t, oddsmath.Normalize(&rec, now))
	assert.InDelta(t, 2.5, rec.DecimalOdds, 1e-9)
	assert.InDelta(t, 0.4, rec.ImpliedProbability, 1e-9)
	require.NotNil(t, rec.FairPrice)
	assert.Equal(t, 100, *rec.FairPrice)
	assert.Equal(t, now, rec.ReceivedAt)
	assert.Equal(t, now, rec.VendorLastUpdate)
}

func TestNormalizeKeepsProducerValues(t *testing.T) {
	now := time.Now()
	vendor := now.Add(-3 * time.Second)
	rec := domain.OutcomeRecord{
		EventID: "evt", MarketKey: "h2h", BookKey: "dk", OutcomeName: "Celtics",
		Price: -110, DecimalOdds: 1.91, ImpliedProbability: 0.52,
		VendorLastUpdate: vendor,
	}

	require.NoError(t, oddsmath.Normalize(&rec, now))
	assert.Equal(t, 1.91, rec.DecimalOdds)
	assert.Equal(t, 0.52, rec.ImpliedProbability)
	assert.Equal(t, vendor, rec.VendorLastUpdate)
}

func TestNormalizeRejectsMissingIdentity(t *testing.T) {
	rec := domain.OutcomeRecord{EventID: "evt", MarketKey: "h2h", OutcomeName: "x", Price: 100}
	assert.Error(t, oddsmath.Normalize(&rec, time.Now()))
}
