package arbitrage

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/freightarb/internal/domain"
)

func rec(id, from, to string, price string) domain.FreightRecord {
	return domain.FreightRecord{
		FreightID:        id,
		Price:            decimal.RequireFromString(price),
		Currency:         "EUR",
		LoadingCountry:   from,
		UnloadingCountry: to,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestStatisticsVolatilityFormula(t *testing.T) {
	stats := ComputeStatistics([]domain.FreightRecord{
		rec("1", "PL", "DE", "100"),
		rec("2", "PL", "DE", "100"),
		rec("3", "PL", "DE", "150"),
	})
	require.Len(t, stats, 1)

	s := stats[0]
	assert.Equal(t, "PL-DE", s.Route)
	assert.Equal(t, 3, s.PriceCount)
	assertDec(t, "116.67", s.PriceMean)
	assertDec(t, "100", s.PriceMin)
	assertDec(t, "150", s.PriceMax)
	assertDec(t, "0.429", s.PriceVolatility)
	assertDec(t, "50", s.Spread())
}

func TestDetectThresholdIsStrict(t *testing.T) {
	opps := Detect([]domain.FreightRecord{
		rec("1", "CZ", "AT", "90"),
		rec("2", "CZ", "AT", "110"),
	})
	assert.Empty(t, opps)

	stats, err := RouteStatistics([]domain.FreightRecord{
		rec("1", "CZ", "AT", "90"),
		rec("2", "CZ", "AT", "110"),
	}, "cz-at")
	require.NoError(t, err)
	assertDec(t, "0.2", stats.PriceVolatility)
}

func TestThresholds(t *testing.T) {
	assertDec(t, "0.2", MinVolatility())
	assert.Equal(t, 2, MinSampleCount)
}

func TestDetectRequiresTwoSamples(t *testing.T) {
	opps := Detect([]domain.FreightRecord{rec("1", "FR", "BE", "1000")})
	assert.Empty(t, opps)
}

func TestDetectEmptyInput(t *testing.T) {
	opps := Detect(nil)
	assert.NotNil(t, opps)
	assert.Empty(t, opps)
}

func TestDetectEndToEnd(t *testing.T) {
	records := []domain.FreightRecord{
		rec("1", "PL", "DE", "80"),
		rec("2", "ES", "IT", "90"),
		rec("3", "PL", "DE", "100"),
		rec("4", "ES", "IT", "95"),
		rec("5", "PL", "DE", "160"),
	}

	opps := Detect(records)
	require.Len(t, opps, 1)
	assert.Equal(t, "PL-DE", opps[0].Route)
	assertDec(t, "113.33", opps[0].PriceMean)
	assertDec(t, "0.706", opps[0].PriceVolatility)

	esIT, err := RouteStatistics(records, "ES-IT")
	require.NoError(t, err)
	assertDec(t, "92.5", esIT.PriceMean)
	assertDec(t, "0.054", esIT.PriceVolatility)
}

func TestDetectSortsByVolatilityKeepingTies(t *testing.T) {
	records := []domain.FreightRecord{
		// 0.5
		rec("1", "AA", "BB", "75"),
		rec("2", "AA", "BB", "125"),
		// 1.0
		rec("3", "CC", "DD", "50"),
		rec("4", "CC", "DD", "150"),
		// 0.5, seen after AA-BB
		rec("5", "EE", "FF", "150"),
		rec("6", "EE", "FF", "250"),
	}

	opps := Detect(records)
	require.Len(t, opps, 3)
	assert.Equal(t, "CC-DD", opps[0].Route)
	assert.Equal(t, "AA-BB", opps[1].Route)
	assert.Equal(t, "EE-FF", opps[2].Route)
}

func TestStatisticsZeroMean(t *testing.T) {
	stats := ComputeStatistics([]domain.FreightRecord{
		rec("1", "PL", "CZ", "0"),
		rec("2", "PL", "CZ", "0"),
	})
	require.Len(t, stats, 1)
	assert.True(t, stats[0].PriceVolatility.IsZero())
}

func TestRouteStatisticsNotFound(t *testing.T) {
	_, err := RouteStatistics([]domain.FreightRecord{rec("1", "PL", "DE", "10")}, "DE-PL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestComputeStatisticsFirstSeenOrder(t *testing.T) {
	stats := ComputeStatistics([]domain.FreightRecord{
		rec("1", "SK", "HU", "10"),
		rec("2", "PL", "DE", "10"),
		rec("3", "SK", "HU", "20"),
	})
	require.Len(t, stats, 2)
	assert.Equal(t, "SK-HU", stats[0].Route)
	assert.Equal(t, "PL-DE", stats[1].Route)
	assert.Equal(t, 2, stats[0].PriceCount)
}

func TestSummarizeUsesRawPrices(t *testing.T) {
	records := FilterRoute([]domain.FreightRecord{
		rec("1", "PL", "DE", "80"),
		rec("2", "ES", "IT", "90"),
		rec("3", "PL", "DE", "100.005"),
		rec("4", "PL", "DE", "160"),
	}, "pl-de")
	require.Len(t, records, 3)
	assert.Equal(t, "1", records[0].FreightID)
	assert.Equal(t, "4", records[2].FreightID)

	sum := Summarize(records)
	assert.Equal(t, 3, sum.Count)
	assertDec(t, "80", sum.MinPrice)
	assertDec(t, "160", sum.MaxPrice)
	assertDec(t, "113.34", sum.AvgPrice)
	assertDec(t, "80", sum.PriceSpread)
	assertDec(t, "0.706", sum.Volatility)
}

func TestAggregates(t *testing.T) {
	records := []domain.FreightRecord{
		rec("1", "PL", "DE", "100"),
		rec("2", "PL", "DE", "200"),
		rec("3", "ES", "IT", "50.5"),
	}
	assert.Equal(t, 2, UniqueRoutes(records))
	assertDec(t, "116.83", AveragePrice(records))
	assert.True(t, AveragePrice(nil).IsZero())

	avg := AverageVolatility([]domain.RouteStatistics{
		{PriceVolatility: dec("0.706")},
		{PriceVolatility: dec("0.429")},
	})
	assertDec(t, "0.568", avg)
	assert.True(t, AverageVolatility(nil).IsZero())
}
