package arbitrage

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/freightarb/internal/domain"
)

var minVolatility = decimal.RequireFromString("0.2")

// MinVolatility is the exclusive lower bound a route's volatility must exceed
// to be reported as an opportunity.
func MinVolatility() decimal.Decimal { return minVolatility }

// MinSampleCount is the fewest offers a route needs before it is considered.
const MinSampleCount = 2

const (
	pricePlaces      = 2
	volatilityPlaces = 3
)

// routeGroup collects prices for one route in arrival order.
type routeGroup struct {
	route  string
	prices []decimal.Decimal
}

// groupByRoute buckets records by route, keeping routes in first-seen order.
func groupByRoute(records []domain.FreightRecord) []*routeGroup {
	index := make(map[string]*routeGroup)
	var groups []*routeGroup
	for _, r := range records {
		route := r.Route()
		g, ok := index[route]
		if !ok {
			g = &routeGroup{route: route}
			index[route] = g
			groups = append(groups, g)
		}
		g.prices = append(g.prices, r.Price)
	}
	return groups
}

// statistics computes the rounded route statistics for one group. Volatility
// is derived from the already rounded mean, min and max; a zero mean is
// treated as one.
func (g *routeGroup) statistics() domain.RouteStatistics {
	lo, hi := g.prices[0], g.prices[0]
	sum := decimal.Zero
	for _, p := range g.prices {
		sum = sum.Add(p)
		lo = decimal.Min(lo, p)
		hi = decimal.Max(hi, p)
	}
	count := len(g.prices)
	mean := sum.Div(decimal.NewFromInt(int64(count))).RoundBank(pricePlaces)
	lo = lo.RoundBank(pricePlaces)
	hi = hi.RoundBank(pricePlaces)

	denom := mean
	if denom.IsZero() {
		denom = decimal.NewFromInt(1)
	}
	return domain.RouteStatistics{
		Route:           g.route,
		PriceMean:       mean,
		PriceMin:        lo,
		PriceMax:        hi,
		PriceCount:      count,
		PriceVolatility: hi.Sub(lo).Div(denom).RoundBank(volatilityPlaces),
	}
}

// ComputeStatistics returns statistics for every route present in records,
// in the order routes were first seen.
func ComputeStatistics(records []domain.FreightRecord) []domain.RouteStatistics {
	groups := groupByRoute(records)
	out := make([]domain.RouteStatistics, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.statistics())
	}
	return out
}

// Detect reports routes whose volatility exceeds MinVolatility() and which have
// at least MinSampleCount offers, most volatile first. Routes with equal
// volatility keep their first-seen order.
func Detect(records []domain.FreightRecord) []domain.RouteStatistics {
	out := make([]domain.RouteStatistics, 0)
	for _, s := range ComputeStatistics(records) {
		if s.PriceCount >= MinSampleCount && s.PriceVolatility.GreaterThan(minVolatility) {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.RouteStatistics) int {
		return b.PriceVolatility.Cmp(a.PriceVolatility)
	})
	return out
}

// RouteStatistics returns the statistics of a single route. The code is
// matched case-insensitively against "ORIGIN-DESTINATION".
func RouteStatistics(records []domain.FreightRecord, code string) (domain.RouteStatistics, error) {
	route := strings.ToUpper(strings.TrimSpace(code))
	for _, g := range groupByRoute(records) {
		if g.route == route {
			return g.statistics(), nil
		}
	}
	return domain.RouteStatistics{}, fmt.Errorf("arbitrage: route %s: %w", route, domain.ErrNotFound)
}

// FilterRoute returns the records on the given route in their original order.
func FilterRoute(records []domain.FreightRecord, code string) []domain.FreightRecord {
	route := strings.ToUpper(strings.TrimSpace(code))
	out := make([]domain.FreightRecord, 0)
	for _, r := range records {
		if r.Route() == route {
			out = append(out, r)
		}
	}
	return out
}

// Summarize computes the drill-down statistics of a route from its records.
// Unlike the detector statistics, spread and volatility use unrounded prices.
func Summarize(records []domain.FreightRecord) domain.RouteSummary {
	if len(records) == 0 {
		return domain.RouteSummary{}
	}
	lo, hi := records[0].Price, records[0].Price
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(r.Price)
		lo = decimal.Min(lo, r.Price)
		hi = decimal.Max(hi, r.Price)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(records))))
	spread := hi.Sub(lo)

	vol := decimal.Zero
	if !mean.IsZero() {
		vol = spread.Div(mean).RoundBank(volatilityPlaces)
	}
	return domain.RouteSummary{
		Count:       len(records),
		MinPrice:    lo,
		MaxPrice:    hi,
		AvgPrice:    mean.RoundBank(pricePlaces),
		PriceSpread: spread,
		Volatility:  vol,
	}
}

// UniqueRoutes counts the distinct routes among records.
func UniqueRoutes(records []domain.FreightRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.Route()] = struct{}{}
	}
	return len(seen)
}

// AveragePrice is the mean price of records rounded to two places, or zero
// when there are none.
func AveragePrice(records []domain.FreightRecord) decimal.Decimal {
	if len(records) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(r.Price)
	}
	return sum.Div(decimal.NewFromInt(int64(len(records)))).RoundBank(pricePlaces)
}

// AverageVolatility is the mean volatility of opps rounded to three places,
// or zero when there are none.
func AverageVolatility(opps []domain.RouteStatistics) decimal.Decimal {
	if len(opps) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, o := range opps {
		sum = sum.Add(o.PriceVolatility)
	}
	return sum.Div(decimal.NewFromInt(int64(len(opps)))).RoundBank(volatilityPlaces)
}
