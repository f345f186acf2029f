package domain

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// FreightRecord is one normalized freight offer. Route is derived from the
// two country codes and is never stored separately.
type FreightRecord struct {
	FreightID        string          `json:"freight_id"`
	Status           string          `json:"status"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	Capacity         decimal.Decimal `json:"capacity"`
	CapacityUnit     string          `json:"capacity_unit"`
	LoadingCountry   string          `json:"loading_country"`
	LoadingCity      string          `json:"loading_city"`
	UnloadingCountry string          `json:"unloading_country"`
	UnloadingCity    string          `json:"unloading_city"`
	DistanceKm       decimal.Decimal `json:"distance_km"`
}

// Route returns the lane code "ORIGIN-DESTINATION".
func (f FreightRecord) Route() string {
	return f.LoadingCountry + "-" + f.UnloadingCountry
}

// MarshalJSON adds the derived route to the encoded record.
func (f FreightRecord) MarshalJSON() ([]byte, error) {
	type plain FreightRecord
	return json.Marshal(struct {
		plain
		Route string `json:"route"`
	}{plain: plain(f), Route: f.Route()})
}

// RouteStatistics summarizes the prices observed on one route.
type RouteStatistics struct {
	Route           string          `json:"route"`
	PriceMean       decimal.Decimal `json:"price_mean"`
	PriceMin        decimal.Decimal `json:"price_min"`
	PriceMax        decimal.Decimal `json:"price_max"`
	PriceCount      int             `json:"price_count"`
	PriceVolatility decimal.Decimal `json:"price_volatility"`
}

// Spread is the distance between the highest and lowest price.
func (s RouteStatistics) Spread() decimal.Decimal {
	return s.PriceMax.Sub(s.PriceMin)
}

// ListingSummary aggregates a plain freight listing.
type ListingSummary struct {
	TotalFreights int             `json:"total_freights"`
	UniqueRoutes  int             `json:"unique_routes"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
}

// FreightListing is the result of a listing request. Freights holds at most
// the configured preview size while TotalCount counts everything fetched.
type FreightListing struct {
	Freights   []FreightRecord `json:"freights"`
	TotalCount int             `json:"total_count"`
	Summary    ListingSummary  `json:"summary"`
}

// AnalysisSummary aggregates one analysis run.
type AnalysisSummary struct {
	TotalFreights      int             `json:"total_freights"`
	UniqueRoutes       int             `json:"unique_routes"`
	OpportunitiesFound int             `json:"opportunities_found"`
	AvgVolatility      decimal.Decimal `json:"avg_volatility"`
}

// AnalysisReport is the outcome of one fetch, normalize and detect cycle.
type AnalysisReport struct {
	RunID         string            `json:"run_id"`
	GeneratedAt   time.Time         `json:"generated_at"`
	Opportunities []RouteStatistics `json:"opportunities"`
	Sample        []FreightRecord   `json:"freights_sample"`
	Summary       AnalysisSummary   `json:"summary"`
}

// RouteSummary is the drill-down view of a single route.
type RouteSummary struct {
	Count       int             `json:"count"`
	MinPrice    decimal.Decimal `json:"min_price"`
	MaxPrice    decimal.Decimal `json:"max_price"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	PriceSpread decimal.Decimal `json:"price_spread"`
	Volatility  decimal.Decimal `json:"volatility"`
}

// RouteDetail carries every fetched record on a route plus its statistics.
type RouteDetail struct {
	Route           string          `json:"route"`
	Freights        []FreightRecord `json:"freights"`
	Statistics      RouteSummary    `json:"statistics"`
	RouteStatistics RouteStatistics `json:"route_statistics"`
}

// StatusReport describes whether the marketplace integration can be used.
type StatusReport struct {
	Configured   bool      `json:"configured"`
	RequiredVars []string  `json:"required_vars"`
	HasToken     bool      `json:"has_token"`
	Timestamp    time.Time `json:"timestamp"`
}
