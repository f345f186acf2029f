package transeu

import (
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/freightarb/internal/domain"
)

// Defaults applied when an offer omits the corresponding field.
const (
	DefaultCurrency     = "EUR"
	DefaultCapacityUnit = "t"
)

// flexString unmarshals from a JSON string or number so freight ids decode
// whichever way the API sends them.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// --------------------------------------------------------------------------
// OAuth2 DTOs
// --------------------------------------------------------------------------

// tokenResponse is the body returned by the token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   *int64 `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// --------------------------------------------------------------------------
// Freight proposal DTOs
// --------------------------------------------------------------------------

// APIProposal is one element of the freight-proposals listing. Every nested
// object is optional.
type APIProposal struct {
	Status  *string     `json:"status"`
	Freight *APIFreight `json:"freight"`
}

// APIFreight is the freight object nested in a proposal.
type APIFreight struct {
	ID          flexString          `json:"id"`
	Publication *APIPublication     `json:"publication"`
	Capacity    *APICapacity        `json:"capacity"`
	Spots       []APISpot           `json:"spots"`
	Distance    decimal.NullDecimal `json:"distance"`
}

// APIPublication carries the published price.
type APIPublication struct {
	Price *APIPrice `json:"price"`
}

// APIPrice is a monetary amount.
type APIPrice struct {
	Value    decimal.NullDecimal `json:"value"`
	Currency *string             `json:"currency"`
}

// APICapacity is the load capacity of a freight.
type APICapacity struct {
	Value    decimal.NullDecimal `json:"value"`
	UnitCode *string             `json:"unit_code"`
}

// APISpot is a loading or unloading stop.
type APISpot struct {
	Place *APIPlace `json:"place"`
}

// APIPlace wraps the address of a spot.
type APIPlace struct {
	Address *APIAddress `json:"address"`
}

// APIAddress is the postal address of a spot.
type APIAddress struct {
	Country  *string `json:"country"`
	Locality *string `json:"locality"`
}

// ToDomainFreight converts the proposal into a FreightRecord. ok is false when
// the proposal has fewer than two spots and therefore no route.
func (p APIProposal) ToDomainFreight() (rec domain.FreightRecord, ok bool) {
	if p.Freight == nil || len(p.Freight.Spots) < 2 {
		return domain.FreightRecord{}, false
	}
	f := p.Freight

	rec = domain.FreightRecord{
		FreightID:    string(f.ID),
		Status:       deref(p.Status, ""),
		Price:        decimal.Zero,
		Currency:     DefaultCurrency,
		Capacity:     decimal.Zero,
		CapacityUnit: DefaultCapacityUnit,
		DistanceKm:   orZero(f.Distance),
	}

	if f.Publication != nil && f.Publication.Price != nil {
		rec.Price = orZero(f.Publication.Price.Value)
		rec.Currency = deref(f.Publication.Price.Currency, DefaultCurrency)
	}
	if f.Capacity != nil {
		rec.Capacity = orZero(f.Capacity.Value)
		rec.CapacityUnit = deref(f.Capacity.UnitCode, DefaultCapacityUnit)
	}

	loading := f.Spots[0].address()
	unloading := f.Spots[len(f.Spots)-1].address()
	rec.LoadingCountry = strings.ToUpper(deref(loading.Country, ""))
	rec.LoadingCity = deref(loading.Locality, "")
	rec.UnloadingCountry = strings.ToUpper(deref(unloading.Country, ""))
	rec.UnloadingCity = deref(unloading.Locality, "")

	return rec, true
}

func (s APISpot) address() APIAddress {
	if s.Place == nil || s.Place.Address == nil {
		return APIAddress{}
	}
	return *s.Place.Address
}

func deref(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}
