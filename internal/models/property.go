package models

import "time"

// ListingType distinguishes which price field on a property is authoritative.
type ListingType string

const (
	ListingSale      ListingType = "sale"
	ListingLongTerm  ListingType = "long_term"
	ListingShortTerm ListingType = "short_term"
)

// PriceField names the authoritative price column for a listing type.
func (t ListingType) PriceField() string {
	switch t {
	case ListingLongTerm:
		return "monthly_price"
	case ListingShortTerm:
		return "weekly_price"
	default:
		return "sale_price"
	}
}

type PropertyRecord struct {
	ID           int64       `json:"id"`
	Reference    string      `json:"reference"`
	ForSale      bool        `json:"for_sale"`
	ForLongTerm  bool        `json:"for_long_term"`
	ForShortTerm bool        `json:"for_short_term"`
	SalePrice    float64     `json:"sale_price"`
	MonthlyPrice float64     `json:"monthly_price"`
	WeeklyPrice  float64     `json:"weekly_price"`
	PropertyType string      `json:"property_type"`
	Latitude     *float64    `json:"latitude"`
	Longitude    *float64    `json:"longitude"`
	Urbanization string      `json:"urbanization"`
	Suburb       string      `json:"suburb"`
	City         string      `json:"city"`
	BuildArea    float64     `json:"build_area"`
	PlotArea     float64     `json:"plot_area"`
	Bedrooms     int         `json:"bedrooms"`
	Bathrooms    int         `json:"bathrooms"`
	Condition    int         `json:"condition"` // 1 (fixer-upper) .. 5 (immaculate)
	Orientation  string      `json:"orientation"`
	YearBuilt    *int        `json:"year_built"`
	Features     []string    `json:"features"`
	PhotoCount   int         `json:"photo_count"`
	UpdatedAt    time.Time   `json:"updated_at"`
	ListingType  ListingType `json:"listing_type,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (p *PropertyRecord) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// AreaName returns the most specific area name available, empty when none is.
func (p *PropertyRecord) AreaName() string {
	if p.Urbanization != "" {
		return p.Urbanization
	}
	if p.Suburb != "" {
		return p.Suburb
	}
	return p.City
}

// PriceFor returns the price matching the listing type. Sale prices and
// rental prices are never comparable to each other.
func (p *PropertyRecord) PriceFor(t ListingType) float64 {
	switch t {
	case ListingLongTerm:
		return p.MonthlyPrice
	case ListingShortTerm:
		return p.WeeklyPrice
	default:
		return p.SalePrice
	}
}

// SearchCriteria is derived once per analysis run and never mutated afterward.
type SearchCriteria struct {
	ListingType  ListingType `json:"listing_type"`
	PriceField   string      `json:"price_field"`
	PropertyType string      `json:"property_type"`
	Latitude     *float64    `json:"latitude"`
	Longitude    *float64    `json:"longitude"`
	Urbanization string      `json:"urbanization"`
	Suburb       string      `json:"suburb"`
	City         string      `json:"city"`
	BuildArea    float64     `json:"build_area"`
	Bedrooms     int         `json:"bedrooms"`
	Price        float64     `json:"price"`
	MinPrice     float64     `json:"min_price"`
	MaxPrice     float64     `json:"max_price"`
	RadiusKm     float64     `json:"radius_km"`
}

// HasCoordinates reports whether the criteria carry a usable coordinate pair.
func (c *SearchCriteria) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// AreaName returns the most specific search area name.
func (c *SearchCriteria) AreaName() string {
	if c.Urbanization != "" {
		return c.Urbanization
	}
	if c.Suburb != "" {
		return c.Suburb
	}
	return c.City
}

// Candidate is a retrieved record plus the distance the store precomputed
// when the search had coordinates. DistanceKm is negative when unknown.
type Candidate struct {
	Property   PropertyRecord `json:"property"`
	DistanceKm float64        `json:"distance_km"`
}
