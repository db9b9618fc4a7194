package criteria

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"compara/server/config"
	"compara/server/internal/models"
)

// ValidationError reports a subject record that cannot anchor a comparable
// search. Callers must not proceed with the analysis when it is returned.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("insufficient search criteria: missing %s", strings.Join(e.Missing, ", "))
}

// LocationHint carries an externally resolved location for subjects whose own
// record lacks coordinates or a usable area hierarchy.
type LocationHint struct {
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Urbanization string   `json:"urbanization"`
	Suburb       string   `json:"suburb"`
	City         string   `json:"city"`
}

// Normalizer converts a raw subject record into immutable search criteria.
type Normalizer struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func NewNormalizer(cfg *config.Config, logger *logrus.Logger) *Normalizer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Normalizer{cfg: cfg, logger: logger}
}

// Normalize derives the criteria for one analysis run. It has no side
// effects; the returned value is never mutated afterward.
func (n *Normalizer) Normalize(subject *models.PropertyRecord, hint *LocationHint) (*models.SearchCriteria, error) {
	listingType := n.resolveListingType(subject)
	price := subject.PriceFor(listingType)

	c := &models.SearchCriteria{
		ListingType:  listingType,
		PriceField:   listingType.PriceField(),
		PropertyType: subject.PropertyType,
		Latitude:     subject.Latitude,
		Longitude:    subject.Longitude,
		Urbanization: subject.Urbanization,
		Suburb:       subject.Suburb,
		City:         subject.City,
		BuildArea:    subject.BuildArea,
		Bedrooms:     subject.Bedrooms,
		Price:        price,
		RadiusKm:     n.cfg.Search.RadiusKm,
	}

	if hint != nil {
		if !c.HasCoordinates() && hint.Latitude != nil && hint.Longitude != nil {
			c.Latitude = hint.Latitude
			c.Longitude = hint.Longitude
		}
		if c.Urbanization == "" {
			c.Urbanization = hint.Urbanization
		}
		if c.Suburb == "" {
			c.Suburb = hint.Suburb
		}
		if c.City == "" {
			c.City = hint.City
		}
	}

	if price > 0 {
		c.MinPrice, c.MaxPrice = n.priceBand(listingType, price)
	}

	if err := n.validate(c); err != nil {
		return nil, err
	}

	n.logger.WithFields(logrus.Fields{
		"listing_type": listingType,
		"area":         c.AreaName(),
		"price_band":   fmt.Sprintf("%.0f-%.0f", c.MinPrice, c.MaxPrice),
	}).Debug("Normalized search criteria")

	return c, nil
}

// resolveListingType picks the listing type by priority: explicit flags, then
// a type-specific non-zero price, then a magnitude guess on whatever price is
// present.
func (n *Normalizer) resolveListingType(subject *models.PropertyRecord) models.ListingType {
	switch {
	case subject.ForSale:
		return models.ListingSale
	case subject.ForLongTerm:
		return models.ListingLongTerm
	case subject.ForShortTerm:
		return models.ListingShortTerm
	}

	nonZero := 0
	var typed models.ListingType
	if subject.SalePrice > 0 {
		nonZero++
		typed = models.ListingSale
	}
	if subject.MonthlyPrice > 0 {
		nonZero++
		typed = models.ListingLongTerm
	}
	if subject.WeeklyPrice > 0 {
		nonZero++
		typed = models.ListingShortTerm
	}
	if nonZero == 1 {
		return typed
	}

	price := subject.SalePrice
	if subject.MonthlyPrice > price {
		price = subject.MonthlyPrice
	}
	if subject.WeeklyPrice > price {
		price = subject.WeeklyPrice
	}

	switch {
	case price >= n.cfg.Search.SalePriceFloor:
		return models.ListingSale
	case price >= n.cfg.Search.LongTermPriceFloor:
		return models.ListingLongTerm
	default:
		return models.ListingShortTerm
	}
}

// priceBand computes the min/max band for the authoritative price. Sales
// above the luxury threshold get the asymmetric widened band; rentals get a
// symmetric band per listing type.
func (n *Normalizer) priceBand(t models.ListingType, price float64) (float64, float64) {
	s := n.cfg.Search
	switch t {
	case models.ListingSale:
		if price > s.LuxuryThreshold {
			return price * s.LuxuryBandFloor, price * s.LuxuryBandCeiling
		}
		return price * (1 - s.SaleBandRatio), price * (1 + s.SaleBandRatio)
	case models.ListingLongTerm:
		return price * (1 - s.LongTermBandRatio), price * (1 + s.LongTermBandRatio)
	default:
		return price * (1 - s.ShortTermBandRatio), price * (1 + s.ShortTermBandRatio)
	}
}

func (n *Normalizer) validate(c *models.SearchCriteria) error {
	var missing []string

	hasLocation := c.HasCoordinates() || c.Urbanization != "" || c.Suburb != "" || c.City != ""
	if !hasLocation {
		missing = append(missing, "location (coordinates or area)")
	}
	if c.PropertyType == "" {
		missing = append(missing, "property type")
	}
	if c.BuildArea <= 0 && c.Bedrooms <= 0 && c.Price <= 0 {
		missing = append(missing, "size, bedroom or price signal")
	}

	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}
