package store

import (
	"database/sql"
	"fmt"
	"math"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/sirupsen/logrus"

	"compara/server/internal/criteria"
	"compara/server/internal/models"
)

// CandidateStore answers comparable searches against the normalized property
// table. Retrieval filters on the criteria's hard signals and radius; the
// similarity ranking itself happens downstream.
type CandidateStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewCandidateStore(dbPath string, logger *logrus.Logger) (*CandidateStore, error) {
	if logger == nil {
		logger = logrus.New()
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	s := &CandidateStore{db: db, logger: logger}
	if err := s.RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run candidate store migrations: %w", err)
	}
	return s, nil
}

// NewCandidateStoreWithDB wraps an existing connection, sharing it with the
// maturity store.
func NewCandidateStoreWithDB(db *sql.DB, logger *logrus.Logger) *CandidateStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &CandidateStore{db: db, logger: logger}
}

func (s *CandidateStore) RunMigrations() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS properties (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference TEXT NOT NULL DEFAULT '',
			for_sale INTEGER NOT NULL DEFAULT 0,
			for_long_term INTEGER NOT NULL DEFAULT 0,
			for_short_term INTEGER NOT NULL DEFAULT 0,
			sale_price REAL NOT NULL DEFAULT 0,
			monthly_price REAL NOT NULL DEFAULT 0,
			weekly_price REAL NOT NULL DEFAULT 0,
			property_type TEXT NOT NULL DEFAULT '',
			latitude REAL,
			longitude REAL,
			urbanization TEXT NOT NULL DEFAULT '',
			suburb TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			build_area REAL NOT NULL DEFAULT 0,
			plot_area REAL NOT NULL DEFAULT 0,
			bedrooms INTEGER NOT NULL DEFAULT 0,
			bathrooms INTEGER NOT NULL DEFAULT 0,
			condition INTEGER NOT NULL DEFAULT 0,
			orientation TEXT NOT NULL DEFAULT '',
			year_built INTEGER,
			features TEXT NOT NULL DEFAULT '',
			photo_count INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_properties_coordinates
		ON properties(latitude, longitude);
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_properties_type_price
		ON properties(property_type, sale_price, monthly_price, weekly_price);
	`)
	return err
}

// Query returns the candidate records matching the criteria, each with its
// precomputed distance when the search had coordinates. Retrieval favours the
// fixed radius; it may return fewer than the display target.
func (s *CandidateStore) Query(c *models.SearchCriteria) ([]models.Candidate, error) {
	query, args, err := buildCandidateQuery(c)
	if err != nil {
		return nil, fmt.Errorf("failed to build candidate query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("candidate query failed: %w", err)
	}
	defer rows.Close()

	var candidates []models.Candidate
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}

		cand := models.Candidate{Property: p, DistanceKm: -1}
		if c.HasCoordinates() && p.HasCoordinates() {
			subject := orb.Point{*c.Longitude, *c.Latitude}
			point := orb.Point{*p.Longitude, *p.Latitude}
			cand.DistanceKm = geo.Distance(subject, point) / 1000
			if cand.DistanceKm > c.RadiusKm {
				continue
			}
		}
		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"area":       c.AreaName(),
		"candidates": len(candidates),
	}).Debug("Retrieved candidate pool")

	return candidates, nil
}

// buildCandidateQuery assembles the dynamic WHERE clause: listing type,
// price band, property type, and either a bounding box around the subject or
// the area hierarchy as a location fallback.
func buildCandidateQuery(c *models.SearchCriteria) (string, []interface{}, error) {
	b := sq.Select(
		"id", "reference", "for_sale", "for_long_term", "for_short_term",
		"sale_price", "monthly_price", "weekly_price", "property_type",
		"latitude", "longitude", "urbanization", "suburb", "city",
		"build_area", "plot_area", "bedrooms", "bathrooms", "condition",
		"orientation", "year_built", "features", "photo_count", "updated_at",
	).From("properties")

	switch c.ListingType {
	case models.ListingLongTerm:
		b = b.Where(sq.Eq{"for_long_term": 1})
	case models.ListingShortTerm:
		b = b.Where(sq.Eq{"for_short_term": 1})
	default:
		b = b.Where(sq.Eq{"for_sale": 1})
	}

	if c.PropertyType != "" {
		b = b.Where(sq.Eq{"property_type": c.PropertyType})
	}
	if c.MinPrice > 0 && c.MaxPrice > 0 {
		b = b.Where(sq.And{
			sq.GtOrEq{c.PriceField: c.MinPrice},
			sq.LtOrEq{c.PriceField: c.MaxPrice},
		})
	}

	if c.HasCoordinates() {
		// Coarse bounding box; exact radius filtering happens after scan.
		minLat, maxLat, minLon, maxLon := boundingBox(*c.Latitude, *c.Longitude, c.RadiusKm)
		b = b.Where(sq.Or{
			sq.And{
				sq.GtOrEq{"latitude": minLat},
				sq.LtOrEq{"latitude": maxLat},
				sq.GtOrEq{"longitude": minLon},
				sq.LtOrEq{"longitude": maxLon},
			},
			sq.Eq{"latitude": nil},
		})
	} else {
		var areas sq.Or
		if c.Urbanization != "" {
			areas = append(areas, sq.Eq{"urbanization": c.Urbanization})
		}
		if c.Suburb != "" {
			areas = append(areas, sq.Eq{"suburb": c.Suburb})
		}
		if c.City != "" {
			areas = append(areas, sq.Eq{"city": c.City})
		}
		if len(areas) > 0 {
			b = b.Where(areas)
		}
	}

	return b.OrderBy("updated_at DESC").ToSql()
}

// boundingBox approximates a radius in degrees around a coordinate. One
// degree of latitude is ~111 km; longitude degrees shrink with the cosine of
// the latitude.
func boundingBox(lat, lon, radiusKm float64) (minLat, maxLat, minLon, maxLon float64) {
	latDelta := radiusKm / 111.0
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 0.01 {
		cos = 0.01
	}
	lonDelta := radiusKm / (111.0 * cos)
	return lat - latDelta, lat + latDelta, lon - lonDelta, lon + lonDelta
}

func scanProperty(rows *sql.Rows) (models.PropertyRecord, error) {
	var p models.PropertyRecord
	var features string
	err := rows.Scan(
		&p.ID, &p.Reference, &p.ForSale, &p.ForLongTerm, &p.ForShortTerm,
		&p.SalePrice, &p.MonthlyPrice, &p.WeeklyPrice, &p.PropertyType,
		&p.Latitude, &p.Longitude, &p.Urbanization, &p.Suburb, &p.City,
		&p.BuildArea, &p.PlotArea, &p.Bedrooms, &p.Bathrooms, &p.Condition,
		&p.Orientation, &p.YearBuilt, &features, &p.PhotoCount, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.Features = splitFeatures(features)
	return p, nil
}

func splitFeatures(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	features := make([]string, 0, len(parts))
	for _, part := range parts {
		if f := criteria.NormalizeArea(part); f != "" {
			features = append(features, f)
		}
	}
	return features
}

// DB exposes the underlying connection for stores sharing the same file.
func (s *CandidateStore) DB() *sql.DB { return s.db }

func (s *CandidateStore) Close() error { return s.db.Close() }
