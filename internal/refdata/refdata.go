// Package refdata holds the read-only reference data bundled with the binary:
// the scheme catalog, mock market prices, mock weather and agronomy lists.
package refdata

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/farm-connect/internal/domain"
)

//go:embed data/*.yaml
var files embed.FS

// Catalog is the loaded reference data. It has no mutation API; accessors
// return copies so callers cannot alter the shared lists.
type Catalog struct {
	central           []domain.Scheme
	state             []domain.Scheme
	prices            []domain.MarketPrice
	weather           domain.Weather
	soilTypes         []string
	financialNeeds    []domain.FinancialNeed
	financialProducts []domain.FinancialProduct
}

type schemeFile struct {
	Central []domain.Scheme `yaml:"central"`
	State   []domain.Scheme `yaml:"state"`
}

type agronomyFile struct {
	SoilTypes         []string                  `yaml:"soil_types"`
	FinancialNeeds    []domain.FinancialNeed    `yaml:"financial_needs"`
	FinancialProducts []domain.FinancialProduct `yaml:"financial_products"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the catalog loaded once per process.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Load()
	})
	return defaultCatalog, defaultErr
}

// Load parses the embedded data files.
func Load() (*Catalog, error) {
	var schemes schemeFile
	if err := decodeFile("data/schemes.yaml", &schemes); err != nil {
		return nil, err
	}
	var prices []domain.MarketPrice
	if err := decodeFile("data/prices.yaml", &prices); err != nil {
		return nil, err
	}
	var weather domain.Weather
	if err := decodeFile("data/weather.yaml", &weather); err != nil {
		return nil, err
	}
	var agronomy agronomyFile
	if err := decodeFile("data/agronomy.yaml", &agronomy); err != nil {
		return nil, err
	}

	for i := range schemes.Central {
		schemes.Central[i].Level = domain.SchemeCentral
	}
	for i := range schemes.State {
		schemes.State[i].Level = domain.SchemeState
	}

	return &Catalog{
		central:           schemes.Central,
		state:             schemes.State,
		prices:            prices,
		weather:           weather,
		soilTypes:         agronomy.SoilTypes,
		financialNeeds:    agronomy.FinancialNeeds,
		financialProducts: agronomy.FinancialProducts,
	}, nil
}

func decodeFile(name string, out any) error {
	data, err := files.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// CentralSchemes returns central schemes whose name, benefit or eligibility
// contains query, ignoring case. An empty query returns every scheme.
func (c *Catalog) CentralSchemes(query string) []domain.Scheme {
	return filter(c.central, query, schemeText)
}

// StateSchemes is CentralSchemes for state schemes.
func (c *Catalog) StateSchemes(query string) []domain.Scheme {
	return filter(c.state, query, schemeText)
}

// Schemes returns the filtered central schemes followed by the filtered state schemes.
func (c *Catalog) Schemes(query string) []domain.Scheme {
	return append(c.CentralSchemes(query), c.StateSchemes(query)...)
}

// Prices returns prices whose crop, variety or market contains query,
// ignoring case. An empty query returns every price.
func (c *Catalog) Prices(query string) []domain.MarketPrice {
	return filter(c.prices, query, func(p domain.MarketPrice) []string {
		return []string{p.Crop, p.Variety, p.Market}
	})
}

// Crops returns the distinct crop names of the price list in first-seen order.
func (c *Catalog) Crops() []string {
	seen := make(map[string]struct{}, len(c.prices))
	crops := make([]string, 0, len(c.prices))
	for _, p := range c.prices {
		if _, ok := seen[p.Crop]; ok {
			continue
		}
		seen[p.Crop] = struct{}{}
		crops = append(crops, p.Crop)
	}
	return crops
}

// Weather returns the mock report for location. The report is the same for
// every location; ok is false when location is blank.
func (c *Catalog) Weather(location string) (domain.Weather, bool) {
	location = strings.TrimSpace(location)
	if location == "" {
		return domain.Weather{}, false
	}
	w := c.weather
	w.Location = location
	w.Forecast = append([]domain.DailyForecast(nil), c.weather.Forecast...)
	return w, true
}

// SoilTypes returns the soil types offered by the crop recommendation panel.
func (c *Catalog) SoilTypes() []string {
	return append([]string(nil), c.soilTypes...)
}

// FinancialNeeds returns the key financial needs.
func (c *Catalog) FinancialNeeds() []domain.FinancialNeed {
	return append([]domain.FinancialNeed(nil), c.financialNeeds...)
}

// FinancialNeedTitles returns the titles of FinancialNeeds in order.
func (c *Catalog) FinancialNeedTitles() []string {
	titles := make([]string, len(c.financialNeeds))
	for i, n := range c.financialNeeds {
		titles[i] = n.Title
	}
	return titles
}

// FinancialProducts returns the need to product mapping.
func (c *Catalog) FinancialProducts() []domain.FinancialProduct {
	return append([]domain.FinancialProduct(nil), c.financialProducts...)
}

func schemeText(s domain.Scheme) []string {
	return []string{s.Name, s.Benefit, s.Eligibility}
}

func filter[T any](items []T, query string, fields func(T) []string) []T {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]T, 0, len(items))
	for _, item := range items {
		if q == "" || matches(fields(item), q) {
			out = append(out, item)
		}
	}
	return out
}

func matches(fields []string, q string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
