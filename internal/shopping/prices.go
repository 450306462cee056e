package shopping

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var defaultPricesYAML []byte

// PriceTable is a static ingredient price lookup.
type PriceTable struct {
	Default float64            `yaml:"default"`
	Prices  map[string]float64 `yaml:"prices"`
}

// ParsePriceTable reads a price table from YAML. Keys are lower-cased.
func ParsePriceTable(data []byte) (PriceTable, error) {
	var raw PriceTable
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return PriceTable{}, fmt.Errorf("failed to parse price table: %w", err)
	}
	if raw.Default < 0 {
		return PriceTable{}, fmt.Errorf("default price must not be negative")
	}
	table := PriceTable{Default: raw.Default, Prices: make(map[string]float64, len(raw.Prices))}
	for name, price := range raw.Prices {
		if price < 0 {
			return PriceTable{}, fmt.Errorf("price for %q must not be negative", name)
		}
		table.Prices[normalizeName(name)] = price
	}
	return table, nil
}

// DefaultPriceTable returns the built-in price table.
func DefaultPriceTable() PriceTable {
	table, err := ParsePriceTable(defaultPricesYAML)
	if err != nil {
		panic(err)
	}
	return table
}

// UnitPrice returns the price for name, or the default when unknown.
func (t PriceTable) UnitPrice(name string) float64 {
	if p, ok := t.Prices[normalizeName(name)]; ok {
		return p
	}
	return t.Default
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
