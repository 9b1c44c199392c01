package billing

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// PriceTable maps tool ids to their per-call cost in millicents.
// It is built once at startup and never mutated.
type PriceTable struct {
	prices map[string]int64
}

// DefaultPriceTable returns the built-in prices
func DefaultPriceTable() *PriceTable {
	return &PriceTable{prices: map[string]int64{
		"word-counter":      1000,
		"character-counter": 500,
		"json-formatter":    1000,
		"case-converter":    500,
		"color-converter":   500,
		"base64":            500,
		"hash-generator":    1000,
		"slug-generator":    500,
		"uuid-generator":    500,
	}}
}

// priceFile is the YAML layout of a price override file:
//
//	prices:
//	  word-counter: 2000
type priceFile struct {
	Prices map[string]int64 `yaml:"prices"`
}

// LoadPriceTable reads a YAML override file on top of the defaults.
// An empty path returns the defaults.
func LoadPriceTable(path string) (*PriceTable, error) {
	table := DefaultPriceTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read price file: %w", err)
	}

	var file priceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse price file: %w", err)
	}

	for toolID, cost := range file.Prices {
		if cost <= 0 {
			return nil, fmt.Errorf("price for %s must be positive, got %d", toolID, cost)
		}
		table.prices[toolID] = cost
	}
	return table, nil
}

// Cost returns the cost of one call in millicents
func (t *PriceTable) Cost(toolID string) (int64, bool) {
	cost, ok := t.prices[toolID]
	return cost, ok
}

// CostCents returns the cost of one call in cents, e.g. 0.5
func (t *PriceTable) CostCents(toolID string) float64 {
	return float64(t.prices[toolID]) / MillicentsPerCent
}

// Tools returns the priced tool ids in sorted order
func (t *PriceTable) Tools() []string {
	ids := make([]string, 0, len(t.prices))
	for id := range t.prices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
