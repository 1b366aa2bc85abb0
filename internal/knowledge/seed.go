package knowledge

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

type seedFile struct {
	Products []Product `yaml:"products"`
	Tickets  []Ticket  `yaml:"tickets"`
}

// Seed returns the built-in demo catalog and inbox.
func Seed() ([]Product, []Ticket, error) {
	var f seedFile
	if err := yaml.Unmarshal(seedYAML, &f); err != nil {
		return nil, nil, fmt.Errorf("parsing seed catalog: %w", err)
	}
	return f.Products, f.Tickets, nil
}
