package dataio

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	astro "github.com/adcox/astrohelion-sub001"
)

// Catalog is the YAML summary of a family.
type Catalog struct {
	System      string         `yaml:"system"`
	Mu          float64        `yaml:"mu"`
	Parameter   string         `yaml:"parameter"`
	Termination string         `yaml:"termination"`
	Members     []CatalogEntry `yaml:"members"`
}

// CatalogEntry is the YAML summary of a family member.
type CatalogEntry struct {
	Param       float64      `yaml:"param"`
	IC          []float64    `yaml:"ic,flow"`
	Period      float64      `yaml:"period"`
	Jacobi      float64      `yaml:"jacobi"`
	Eigenvalues [][2]float64 `yaml:"eigenvalues,flow"`
	Stability   []float64    `yaml:"stability,flow"`
	Widths      [3]float64   `yaml:"widths,flow"`
	Record      string       `yaml:"record,omitempty"` // Identifier of the stored nodeset
}

// NewCatalog returns the catalog of a family. The records are the identifiers of the stored member
// nodesets, and may be nil.
func NewCatalog(fam *astro.Family, records []string) *Catalog {
	cat := &Catalog{Parameter: fam.Parameter.String()}
	if fam.Termination != 0 {
		cat.Termination = fam.Termination.String()
	}
	for i, m := range fam.Members {
		if i == 0 && m.System != nil {
			cat.System = m.System.Name()
			cat.Mu = m.System.Mu
		}
		entry := CatalogEntry{
			Param:     m.Param,
			IC:        m.IC,
			Period:    m.TOF,
			Jacobi:    m.Jacobi,
			Stability: m.Stability,
			Widths:    [3]float64{m.XWidth, m.YWidth, m.ZWidth},
		}
		for _, ev := range m.Eigenvalues {
			entry.Eigenvalues = append(entry.Eigenvalues, [2]float64{real(ev), imag(ev)})
		}
		if i < len(records) {
			entry.Record = records[i]
		}
		cat.Members = append(cat.Members, entry)
	}
	return cat
}

// WriteCatalog writes the catalog as YAML.
func WriteCatalog(w io.Writer, cat *Catalog) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cat); err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	return enc.Close()
}

// ReadCatalog reads a YAML catalog.
func ReadCatalog(r io.Reader) (*Catalog, error) {
	cat := &Catalog{}
	if err := yaml.NewDecoder(r).Decode(cat); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return cat, nil
}
