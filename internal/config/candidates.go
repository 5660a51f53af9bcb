// internal/config/candidates.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"obd-service/internal/model"
)

// candidateFile is the YAML shape of an external candidate table.
type candidateFile struct {
	Candidates []model.Candidate `yaml:"candidates"`
}

// DefaultCandidates returns the built-in transmission-temperature candidate
// table. Order encodes decreasing prior probability: the TCM-addressed
// sixteen-bit identifier is by far the most common source, the gateway
// variants are long shots. The first candidate that decodes into its
// plausible band wins.
func DefaultCandidates() []model.Candidate {
	return []model.Candidate{
		{
			Name:     "tcm-fluid-temp-16bit",
			Header:   "7E1",
			DID:      0x1E1C,
			Formula:  model.FormulaLinear16Over64,
			MinValid: -40,
			MaxValid: 160,
		},
		{
			Name:     "tcm-pan-temp-byte",
			Header:   "7E1",
			DID:      0x049D,
			Formula:  model.FormulaByteMinus40,
			MinValid: -40,
			MaxValid: 150,
		},
		{
			Name:     "pcm-fluid-temp-16bit",
			Header:   "7E0",
			DID:      0x1E1C,
			Formula:  model.FormulaLinear16Over64,
			MinValid: -40,
			MaxValid: 160,
		},
		{
			Name:     "pcm-sump-temp-signed",
			Header:   "7E0",
			DID:      0x04B9,
			Formula:  model.FormulaSigned8Scaled,
			MinValid: -40,
			MaxValid: 127,
		},
		{
			Name:     "gateway-fluid-temp-scaled",
			Header:   "7C0",
			DID:      0x731A,
			Formula:  model.FormulaLinear16Over10Minus40,
			MinValid: -40,
			MaxValid: 165,
		},
	}
}

// LoadCandidates reads the candidate table from path, falling back to the
// built-in table when path is empty. File entries fully replace the default
// table; order in the file is preserved.
func LoadCandidates(path string) ([]model.Candidate, error) {
	if path == "" {
		return DefaultCandidates(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidate table: %w", err)
	}

	var file candidateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse candidate table: %w", err)
	}

	if len(file.Candidates) == 0 {
		return nil, fmt.Errorf("candidate table %s defines no candidates", path)
	}

	for i, c := range file.Candidates {
		if err := validateCandidate(c); err != nil {
			return nil, fmt.Errorf("candidate table %s entry %d (%s): %w", path, i, c.Name, err)
		}
	}

	return file.Candidates, nil
}

// validateCandidate checks one table entry for the fields discovery depends on.
func validateCandidate(c model.Candidate) error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Header == "" {
		return fmt.Errorf("header is required")
	}
	if c.DID == 0 {
		return fmt.Errorf("did is required")
	}
	if !c.Formula.Valid() {
		return fmt.Errorf("unknown decode formula %q", c.Formula)
	}
	if c.MinValid >= c.MaxValid {
		return fmt.Errorf("min_valid must be below max_valid")
	}
	return nil
}
