// internal/config/candidates_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"obd-service/internal/model"
)

func writeCandidateTable(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candidates.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write table: %v", err)
	}
	return path
}

func TestLoadCandidatesEmptyPathUsesBuiltInTable(t *testing.T) {
	candidates, err := LoadCandidates("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("expected built-in candidates")
	}
	if candidates[0].Name != "tcm-fluid-temp-16bit" {
		t.Errorf("expected TCM sixteen-bit candidate first, got %q", candidates[0].Name)
	}
}

func TestLoadCandidatesParsesFileInOrder(t *testing.T) {
	path := writeCandidateTable(t, `
candidates:
  - name: custom-tcm
    header: "7E1"
    did: 0x2F1A
    formula: linear16-over-64
    min_valid: -40
    max_valid: 160
  - name: custom-gateway
    header: "7C0"
    did: 0x0100
    formula: byte-minus-40
    min_valid: -40
    max_valid: 150
`)

	candidates, err := LoadCandidates(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Name != "custom-tcm" || candidates[1].Name != "custom-gateway" {
		t.Errorf("file order not preserved: %q, %q", candidates[0].Name, candidates[1].Name)
	}
	if candidates[0].DID != 0x2F1A {
		t.Errorf("expected hex DID 0x2F1A, got 0x%04X", candidates[0].DID)
	}
	if candidates[0].Formula != model.FormulaLinear16Over64 {
		t.Errorf("unexpected formula %q", candidates[0].Formula)
	}
}

func TestLoadCandidatesRejectsUnknownFormula(t *testing.T) {
	path := writeCandidateTable(t, `
candidates:
  - name: bad-formula
    header: "7E1"
    did: 0x1E1C
    formula: cubic-spline
    min_valid: -40
    max_valid: 160
`)

	_, err := LoadCandidates(path)
	if err == nil {
		t.Fatal("expected error for unknown formula")
	}
	if !strings.Contains(err.Error(), "cubic-spline") {
		t.Errorf("error should name the formula, got %v", err)
	}
}

func TestLoadCandidatesRejectsEmptyTable(t *testing.T) {
	path := writeCandidateTable(t, "candidates: []\n")

	if _, err := LoadCandidates(path); err == nil {
		t.Fatal("expected error for empty table")
	}
}

func TestLoadCandidatesRejectsInvertedRange(t *testing.T) {
	path := writeCandidateTable(t, `
candidates:
  - name: inverted
    header: "7E1"
    did: 0x1E1C
    formula: linear16-over-64
    min_valid: 160
    max_valid: -40
`)

	if _, err := LoadCandidates(path); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestLoadCandidatesMissingFile(t *testing.T) {
	if _, err := LoadCandidates(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
