// internal/discovery/scanner.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ErrNoAdapterFound means no scanner produced a usable port, so serial.port
// auto-resolution has nothing to open.
var ErrNoAdapterFound = errors.New("no candidate adapter port found")

// PortScanner enumerates candidate adapter ports over one bus type.
type PortScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredPort, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredPort is one place an ELM327 adapter may be reachable. Port is the
// openable device path; it stays empty for raw USB hits that are not bound to
// a tty yet.
type DiscoveredPort struct {
	Port         string  `json:"port,omitempty"`
	Transport    string  `json:"transport"`
	Description  string  `json:"description,omitempty"`
	VendorID     string  `json:"vendor_id,omitempty"`
	ProductID    string  `json:"product_id,omitempty"`
	SerialNumber string  `json:"serial_number,omitempty"`
	Bridge       string  `json:"bridge,omitempty"`
	Location     string  `json:"location,omitempty"`
	Confidence   float64 `json:"confidence"` // 0.0-1.0
}

// identity keys deduplication across scanners. The same adapter shows up in
// both the serial enumeration and the raw USB walk.
func (p *DiscoveredPort) identity() string {
	if p.VendorID != "" && p.SerialNumber != "" {
		return fmt.Sprintf("%s:%s:%s", p.VendorID, p.ProductID, p.SerialNumber)
	}
	if p.Port != "" {
		return "port:" + p.Port
	}
	return "loc:" + p.Location
}

// ScannerManager runs every registered scanner and merges their findings.
type ScannerManager struct {
	scanners map[string]PortScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]PortScanner),
		logger:   logger,
	}
}

// RegisterScanner registers a port scanner
func (sm *ScannerManager) RegisterScanner(scanner PortScanner) {
	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs all available scanners and returns the merged, deduplicated
// port list, best candidate first.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredPort, error) {
	var allPorts []*DiscoveredPort

	for scannerType, scanner := range sm.scanners {
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		ports, err := scanner.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		allPorts = append(allPorts, ports...)
		sm.logger.Info("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("ports_found", len(ports)),
		)
	}

	return mergePorts(allPorts), nil
}

// ScanByType runs one specific scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredPort, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}

	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	ports, err := scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return mergePorts(ports), nil
}

// BestPort picks the most plausible openable port, used to resolve the
// serial.port=auto setting.
func (sm *ScannerManager) BestPort(ctx context.Context) (*DiscoveredPort, error) {
	ports, err := sm.ScanAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, port := range ports {
		if port.Port != "" {
			return port, nil
		}
	}
	return nil, ErrNoAdapterFound
}

// GetAvailableScanners returns list of available scanner types
func (sm *ScannerManager) GetAvailableScanners() []string {
	var available []string
	for scannerType, scanner := range sm.scanners {
		if scanner.IsAvailable() {
			available = append(available, scannerType)
		}
	}
	sort.Strings(available)
	return available
}

// mergePorts collapses duplicate sightings of the same adapter, preferring
// the entry that carries an openable path, then orders by confidence.
func mergePorts(ports []*DiscoveredPort) []*DiscoveredPort {
	byIdentity := make(map[string]*DiscoveredPort, len(ports))
	var order []string

	for _, port := range ports {
		key := port.identity()
		existing, seen := byIdentity[key]
		if !seen {
			byIdentity[key] = port
			order = append(order, key)
			continue
		}
		if existing.Port == "" && port.Port != "" {
			byIdentity[key] = port
		}
	}

	merged := make([]*DiscoveredPort, 0, len(order))
	for _, key := range order {
		merged = append(merged, byIdentity[key])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if (merged[i].Port != "") != (merged[j].Port != "") {
			return merged[i].Port != ""
		}
		return merged[i].Confidence > merged[j].Confidence
	})
	return merged
}
