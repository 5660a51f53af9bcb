// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"obd-service/internal/discovery"
	"obd-service/internal/discovery/usb"
)

// Scanner enumerates serial ports and ranks them by how likely each is to be
// an ELM327 adapter. USB ports are matched against the bridge chip database;
// non-USB ports are kept only when they look like a Bluetooth SPP link.
type Scanner struct {
	logger  *zap.Logger
	bridges *usb.BridgeDatabase
	config  *Config
}

// Config for serial scanner
type Config struct {
	ScanTimeout  time.Duration `json:"scan_timeout"`
	PortPatterns []string      `json:"port_patterns"`
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{
			ScanTimeout:  5 * time.Second,
			PortPatterns: defaultPortPatterns(),
		}
	}

	return &Scanner{
		logger:  logger.With(zap.String("scanner", "serial")),
		bridges: usb.NewBridgeDatabase(),
		config:  config,
	}
}

// defaultPortPatterns lists the non-USB port names worth reporting, mostly
// Bluetooth SPP bindings.
func defaultPortPatterns() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"cu.OBD", "cu.Bluetooth", "cu.ELM"}
	case "windows":
		return []string{"COM"}
	default:
		return []string{"rfcomm"}
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable checks if serial scanning is available
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan performs the serial port enumeration
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	s.logger.Info("Starting serial port scan")

	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var ports []*discovery.DiscoveredPort
	for _, detail := range details {
		if ctx.Err() != nil {
			return ports, ctx.Err()
		}
		if port := s.examinePort(detail); port != nil {
			ports = append(ports, port)
		}
	}

	s.logger.Info("Serial scan completed", zap.Int("ports_found", len(ports)))
	return ports, nil
}

// examinePort ranks one enumerated port
func (s *Scanner) examinePort(detail *enumerator.PortDetails) *discovery.DiscoveredPort {
	if detail.IsUSB {
		return s.examineUSBPort(detail)
	}

	if !s.matchesPattern(detail.Name) {
		return nil
	}
	return &discovery.DiscoveredPort{
		Port:        detail.Name,
		Transport:   "serial",
		Description: "non-USB serial port",
		Confidence:  0.45,
	}
}

// examineUSBPort ranks a tty that sits behind a USB device
func (s *Scanner) examineUSBPort(detail *enumerator.PortDetails) *discovery.DiscoveredPort {
	port := &discovery.DiscoveredPort{
		Port:         detail.Name,
		Transport:    "serial",
		VendorID:     strings.ToUpper(detail.VID),
		ProductID:    strings.ToUpper(detail.PID),
		SerialNumber: detail.SerialNumber,
		Description:  detail.Product,
	}

	vendor, bridge := s.bridges.LookupHex(detail.VID, detail.PID)
	switch {
	case bridge != nil:
		port.Bridge = bridge.Chip
		port.Confidence = bridge.Confidence
		if port.Description == "" {
			port.Description = fmt.Sprintf("%s %s", vendor.Name, bridge.Chip)
		}
	case vendor != nil:
		port.Confidence = 0.4
		if port.Description == "" {
			port.Description = vendor.Name
		}
	default:
		// Some USB serial device; could still be an adapter with an
		// uncommon bridge.
		port.Confidence = 0.3
	}

	s.logger.Debug("Examined USB serial port",
		zap.String("port", detail.Name),
		zap.String("vendor_id", detail.VID),
		zap.String("product_id", detail.PID),
		zap.String("bridge", port.Bridge),
	)
	return port
}

// matchesPattern checks a non-USB port name against the configured patterns
func (s *Scanner) matchesPattern(name string) bool {
	for _, pattern := range s.config.PortPatterns {
		if strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}
