// internal/service/discovery_service.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"obd-service/internal/config"
	"obd-service/internal/discovery"
	"obd-service/internal/discovery/serial"
	"obd-service/internal/discovery/usb"
	"obd-service/internal/utils"
)

// DiscoveryService finds candidate adapter ports. It backs the discovery
// endpoints and resolves the serial.port=auto setting at startup.
type DiscoveryService struct {
	scannerManager *discovery.ScannerManager
	config         *config.Config
	logger         *utils.ServiceLogger
}

// NewDiscoveryService creates a new discovery service
func NewDiscoveryService(cfg *config.Config, logger *zap.Logger) *DiscoveryService {
	serviceLogger := utils.NewServiceLogger(logger, "discovery-service")
	scannerManager := discovery.NewScannerManager(logger)

	ds := &DiscoveryService{
		scannerManager: scannerManager,
		config:         cfg,
		logger:         serviceLogger,
	}
	ds.initializeScanners()
	return ds
}

// initializeScanners registers all available scanners
func (ds *DiscoveryService) initializeScanners() {
	if serialScanner := serial.NewScanner(ds.logger.Logger, nil); serialScanner.IsAvailable() {
		ds.scannerManager.RegisterScanner(serialScanner)
	}

	if ds.config.Discovery.USBEnabled {
		if usbScanner := usb.NewScanner(ds.logger.Logger, nil); usbScanner.IsAvailable() {
			ds.scannerManager.RegisterScanner(usbScanner)
		}
	}

	ds.logger.Info("Discovery scanners initialized",
		zap.Strings("available_scanners", ds.scannerManager.GetAvailableScanners()),
	)
}

// ScanPorts scans for candidate adapter ports
func (ds *DiscoveryService) ScanPorts(ctx context.Context, scanType string) ([]*discovery.DiscoveredPort, error) {
	ds.logger.Info("Starting port scan", zap.String("type", scanType))

	var ports []*discovery.DiscoveredPort
	var err error

	switch scanType {
	case "", "all":
		ports, err = ds.scannerManager.ScanAll(ctx)
	case "serial", "usb":
		ports, err = ds.scannerManager.ScanByType(ctx, scanType)
	default:
		return nil, fmt.Errorf("unsupported scan type: %s", scanType)
	}

	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	ds.logger.Info("Port scan completed",
		zap.Int("ports_found", len(ports)),
		zap.String("scan_type", scanType),
	)
	return ports, nil
}

// Scanners returns the registered scanner types
func (ds *DiscoveryService) Scanners() []string {
	return ds.scannerManager.GetAvailableScanners()
}

// ResolvePort turns the configured serial port into an openable path. The
// literal value passes through; "auto" picks the best discovered port.
func (ds *DiscoveryService) ResolvePort(ctx context.Context, configured string) (string, error) {
	if configured != "auto" {
		return configured, nil
	}

	best, err := ds.scannerManager.BestPort(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to auto-resolve serial port: %w", err)
	}

	ds.logger.Info("Auto-resolved serial port",
		zap.String("port", best.Port),
		zap.String("bridge", best.Bridge),
		zap.Float64("confidence", best.Confidence),
	)
	return best.Port, nil
}
