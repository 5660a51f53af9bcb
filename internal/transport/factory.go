// internal/transport/factory.go
package transport

import (
	"fmt"

	"go.uber.org/zap"

	"obd-service/internal/config"
)

// NewTransport creates the transport selected by serial.mode
func NewTransport(cfg *config.SerialConfig, logger *zap.Logger) (Transport, error) {
	switch cfg.Mode {
	case "serial":
		if cfg.Port == "" {
			return nil, fmt.Errorf("serial port is required")
		}
		logger.Info("Creating serial transport",
			zap.String("port", cfg.Port),
			zap.Int("baud_rate", cfg.BaudRate),
		)
		return NewSerialTransport(cfg, logger), nil
	case "sim":
		logger.Info("Creating sim transport")
		return NewSimTransport(logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport mode: %s", cfg.Mode)
	}
}
