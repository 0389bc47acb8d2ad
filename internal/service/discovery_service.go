// internal/service/discovery_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pino/internal/config"
	"pino/internal/discovery"
	"pino/internal/discovery/serial"
	"pino/internal/discovery/tcp"
	"pino/internal/discovery/usb"
	"pino/internal/utils"
)

// ErrUnsupportedScanType is returned for a scan type no scanner serves
var ErrUnsupportedScanType = errors.New("unsupported scan type")

// DiscoveryService finds ports a board may be attached to
type DiscoveryService struct {
	scannerManager *discovery.ScannerManager
	scanTimeout    time.Duration
	logger         *utils.ServiceLogger
}

// NewDiscoveryService creates a discovery service with the scanners enabled
// in cfg.Discovery
func NewDiscoveryService(cfg *config.Config, logger *zap.Logger) *DiscoveryService {
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := discovery.NewScannerManager(logger)
	sm.RegisterScanner(serial.NewScanner(logger, &serial.Config{OnlyKnown: cfg.Discovery.OnlyKnown}))
	if len(cfg.Discovery.Bridges) > 0 {
		sm.RegisterScanner(tcp.NewScanner(logger, &tcp.Config{Bridges: cfg.Discovery.Bridges}))
	}
	if cfg.Discovery.USB {
		sm.RegisterScanner(usb.NewScanner(logger, &usb.Config{
			Enabled:     true,
			ScanTimeout: cfg.Discovery.ScanTimeout,
		}))
	}

	ds := NewDiscoveryServiceWithManager(sm, cfg.Discovery.ScanTimeout, logger)
	ds.logger.Info("Discovery scanners initialized",
		zap.Strings("available_scanners", sm.GetAvailableScanners()),
	)
	return ds
}

// NewDiscoveryServiceWithManager creates a discovery service over sm
func NewDiscoveryServiceWithManager(sm *discovery.ScannerManager, scanTimeout time.Duration, logger *zap.Logger) *DiscoveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscoveryService{
		scannerManager: sm,
		scanTimeout:    scanTimeout,
		logger:         utils.NewServiceLogger(logger, "discovery-service"),
	}
}

// Scan runs the scanner named by scanType, or all of them for "" and "all"
func (ds *DiscoveryService) Scan(ctx context.Context, scanType string) ([]*discovery.DiscoveredPort, error) {
	if ds.scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ds.scanTimeout)
		defer cancel()
	}

	if scanType == "" {
		scanType = "all"
	}
	ds.logger.Info("Starting port scan", zap.String("type", scanType))

	var (
		ports []*discovery.DiscoveredPort
		err   error
	)
	switch scanType {
	case "all":
		ports, err = ds.scannerManager.ScanAll(ctx)
	case "serial", "usb", "tcp":
		ports, err = ds.scannerManager.ScanByType(ctx, scanType)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScanType, scanType)
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

// AvailableScanners returns the scanner types that can run on this host
func (ds *DiscoveryService) AvailableScanners() []string {
	return ds.scannerManager.GetAvailableScanners()
}
